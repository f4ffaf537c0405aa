package api

import (
	"errors"
	"io"
	"testing"

	"zapgpt/backend/internal/models"
	"zapgpt/backend/pkg/logger"
	"zapgpt/backend/whatsapp"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: "error", Output: io.Discard})
}

func TestBotEventListenersConnectedStatusEmitsFreshBotRecord(t *testing.T) {
	fresh := &models.Bot{ID: 5, Name: "Atendente", IsConnected: true, IsActive: true}
	lookups := 0
	lookup := func(id uint) (*models.Bot, error) {
		lookups++
		assert.Equal(t, uint(5), id)
		return fresh, nil
	}

	var got []sseEvent
	_, status := botEventListeners(5, lookup, func(e sseEvent) { got = append(got, e) }, testLogger())

	status(whatsapp.SessionEvent{BotID: 5, Status: "isLogged"})

	require.Len(t, got, 2)
	assert.Equal(t, "status", got[0].name)
	assert.Equal(t, "bot", got[1].name)
	// the payload is the re-read record with the persisted flags
	assert.Same(t, fresh, got[1].data)
	assert.Equal(t, 1, lookups)
}

func TestBotEventListenersNonLoginStatusOmitsBotRecord(t *testing.T) {
	lookup := func(id uint) (*models.Bot, error) {
		t.Fatal("lookup should not run for a non-login status")
		return nil, nil
	}

	var got []sseEvent
	_, status := botEventListeners(5, lookup, func(e sseEvent) { got = append(got, e) }, testLogger())

	status(whatsapp.SessionEvent{BotID: 5, Status: "qrReadSuccess"})

	require.Len(t, got, 1)
	assert.Equal(t, "status", got[0].name)
}

func TestBotEventListenersFilterOtherBots(t *testing.T) {
	var got []sseEvent
	qr, status := botEventListeners(5, func(uint) (*models.Bot, error) {
		return nil, errors.New("unused")
	}, func(e sseEvent) { got = append(got, e) }, testLogger())

	qr(whatsapp.QRCodeEvent{BotID: 6, QRBase64: "data"})
	status(whatsapp.SessionEvent{BotID: 6, Status: "isLogged"})

	assert.Empty(t, got)
}
