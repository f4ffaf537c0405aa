package ai

import (
	"errors"
	"fmt"
)

// CredentialsError signals missing or incomplete provider credentials.
// It is an owner configuration problem, never retried: the message
// names where to fix it and is logged for the bot owner, while the
// contact receives the regular apology reply.
type CredentialsError struct {
	Message string
}

func (e *CredentialsError) Error() string {
	return e.Message
}

// IsCredentialsError reports whether err is a credentials problem.
func IsCredentialsError(err error) bool {
	var ce *CredentialsError
	return errors.As(err, &ce)
}

// ErrRunTimeout is returned when an assistant run does not finish
// within the polling budget.
var ErrRunTimeout = errors.New("openai run timed out")

// ConversationKey builds the provider-memory key for one contact's
// thread with one bot.
func ConversationKey(botID uint, chatID string) string {
	return fmt.Sprintf("%d:%s", botID, chatID)
}
