package service

import (
	"testing"

	"zapgpt/backend/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestNewUserFromRequestKeepsLastNameAndPlan(t *testing.T) {
	user := newUserFromRequest(&models.CreateUserRequest{
		Name:     "Ana",
		LastName: "Souza",
		Email:    "ana@example.com",
		Password: "supersecret",
		Plan:     models.PlanPro,
	})

	assert.Equal(t, "Ana", user.Name)
	assert.Equal(t, "Souza", user.LastName)
	assert.Equal(t, models.PlanPro, user.Plan)
}

func TestNewUserFromRequestDefaultsPlan(t *testing.T) {
	omitted := newUserFromRequest(&models.CreateUserRequest{
		Name: "Ana", Email: "ana@example.com", Password: "supersecret",
	})
	assert.Equal(t, models.PlanStarter, omitted.Plan)

	unknown := newUserFromRequest(&models.CreateUserRequest{
		Name: "Ana", Email: "ana@example.com", Password: "supersecret", Plan: "platinum",
	})
	assert.Equal(t, models.PlanStarter, unknown.Plan)
}

func TestProfileUpdatesOnlyNonNilFields(t *testing.T) {
	name := "Ana"
	assert.Equal(t, map[string]any{"name": "Ana"},
		profileUpdates(&models.UpdateProfileRequest{Name: &name}))

	last := ""
	updates := profileUpdates(&models.UpdateProfileRequest{LastName: &last})
	assert.Equal(t, map[string]any{"last_name": ""}, updates)

	assert.Empty(t, profileUpdates(&models.UpdateProfileRequest{}))
}
