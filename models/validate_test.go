package models_test

import (
	"strings"
	"testing"

	"github.com/alwitt/visitsync/models"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
)

func TestVisitValidation(t *testing.T) {
	assert := assert.New(t)

	validate := validator.New()
	assert.Nil(models.RegisterWithValidator(validate))

	valid := models.Visit{
		VisitDetails: models.VisitDetails{
			ClientRef:   "5f0e2d4c-1b7a-4c53-9d44-2f9f6b1c8e21",
			StartedAt:   "2025-01-02T09:00:00Z",
			EndedAt:     "2025-01-02T10:00:00+01:00",
			PatientName: "Alice",
		},
		Synced: models.SyncFlagUnsynced,
	}
	assert.Nil(validate.Struct(&valid))

	// No times at all is allowed
	noTimes := valid
	noTimes.StartedAt = ""
	noTimes.EndedAt = ""
	assert.Nil(validate.Struct(&noTimes))

	type testCase struct {
		name   string
		modify func(*models.Visit)
	}
	for _, tc := range []testCase{
		{"start without end", func(v *models.Visit) { v.EndedAt = "" }},
		{"end without start", func(v *models.Visit) { v.StartedAt = "" }},
		{"malformed start", func(v *models.Visit) { v.StartedAt = "yesterday" }},
		{"malformed submitted", func(v *models.Visit) { v.SubmittedAt = "2025-01-02" }},
		{"long notes", func(v *models.Visit) { v.Notes = strings.Repeat("n", 501) }},
		{"bad client ref", func(v *models.Visit) { v.ClientRef = "not-a-uuid" }},
		{"bad sync flag", func(v *models.Visit) { v.Synced = 2 }},
	} {
		candidate := valid
		tc.modify(&candidate)
		assert.Error(validate.Struct(&candidate), tc.name)
	}
}

func TestSyncRunReportValidation(t *testing.T) {
	assert := assert.New(t)

	validate := validator.New()
	assert.Nil(models.RegisterWithValidator(validate))

	report := models.SyncRunReport{Strategy: models.SyncStrategyIncremental, Uploaded: 1}
	assert.Nil(validate.Struct(&report))

	report.Strategy = "SOMETIMES"
	assert.Error(validate.Struct(&report))

	report.Strategy = models.SyncStrategyNone
	report.Skipped = -1
	assert.Error(validate.Struct(&report))
}
