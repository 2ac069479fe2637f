package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCategory_Valid(t *testing.T) {
	for _, c := range Categories {
		assert.True(t, c.Valid(), "expected %q to be valid", c)
	}
	assert.False(t, Category("spam").Valid())
	assert.False(t, Category("").Valid())
}

func TestTriage_Validate(t *testing.T) {
	valid := Triage{
		Summary:    "User cannot log in after password reset",
		Category:   CategoryAuthLogin,
		ReplyDraft: "Hi, sorry about the trouble. Could you try clearing your cookies?",
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Triage)
		field  string
	}{
		{
			name:   "empty summary",
			mutate: func(tr *Triage) { tr.Summary = "" },
			field:  "summary",
		},
		{
			name:   "summary too long",
			mutate: func(tr *Triage) { tr.Summary = strings.Repeat("a", 601) },
			field:  "summary",
		},
		{
			name:   "unknown category",
			mutate: func(tr *Triage) { tr.Category = "spam" },
			field:  "category",
		},
		{
			name:   "empty reply draft",
			mutate: func(tr *Triage) { tr.ReplyDraft = "" },
			field:  "reply_draft",
		},
		{
			name:   "reply draft too long",
			mutate: func(tr *Triage) { tr.ReplyDraft = strings.Repeat("a", 2001) },
			field:  "reply_draft",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := valid
			tt.mutate(&tr)

			err := tr.Validate()
			var validationErr *ValidationError
			require.ErrorAs(t, err, &validationErr)
			assert.Equal(t, tt.field, validationErr.Field)
		})
	}
}
