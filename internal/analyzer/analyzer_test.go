package analyzer

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sumire/triage/internal/domain"
)

type fakeCompleter struct {
	responses []func() (string, error)
	calls     int
}

func (f *fakeCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	i := f.calls
	f.calls++
	if i >= len(f.responses) {
		i = len(f.responses) - 1
	}
	return f.responses[i]()
}

func newTestAnalyzer(c completer) *Analyzer {
	return &Analyzer{
		completer:      c,
		model:          "claude-sonnet-4-5-20250929",
		promptVersion:  "v1",
		systemPrompt:   "triage the ticket",
		backoffInitial: time.Millisecond,
		backoffMax:     2 * time.Millisecond,
	}
}

const goodPayload = `{"summary": "Login broken", "category": "auth/login", "reply_draft": "We are on it."}`

func TestAnalyze_Success(t *testing.T) {
	fake := &fakeCompleter{responses: []func() (string, error){
		func() (string, error) { return goodPayload, nil },
	}}

	a := newTestAnalyzer(fake)
	triage, err := a.Analyze(context.Background(), "Cannot log in")

	require.NoError(t, err)
	assert.Equal(t, 1, fake.calls)
	assert.Equal(t, "Login broken", triage.Summary)
	assert.Equal(t, domain.CategoryAuthLogin, triage.Category)
}

func TestAnalyze_StripsMarkdownFences(t *testing.T) {
	fake := &fakeCompleter{responses: []func() (string, error){
		func() (string, error) { return "```json\n" + goodPayload + "\n```", nil },
	}}

	a := newTestAnalyzer(fake)
	triage, err := a.Analyze(context.Background(), "Cannot log in")

	require.NoError(t, err)
	assert.Equal(t, domain.CategoryAuthLogin, triage.Category)
}

func TestAnalyze_RetriesTransientThenSucceeds(t *testing.T) {
	fake := &fakeCompleter{responses: []func() (string, error){
		func() (string, error) { return "", errors.New("connection reset") },
		func() (string, error) { return "", errors.New("connection reset") },
		func() (string, error) { return goodPayload, nil },
	}}

	a := newTestAnalyzer(fake)
	triage, err := a.Analyze(context.Background(), "Cannot log in")

	require.NoError(t, err)
	assert.Equal(t, 3, fake.calls)
	assert.Equal(t, "Login broken", triage.Summary)
}

func TestAnalyze_TransientExhaustsAfterThreeAttempts(t *testing.T) {
	fake := &fakeCompleter{responses: []func() (string, error){
		func() (string, error) { return "", errors.New("upstream unavailable") },
	}}

	a := newTestAnalyzer(fake)
	_, err := a.Analyze(context.Background(), "Cannot log in")

	require.Error(t, err)
	assert.Equal(t, 3, fake.calls)
}

func TestAnalyze_TerminalFailureIsNotRetried(t *testing.T) {
	fake := &fakeCompleter{responses: []func() (string, error){
		func() (string, error) { return "", errNoOutput },
	}}

	a := newTestAnalyzer(fake)
	_, err := a.Analyze(context.Background(), "Cannot log in")

	require.Error(t, err)
	assert.ErrorIs(t, err, errNoOutput)
	assert.Equal(t, 1, fake.calls, "terminal failures must surface immediately")
}

func TestAnalyze_UnparseableOutputIsTerminal(t *testing.T) {
	fake := &fakeCompleter{responses: []func() (string, error){
		func() (string, error) { return "I refuse to answer that.", nil },
	}}

	a := newTestAnalyzer(fake)
	_, err := a.Analyze(context.Background(), "Cannot log in")

	require.Error(t, err)
	assert.ErrorIs(t, err, errNoOutput)
	assert.Equal(t, 1, fake.calls)
}

func TestAnalyze_InvalidPayloadIsRejected(t *testing.T) {
	fake := &fakeCompleter{responses: []func() (string, error){
		func() (string, error) {
			return `{"summary": "s", "category": "spam", "reply_draft": "r"}`, nil
		},
	}}

	a := newTestAnalyzer(fake)
	_, err := a.Analyze(context.Background(), "Cannot log in")

	require.Error(t, err)
	var validationErr *domain.ValidationError
	assert.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "category", validationErr.Field)
}

func TestTransientClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
	}{
		{name: "connection failure", err: errors.New("dial tcp: connection refused"), transient: true},
		{name: "request deadline", err: context.DeadlineExceeded, transient: true},
		{name: "rate limit", err: &anthropic.Error{StatusCode: http.StatusTooManyRequests}, transient: true},
		{name: "request timeout", err: &anthropic.Error{StatusCode: http.StatusRequestTimeout}, transient: true},
		{name: "upstream server error", err: &anthropic.Error{StatusCode: http.StatusInternalServerError}, transient: true},
		{name: "overloaded", err: &anthropic.Error{StatusCode: http.StatusServiceUnavailable}, transient: true},
		{name: "bad request", err: &anthropic.Error{StatusCode: http.StatusBadRequest}, transient: false},
		{name: "auth failure", err: &anthropic.Error{StatusCode: http.StatusUnauthorized}, transient: false},
		{name: "caller cancelled", err: context.Canceled, transient: false},
		{name: "no parseable output", err: errNoOutput, transient: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.transient, transient(tt.err))
		})
	}
}

func TestLoadPrompt_Missing(t *testing.T) {
	_, err := loadPrompt(t.TempDir(), "v1", systemPromptFile)
	assert.Error(t, err)
}

func TestNew_LoadsVersionedPrompt(t *testing.T) {
	dir := t.TempDir()
	writePromptFile(t, dir, "v2", "You are a triage assistant.")

	a, err := New(Config{
		APIKey:        "test-key",
		Model:         "claude-sonnet-4-5-20250929",
		PromptVersion: "v2",
		PromptsDir:    dir,
	})

	require.NoError(t, err)
	assert.Equal(t, "You are a triage assistant.", a.systemPrompt)
	assert.Equal(t, "v2", a.PromptVersion())
	assert.Equal(t, "claude-sonnet-4-5-20250929", a.Model())
}

func writePromptFile(t *testing.T, dir, version, content string) {
	t.Helper()
	path := filepath.Join(dir, version)
	require.NoError(t, os.MkdirAll(path, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(path, systemPromptFile), []byte(content), 0o644))
}
