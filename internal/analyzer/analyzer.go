package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cenkalti/backoff/v5"

	"github.com/sumire/triage/internal/domain"
)

const (
	systemPromptFile = "ticket_process_system.txt"

	defaultTimeout = 20 * time.Second
	maxAttempts    = 3
	backoffInitial = time.Second
	backoffMax     = 8 * time.Second
)

// errNoOutput marks a response that completed but carried no usable
// structured payload. It is terminal: retrying the same input will not fix a
// refusal or a formatting failure.
var errNoOutput = errors.New("no parsed output in model response (possible refusal or formatting issue)")

// completer is the raw model call seam: one system/user exchange in, the
// response text out.
type completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Config holds the analyzer's external-model settings.
type Config struct {
	APIKey        string
	Model         string
	PromptVersion string
	PromptsDir    string
	Timeout       time.Duration
}

// Analyzer derives a structured triage payload from raw ticket text via the
// external model, retrying transient failures with exponential backoff.
type Analyzer struct {
	completer     completer
	model         string
	promptVersion string
	systemPrompt  string

	// Overridable in tests; production values come from the consts above.
	backoffInitial time.Duration
	backoffMax     time.Duration
}

// New creates an Analyzer. The versioned system prompt is loaded once from
// <promptsDir>/<promptVersion>/ticket_process_system.txt and passed verbatim
// on every call.
func New(cfg Config) (*Analyzer, error) {
	prompt, err := loadPrompt(cfg.PromptsDir, cfg.PromptVersion, systemPromptFile)
	if err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	// SDK-level retry is disabled: retry is owned entirely by Analyze so a
	// transient failure is not multiplied into SDK retries × our retries.
	client := anthropic.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
		option.WithRequestTimeout(timeout),
	)

	return &Analyzer{
		completer:      &anthropicCompleter{client: client, model: cfg.Model},
		model:          cfg.Model,
		promptVersion:  cfg.PromptVersion,
		systemPrompt:   prompt,
		backoffInitial: backoffInitial,
		backoffMax:     backoffMax,
	}, nil
}

// Model returns the external-model identifier the analyzer calls.
func (a *Analyzer) Model() string { return a.model }

// PromptVersion returns the prompt template version the analyzer uses.
func (a *Analyzer) PromptVersion() string { return a.promptVersion }

// Analyze submits the raw ticket text to the external model and returns the
// validated triage payload. Transient failures (connection, timeout, rate
// limit, upstream 5xx) are retried up to three attempts total; everything
// else fails immediately.
func (a *Analyzer) Analyze(ctx context.Context, rawText string) (domain.Triage, error) {
	operation := func() (string, error) {
		text, err := a.completer.Complete(ctx, a.systemPrompt, rawText)
		if err != nil {
			if transient(err) {
				slog.Warn("analyzer call failed, retrying", "error", err)
				return "", err
			}
			return "", backoff.Permanent(err)
		}
		return text, nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = a.backoffInitial
	b.MaxInterval = a.backoffMax

	text, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(maxAttempts),
	)
	if err != nil {
		return domain.Triage{}, fmt.Errorf("analyze ticket: %w", err)
	}

	triage, err := parseTriage(text)
	if err != nil {
		return domain.Triage{}, err
	}
	if err := triage.Validate(); err != nil {
		return domain.Triage{}, fmt.Errorf("analyzer payload rejected: %w", err)
	}
	return triage, nil
}

// transient classifies an analyzer call failure as retryable or terminal.
// Retryable: connection failures, request timeouts, rate limiting, upstream
// server errors. Terminal: everything else, including refusals and client
// errors, plus caller cancellation.
func transient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, errNoOutput) {
		return false
	}
	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		return apierr.StatusCode == http.StatusRequestTimeout ||
			apierr.StatusCode == http.StatusTooManyRequests ||
			apierr.StatusCode >= http.StatusInternalServerError
	}
	// Anything non-API at this point is transport-level: DNS failures,
	// refused connections, request timeouts.
	return true
}

func parseTriage(text string) (domain.Triage, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var triage domain.Triage
	if err := json.Unmarshal([]byte(text), &triage); err != nil {
		return domain.Triage{}, fmt.Errorf("%w: %v", errNoOutput, err)
	}
	return triage, nil
}

func loadPrompt(dir, version, filename string) (string, error) {
	path := filepath.Join(dir, version, filename)
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("load prompt %s: %w", path, err)
	}
	return string(data), nil
}

type anthropicCompleter struct {
	client anthropic.Client
	model  string
}

func (c *anthropicCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	message, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: 1024,
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
	})
	if err != nil {
		return "", err
	}
	for _, block := range message.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", errNoOutput
}
