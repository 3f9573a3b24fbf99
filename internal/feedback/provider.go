package feedback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"bookkeeper/internal/config"
)

var (
	// ErrNoProvider is returned when no LLM provider is configured.
	ErrNoProvider = errors.New("no LLM provider configured")
	// ErrMalformedResponse is returned when model output cannot be used.
	ErrMalformedResponse = errors.New("malformed model response")
)

// Provider completes a Prompt with a language model.
type Provider interface {
	Complete(ctx context.Context, p Prompt) (string, error)
	Name() string
}

type timeoutProvider struct {
	Provider
	timeout time.Duration
}

// WithTimeout bounds every call to p by d. A non-positive d returns p unchanged.
func WithTimeout(p Provider, d time.Duration) Provider {
	if p == nil || d <= 0 {
		return p
	}
	return timeoutProvider{Provider: p, timeout: d}
}

func (t timeoutProvider) Complete(ctx context.Context, p Prompt) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	out, err := t.Provider.Complete(ctx, p)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "", fmt.Errorf("%s: timed out after %v: %w", t.Name(), t.timeout, err)
	}
	return out, err
}

// NewProviderFromConfig builds the configured provider wrapped in the LLM
// timeout. It returns ErrNoProvider when LLM_PROVIDER is none.
func NewProviderFromConfig(ctx context.Context, cfg *config.Config) (Provider, error) {
	var (
		p   Provider
		err error
	)
	switch cfg.LLMProvider {
	case config.ProviderOpenAI:
		p = NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL)
	case config.ProviderGemini:
		p, err = NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, "")
	case config.ProviderNone, "":
		return nil, ErrNoProvider
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.LLMProvider)
	}
	if err != nil {
		return nil, err
	}
	return WithTimeout(p, cfg.LLMTimeout), nil
}

// cleanModelJSON strips Markdown fences and surrounding prose from a model
// reply, keeping the outermost JSON array or object.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		idx := strings.Index(s, "\n")
		if idx == -1 {
			return s
		}
		s = strings.TrimSpace(s[idx+1:])
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = strings.TrimSpace(s[:idx])
	}

	opener, closer := "[", "]"
	if i := strings.IndexAny(s, "[{"); i != -1 && s[i] == '{' {
		opener, closer = "{", "}"
	}
	if start := strings.Index(s, opener); start != -1 {
		if end := strings.LastIndex(s, closer); end > start {
			s = s[start : end+1]
		}
	}
	return strings.TrimSpace(s)
}

// decodeModelList decodes a reply of the form {"<key>": [...]} into dst.
// A bare array is accepted too, since not every model honours JSON mode.
func decodeModelList(reply, key string, dst any) error {
	cleaned := cleanModelJSON(reply)
	if !strings.HasPrefix(cleaned, "{") {
		return json.Unmarshal([]byte(cleaned), dst)
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &obj); err != nil {
		return err
	}
	raw, ok := obj[key]
	if !ok {
		return fmt.Errorf("missing %q field", key)
	}
	return json.Unmarshal(raw, dst)
}
