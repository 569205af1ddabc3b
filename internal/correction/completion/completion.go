// Package completion talks to the text-completion service and enforces the
// correction reply contract (plain corrected text, no quotes, no commentary).
package completion

import (
	"context"
	"errors"
	"strings"

	"github.com/jurisfix/jurisfix/backend/go-services/internal/correction"
	"github.com/jurisfix/jurisfix/backend/go-services/internal/correction/agent"
)

// Message roles.
const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// SystemInstruction is sent ahead of every correction prompt.
const SystemInstruction = "Tu es un correcteur orthographique expert. Tu corriges UNIQUEMENT l'orthographe et la grammaire. Retourne le texte corrigé sans guillemets, sans commentaires, sans préambule."

// Message is one role-tagged chat message.
type Message struct {
	Role    string
	Content string
}

// Request is what a Completer receives. Temperature 0 means deterministic
// decoding.
type Request struct {
	Model       string
	Messages    []Message
	Temperature float32
	MaxTokens   int
}

// Completer returns a single text completion. Failures should be reported as
// *correction.ExternalServiceError.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Corrector builds correction requests and post-processes replies.
type Corrector struct {
	completer Completer
}

func NewCorrector(c Completer) *Corrector {
	return &Corrector{completer: c}
}

// BuildRequest returns the request sent for text under profile p.
func BuildRequest(p agent.Profile, text string) Request {
	return Request{
		Model: p.Model,
		Messages: []Message{
			{Role: RoleSystem, Content: SystemInstruction},
			{Role: RoleUser, Content: p.Prompt(text)},
		},
		Temperature: 0,
		MaxTokens:   3 * len(strings.Fields(text)),
	}
}

// Correct asks the completion service to correct already-anonymized text and
// returns the reply with surrounding whitespace and one layer of quotes removed.
func (c *Corrector) Correct(ctx context.Context, p agent.Profile, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", correction.ErrEmptyInput
	}
	out, err := c.completer.Complete(ctx, BuildRequest(p, text))
	if err != nil {
		if errors.Is(err, correction.ErrExternalService) {
			return "", err
		}
		return "", &correction.ExternalServiceError{Op: "completion", Retryable: true, Err: err}
	}
	return StripQuotes(out), nil
}

// StripQuotes trims whitespace, then removes one matching pair of double
// quotes, or failing that one matching pair of single quotes.
func StripQuotes(s string) string {
	s = strings.TrimSpace(s)
	if len(s) < 2 {
		return s
	}
	if s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	if s[0] == '\'' && s[len(s)-1] == '\'' {
		return s[1 : len(s)-1]
	}
	return s
}
