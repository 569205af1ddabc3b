package completion

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jurisfix/jurisfix/backend/go-services/internal/correction"
	"github.com/jurisfix/jurisfix/backend/go-services/internal/correction/agent"
)

type fakeCompleter struct {
	reply string
	err   error
	got   Request
	calls int
}

func (f *fakeCompleter) Complete(_ context.Context, req Request) (string, error) {
	f.calls++
	f.got = req
	return f.reply, f.err
}

func defaultProfile(t *testing.T) agent.Profile {
	p, ok := agent.DefaultRegistry("").Get(agent.DefaultKey)
	require.True(t, ok)
	return p
}

func TestStripQuotes(t *testing.T) {
	cases := map[string]string{
		`"Le créancier a tort."`:   "Le créancier a tort.",
		"  'Bonjour'  \n":          "Bonjour",
		`""hello""`:                `"hello"`,
		`'"mixed"'`:                `"mixed"`,
		`"unbalanced`:              `"unbalanced`,
		`"`:                        `"`,
		"Texte sans guillemets.":   "Texte sans guillemets.",
	}
	for in, want := range cases {
		assert.Equal(t, want, StripQuotes(in), in)
	}
}

func TestCorrector_BuildsRequest(t *testing.T) {
	f := &fakeCompleter{reply: ` "Le créancier a tort." `}
	c := NewCorrector(f)
	p := defaultProfile(t)

	out, err := c.Correct(context.Background(), p, "Le créanciers a tord.")
	require.NoError(t, err)
	assert.Equal(t, "Le créancier a tort.", out)

	require.Len(t, f.got.Messages, 2)
	assert.Equal(t, RoleSystem, f.got.Messages[0].Role)
	assert.Equal(t, SystemInstruction, f.got.Messages[0].Content)
	assert.Equal(t, RoleUser, f.got.Messages[1].Role)
	assert.Equal(t, p.Prompt("Le créanciers a tord."), f.got.Messages[1].Content)
	assert.Equal(t, float32(0), f.got.Temperature)
	assert.Equal(t, 12, f.got.MaxTokens)
	assert.Equal(t, "gpt-4", f.got.Model)
}

func TestCorrector_EmptyInput(t *testing.T) {
	f := &fakeCompleter{}
	_, err := NewCorrector(f).Correct(context.Background(), defaultProfile(t), "  \n\t")
	assert.ErrorIs(t, err, correction.ErrEmptyInput)
	assert.Zero(t, f.calls)
}

func TestCorrector_WrapsErrors(t *testing.T) {
	f := &fakeCompleter{err: errors.New("boom")}
	_, err := NewCorrector(f).Correct(context.Background(), defaultProfile(t), "texte")
	assert.ErrorIs(t, err, correction.ErrExternalService)
}

func chatServer(t *testing.T, handler func(w http.ResponseWriter, body map[string]any)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		handler(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeChoice(w http.ResponseWriter, content string) {
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1,
		"model":   "gpt-4",
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]string{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
	})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"message": msg, "type": "server_error"},
	})
}

func TestOpenAICompleter_Success(t *testing.T) {
	var seen map[string]any
	srv := chatServer(t, func(w http.ResponseWriter, body map[string]any) {
		seen = body
		writeChoice(w, `"Le créancier a tort."`)
	})

	c := NewCorrector(NewOpenAICompleter(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1", Timeout: time.Second}))
	out, err := c.Correct(context.Background(), defaultProfile(t), "Le créanciers a tord.")
	require.NoError(t, err)
	assert.Equal(t, "Le créancier a tort.", out)

	require.NotNil(t, seen)
	assert.Equal(t, "gpt-4", seen["model"])
	assert.EqualValues(t, 12, seen["max_tokens"])
	temp, ok := seen["temperature"].(float64)
	require.True(t, ok, "temperature must be sent")
	assert.Less(t, temp, 1e-6)
	msgs, _ := seen["messages"].([]any)
	assert.Len(t, msgs, 2)
}

func TestOpenAICompleter_ErrorClassification(t *testing.T) {
	cases := []struct {
		status    int
		retryable bool
	}{
		{http.StatusUnauthorized, false},
		{http.StatusBadRequest, false},
		{http.StatusTooManyRequests, true},
		{http.StatusInternalServerError, true},
		{http.StatusServiceUnavailable, true},
	}
	for _, tc := range cases {
		srv := chatServer(t, func(w http.ResponseWriter, _ map[string]any) {
			writeError(w, tc.status, "nope")
		})
		_, err := NewOpenAICompleter(OpenAIConfig{BaseURL: srv.URL + "/v1"}).Complete(context.Background(), Request{Model: "gpt-4"})
		require.Error(t, err)
		assert.ErrorIs(t, err, correction.ErrExternalService)
		var ese *correction.ExternalServiceError
		require.True(t, errors.As(err, &ese))
		assert.Equal(t, tc.retryable, ese.Retryable, "status %d", tc.status)
	}
}

func TestOpenAICompleter_NoChoices(t *testing.T) {
	srv := chatServer(t, func(w http.ResponseWriter, _ map[string]any) {
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "x", "choices": []any{}})
	})
	_, err := NewOpenAICompleter(OpenAIConfig{BaseURL: srv.URL + "/v1"}).Complete(context.Background(), Request{Model: "gpt-4"})
	assert.ErrorIs(t, err, correction.ErrExternalService)
}

func TestRetryingCompleter_RetriesTransientFailures(t *testing.T) {
	var hits int32
	srv := chatServer(t, func(w http.ResponseWriter, _ map[string]any) {
		if atomic.AddInt32(&hits, 1) < 3 {
			writeError(w, http.StatusServiceUnavailable, "busy")
			return
		}
		writeChoice(w, "ok")
	})
	rc := NewRetryingCompleter(NewOpenAICompleter(OpenAIConfig{BaseURL: srv.URL + "/v1"}), 3, time.Millisecond)
	out, err := rc.Complete(context.Background(), Request{Model: "gpt-4"})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.EqualValues(t, 3, atomic.LoadInt32(&hits))
}

func TestRetryingCompleter_GivesUp(t *testing.T) {
	var hits int32
	srv := chatServer(t, func(w http.ResponseWriter, _ map[string]any) {
		atomic.AddInt32(&hits, 1)
		writeError(w, http.StatusBadGateway, "down")
	})
	rc := NewRetryingCompleter(NewOpenAICompleter(OpenAIConfig{BaseURL: srv.URL + "/v1"}), 2, time.Millisecond)
	_, err := rc.Complete(context.Background(), Request{Model: "gpt-4"})
	assert.ErrorIs(t, err, correction.ErrExternalService)
	assert.EqualValues(t, 2, atomic.LoadInt32(&hits))
}

func TestRetryingCompleter_NoRetryOnClientError(t *testing.T) {
	var hits int32
	srv := chatServer(t, func(w http.ResponseWriter, _ map[string]any) {
		atomic.AddInt32(&hits, 1)
		writeError(w, http.StatusUnauthorized, "bad key")
	})
	rc := NewRetryingCompleter(NewOpenAICompleter(OpenAIConfig{BaseURL: srv.URL + "/v1"}), 3, time.Millisecond)
	_, err := rc.Complete(context.Background(), Request{Model: "gpt-4"})
	assert.ErrorIs(t, err, correction.ErrExternalService)
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits))
}
