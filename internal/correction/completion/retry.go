package completion

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/jurisfix/jurisfix/backend/go-services/internal/correction"
	"github.com/jurisfix/jurisfix/backend/go-services/pkg/logger"
	"github.com/jurisfix/jurisfix/backend/go-services/pkg/metrics"
)

// RetryingCompleter retries retryable ExternalServiceErrors with exponential
// backoff. Other errors are returned after the first attempt.
type RetryingCompleter struct {
	next     Completer
	attempts int
	base     time.Duration
}

// NewRetryingCompleter wraps next. attempts < 1 means a single attempt.
func NewRetryingCompleter(next Completer, attempts int, base time.Duration) *RetryingCompleter {
	if attempts < 1 {
		attempts = 1
	}
	if base <= 0 {
		base = 200 * time.Millisecond
	}
	return &RetryingCompleter{next: next, attempts: attempts, base: base}
}

func (r *RetryingCompleter) Complete(ctx context.Context, req Request) (string, error) {
	b := retry.WithMaxRetries(uint64(r.attempts-1), retry.NewExponential(r.base))
	var out string
	tries := 0
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		tries++
		if tries > 1 {
			metrics.CompletionRetries.Inc()
			logger.Debugf("completion retry %d/%d", tries, r.attempts)
		}
		res, err := r.next.Complete(ctx, req)
		if err == nil {
			out = res
			return nil
		}
		var ese *correction.ExternalServiceError
		if errors.As(err, &ese) && ese.Retryable {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		if !errors.Is(err, correction.ErrExternalService) {
			err = &correction.ExternalServiceError{Op: "completion", Err: err}
		}
		return "", err
	}
	return out, nil
}
