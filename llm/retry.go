package llm

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryClient retries a Client with exponential backoff. Client errors
// other than rate limiting are not retried.
type RetryClient struct {
	Client          Client
	Tries           uint
	InitialInterval time.Duration
	// OnRetry, when set, is called before each wait.
	OnRetry func(err error, wait time.Duration)
}

// WithRetry wraps c so failed calls are attempted up to tries times.
func WithRetry(c Client, tries uint) *RetryClient {
	return &RetryClient{Client: c, Tries: tries, InitialInterval: 500 * time.Millisecond}
}

func (r *RetryClient) Complete(ctx context.Context, system, user string) (string, error) {
	tries := r.Tries
	if tries == 0 {
		tries = 1
	}
	b := backoff.NewExponentialBackOff()
	if r.InitialInterval > 0 {
		b.InitialInterval = r.InitialInterval
	}

	op := func() (string, error) {
		out, err := r.Client.Complete(ctx, system, user)
		if err == nil {
			return out, nil
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.Temporary() {
			return "", backoff.Permanent(err)
		}
		if errors.Is(err, ErrEmptyResponse) || ctx.Err() != nil {
			return "", backoff.Permanent(err)
		}
		return "", err
	}

	opts := []backoff.RetryOption{
		backoff.WithBackOff(b),
		backoff.WithMaxTries(tries),
	}
	if r.OnRetry != nil {
		opts = append(opts, backoff.WithNotify(r.OnRetry))
	}
	return backoff.Retry(ctx, op, opts...)
}
