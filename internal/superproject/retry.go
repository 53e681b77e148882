package superproject

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/user/submodsync/internal/gitrepo"
)

// retry runs op up to attempts times, backing off from delay between
// tries. Only rejected pushes are retried.
func retry(ctx context.Context, attempts int, delay time.Duration, op func(attempt int) error) error {
	if attempts < 1 {
		attempts = 1
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = delay
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := op(attempt)
		if err == nil || errors.Is(err, gitrepo.ErrPushRejected) {
			return err
		}
		return backoff.Permanent(err)
	}, policy)
}
