package negotiator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/webpay/internal/domain"
)

const abortTimeout = 10 * time.Second

type showState int

const (
	showPending showState = iota
	showAborting
	showAborted
	showSettled
)

// showWithDeadline shows the request and aborts it when timeout elapses first.
// A failed abort is logged and the payer may still finish; a response that
// arrives after a successful abort is dropped.
func showWithDeadline(ctx context.Context, req domain.PaymentRequest, timeout time.Duration, logger *slog.Logger) (domain.PaymentResponse, error) {
	var (
		mu        sync.Mutex
		state     = showPending
		abortDone chan struct{}
	)

	timer := time.AfterFunc(timeout, func() {
		mu.Lock()
		if state != showPending {
			mu.Unlock()
			return
		}
		state = showAborting
		done := make(chan struct{})
		abortDone = done
		mu.Unlock()

		abortCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), abortTimeout)
		err := req.Abort(abortCtx)
		cancel()

		mu.Lock()
		if err != nil {
			logger.WarnContext(ctx, "unable to abort, payer is in the process of paying",
				slog.Duration("timeout", timeout),
				slog.String("error", fmt.Errorf("%w: %v", domain.ErrAbortFailed, err).Error()),
			)
			state = showPending
		} else {
			logger.InfoContext(ctx, "payment timed out", slog.Duration("timeout", timeout))
			state = showAborted
		}
		mu.Unlock()
		close(done)
	})

	resp, err := req.Show(ctx)
	timer.Stop()

	mu.Lock()
	if state == showAborting {
		done := abortDone
		mu.Unlock()
		<-done
		mu.Lock()
	}
	final := state
	if final == showPending {
		state = showSettled
	}
	mu.Unlock()

	if final == showAborted {
		if err == nil && resp != nil {
			logger.WarnContext(ctx, "ignoring payment response that arrived after abort")
		}
		return nil, fmt.Errorf("negotiator: show: %w: timed out after %s", domain.ErrNegotiationAborted, timeout)
	}
	if err != nil {
		return nil, fmt.Errorf("negotiator: show: %w", err)
	}
	return resp, nil
}
