package negotiator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/webpay/internal/domain"
)

func TestShowWithDeadline_ResolvedBeforeTimeout(t *testing.T) {
	resp := &fakeResponse{}
	req := newFakeRequest(resp)

	got, err := showWithDeadline(context.Background(), req, 30*time.Millisecond, discardLogger())
	require.NoError(t, err)
	assert.Same(t, resp, got)

	time.Sleep(60 * time.Millisecond)
	assert.Zero(t, req.abortCount(), "a settled request is never aborted")
}

func TestShowWithDeadline_AbortDropsLateResponse(t *testing.T) {
	resp := &fakeResponse{}
	req := newFakeRequest(nil)
	req.show = func(_ context.Context, r *fakeRequest) (domain.PaymentResponse, error) {
		<-r.aborted
		return resp, nil
	}

	got, err := showWithDeadline(context.Background(), req, 10*time.Millisecond, discardLogger())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNegotiationAborted)
	assert.Nil(t, got)
	assert.Equal(t, 1, req.abortCount())
}

func TestShowWithDeadline_FailedAbortKeepsRequestLive(t *testing.T) {
	resp := &fakeResponse{}
	req := newFakeRequest(nil)
	req.abortErr = errors.New("payer is paying")
	req.show = func(_ context.Context, r *fakeRequest) (domain.PaymentResponse, error) {
		<-r.aborted
		return resp, nil
	}

	got, err := showWithDeadline(context.Background(), req, 10*time.Millisecond, discardLogger())
	require.NoError(t, err)
	assert.Same(t, resp, got)
}

func TestShowWithDeadline_ShowError(t *testing.T) {
	req := newFakeRequest(nil)
	req.show = func(context.Context, *fakeRequest) (domain.PaymentResponse, error) {
		return nil, errors.New("payer closed the sheet")
	}

	_, err := showWithDeadline(context.Background(), req, time.Minute, discardLogger())
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrNegotiationAborted)
}
