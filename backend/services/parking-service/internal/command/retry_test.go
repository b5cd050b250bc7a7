package command

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"syscall"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parkwise/backend/services/parking-service/internal/models"
)

// fakeBackend answers from a queue of errors; methods not overridden panic through the
// nil embedded interface.
type fakeBackend struct {
	Backend
	errs  []error
	calls int
}

func (f *fakeBackend) next() error {
	f.calls++
	if len(f.errs) == 0 {
		return nil
	}
	err := f.errs[0]
	f.errs = f.errs[1:]
	return err
}

func (f *fakeBackend) GetPlateDebt(context.Context, string) (decimal.Decimal, error) {
	if err := f.next(); err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromInt(70), nil
}

func (f *fakeBackend) RegisterEntry(_ context.Context, req models.RegisterRequest) (models.Session, error) {
	if err := f.next(); err != nil {
		return models.Session{}, err
	}
	return models.Session{ID: "VH1", Plate: req.Plate, VehicleClass: req.VehicleClass, Status: models.SessionActive}, nil
}

func (f *fakeBackend) CloseShift(context.Context, models.CloseShiftRequest) (models.ShiftClosure, error) {
	if err := f.next(); err != nil {
		return models.ShiftClosure{}, err
	}
	return models.ShiftClosure{ID: "SC1"}, nil
}

func newTestRetrying(next Backend, retries int) (*Retrying, *[]time.Duration) {
	r := WithRetry(next, RetryPolicy{MaxRetries: retries, Delay: time.Second}, nil)
	var slept []time.Duration
	r.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return r, &slept
}

func transportErr() error {
	return &TransportError{Op: "GET /v1", Err: syscall.ECONNREFUSED}
}

func TestReadRetriesWithLinearBackoff(t *testing.T) {
	fake := &fakeBackend{errs: []error{transportErr(), &RemoteError{StatusCode: http.StatusServiceUnavailable}}}
	r, slept := newTestRetrying(fake, 2)

	debt, err := r.GetPlateDebt(context.Background(), "XYZ-1")
	require.NoError(t, err)
	assert.True(t, debt.Equal(decimal.NewFromInt(70)))
	assert.Equal(t, 3, fake.calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *slept)
}

func TestExhaustedRetriesReportUnavailable(t *testing.T) {
	fake := &fakeBackend{errs: []error{transportErr(), transportErr(), transportErr(), transportErr()}}
	r, _ := newTestRetrying(fake, 2)

	_, err := r.GetPlateDebt(context.Background(), "XYZ-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBackendUnavailable)
	assert.ErrorIs(t, err, syscall.ECONNREFUSED)
	assert.Equal(t, 3, fake.calls)
}

func TestValidationErrorsAreNotRetried(t *testing.T) {
	fake := &fakeBackend{errs: []error{fmt.Errorf("remote: %w", models.ErrPlateAlreadyActive)}}
	r, slept := newTestRetrying(fake, 2)

	_, err := r.RegisterEntry(context.Background(), models.RegisterRequest{Plate: "DUP-1", VehicleClass: models.VehicleCar})
	assert.ErrorIs(t, err, models.ErrPlateAlreadyActive)
	assert.False(t, errors.Is(err, ErrBackendUnavailable))
	assert.Equal(t, 1, fake.calls)
	assert.Empty(t, *slept)
}

func TestMutationsRetryOnlyOnTransport(t *testing.T) {
	fake := &fakeBackend{errs: []error{&RemoteError{StatusCode: http.StatusServiceUnavailable, Message: "Service Unavailable"}}}
	r, _ := newTestRetrying(fake, 2)

	_, err := r.CloseShift(context.Background(), models.CloseShiftRequest{})
	var re *RemoteError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, 1, fake.calls)

	fake = &fakeBackend{errs: []error{transportErr()}}
	r, _ = newTestRetrying(fake, 2)
	closure, err := r.CloseShift(context.Background(), models.CloseShiftRequest{})
	require.NoError(t, err)
	assert.Equal(t, "SC1", closure.ID)
	assert.Equal(t, 2, fake.calls)
}

func TestCancelledContextStopsRetrying(t *testing.T) {
	fake := &fakeBackend{errs: []error{transportErr(), transportErr()}}
	r, _ := newTestRetrying(fake, 2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.GetPlateDebt(ctx, "A")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrBackendUnavailable))
	assert.Equal(t, 1, fake.calls)
}

func TestClassification(t *testing.T) {
	assert.True(t, IsTransport(transportErr()))
	assert.True(t, IsTransport(errors.New("dial tcp: connection refused")))
	assert.True(t, IsTransport(context.DeadlineExceeded))
	assert.False(t, IsTransport(nil))
	assert.False(t, IsTransport(models.ErrUnknownTicket))
	assert.False(t, IsTransport(&RemoteError{StatusCode: 503, Message: "unavailable"}))
	assert.False(t, IsTransport(errors.New("syntax error")))

	assert.True(t, IsTransient(&RemoteError{StatusCode: http.StatusBadGateway}))
	assert.True(t, IsTransient(&RemoteError{StatusCode: http.StatusGatewayTimeout}))
	assert.False(t, IsTransient(&RemoteError{StatusCode: http.StatusInternalServerError}))
}
