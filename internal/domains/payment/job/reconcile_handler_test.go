package job

import (
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront-backend/internal/shared"
)

type fakeReconciler struct {
	calls   int
	settled int
	err     error
}

func (f *fakeReconciler) ReconcilePending(ctx context.Context) (int, error) {
	f.calls++
	return f.settled, f.err
}

func TestReconcileHandlerRunsReconcile(t *testing.T) {
	r := &fakeReconciler{settled: 3}
	h := NewReconcileHandler(r)

	task, err := NewReconcileTask("scheduler")
	require.NoError(t, err)
	assert.Equal(t, shared.TypeReconcilePendingPayments, task.Type())

	require.NoError(t, h.ProcessTask(context.Background(), task))
	assert.Equal(t, 1, r.calls)
}

func TestReconcileHandlerAcceptsEmptyPayload(t *testing.T) {
	r := &fakeReconciler{}
	h := NewReconcileHandler(r)

	err := h.ProcessTask(context.Background(), asynq.NewTask(shared.TypeReconcilePendingPayments, nil))

	require.NoError(t, err)
	assert.Equal(t, 1, r.calls)
}

func TestReconcileHandlerSkipsRetryOnBadPayload(t *testing.T) {
	r := &fakeReconciler{}
	h := NewReconcileHandler(r)

	err := h.ProcessTask(context.Background(), asynq.NewTask(shared.TypeReconcilePendingPayments, []byte("{")))

	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Zero(t, r.calls)
}

func TestReconcileHandlerReturnsServiceError(t *testing.T) {
	boom := errors.New("db down")
	h := NewReconcileHandler(&fakeReconciler{err: boom})

	task, err := NewReconcileTask("operator")
	require.NoError(t, err)

	err = h.ProcessTask(context.Background(), task)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
}
