package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/mmeshcher/storefront/internal/model"
)

func TestCheckTransition(t *testing.T) {
	owner := model.Actor{ID: 1, Role: model.RoleUser}
	admin := model.Actor{ID: 2, Role: model.RoleAdmin}
	other := model.Actor{ID: 3, Role: model.RoleUser}
	reserved := orderRef{UserID: 1, Status: model.OrderStatusReserved}
	done := orderRef{UserID: 1, Status: model.OrderStatusCompleted}

	assert.NoError(t, checkTransition(owner, reserved, model.OrderStatusCancelled))
	assert.NoError(t, checkTransition(admin, reserved, model.OrderStatusCompleted))
	assert.ErrorIs(t, checkTransition(other, reserved, model.OrderStatusCancelled), ErrForbidden)
	assert.ErrorIs(t, checkTransition(owner, done, model.OrderStatusCancelled), ErrInvalidTransition)
	assert.ErrorIs(t, checkTransition(owner, reserved, model.OrderStatusReserved), ErrInvalidTransition)

	assert.NoError(t, checkRemoval(owner, reserved))
	assert.ErrorIs(t, checkRemoval(other, reserved), ErrForbidden)
	assert.ErrorIs(t, checkRemoval(admin, done), ErrInvalidTransition)
}

func TestProductWriteError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"missing category", &pgconn.PgError{Code: pgerrcode.ForeignKeyViolation}, ErrNotFound},
		{"negative stock", &pgconn.PgError{Code: pgerrcode.CheckViolation}, ErrInvalidValue},
		{"price overflow", &pgconn.PgError{Code: pgerrcode.NumericValueOutOfRange}, ErrInvalidValue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, productWriteError(tt.err, 7, "insert product"), tt.want)
		})
	}

	plain := errors.New("connection reset")
	err := productWriteError(plain, 7, "insert product")
	assert.ErrorIs(t, err, plain)
	assert.NotErrorIs(t, err, ErrInvalidValue)
}

func TestWithRetry(t *testing.T) {
	r := &PostgresRepository{}
	ctx := context.Background()

	calls := 0
	err := r.withRetry(ctx, func() error {
		calls++
		if calls < 3 {
			return &pgconn.PgError{Code: pgerrcode.SerializationFailure}
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	plain := errors.New("connection refused")
	err = r.withRetry(ctx, func() error {
		calls++
		return plain
	})
	assert.ErrorIs(t, err, plain)
	assert.Equal(t, 1, calls, "non-retryable errors must not be retried")

	calls = 0
	err = r.withRetry(ctx, func() error {
		calls++
		return &pgconn.PgError{Code: pgerrcode.DeadlockDetected}
	})
	assert.Error(t, err)
	assert.Equal(t, len(retryDelays)+1, calls)
}
