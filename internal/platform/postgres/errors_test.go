package postgres

import (
	"database/sql"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/phrazzld/printflow-api/internal/store"
)

func TestMapError(t *testing.T) {
	t.Parallel()

	t.Run("nil stays nil", func(t *testing.T) {
		assert.NoError(t, MapError(nil))
	})

	t.Run("no rows maps to not found", func(t *testing.T) {
		err := MapError(fmt.Errorf("query: %w", sql.ErrNoRows))
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("order number unique violation has its own sentinel", func(t *testing.T) {
		pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "orders_order_number_key"}
		err := MapError(pgErr)
		assert.ErrorIs(t, err, store.ErrOrderNumberExists)
		assert.ErrorIs(t, err, store.ErrDuplicate)
	})

	t.Run("other unique violations map to duplicate", func(t *testing.T) {
		pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "orders_pkey"}
		err := MapError(pgErr)
		assert.ErrorIs(t, err, store.ErrDuplicate)
		assert.NotErrorIs(t, err, store.ErrOrderNumberExists)
	})

	t.Run("foreign key violation maps to invalid entity", func(t *testing.T) {
		pgErr := &pgconn.PgError{Code: "23503", ConstraintName: "order_items_order_id_fkey"}
		assert.ErrorIs(t, MapError(pgErr), store.ErrInvalidEntity)
	})

	t.Run("unknown errors pass through", func(t *testing.T) {
		assert.ErrorIs(t, MapError(assert.AnError), assert.AnError)
	})
}

func TestIsUniqueViolation(t *testing.T) {
	t.Parallel()

	assert.True(t, IsUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, IsUniqueViolation(assert.AnError))
}
