package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dinamicamotors/leadflow/internal/database"
)

// querier returns the transaction bound to the context when one is
// active, the pool otherwise. Repositories called inside
// TxManager.WithTransactionContext join that transaction transparently.
func querier(ctx context.Context, pool *pgxpool.Pool) database.Querier {
	if tx := database.TxFromContext(ctx); tx != nil {
		return tx
	}
	return pool
}
