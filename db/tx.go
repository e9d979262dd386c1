package db

import (
	"context"
	"database/sql"
)

// Tx wraps sql.Tx so processors can share one transaction type.
type Tx struct {
	*sql.Tx
}

func NewTx(ctx context.Context, db *sql.DB) (*Tx, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &Tx{
		Tx: tx,
	}, nil
}
