package repository

import (
	"context"
	"database/sql"
)

// dbtx is the write surface shared by *sql.DB and *sql.Tx.  Repo write
// methods run against it so each has a standalone form and a *Tx form
// that joins the caller's transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}
