package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/trezcool/maendeleo/core"
)

// sqlxGet rebinds query to the driver placeholders then runs GetContext.
func sqlxGet(ctx context.Context, db core.DBExecutor, dest interface{}, query string, args ...interface{}) error {
	return db.GetContext(ctx, dest, db.Rebind(query), args...)
}

func sqlxSelect(ctx context.Context, db core.DBExecutor, dest interface{}, query string, args ...interface{}) error {
	return db.SelectContext(ctx, dest, db.Rebind(query), args...)
}

// sqlxSelectIn expands the slice arguments of an IN (?) query.
func sqlxSelectIn(ctx context.Context, db core.DBExecutor, dest interface{}, query string, args ...interface{}) error {
	q, inArgs, err := sqlx.In(query, args...)
	if err != nil {
		return err
	}
	return db.SelectContext(ctx, dest, db.Rebind(q), inArgs...)
}
