package sqlxrepos

import (
	"context"
	"strings"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/trezcool/maendeleo/core"
)

// pq: invalid_column_reference, raised when an ON CONFLICT target matches no unique constraint
const pqInvalidColumnReference = "42P10"

// storeErr classifies a driver error: schema misconfigurations are fatal, integrity errors are returned as is,
// anything else means the store is unavailable.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code == pqInvalidColumnReference:
			return errors.Wrapf(core.ErrConflictTarget, "%s: %s", op, pqErr.Message)
		case pqErr.Code.Class() == "23": // integrity constraint violation
			return errors.Wrap(err, op)
		}
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		switch {
		case strings.Contains(liteErr.Error(), "ON CONFLICT clause does not match"):
			return errors.Wrapf(core.ErrConflictTarget, "%s: %s", op, liteErr.Error())
		case liteErr.Code == sqlite3.ErrConstraint:
			return errors.Wrap(err, op)
		}
	}

	if errors.Is(err, context.Canceled) {
		return errors.Wrap(err, op)
	}
	return core.NewStoreError(op, err)
}
