package services

import (
	"context"
	"errors"
	"strings"

	"github.com/gastransit/pipeledger/internal/types"
	"gorm.io/gorm"
)

// withRetry runs fn in a transaction and retries it when it loses a
// serialization race. Only conflict-kinded failures are retried; everything
// else surfaces to the caller unchanged. The last conflict is returned once
// the attempts are spent.
func withRetry(ctx context.Context, db *gorm.DB, attempts int, fn func(tx *gorm.DB) error) error {
	if attempts < 1 {
		attempts = 1
	}
	var last error
	for i := 0; i < attempts; i++ {
		err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return fn(tx)
		})
		if err == nil {
			return nil
		}
		if conflict := asConflict(err); conflict != nil {
			last = conflict
			continue
		}
		return err
	}
	return last
}

// asConflict normalizes driver-level serialization failures to the Conflict
// kind; non-retryable errors map to nil.
func asConflict(err error) error {
	if types.IsKind(err, types.KindConflict) {
		return err
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return types.Conflict("lost a write race to another transaction").Wrap(err)
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"deadlock",
		"serialization failure",
		"could not serialize",
		"lock wait timeout",
		"database is locked",
		"database table is locked",
	} {
		if strings.Contains(msg, marker) {
			return types.Conflict("lost a write race to another transaction").Wrap(err)
		}
	}
	return nil
}
