package db

import (
	"context"
	"fmt"
	"log/slog"

	"gorm.io/gorm"
)

// Transact runs fn inside a database transaction bound to ctx.
// The transaction commits when fn returns nil. It rolls back when fn returns
// an error or panics; the panic is re-raised after the rollback.
func Transact(ctx context.Context, gdb *gorm.DB, fn func(tx *gorm.DB) error) (err error) {
	tx := gdb.WithContext(ctx).Begin()
	if tx.Error != nil {
		return fmt.Errorf("begin transaction: %w", tx.Error)
	}
	done := false
	defer func() {
		if done {
			return
		}
		if rb := tx.Rollback().Error; rb != nil {
			slog.Warn("rollback", "error", rb)
		}
		if r := recover(); r != nil {
			panic(r)
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	done = true
	if err = tx.Commit().Error; err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
