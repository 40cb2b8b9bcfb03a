// Package uow binds the gorm repositories to a shared connection or transaction.
package uow

import (
	"context"
	"fmt"

	"github.com/cuihairu/govmsg/internal/db"
	"github.com/cuihairu/govmsg/internal/ports"
	auditgorm "github.com/cuihairu/govmsg/internal/repo/gorm/audit"
	messagesgorm "github.com/cuihairu/govmsg/internal/repo/gorm/messages"
	usersgorm "github.com/cuihairu/govmsg/internal/repo/gorm/users"
	"gorm.io/gorm"
)

type UnitOfWork struct{ db *gorm.DB }

func New(gdb *gorm.DB) *UnitOfWork { return &UnitOfWork{db: gdb} }

var _ ports.UnitOfWork = (*UnitOfWork)(nil)

func storesFor(gdb *gorm.DB) ports.Stores {
	return ports.Stores{
		Messages: messagesgorm.New(gdb),
		Users:    usersgorm.New(gdb),
		Audit:    auditgorm.New(gdb),
	}
}

// Stores returns repositories outside any transaction.
func (u *UnitOfWork) Stores() ports.Stores { return storesFor(u.db) }

// Do runs fn with repositories bound to one transaction.
func (u *UnitOfWork) Do(ctx context.Context, fn func(ctx context.Context, tx ports.Stores) error) error {
	return db.Transact(ctx, u.db, func(tx *gorm.DB) error {
		return fn(ctx, storesFor(tx))
	})
}

func (u *UnitOfWork) Ping(ctx context.Context) error {
	sqlDB, err := u.db.DB()
	if err != nil {
		return fmt.Errorf("database handle: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// AutoMigrate creates or updates every table.
func AutoMigrate(gdb *gorm.DB) error {
	if err := usersgorm.AutoMigrate(gdb); err != nil {
		return fmt.Errorf("migrate users: %w", err)
	}
	if err := messagesgorm.AutoMigrate(gdb); err != nil {
		return fmt.Errorf("migrate messages: %w", err)
	}
	if err := auditgorm.AutoMigrate(gdb); err != nil {
		return fmt.Errorf("migrate audit: %w", err)
	}
	return nil
}
