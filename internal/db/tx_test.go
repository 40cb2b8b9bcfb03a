package db

import (
	"context"
	"errors"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	gpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	gdb, err := gorm.Open(gpostgres.New(gpostgres.Config{Conn: sqlDB}), &gorm.Config{})
	if err != nil {
		t.Fatalf("open gorm: %v", err)
	}
	return gdb, mock
}

func TestTransactCommitsOnSuccess(t *testing.T) {
	gdb, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE messages SET status = $1 WHERE id = $2`)).
		WithArgs("sent", 7).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := Transact(context.Background(), gdb, func(tx *gorm.DB) error {
		return tx.Exec(`UPDATE messages SET status = ? WHERE id = ?`, "sent", 7).Error
	})
	if err != nil {
		t.Fatalf("transact: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestTransactRollsBackOnError(t *testing.T) {
	gdb, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("boom")
	err := Transact(context.Background(), gdb, func(tx *gorm.DB) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("want boom, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestTransactRollsBackOnPanic(t *testing.T) {
	gdb, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Fatal("expected panic to propagate")
			}
		}()
		_ = Transact(context.Background(), gdb, func(tx *gorm.DB) error { panic("kaboom") })
	}()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestTransactReportsBeginFailure(t *testing.T) {
	gdb, mock := newMockDB(t)
	mock.ExpectBegin().WillReturnError(errors.New("no connection"))

	called := false
	err := Transact(context.Background(), gdb, func(tx *gorm.DB) error { called = true; return nil })
	if err == nil {
		t.Fatal("expected begin error")
	}
	if called {
		t.Fatal("fn must not run without a transaction")
	}
}

func TestDialectorSelection(t *testing.T) {
	cases := map[string]string{
		"postgres://u:p@localhost:5432/db":   "postgres",
		"mysql://u:p@tcp(localhost:3306)/db": "mysql",
		"sqlserver://u:p@localhost:1433":     "sqlserver",
		"sqlite-pure://data/x.db":            "sqlite",
		"file:data/x.db":                     "sqlite",
		":memory:":                           "sqlite",
	}
	for dsn, want := range cases {
		if got := Dialector(dsn).Name(); got != want {
			t.Fatalf("%s: want %s, got %s", dsn, want, got)
		}
	}
}
