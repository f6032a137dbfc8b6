package gormdb

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log"
	"os"
	"runtime"
	"time"

	postgresdriver "gorm.io/driver/postgres"
	sqlitedriver "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"
)

// DB wraps a reader and writer handle. On sqlite these are two connections
// over the same WAL file (many readers, single writer); on postgres both sit
// on the same pool.
type DB struct {
	R *gorm.DB
	W *gorm.DB
}

type Tx struct {
	*gorm.DB
}

type cbfn func(tx *Tx) error

func (db *DB) ReadTX(ctx context.Context, fn cbfn) error {
	return db.R.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := applySearchPath(ctx, tx); err != nil {
			return err
		}
		return fn(&Tx{DB: tx})
	}, &sql.TxOptions{ReadOnly: true})
}

func (db *DB) WriteTX(ctx context.Context, fn cbfn) error {
	return db.W.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := applySearchPath(ctx, tx); err != nil {
			return err
		}
		return fn(&Tx{DB: tx})
	})
}

// applySearchPath scopes a schema redirect to the current transaction. SET
// LOCAL reverts at commit or rollback, so the pooled connection returns clean
// no matter which tenant the transaction served.
func applySearchPath(ctx context.Context, tx *gorm.DB) error {
	name := searchPathFrom(ctx)
	if name == "" {
		return nil
	}
	if !schemaNamePattern.MatchString(name) {
		return fmt.Errorf("invalid search path %q", name)
	}
	if err := tx.Exec(fmt.Sprintf("SET LOCAL search_path TO %q, public", name)).Error; err != nil {
		return fmt.Errorf("set search path: %w", err)
	}
	return nil
}

func (db *DB) WriteSQLDB() (*sql.DB, error) {
	return db.W.DB()
}

func (db *DB) Close() error {
	var firstErr error
	closeOne := func(g *gorm.DB) {
		if g == nil {
			return
		}
		sqlDB, err := g.DB()
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return
		}
		if err := sqlDB.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	closeOne(db.R)
	if db.W != db.R {
		closeOne(db.W)
	}
	return firstErr
}

var _ io.Closer = (*DB)(nil)

func newGormLogger() logger.Interface {
	return logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Silent,
			IgnoreRecordNotFoundError: true,
			ParameterizedQueries:      true,
			Colorful:                  false,
		},
	)
}

// Open opens a sqlite database file with WAL pragmas and a reader/writer
// connection split.
func Open(file string) (*DB, error) {
	gl := newGormLogger()

	reader, err := gorm.Open(sqlitedriver.Dialector{DriverName: "sqlite", DSN: file}, &gorm.Config{
		PrepareStmt:    true,
		TranslateError: true,
		Logger:         gl,
	})
	if err != nil {
		return nil, fmt.Errorf("open read db: %w", err)
	}

	writer, err := gorm.Open(sqlitedriver.Dialector{DriverName: "sqlite", DSN: file}, &gorm.Config{
		PrepareStmt:    true,
		TranslateError: true,
		Logger:         gl,
	})
	if err != nil {
		_ = closeGORM(reader)
		return nil, fmt.Errorf("open write db: %w", err)
	}

	rdb, err := reader.DB()
	if err != nil {
		_ = closeGORM(reader)
		_ = closeGORM(writer)
		return nil, fmt.Errorf("reader sql db: %w", err)
	}
	wdb, err := writer.DB()
	if err != nil {
		_ = closeGORM(reader)
		_ = closeGORM(writer)
		return nil, fmt.Errorf("writer sql db: %w", err)
	}

	rdb.SetMaxOpenConns(runtime.NumCPU())
	rdb.SetMaxIdleConns(runtime.NumCPU())
	rdb.SetConnMaxLifetime(0)
	rdb.SetConnMaxIdleTime(0)

	wdb.SetMaxOpenConns(1)
	wdb.SetMaxIdleConns(1)
	wdb.SetConnMaxLifetime(0)
	wdb.SetConnMaxIdleTime(0)

	if err := applyPragmas(rdb, true); err != nil {
		_ = closeGORM(reader)
		_ = closeGORM(writer)
		return nil, fmt.Errorf("reader pragmas: %w", err)
	}
	if err := applyPragmas(wdb, false); err != nil {
		_ = closeGORM(reader)
		_ = closeGORM(writer)
		return nil, fmt.Errorf("writer pragmas: %w", err)
	}

	return &DB{R: reader, W: writer}, nil
}

// OpenPostgres opens a postgres database. Required for deployments using
// schema-per-tenant isolation; sqlite has no schema redirect.
func OpenPostgres(dsn string, maxOpen, maxIdle int) (*DB, error) {
	g, err := gorm.Open(postgresdriver.Open(dsn), &gorm.Config{
		PrepareStmt:    true,
		TranslateError: true,
		Logger:         newGormLogger(),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	sqlDB, err := g.DB()
	if err != nil {
		_ = closeGORM(g)
		return nil, fmt.Errorf("postgres sql db: %w", err)
	}
	if maxOpen <= 0 {
		maxOpen = 20
	}
	if maxIdle <= 0 {
		maxIdle = 5
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return &DB{R: g, W: g}, nil
}

func applyPragmas(db *sql.DB, readOnly bool) error {
	stmts := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
		"PRAGMA temp_store = MEMORY;",
		"PRAGMA wal_autocheckpoint = 1000;",
		"PRAGMA cache_size = -20000;",
		"PRAGMA mmap_size = 268435456;",
		"PRAGMA foreign_keys = ON;",
		"PRAGMA busy_timeout = 5000;",
		"PRAGMA trusted_schema = OFF;",
	}
	if readOnly {
		stmts = append(stmts, "PRAGMA query_only = ON;")
	} else {
		stmts = append(stmts, "PRAGMA query_only = OFF;")
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt, err)
		}
	}
	return nil
}

func closeGORM(g *gorm.DB) error {
	if g == nil {
		return nil
	}
	sqlDB, err := g.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
