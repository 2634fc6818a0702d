// Package repo is the GORM persistence layer of the chat board: chat
// messages, page visits and idempotency records. Functions take the *gorm.DB
// explicitly so callers can pass a transaction.
package repo

import (
	"errors"
	"fmt"
	stdlog "log"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-chatboard/internal/domain"
)

// Supported values for the DB_DRIVER setting.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// sqlitePragmas are applied to every pooled connection through the DSN;
// a one-off PRAGMA statement would only reach a single connection.
var sqlitePragmas = []string{
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
	"foreign_keys(1)",
	"busy_timeout(5000)",
}

// Options selects and tunes the backend.
type Options struct {
	Driver string // sqlite (default) or postgres
	Path   string // SQLite file
	DSN    string // Postgres URL or key/value DSN

	// SlowQuery logs statements slower than this at warn level. Zero uses
	// 200ms.
	SlowQuery time.Duration
}

// Open connects to the configured backend. SQLite gets a small pool since
// writes serialize on the file lock anyway.
func Open(o Options) (*gorm.DB, error) {
	gcfg := &gorm.Config{Logger: queryLogger(o.SlowQuery), TranslateError: true}

	var (
		db          *gorm.DB
		err         error
		conns, idle int
	)
	switch strings.ToLower(strings.TrimSpace(o.Driver)) {
	case "", DriverSQLite:
		// the driver reports a missing directory as "out of memory (14)"
		if dir := filepath.Dir(o.Path); dir != "." {
			if _, err := os.Stat(dir); err != nil {
				return nil, fmt.Errorf("sqlite: %w", err)
			}
		}
		db, err = gorm.Open(sqlite.Open(sqliteDSN(o.Path)), gcfg)
		conns, idle = 4, 4
	case DriverPostgres:
		if strings.TrimSpace(o.DSN) == "" {
			return nil, errors.New("postgres: empty DATABASE_URL")
		}
		db, err = gorm.Open(postgres.Open(o.DSN), gcfg)
		conns, idle = 20, 5
	default:
		return nil, fmt.Errorf("unsupported db driver %q", o.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", o.Driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(conns)
	sqlDB.SetMaxIdleConns(idle)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

// sqliteDSN appends the pragmas to path, keeping any query it already has.
// Transactions begin IMMEDIATE so a quota check and its insert hold the write
// lock together; concurrent writers wait on busy_timeout instead of failing
// when a read lock cannot be upgraded.
func sqliteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	var b strings.Builder
	b.WriteString(path)
	for _, p := range sqlitePragmas {
		b.WriteString(sep)
		b.WriteString("_pragma=")
		b.WriteString(p)
		sep = "&"
	}
	b.WriteString("&_txlock=immediate")
	return b.String()
}

// queryLogger routes GORM's warnings into the global zerolog logger. Missing
// rows are expected on every lookup and are not logged.
func queryLogger(slow time.Duration) logger.Interface {
	if slow <= 0 {
		slow = 200 * time.Millisecond
	}
	return logger.New(
		stdlog.New(log.Logger.With().Str("component", "gorm").Logger(), "", 0),
		logger.Config{
			SlowThreshold:             slow,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
}

// AutoMigrate creates or updates every table the board needs.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.ChatMessage{},
		&domain.PageView{},
		&domain.PageVisitor{},
		&domain.PostReceipt{},
	)
}

func isPostgres(db *gorm.DB) bool {
	return db.Dialector != nil && db.Dialector.Name() == DriverPostgres
}

// isUniqueViolation matches duplicate key errors. TranslateError covers
// Postgres; the pure Go SQLite driver only reports them as text.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique") ||
		strings.Contains(low, "constraint failed: primary key") ||
		strings.Contains(low, "duplicate key value")
}
