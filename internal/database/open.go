package database

import (
	"fmt"
	"strings"

	"github.com/MarcoPoloResearchLab/novelboard/internal/catalog"
	"github.com/MarcoPoloResearchLab/novelboard/internal/ratings"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

const (
	// DriverSQLite stores everything in a local file.
	DriverSQLite = "sqlite"
	// DriverMySQL connects to a shared server through a DSN.
	DriverMySQL = "mysql"
)

// Options selects the backing database.
type Options struct {
	Driver string
	Path   string
	DSN    string
}

// Open connects to the configured database and performs schema migrations.
func Open(options Options, logger *zap.Logger) (*gorm.DB, error) {
	dialector, target, err := dialectorFor(options)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, err
	}

	if driverName(options.Driver) == DriverSQLite {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(&ratings.Record{}, &catalog.Submission{}, &migrationRecord{}); err != nil {
		return nil, err
	}

	if err := applyMigrations(db, logger); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("database initialized", zap.String("driver", driverName(options.Driver)), zap.String("target", target))
	}

	return db, nil
}

func driverName(driver string) string {
	normalized := strings.ToLower(strings.TrimSpace(driver))
	if normalized == "" {
		return DriverSQLite
	}
	return normalized
}

func dialectorFor(options Options) (gorm.Dialector, string, error) {
	switch driverName(options.Driver) {
	case DriverSQLite:
		if options.Path == "" {
			return nil, "", fmt.Errorf("database path is required")
		}
		return sqlite.Open(options.Path), options.Path, nil
	case DriverMySQL:
		if options.DSN == "" {
			return nil, "", fmt.Errorf("database dsn is required for mysql")
		}
		// Strip credentials before logging.
		target := options.DSN
		if at := strings.LastIndex(target, "@"); at >= 0 {
			target = target[at+1:]
		}
		return mysql.Open(options.DSN), target, nil
	default:
		return nil, "", fmt.Errorf("unsupported database driver %q", options.Driver)
	}
}
