package database

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

var (
	driverMu sync.RWMutex
	driver   string
)

var dollarPlaceholder = regexp.MustCompile(`\$\d+`)

// SetDriver sets the active driver name. An empty name restores the
// environment-based default.
func SetDriver(name string) {
	driverMu.Lock()
	defer driverMu.Unlock()
	driver = strings.ToLower(name)
}

// GetDBDriver returns the current database driver.
func GetDBDriver() string {
	driverMu.RLock()
	d := driver
	driverMu.RUnlock()
	if d != "" {
		return d
	}

	// In test mode, prefer TEST_ prefixed environment variables
	d = os.Getenv("TEST_DB_DRIVER")
	if d == "" {
		d = os.Getenv("DB_DRIVER")
	}
	if d == "" {
		d = "mysql"
	}
	return strings.ToLower(d)
}

// IsMySQL returns true if using MySQL/MariaDB.
func IsMySQL() bool {
	d := GetDBDriver()
	return d == "mysql" || d == "mariadb"
}

// IsPostgreSQL returns true if using PostgreSQL.
func IsPostgreSQL() bool {
	d := GetDBDriver()
	return d == "postgres" || d == "postgresql"
}

// IsSQLite returns true if using SQLite.
func IsSQLite() bool {
	d := GetDBDriver()
	return d == "sqlite3" || d == "sqlite"
}

// ConvertPlaceholders converts SQL placeholders to the format required by the current database.
// This is the ONLY function that should be used for placeholder conversion in the codebase.
//
// IMPORTANT: Only ? placeholders are allowed. Using $N placeholders will panic.
// - For PostgreSQL: ? → $1, $2, ...
// - For MySQL and SQLite: ? passed through as-is
func ConvertPlaceholders(query string) string {
	if dollarPlaceholder.MatchString(query) {
		panic(fmt.Sprintf("ConvertPlaceholders: $N placeholders are not allowed. Use ? placeholders instead.\nQuery: %s", query))
	}

	if !IsPostgreSQL() || !strings.Contains(query, "?") {
		return query
	}

	var b strings.Builder
	n := 1
	for _, c := range query {
		if c == '?' {
			fmt.Fprintf(&b, "$%d", n)
			n++
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

// IsUniqueViolation reports whether err is a unique-constraint violation
// from any of the supported drivers.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}

	return false
}
