// Package sqlite opens the SQLite database behind the layer store.
//
// Build modes:
//   - Default (CGO_ENABLED=0): pure Go modernc.org/sqlite
//   - CGO mode (CGO_ENABLED=1 -tags cgo_sqlite): mattn/go-sqlite3
//
// Use Open instead of sql.Open so the driver name and connection pragmas
// match the compiled driver.
package sqlite

import (
	"database/sql"
	"fmt"
	"strings"
)

// DriverName returns the registered database/sql driver name.
func DriverName() string {
	return driverName
}

// DriverType returns "cgo" for mattn/go-sqlite3 and "purego" for
// modernc.org/sqlite.
func DriverType() string {
	return driverType
}

// IsCGO reports whether the CGO driver is compiled in.
func IsCGO() bool {
	return driverType == "cgo"
}

// DSN builds a data source name for path with foreign keys enabled and a
// busy timeout, using the parameter spelling of the compiled driver.
// ":memory:" is passed through with the same parameters.
func DSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + dsnParams
}

// Open opens path with the compiled driver. path may already carry query
// parameters; the store pragmas are appended.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open(driverName, DSN(path))
	if err != nil {
		return nil, err
	}
	// SQLite serializes writers; a single connection keeps :memory:
	// databases shared and avoids SQLITE_BUSY between our own goroutines.
	db.SetMaxOpenConns(1)
	return db, nil
}

// MustOpen is like Open but panics on error. Intended for tests.
func MustOpen(path string) *sql.DB {
	db, err := Open(path)
	if err != nil {
		panic(fmt.Sprintf("sqlite: failed to open %s: %v", path, err))
	}
	return db
}

// Info describes the compiled driver.
type Info struct {
	DriverName string `json:"driver_name"`
	DriverType string `json:"driver_type"`
	IsCGO      bool   `json:"is_cgo"`
	Package    string `json:"package"`
}

// GetInfo returns the compiled driver description.
func GetInfo() Info {
	return Info{
		DriverName: driverName,
		DriverType: driverType,
		IsCGO:      IsCGO(),
		Package:    driverPackage,
	}
}
