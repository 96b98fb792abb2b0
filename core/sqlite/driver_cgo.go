//go:build cgo_sqlite

// CGO SQLite driver. Build with -tags cgo_sqlite and CGO_ENABLED=1.
package sqlite

import (
	_ "github.com/mattn/go-sqlite3"
)

const (
	driverName    = "sqlite3"
	driverType    = "cgo"
	driverPackage = "github.com/mattn/go-sqlite3"
	dsnParams     = "_foreign_keys=on&_busy_timeout=5000"
)
