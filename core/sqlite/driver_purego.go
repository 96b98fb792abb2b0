//go:build !cgo_sqlite

package sqlite

import (
	_ "modernc.org/sqlite"
)

const (
	driverName    = "sqlite"
	driverType    = "purego"
	driverPackage = "modernc.org/sqlite"
	dsnParams     = "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
)
