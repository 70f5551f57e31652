// Package all registers every storage backend with the factory, plus the SQL
// Server driver that the mssql backend intentionally does not import itself.
//
// Blank-import this package from binaries; config selects which backend runs.
package all

import (
	_ "github.com/microsoft/go-mssqldb"

	_ "refcheck/internal/storage/mssql"
	_ "refcheck/internal/storage/postgres"
	_ "refcheck/internal/storage/sqlite"
)
