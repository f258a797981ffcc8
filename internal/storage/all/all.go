// Package all registers every built-in storage backend.
// Blank-import it from binaries that select the backend at runtime.
package all

import (
	_ "cityecon/internal/storage/mssql"
	_ "cityecon/internal/storage/postgres"
	_ "cityecon/internal/storage/sqlite"
)
