package dbsvc

import (
	"database/sql"
	"time"
)

// mysqlMapper converts go-sql-driver/mysql's scanned values into
// script-friendly Go values: []byte text columns become strings, and
// TIMESTAMP/DATETIME columns are left as time.Time for the caller to
// format. Grounded on the teacher's mysql_service.go value conversion
// (stringifying byte columns rather than leaving them raw).
func mysqlMapper(v any, ct *sql.ColumnType) any {
	switch val := v.(type) {
	case []byte:
		return string(val)
	case nil:
		return nil
	default:
		return val
	}
}

// postgresMapper mirrors mysqlMapper; lib/pq also returns []byte for
// text-ish columns.
func postgresMapper(v any, ct *sql.ColumnType) any {
	switch val := v.(type) {
	case []byte:
		return string(val)
	default:
		return val
	}
}

// sqliteMapper additionally normalizes mattn/go-sqlite3's integer-epoch
// timestamp columns when the declared column type says DATETIME,
// grounded on the teacher's sqlite_service.go value conversion.
func sqliteMapper(v any, ct *sql.ColumnType) any {
	switch val := v.(type) {
	case []byte:
		return string(val)
	case int64:
		if ct != nil && ct.DatabaseTypeName() == "DATETIME" {
			return time.Unix(val, 0)
		}
		return val
	default:
		return val
	}
}
