package store

import (
	"fmt"
	"strconv"
	"strings"
)

// Supported database drivers
const (
	DriverSQLite    = "sqlite3"
	DriverPostgres  = "postgres"
	DriverMySQL     = "mysql"
	DriverSQLServer = "sqlserver"
)

type dialect struct {
	driver   string
	textType string
}

func dialectFor(driver string) (dialect, error) {
	switch driver {
	case DriverSQLite, DriverPostgres:
		return dialect{driver: driver, textType: "TEXT"}, nil
	case DriverMySQL:
		return dialect{driver: driver, textType: "LONGTEXT"}, nil
	case DriverSQLServer:
		return dialect{driver: driver, textType: "NVARCHAR(MAX)"}, nil
	default:
		return dialect{}, fmt.Errorf("unsupported database driver: %s", driver)
	}
}

// rebind rewrites ? placeholders into the driver's bind style
func (d dialect) rebind(query string) string {
	var prefix string
	switch d.driver {
	case DriverPostgres:
		prefix = "$"
	case DriverSQLServer:
		prefix = "@p"
	default:
		return query
	}

	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteString(prefix)
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// createTable replaces %s in columns with the driver's large text type
func (d dialect) createTable(name, columns string) string {
	columns = strings.ReplaceAll(columns, "%s", d.textType)
	if d.driver == DriverSQLServer {
		return fmt.Sprintf("IF OBJECT_ID(N'%s', N'U') IS NULL CREATE TABLE %s (%s)", name, name, columns)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", name, columns)
}
