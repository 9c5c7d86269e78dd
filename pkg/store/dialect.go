package store

import (
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// tableArea groups tables by the database area they live in.
type tableArea int

const (
	areaExecution tableArea = iota
	areaConfiguration
	areaTournaments
)

// Dialect holds the SQL differences between the supported engines.
type Dialect struct {
	Name   string
	Driver string
	// Now is the expression for the current local timestamp.
	Now         string
	placeholder func(n int) string
	table       func(area tableArea, schema, name string) string
	limit       func(columns string, n int) (prefix, suffix string)
}

// Placeholder returns the n-th (1-based) bind parameter.
func (d *Dialect) Placeholder(n int) string { return d.placeholder(n) }

// Table qualifies a table name.
func (d *Dialect) Table(area tableArea, schema, name string) string {
	return d.table(area, schema, name)
}

var SQLServer = &Dialect{
	Name:        "sqlserver",
	Driver:      "sqlserver",
	Now:         "GETDATE()",
	placeholder: func(n int) string { return fmt.Sprintf("@p%d", n) },
	table: func(area tableArea, schema, name string) string {
		switch area {
		case areaExecution:
			return "[bd_promocion_ejecucion].[sch_promocion].[" + name + "]"
		case areaConfiguration:
			return "[bd_promocion_ejecucion].[sch_configuracion].[" + name + "]"
		}
		return "[Mesas].[" + schema + "].[" + name + "]"
	},
	limit: func(columns string, n int) (string, string) {
		return fmt.Sprintf("TOP (%d) %s", n, columns), ""
	},
}

var Postgres = &Dialect{
	Name:        "postgres",
	Driver:      "postgres",
	Now:         "NOW()",
	placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
	table: func(_ tableArea, schema, name string) string {
		if schema == "" {
			return pq.QuoteIdentifier(name)
		}
		return pq.QuoteIdentifier(schema) + "." + pq.QuoteIdentifier(name)
	},
	limit: func(columns string, n int) (string, string) {
		return columns, fmt.Sprintf(" LIMIT %d", n)
	},
}

var SQLite = &Dialect{
	Name:        "sqlite",
	Driver:      "sqlite",
	Now:         "datetime('now', 'localtime')",
	placeholder: func(int) string { return "?" },
	table: func(_ tableArea, _ string, name string) string {
		return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
	},
	limit: func(columns string, n int) (string, string) {
		return columns, fmt.Sprintf(" LIMIT %d", n)
	},
}
