package store

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnsupportedDSN = errors.New("store: unsupported DSN")

// Target is a parsed connection string.
type Target struct {
	Dialect *Dialect
	// DSN is the string handed to sql.Open for the dialect's driver.
	DSN string
}

// ParseDSN recognises SQL Server URLs (sqlserver://, mssql://) and ADO
// style key=value strings, PostgreSQL URLs, and sqlite paths (sqlite: or
// file: prefixed).
func ParseDSN(raw string) (Target, error) {
	s := strings.TrimSpace(raw)
	lower := strings.ToLower(s)
	switch {
	case s == "":
		return Target{}, fmt.Errorf("%w: empty", ErrUnsupportedDSN)
	case strings.HasPrefix(lower, "sqlserver://"):
		return Target{Dialect: SQLServer, DSN: s}, nil
	case strings.HasPrefix(lower, "mssql://"):
		return Target{Dialect: SQLServer, DSN: "sqlserver://" + s[len("mssql://"):]}, nil
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return Target{Dialect: Postgres, DSN: s}, nil
	case strings.HasPrefix(lower, "sqlite://"):
		return Target{Dialect: SQLite, DSN: s[len("sqlite://"):]}, nil
	case strings.HasPrefix(lower, "sqlite:"):
		return Target{Dialect: SQLite, DSN: s[len("sqlite:"):]}, nil
	case strings.HasPrefix(lower, "file:"):
		return Target{Dialect: SQLite, DSN: s}, nil
	case isADO(lower):
		return Target{Dialect: SQLServer, DSN: s}, nil
	}
	return Target{}, fmt.Errorf("%w: %q", ErrUnsupportedDSN, redact(s))
}

// isADO reports whether s looks like "server=...;database=..." which the
// SQL Server driver parses natively.
func isADO(s string) bool {
	if !strings.Contains(s, "=") {
		return false
	}
	for _, part := range strings.Split(s, ";") {
		k, _, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		switch strings.TrimSpace(k) {
		case "server", "data source", "address", "addr", "network address":
			return true
		}
	}
	return false
}

// redact hides anything after the scheme so credentials never reach logs.
func redact(s string) string {
	if i := strings.Index(s, "://"); i >= 0 {
		return s[:i+3] + "..."
	}
	if len(s) > 8 {
		return s[:8] + "..."
	}
	return s
}
