package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDSN(t *testing.T) {
	cases := []struct {
		raw     string
		dialect *Dialect
		dsn     string
	}{
		{"sqlserver://qa:pw@db:1433?database=promos", SQLServer, "sqlserver://qa:pw@db:1433?database=promos"},
		{"mssql://qa:pw@db:1433/promos", SQLServer, "sqlserver://qa:pw@db:1433/promos"},
		{"MSSQL://qa@db", SQLServer, "sqlserver://qa@db"},
		{"Server=db,1433;User Id=qa;Password=pw;Database=promos", SQLServer, "Server=db,1433;User Id=qa;Password=pw;Database=promos"},
		{"data source=db;initial catalog=promos", SQLServer, "data source=db;initial catalog=promos"},
		{"postgres://qa@replica/promos?sslmode=disable", Postgres, "postgres://qa@replica/promos?sslmode=disable"},
		{"postgresql://qa@replica/promos", Postgres, "postgresql://qa@replica/promos"},
		{"sqlite:/tmp/brief.db", SQLite, "/tmp/brief.db"},
		{"sqlite:///tmp/brief.db", SQLite, "/tmp/brief.db"},
		{"file:brief.db?cache=shared", SQLite, "file:brief.db?cache=shared"},
		{"  sqlite::memory:  ", SQLite, ":memory:"},
	}
	for _, tc := range cases {
		got, err := ParseDSN(tc.raw)
		require.NoError(t, err, tc.raw)
		assert.Same(t, tc.dialect, got.Dialect, tc.raw)
		assert.Equal(t, tc.dsn, got.DSN, tc.raw)
	}
}

func TestParseDSNRejects(t *testing.T) {
	for _, raw := range []string{"", "   ", "mysql://root:hunter2@db/promos", "just-a-word", "database=promos"} {
		_, err := ParseDSN(raw)
		assert.ErrorIs(t, err, ErrUnsupportedDSN, raw)
	}
}

func TestParseDSNRedactsCredentials(t *testing.T) {
	_, err := ParseDSN("mysql://root:hunter2@db/promos")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "hunter2")
}
