package db

import (
	"fmt"
	"strings"
	"time"
)

// Dialect captures the differences between the supported SQL engines.
type Dialect interface {
	Name() string
	// Rebind rewrites ? placeholders into the engine's native form.
	Rebind(query string) string
	// LockClause is appended to SELECTs that read rows a transaction will write.
	LockClause() string
	// TimeValue converts t into the value bound for a timestamp column.
	TimeValue(t time.Time) any
	Schema() string
}

type sqliteDialect struct{}

func (sqliteDialect) Name() string              { return "sqlite" }
func (sqliteDialect) Rebind(query string) string { return query }
func (sqliteDialect) LockClause() string        { return "" }
func (sqliteDialect) Schema() string            { return schemaSQLite }

// sqlite has no timestamp type; a fixed-width UTC layout keeps text ordering
// equal to time ordering.
func (sqliteDialect) TimeValue(t time.Time) any { return t.UTC().Format(sqliteTimeLayout) }

type postgresDialect struct{}

func (postgresDialect) Name() string              { return "postgres" }
func (postgresDialect) Rebind(query string) string { return Rebind(query) }
func (postgresDialect) LockClause() string        { return " FOR UPDATE" }
func (postgresDialect) TimeValue(t time.Time) any { return t.UTC() }
func (postgresDialect) Schema() string            { return schemaPostgres }

const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

// Rebind rewrites ? placeholders to $1, $2, ... for PostgreSQL.
func Rebind(query string) string {
	n := 0
	var b strings.Builder
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteString(fmt.Sprintf("$%d", n))
		} else {
			b.WriteByte(query[i])
		}
	}
	return b.String()
}

// parseTime converts a scanned timestamp value to time.Time.
// SQLite returns text, Postgres returns time.Time.
func parseTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t.UTC()
	case []byte:
		return parseTime(string(t))
	case string:
		if t == "" {
			return time.Time{}
		}
		for _, layout := range []string{
			sqliteTimeLayout,
			time.RFC3339Nano,
			"2006-01-02 15:04:05",
			"2006-01-02",
		} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed.UTC()
			}
		}
	}
	return time.Time{}
}

// parseTimePtr is like parseTime but returns nil for NULL timestamps.
func parseTimePtr(v any) *time.Time {
	if v == nil {
		return nil
	}
	t := parseTime(v)
	if t.IsZero() {
		return nil
	}
	return &t
}
