package source

import (
	"context"
	"database/sql"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/HVLAB-SJ/hv-lab-app-sub002/record"
	_ "modernc.org/sqlite"
)

// SQLite reads rows straight out of the application's database file. Column
// order becomes field order; TEXT columns holding a JSON array or object
// are decoded.
type SQLite struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ Reader = &SQLite{}

func OpenSQLite(path string, logger *slog.Logger) (*SQLite, error) {
	if path == "" {
		return nil, ErrPathMissing
	}
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// query_only is per connection.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA query_only = 1"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open database read-only: %w", err)
	}
	return &SQLite{db: db, logger: logger.WithGroup("sqlite")}, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (s *SQLite) List(ctx context.Context, kind *record.Kind) ([]record.Key, error) {
	if kind.Table == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoTable, kind.Name)
	}
	field := quoteIdent(keyField(kind))
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s", field, quoteIdent(kind.Table), field)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind.Name, err)
	}
	defer rows.Close()

	var keys []record.Key
	for rows.Next() {
		var raw any
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("list %s: %w", kind.Name, err)
		}
		key, err := record.KeyOf(columnValue(raw))
		if err != nil {
			s.logger.Warn("skipping row without key", "kind", kind.Name, "error", err)
			continue
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list %s: %w", kind.Name, err)
	}
	return dedupe(keys), nil
}

func (s *SQLite) Read(ctx context.Context, kind *record.Kind, key record.Key) (*record.Record, error) {
	if kind.Table == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoTable, kind.Name)
	}
	query := fmt.Sprintf("SELECT * FROM %s WHERE %s = ? LIMIT 1", quoteIdent(kind.Table), quoteIdent(keyField(kind)))
	rows, err := s.db.QueryContext(ctx, query, key.String())
	if err != nil {
		return nil, fmt.Errorf("read %s %s: %w", kind.Name, key, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read %s %s: %w", kind.Name, key, err)
	}
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("read %s %s: %w", kind.Name, key, err)
		}
		return nil, fmt.Errorf("%w: %s %s", ErrNotFound, kind.Name, key)
	}

	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, fmt.Errorf("read %s %s: %w", kind.Name, key, err)
	}

	rec := record.New()
	for i, col := range columns {
		rec.Set(col, columnValue(values[i]))
	}
	if err := validate(kind, key, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func columnValue(v any) any {
	switch t := v.(type) {
	case []byte:
		// BLOB columns hold raw binary; encode it so it classifies as an
		// inline blob instead of turning into mangled text.
		if !utf8.Valid(t) {
			return base64.StdEncoding.EncodeToString(t)
		}
		return decodeText(string(t))
	case string:
		return decodeText(t)
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	case int:
		return int64(t)
	default:
		return v
	}
}

// decodeText turns JSON arrays and objects stored as TEXT back into values.
// Anything that does not parse stays a string.
func decodeText(s string) any {
	trimmed := strings.TrimSpace(s)
	if len(trimmed) < 2 {
		return s
	}
	if (trimmed[0] == '[' && trimmed[len(trimmed)-1] == ']') || (trimmed[0] == '{' && trimmed[len(trimmed)-1] == '}') {
		if v, err := record.DecodeValue([]byte(trimmed)); err == nil {
			return v
		}
	}
	return s
}
