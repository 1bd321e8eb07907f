// ABOUTME: SQLite implementation of the document Store using modernc.org/sqlite
// ABOUTME: Stores each document as a JSON body and filters with json_extract

package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store on a single SQLite table.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (and if needed creates) a document database at path.
// Parent directories are created if needed.
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "docstore")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One connection serializes writers; SQLite allows a single writer anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db, logger: logger}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite document store initialized", "path", path)
	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			collection TEXT NOT NULL,
			body TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_documents_collection
			ON documents(collection);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Insert stores docs in one transaction.
func (s *SQLiteStore) Insert(ctx context.Context, collection string, docs []Document) ([]string, error) {
	if len(docs) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		id, err := insertTx(ctx, tx, collection, doc)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing insert: %w", err)
	}
	return ids, nil
}

// InsertOne stores a single document.
func (s *SQLiteStore) InsertOne(ctx context.Context, collection string, doc Document) (string, error) {
	ids, err := s.Insert(ctx, collection, []Document{doc})
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

func insertTx(ctx context.Context, tx *sql.Tx, collection string, doc Document) (string, error) {
	body, err := encodeBody(doc)
	if err != nil {
		return "", err
	}
	id := uuid.New().String()
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = tx.ExecContext(ctx,
		`INSERT INTO documents (id, collection, body, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, collection, body, now, now)
	if err != nil {
		return "", fmt.Errorf("inserting document: %w", err)
	}
	return id, nil
}

// Find runs the filter, sort, and limit in SQL and applies the projection in Go.
func (s *SQLiteStore) Find(ctx context.Context, collection string, q Query) ([]Document, error) {
	if err := validateQuery(q); err != nil {
		return nil, err
	}

	where, args, err := whereClause(collection, q.Filter)
	if err != nil {
		return nil, err
	}

	query := "SELECT id, body FROM documents WHERE " + where + " ORDER BY " + orderClause(q.Sort) + " LIMIT ?"
	args = append(args, q.EffectiveLimit())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, project(doc, q.Projection))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}
	return docs, nil
}

// Upsert merges doc into the first match, or inserts filter merged with doc.
func (s *SQLiteStore) Upsert(ctx context.Context, collection string, filter Filter, doc Document) (string, error) {
	if err := validateQuery(Query{Filter: filter}); err != nil {
		return "", err
	}
	update, err := normalize(doc)
	if err != nil {
		return "", err
	}
	delete(update, IDField)

	where, args, err := whereClause(collection, filter)
	if err != nil {
		return "", err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, "SELECT id, body FROM documents WHERE "+where+" ORDER BY rowid LIMIT 1", args...)
	existing, err := scanDocument(row)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		f, err := normalize(filter)
		if err != nil {
			return "", err
		}
		id, err := insertTx(ctx, tx, collection, merge(filterFields(f), update))
		if err != nil {
			return "", err
		}
		if err := tx.Commit(); err != nil {
			return "", fmt.Errorf("committing upsert: %w", err)
		}
		return id, nil
	case err != nil:
		return "", err
	}

	id, _ := existing[IDField].(string)
	merged := merge(existing, update)
	body, err := encodeBody(merged)
	if err != nil {
		return "", err
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE documents SET body = ?, updated_at = ? WHERE id = ?`,
		body, time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return "", fmt.Errorf("updating document: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("committing upsert: %w", err)
	}
	return id, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (Document, error) {
	var id, body string
	if err := row.Scan(&id, &body); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning document: %w", err)
	}
	var doc Document
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return nil, fmt.Errorf("decoding document %s: %w", id, err)
	}
	if doc == nil {
		doc = Document{}
	}
	doc[IDField] = id
	return doc, nil
}

func encodeBody(doc Document) (string, error) {
	clean := make(Document, len(doc))
	for k, v := range doc {
		if k == IDField {
			continue
		}
		clean[k] = v
	}
	data, err := json.Marshal(clean)
	if err != nil {
		return "", fmt.Errorf("encoding document: %w", err)
	}
	return string(data), nil
}

// jsonPath turns a validated dotted field name into a SQLite JSON path.
func jsonPath(field string) string {
	return "'$." + field + "'"
}

func whereClause(collection string, filter Filter) (string, []any, error) {
	conds := []string{"collection = ?"}
	args := []any{collection}

	f, err := normalize(filter)
	if err != nil {
		return "", nil, err
	}
	for field, value := range f {
		column := "json_extract(body, " + jsonPath(field) + ")"
		if field == IDField {
			column = "id"
		}
		switch v := value.(type) {
		case nil:
			conds = append(conds, column+" IS NULL")
		case bool:
			n := 0
			if v {
				n = 1
			}
			conds = append(conds, column+" = ?")
			args = append(args, n)
		case string, float64:
			conds = append(conds, column+" = ?")
			args = append(args, v)
		default:
			encoded, err := json.Marshal(v)
			if err != nil {
				return "", nil, fmt.Errorf("%w: filter value for %q", ErrInvalidQuery, field)
			}
			conds = append(conds, column+" = json(?)")
			args = append(args, string(encoded))
		}
	}
	return strings.Join(conds, " AND "), args, nil
}

func orderClause(fields []SortField) string {
	parts := make([]string, 0, len(fields)+1)
	for _, f := range fields {
		column := "json_extract(body, " + jsonPath(f.Field) + ")"
		if f.Field == IDField {
			column = "id"
		}
		dir := "ASC"
		if f.Desc {
			dir = "DESC"
		}
		parts = append(parts, column+" "+dir)
	}
	parts = append(parts, "rowid ASC")
	return strings.Join(parts, ", ")
}
