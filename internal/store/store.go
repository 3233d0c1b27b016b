package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/denisenkom/go-mssqldb" // sqlserver
	_ "github.com/go-sql-driver/mysql"   // mysql
	"github.com/google/uuid"
	_ "github.com/lib/pq"           // postgres
	_ "github.com/mattn/go-sqlite3" // sqlite3

	"github.com/APIExplore/api-explore-backend/internal/types"
)

var (
	// ErrNotFound is returned when a schema or sequence does not exist
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a sequence name is already taken
	ErrConflict = errors.New("already exists")
)

// SchemaRecord is a stored API schema document
type SchemaRecord struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Version   string    `json:"version"`
	BaseURL   string    `json:"baseUrl"`
	Document  []byte    `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
}

// SequenceRecord describes a stored call sequence
type SequenceRecord struct {
	ID        string    `json:"id"`
	SchemaID  string    `json:"schemaId"`
	Name      string    `json:"name"`
	NumCalls  int       `json:"numCalls"`
	CreatedAt time.Time `json:"createdAt"`
}

// SQLStore persists schemas and call sequences through database/sql
type SQLStore struct {
	db      *sql.DB
	dialect dialect
}

// Open connects to the database and runs migrations
func Open(driver, dsn string) (*SQLStore, error) {
	d, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if driver == DriverSQLite && (dsn == ":memory:" || dsn == "file::memory:") {
		// every connection would get its own empty in-memory database
		db.SetMaxOpenConns(1)
	}

	s := &SQLStore{db: db, dialect: d}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *SQLStore) migrate() error {
	migrations := []string{
		s.dialect.createTable("api_schemas", `
			id VARCHAR(64) PRIMARY KEY,
			name VARCHAR(255) NOT NULL UNIQUE,
			version VARCHAR(32) NOT NULL,
			base_url VARCHAR(1024) NOT NULL,
			document %s NOT NULL,
			created_at BIGINT NOT NULL`),
		s.dialect.createTable("api_call_sequences", `
			id VARCHAR(64) PRIMARY KEY,
			schema_id VARCHAR(64) NOT NULL,
			name VARCHAR(255) NOT NULL,
			created_at BIGINT NOT NULL,
			UNIQUE (schema_id, name)`),
		s.dialect.createTable("api_calls", `
			id VARCHAR(64) PRIMARY KEY,
			sequence_id VARCHAR(64) NOT NULL,
			seq_index INTEGER NOT NULL,
			payload %s NOT NULL,
			UNIQUE (sequence_id, seq_index)`),
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}
	return nil
}

// Close closes the database connection
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Ping checks the database connection
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) exec(ctx context.Context, q execer, query string, args ...any) (sql.Result, error) {
	return q.ExecContext(ctx, s.dialect.rebind(query), args...)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// SaveSchema stores a schema document, replacing the document of an existing
// schema with the same name. The record's ID is filled in.
func (s *SQLStore) SaveSchema(ctx context.Context, rec *SchemaRecord) error {
	existing, err := s.SchemaByName(ctx, rec.Name)
	switch {
	case err == nil:
		rec.ID = existing.ID
		rec.CreatedAt = existing.CreatedAt
		_, err = s.exec(ctx, s.db,
			`UPDATE api_schemas SET version = ?, base_url = ?, document = ? WHERE id = ?`,
			rec.Version, rec.BaseURL, string(rec.Document), rec.ID)
		return err
	case errors.Is(err, ErrNotFound):
		rec.ID = uuid.NewString()
		rec.CreatedAt = time.Now().UTC()
		_, err = s.exec(ctx, s.db,
			`INSERT INTO api_schemas (id, name, version, base_url, document, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			rec.ID, rec.Name, rec.Version, rec.BaseURL, string(rec.Document), rec.CreatedAt.UnixMilli())
		return err
	default:
		return err
	}
}

// SchemaByName returns the schema with the given name
func (s *SQLStore) SchemaByName(ctx context.Context, name string) (*SchemaRecord, error) {
	return s.schema(ctx, `SELECT id, name, version, base_url, document, created_at FROM api_schemas WHERE name = ?`, name)
}

// SchemaByID returns the schema with the given id
func (s *SQLStore) SchemaByID(ctx context.Context, id string) (*SchemaRecord, error) {
	return s.schema(ctx, `SELECT id, name, version, base_url, document, created_at FROM api_schemas WHERE id = ?`, id)
}

func (s *SQLStore) schema(ctx context.Context, query string, arg string) (*SchemaRecord, error) {
	var rec SchemaRecord
	var document string
	var createdAt int64
	err := s.db.QueryRowContext(ctx, s.dialect.rebind(query), arg).
		Scan(&rec.ID, &rec.Name, &rec.Version, &rec.BaseURL, &document, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("schema %q: %w", arg, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	rec.Document = []byte(document)
	rec.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &rec, nil
}

// ListSchemas returns every stored schema without its document
func (s *SQLStore) ListSchemas(ctx context.Context) ([]SchemaRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, version, base_url, created_at FROM api_schemas ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []SchemaRecord
	for rows.Next() {
		var rec SchemaRecord
		var createdAt int64
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.Version, &rec.BaseURL, &createdAt); err != nil {
			return nil, err
		}
		rec.CreatedAt = time.UnixMilli(createdAt).UTC()
		records = append(records, rec)
	}
	return records, rows.Err()
}

// SequenceExists reports whether a sequence with the given name exists for the schema
func (s *SQLStore) SequenceExists(ctx context.Context, schemaID, name string) (bool, error) {
	_, err := s.SequenceID(ctx, schemaID, name)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// SequenceID returns the id of the named sequence of a schema
func (s *SQLStore) SequenceID(ctx context.Context, schemaID, name string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		s.dialect.rebind(`SELECT id FROM api_call_sequences WHERE schema_id = ? AND name = ?`),
		schemaID, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("sequence %q: %w", name, ErrNotFound)
	}
	return id, err
}

// CreateSequence registers a new named sequence and returns its id
func (s *SQLStore) CreateSequence(ctx context.Context, schemaID, name string) (string, error) {
	exists, err := s.SequenceExists(ctx, schemaID, name)
	if err != nil {
		return "", err
	}
	if exists {
		return "", fmt.Errorf("sequence %q: %w", name, ErrConflict)
	}

	id := uuid.NewString()
	_, err = s.exec(ctx, s.db,
		`INSERT INTO api_call_sequences (id, schema_id, name, created_at) VALUES (?, ?, ?, ?)`,
		id, schemaID, name, time.Now().UTC().UnixMilli())
	if err != nil {
		return "", err
	}
	return id, nil
}

// ListSequences returns the sequences of a schema with their call counts
func (s *SQLStore) ListSequences(ctx context.Context, schemaID string) ([]SequenceRecord, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(`
		SELECT s.id, s.schema_id, s.name, s.created_at, COUNT(c.id)
		FROM api_call_sequences s
		LEFT JOIN api_calls c ON c.sequence_id = s.id
		WHERE s.schema_id = ?
		GROUP BY s.id, s.schema_id, s.name, s.created_at
		ORDER BY s.name`), schemaID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []SequenceRecord
	for rows.Next() {
		var rec SequenceRecord
		var createdAt int64
		if err := rows.Scan(&rec.ID, &rec.SchemaID, &rec.Name, &createdAt, &rec.NumCalls); err != nil {
			return nil, err
		}
		rec.CreatedAt = time.UnixMilli(createdAt).UTC()
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Sequence returns the named sequence of a schema with its recorded calls
func (s *SQLStore) Sequence(ctx context.Context, schemaID, name string) (*types.Sequence, error) {
	id, err := s.SequenceID(ctx, schemaID, name)
	if err != nil {
		return nil, err
	}
	calls, err := s.LoadPreviousRun(ctx, id)
	if err != nil {
		return nil, err
	}
	return &types.Sequence{ID: id, SchemaID: schemaID, Name: name, Calls: calls}, nil
}

// RenameSequence renames a sequence of a schema
func (s *SQLStore) RenameSequence(ctx context.Context, schemaID, name, newName string) error {
	id, err := s.SequenceID(ctx, schemaID, name)
	if err != nil {
		return err
	}
	taken, err := s.SequenceExists(ctx, schemaID, newName)
	if err != nil {
		return err
	}
	if taken {
		return fmt.Errorf("sequence %q: %w", newName, ErrConflict)
	}
	_, err = s.exec(ctx, s.db, `UPDATE api_call_sequences SET name = ? WHERE id = ?`, newName, id)
	return err
}

// DeleteSequence removes a sequence and its calls
func (s *SQLStore) DeleteSequence(ctx context.Context, schemaID, name string) error {
	id, err := s.SequenceID(ctx, schemaID, name)
	if err != nil {
		return err
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := s.exec(ctx, tx, `DELETE FROM api_calls WHERE sequence_id = ?`, id); err != nil {
			return err
		}
		_, err := s.exec(ctx, tx, `DELETE FROM api_call_sequences WHERE id = ?`, id)
		return err
	})
}

// SaveSequenceRun replaces the recorded calls of a sequence in one transaction
func (s *SQLStore) SaveSequenceRun(ctx context.Context, schemaID, sequenceID string, calls []types.CallResult) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var owner string
		err := tx.QueryRowContext(ctx,
			s.dialect.rebind(`SELECT schema_id FROM api_call_sequences WHERE id = ?`), sequenceID).Scan(&owner)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && owner != schemaID) {
			return fmt.Errorf("sequence %q of schema %q: %w", sequenceID, schemaID, ErrNotFound)
		}
		if err != nil {
			return err
		}

		if _, err := s.exec(ctx, tx, `DELETE FROM api_calls WHERE sequence_id = ?`, sequenceID); err != nil {
			return err
		}
		for i, call := range calls {
			payload, err := json.Marshal(call)
			if err != nil {
				return fmt.Errorf("failed to encode call %d: %w", i, err)
			}
			if _, err := s.exec(ctx, tx,
				`INSERT INTO api_calls (id, sequence_id, seq_index, payload) VALUES (?, ?, ?, ?)`,
				uuid.NewString(), sequenceID, i, string(payload)); err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadPreviousRun returns the recorded calls of a sequence in order. A
// sequence without calls yields an empty list.
func (s *SQLStore) LoadPreviousRun(ctx context.Context, sequenceID string) ([]types.CallResult, error) {
	rows, err := s.db.QueryContext(ctx,
		s.dialect.rebind(`SELECT payload FROM api_calls WHERE sequence_id = ? ORDER BY seq_index`), sequenceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	calls := []types.CallResult{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var call types.CallResult
		if err := json.Unmarshal([]byte(payload), &call); err != nil {
			return nil, fmt.Errorf("failed to decode recorded call: %w", err)
		}
		calls = append(calls, call)
	}
	return calls, rows.Err()
}

func (s *SQLStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
