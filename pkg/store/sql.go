package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/openresponses/openresponses/pkg/api"
	"github.com/openresponses/openresponses/pkg/config"
)

const (
	itemKindInput  = "input"
	itemKindOutput = "output"
)

// One schema for all three SQL dialects.
var sqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS responses (
		id VARCHAR(255) PRIMARY KEY,
		completion TEXT NOT NULL,
		created_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS response_items (
		response_id VARCHAR(255) NOT NULL,
		kind VARCHAR(16) NOT NULL,
		position INTEGER NOT NULL,
		item TEXT NOT NULL,
		PRIMARY KEY (response_id, kind, position)
	)`,
	`CREATE TABLE IF NOT EXISTS vector_stores (
		id VARCHAR(255) PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		status VARCHAR(32) NOT NULL,
		created_at BIGINT NOT NULL,
		metadata TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS vector_store_files (
		id VARCHAR(255) NOT NULL,
		vector_store_id VARCHAR(255) NOT NULL,
		filename VARCHAR(255) NOT NULL,
		status VARCHAR(32) NOT NULL,
		created_at BIGINT NOT NULL,
		chunk_count INTEGER NOT NULL DEFAULT 0,
		attributes TEXT,
		last_error TEXT,
		PRIMARY KEY (vector_store_id, id)
	)`,
}

// SQL is the database/sql backend.
type SQL struct {
	db      *sql.DB
	dialect string
}

// NewSQL opens the configured database and ensures the schema. SQLite file
// paths get their parent directory created and the pool pinned to one
// connection.
func NewSQL(cfg config.StoreConfig) (*SQL, error) {
	dsn := cfg.DSN
	if cfg.Backend == config.StoreBackendSQLite && dsn != ":memory:" {
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating store directory: %w", err)
			}
		}
	}

	db, err := sql.Open(cfg.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", cfg.Backend, err)
	}

	if cfg.Backend == config.StoreBackendSQLite {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(cfg.MaxConns)
		db.SetMaxIdleConns(cfg.MaxIdle)
	}

	s := &SQL{db: db, dialect: cfg.Dialect()}
	for _, stmt := range sqlSchema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("creating schema: %w", err)
		}
	}
	return s, nil
}

// rebind rewrites ? placeholders into the dialect's own form.
func (s *SQL) rebind(query string) string {
	if s.dialect != string(config.StoreBackendPostgres) {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQL) StoreResponse(ctx context.Context, completion *api.ModelCompletion, inputItems []api.InputItem) error {
	if completion == nil || completion.ID == "" {
		return api.NewError(api.KindStorage, "cannot store a completion without an id")
	}

	raw, err := json.Marshal(completion)
	if err != nil {
		return api.WrapError(api.KindStorage, "encoding completion", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return api.WrapError(api.KindStorage, "beginning store transaction", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		"DELETE FROM responses WHERE id = ?",
		"DELETE FROM response_items WHERE response_id = ?",
	} {
		if _, err := tx.ExecContext(ctx, s.rebind(stmt), completion.ID); err != nil {
			return api.WrapError(api.KindStorage, "clearing previous response", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		s.rebind("INSERT INTO responses (id, completion, created_at) VALUES (?, ?, ?)"),
		completion.ID, string(raw), now(),
	); err != nil {
		return api.WrapError(api.KindStorage, "writing response", err)
	}

	if err := s.insertItems(ctx, tx, completion.ID, itemKindInput, inputItems); err != nil {
		return err
	}
	if err := s.insertItems(ctx, tx, completion.ID, itemKindOutput, OutputItems(completion)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return api.WrapError(api.KindStorage, "committing response", err)
	}
	return nil
}

func (s *SQL) insertItems(ctx context.Context, tx *sql.Tx, responseID, kind string, items []api.InputItem) error {
	query := s.rebind("INSERT INTO response_items (response_id, kind, position, item) VALUES (?, ?, ?, ?)")
	for i, item := range items {
		raw, err := json.Marshal(item)
		if err != nil {
			return api.WrapError(api.KindStorage, "encoding item", err)
		}
		if _, err := tx.ExecContext(ctx, query, responseID, kind, i, string(raw)); err != nil {
			return api.WrapError(api.KindStorage, "writing item", err)
		}
	}
	return nil
}

func (s *SQL) GetResponse(ctx context.Context, id string) (*api.ModelCompletion, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, s.rebind("SELECT completion FROM responses WHERE id = ?"), id).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, api.WrapError(api.KindStorage, "reading response", err)
	}
	var completion api.ModelCompletion
	if err := json.Unmarshal([]byte(raw), &completion); err != nil {
		return nil, api.WrapError(api.KindStorage, "decoding response", err)
	}
	return &completion, nil
}

func (s *SQL) GetInputItems(ctx context.Context, id string) ([]api.InputItem, error) {
	return s.items(ctx, id, itemKindInput)
}

func (s *SQL) GetOutputItems(ctx context.Context, id string) ([]api.InputItem, error) {
	return s.items(ctx, id, itemKindOutput)
}

func (s *SQL) items(ctx context.Context, id, kind string) ([]api.InputItem, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, s.rebind("SELECT 1 FROM responses WHERE id = ?"), id).Scan(&exists)
	if err == sql.ErrNoRows {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, api.WrapError(api.KindStorage, "reading response", err)
	}

	rows, err := s.db.QueryContext(ctx,
		s.rebind("SELECT item FROM response_items WHERE response_id = ? AND kind = ? ORDER BY position"),
		id, kind,
	)
	if err != nil {
		return nil, api.WrapError(api.KindStorage, "reading items", err)
	}
	defer rows.Close()

	var items []api.InputItem
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, api.WrapError(api.KindStorage, "scanning item", err)
		}
		var item api.InputItem
		if err := json.Unmarshal([]byte(raw), &item); err != nil {
			return nil, api.WrapError(api.KindStorage, "decoding item", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, api.WrapError(api.KindStorage, "iterating items", err)
	}
	return items, nil
}

func (s *SQL) CreateVectorStore(ctx context.Context, vs *VectorStore) error {
	if vs.CreatedAt == 0 {
		vs.CreatedAt = now()
	}
	metadata, err := json.Marshal(vs.Metadata)
	if err != nil {
		return api.WrapError(api.KindStorage, "encoding metadata", err)
	}
	if _, err := s.db.ExecContext(ctx,
		s.rebind("INSERT INTO vector_stores (id, name, status, created_at, metadata) VALUES (?, ?, ?, ?, ?)"),
		vs.ID, vs.Name, vs.Status, vs.CreatedAt, string(metadata),
	); err != nil {
		return api.WrapError(api.KindStorage, "writing vector store", err)
	}
	return nil
}

func (s *SQL) GetVectorStore(ctx context.Context, id string) (*VectorStore, error) {
	var vs VectorStore
	var metadata string
	err := s.db.QueryRowContext(ctx,
		s.rebind("SELECT id, name, status, created_at, metadata FROM vector_stores WHERE id = ?"), id,
	).Scan(&vs.ID, &vs.Name, &vs.Status, &vs.CreatedAt, &metadata)
	if err == sql.ErrNoRows {
		return nil, vectorStoreNotFound(id)
	}
	if err != nil {
		return nil, api.WrapError(api.KindStorage, "reading vector store", err)
	}
	if metadata != "" && metadata != "null" {
		if err := json.Unmarshal([]byte(metadata), &vs.Metadata); err != nil {
			return nil, api.WrapError(api.KindStorage, "decoding metadata", err)
		}
	}
	counts, err := s.fileCounts(ctx, id)
	if err != nil {
		return nil, err
	}
	vs.FileCounts = counts
	return &vs, nil
}

func (s *SQL) ListVectorStores(ctx context.Context) ([]*VectorStore, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, status, created_at, metadata FROM vector_stores ORDER BY created_at DESC, id")
	if err != nil {
		return nil, api.WrapError(api.KindStorage, "listing vector stores", err)
	}
	defer rows.Close()

	var out []*VectorStore
	for rows.Next() {
		var vs VectorStore
		var metadata string
		if err := rows.Scan(&vs.ID, &vs.Name, &vs.Status, &vs.CreatedAt, &metadata); err != nil {
			return nil, api.WrapError(api.KindStorage, "scanning vector store", err)
		}
		if metadata != "" && metadata != "null" {
			if err := json.Unmarshal([]byte(metadata), &vs.Metadata); err != nil {
				return nil, api.WrapError(api.KindStorage, "decoding metadata", err)
			}
		}
		out = append(out, &vs)
	}
	if err := rows.Err(); err != nil {
		return nil, api.WrapError(api.KindStorage, "iterating vector stores", err)
	}
	for _, vs := range out {
		counts, err := s.fileCounts(ctx, vs.ID)
		if err != nil {
			return nil, err
		}
		vs.FileCounts = counts
	}
	return out, nil
}

func (s *SQL) DeleteVectorStore(ctx context.Context, id string) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, api.WrapError(api.KindStorage, "beginning delete transaction", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, s.rebind("DELETE FROM vector_stores WHERE id = ?"), id)
	if err != nil {
		return nil, api.WrapError(api.KindStorage, "deleting vector store", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, vectorStoreNotFound(id)
	}

	rows, err := tx.QueryContext(ctx,
		s.rebind("SELECT id FROM vector_store_files WHERE vector_store_id = ? ORDER BY id"), id)
	if err != nil {
		return nil, api.WrapError(api.KindStorage, "listing files for cascade", err)
	}
	var fileIDs []string
	for rows.Next() {
		var fileID string
		if err := rows.Scan(&fileID); err != nil {
			rows.Close()
			return nil, api.WrapError(api.KindStorage, "scanning file id", err)
		}
		fileIDs = append(fileIDs, fileID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, api.WrapError(api.KindStorage, "iterating file ids", err)
	}

	if _, err := tx.ExecContext(ctx,
		s.rebind("DELETE FROM vector_store_files WHERE vector_store_id = ?"), id); err != nil {
		return nil, api.WrapError(api.KindStorage, "deleting file records", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, api.WrapError(api.KindStorage, "committing delete", err)
	}
	return fileIDs, nil
}

func (s *SQL) UpsertVectorStoreFile(ctx context.Context, file *VectorStoreFile) error {
	if _, err := s.GetVectorStore(ctx, file.VectorStoreID); err != nil {
		return err
	}
	if file.CreatedAt == 0 {
		file.CreatedAt = now()
	}
	attrs, err := json.Marshal(file.Attributes)
	if err != nil {
		return api.WrapError(api.KindStorage, "encoding attributes", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return api.WrapError(api.KindStorage, "beginning upsert transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		s.rebind("DELETE FROM vector_store_files WHERE vector_store_id = ? AND id = ?"),
		file.VectorStoreID, file.ID,
	); err != nil {
		return api.WrapError(api.KindStorage, "clearing file record", err)
	}
	if _, err := tx.ExecContext(ctx,
		s.rebind(`INSERT INTO vector_store_files
			(id, vector_store_id, filename, status, created_at, chunk_count, attributes, last_error)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		file.ID, file.VectorStoreID, file.Filename, file.Status, file.CreatedAt,
		file.ChunkCount, string(attrs), file.LastError,
	); err != nil {
		return api.WrapError(api.KindStorage, "writing file record", err)
	}
	if err := tx.Commit(); err != nil {
		return api.WrapError(api.KindStorage, "committing file record", err)
	}
	return nil
}

func (s *SQL) GetVectorStoreFile(ctx context.Context, vectorStoreID, fileID string) (*VectorStoreFile, error) {
	var file VectorStoreFile
	var attrs string
	err := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT id, vector_store_id, filename, status, created_at, chunk_count, attributes, last_error
			FROM vector_store_files WHERE vector_store_id = ? AND id = ?`),
		vectorStoreID, fileID,
	).Scan(&file.ID, &file.VectorStoreID, &file.Filename, &file.Status, &file.CreatedAt,
		&file.ChunkCount, &attrs, &file.LastError)
	if err == sql.ErrNoRows {
		return nil, fileNotFound(fileID)
	}
	if err != nil {
		return nil, api.WrapError(api.KindStorage, "reading file record", err)
	}
	if attrs != "" && attrs != "null" {
		if err := json.Unmarshal([]byte(attrs), &file.Attributes); err != nil {
			return nil, api.WrapError(api.KindStorage, "decoding attributes", err)
		}
	}
	return &file, nil
}

func (s *SQL) ListVectorStoreFiles(ctx context.Context, vectorStoreID string) ([]*VectorStoreFile, error) {
	if _, err := s.GetVectorStore(ctx, vectorStoreID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		s.rebind(`SELECT id, vector_store_id, filename, status, created_at, chunk_count, attributes, last_error
			FROM vector_store_files WHERE vector_store_id = ? ORDER BY created_at DESC, id`),
		vectorStoreID,
	)
	if err != nil {
		return nil, api.WrapError(api.KindStorage, "listing file records", err)
	}
	defer rows.Close()

	var out []*VectorStoreFile
	for rows.Next() {
		var file VectorStoreFile
		var attrs string
		if err := rows.Scan(&file.ID, &file.VectorStoreID, &file.Filename, &file.Status,
			&file.CreatedAt, &file.ChunkCount, &attrs, &file.LastError); err != nil {
			return nil, api.WrapError(api.KindStorage, "scanning file record", err)
		}
		if attrs != "" && attrs != "null" {
			if err := json.Unmarshal([]byte(attrs), &file.Attributes); err != nil {
				return nil, api.WrapError(api.KindStorage, "decoding attributes", err)
			}
		}
		out = append(out, &file)
	}
	if err := rows.Err(); err != nil {
		return nil, api.WrapError(api.KindStorage, "iterating file records", err)
	}
	return out, nil
}

func (s *SQL) DeleteVectorStoreFile(ctx context.Context, vectorStoreID, fileID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		s.rebind("DELETE FROM vector_store_files WHERE vector_store_id = ? AND id = ?"),
		vectorStoreID, fileID)
	if err != nil {
		return false, api.WrapError(api.KindStorage, "deleting file record", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, api.WrapError(api.KindStorage, "checking delete result", err)
	}
	return n > 0, nil
}

func (s *SQL) fileCounts(ctx context.Context, vectorStoreID string) (FileCounts, error) {
	rows, err := s.db.QueryContext(ctx,
		s.rebind("SELECT status, COUNT(*) FROM vector_store_files WHERE vector_store_id = ? GROUP BY status"),
		vectorStoreID)
	if err != nil {
		return FileCounts{}, api.WrapError(api.KindStorage, "counting files", err)
	}
	defer rows.Close()

	var counts FileCounts
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return FileCounts{}, api.WrapError(api.KindStorage, "scanning counts", err)
		}
		counts.Total += n
		switch status {
		case StatusCompleted:
			counts.Completed += n
		case StatusFailed:
			counts.Failed += n
		default:
			counts.InProgress += n
		}
	}
	if err := rows.Err(); err != nil {
		return FileCounts{}, api.WrapError(api.KindStorage, "iterating counts", err)
	}
	return counts, nil
}

func (s *SQL) Close() error { return s.db.Close() }

var _ Store = (*SQL)(nil)
