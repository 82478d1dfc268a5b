package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/rcliao/selfedit/internal/chunker"
	"github.com/rcliao/selfedit/internal/embedding"
	"github.com/rcliao/selfedit/internal/model"
)

// Store implements Log backed by SQLite, with an optional in-process
// similarity index.
type Store struct {
	db       *sql.DB
	embedder embedding.Embedder // nil when embeddings are disabled
	index    *vectorIndex
	logger   *zap.Logger
}

// NewStore opens or creates the message database at dbPath. A nil embedder
// disables semantic recall; the message log works regardless.
func NewStore(dbPath string, embedder embedding.Embedder, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=synchronous(full)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &Store{
		db:       db,
		embedder: embedder,
		index:    newVectorIndex(),
		logger:   logger,
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS messages (
		id       INTEGER PRIMARY KEY AUTOINCREMENT,
		role     TEXT NOT NULL,
		content  TEXT NOT NULL,
		metadata TEXT
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// AppendMessage durably appends one message. Metadata must be
// JSON-serializable; a value that cannot be encoded fails with StorageError
// before anything is written.
func (s *Store) AppendMessage(ctx context.Context, role model.Role, content string, metadata map[string]any) (int64, error) {
	if !model.ValidRoles[role] {
		return 0, fmt.Errorf("invalid role %q", role)
	}
	if metadata == nil {
		metadata = map[string]any{}
	}

	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return 0, &StorageError{Op: "encode metadata", Err: err}
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (role, content, metadata) VALUES (?, ?, ?)`,
		string(role), content, string(metaJSON))
	if err != nil {
		return 0, &StorageError{Op: "append message", Err: err}
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, &StorageError{Op: "read message id", Err: err}
	}
	return id, nil
}

// AllMessages returns every message in insertion order. Malformed metadata
// from a prior corrupted write is replaced with an empty map rather than
// failing the whole read.
func (s *Store) AllMessages(ctx context.Context) ([]model.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, role, content, metadata FROM messages ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []model.Message
	for rows.Next() {
		var m model.Message
		var role string
		var metaJSON sql.NullString
		if err := rows.Scan(&m.ID, &role, &m.Content, &metaJSON); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Role = model.Role(role)
		m.Metadata = map[string]any{}
		if metaJSON.Valid && metaJSON.String != "" {
			if err := json.Unmarshal([]byte(metaJSON.String), &m.Metadata); err != nil {
				s.logger.Warn("malformed message metadata, substituting empty map",
					zap.Int64("id", m.ID), zap.Error(err))
				m.Metadata = map[string]any{}
			}
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// StoreEmbeddings computes vectors for the texts and adds them to the
// in-process index. Oversized texts are chunked first. When no embedder is
// configured this is a no-op with a logged warning; embedding support is
// never load-bearing.
func (s *Store) StoreEmbeddings(ctx context.Context, texts []string) {
	if s.embedder == nil {
		s.logger.Warn("embeddings not available, skipping store")
		return
	}

	var pieces []string
	for _, t := range texts {
		pieces = append(pieces, chunker.Chunk(t, chunker.DefaultOptions())...)
	}
	if len(pieces) == 0 {
		return
	}

	vectors, err := s.embedder.EmbedBatch(ctx, pieces)
	if err != nil {
		s.logger.Warn("embedding failed, skipping store", zap.Error(err))
		return
	}
	s.index.add(pieces, vectors)
}

// SimilaritySearch returns up to k indexed texts by ascending Euclidean
// distance to query. Best-effort: any unavailability yields an empty slice.
func (s *Store) SimilaritySearch(ctx context.Context, query string, k int) []Hit {
	if s.embedder == nil || s.index.len() == 0 || k <= 0 {
		return nil
	}

	qv, err := s.embedder.Embed(ctx, query)
	if err != nil {
		s.logger.Warn("query embedding failed, returning no matches", zap.Error(err))
		return nil
	}
	return s.index.search(qv, k)
}

func (s *Store) Close() error {
	return s.db.Close()
}
