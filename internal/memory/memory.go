// Package memory provides the agent's durable message log and best-effort
// semantic recall.
//
// The message log is append-only SQLite: a message committed by
// AppendMessage survives a crash immediately after the call returns. The
// similarity index lives in process memory only and is rebuilt from
// whatever StoreEmbeddings calls happen after startup.
package memory

import (
	"context"

	"github.com/rcliao/selfedit/internal/model"
)

// Log is the interface the orchestrator records through.
type Log interface {
	// AppendMessage durably appends one message and returns its id.
	// Failure here means the audit trail can no longer be trusted.
	AppendMessage(ctx context.Context, role model.Role, content string, metadata map[string]any) (int64, error)

	// AllMessages returns every message in insertion order.
	AllMessages(ctx context.Context) ([]model.Message, error)

	// StoreEmbeddings adds texts to the similarity index. A no-op when no
	// embedding provider is configured.
	StoreEmbeddings(ctx context.Context, texts []string)

	// SimilaritySearch returns up to k stored texts ordered by ascending
	// distance to query. Always empty, never an error, when the index or
	// provider is absent.
	SimilaritySearch(ctx context.Context, query string, k int) []Hit

	Close() error
}

// Hit is one similarity search result.
type Hit struct {
	Text     string  `json:"text"`
	Distance float64 `json:"distance"`
}

// StorageError marks a failed durable write. The orchestrator treats it as
// fatal for the run.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return "storage failure during " + e.Op + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() error { return e.Err }
