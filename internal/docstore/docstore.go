package docstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/graftlab/graft/internal/util"
	"github.com/graftlab/graft/pkg/common"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Store records ingested documents and their analysis payloads in
// Postgres. Content hashes let re-ingest runs skip unchanged documents.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a Store backed by the given connection pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Document is one ingested document of a graph.
type Document struct {
	ID          string
	GraphID     string
	Path        string
	ContentHash string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// HashContent returns the content hash used for change detection.
func HashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// UpsertDocument records a document, keyed by (graph id, path). The
// returned changed flag is false when the stored content hash already
// matches, meaning the document does not need to be re-analyzed.
func (s *Store) UpsertDocument(
	ctx context.Context,
	graphID string,
	path string,
	contentHash string,
) (Document, bool, error) {
	var existing Document
	err := s.pool.QueryRow(ctx,
		`SELECT id, graph_id, path, content_hash, created_at, updated_at
		 FROM documents WHERE graph_id = $1 AND path = $2`,
		graphID, path,
	).Scan(&existing.ID, &existing.GraphID, &existing.Path, &existing.ContentHash, &existing.CreatedAt, &existing.UpdatedAt)

	switch {
	case err == nil:
		if existing.ContentHash == contentHash {
			return existing, false, nil
		}
		_, err := s.pool.Exec(ctx,
			`UPDATE documents SET content_hash = $1, updated_at = now() WHERE id = $2`,
			contentHash, existing.ID,
		)
		if err != nil {
			return Document{}, false, fmt.Errorf("failed to update document: %w", err)
		}
		existing.ContentHash = contentHash
		return existing, true, nil

	case errors.Is(err, pgx.ErrNoRows):
		id, err := gonanoid.New()
		if err != nil {
			return Document{}, false, err
		}
		doc := Document{
			ID:          id,
			GraphID:     graphID,
			Path:        path,
			ContentHash: contentHash,
		}
		err = s.pool.QueryRow(ctx,
			`INSERT INTO documents (id, graph_id, path, content_hash)
			 VALUES ($1, $2, $3, $4)
			 RETURNING created_at, updated_at`,
			doc.ID, doc.GraphID, doc.Path, doc.ContentHash,
		).Scan(&doc.CreatedAt, &doc.UpdatedAt)
		if err != nil {
			return Document{}, false, fmt.Errorf("failed to insert document: %w", err)
		}
		return doc, true, nil

	default:
		return Document{}, false, fmt.Errorf("failed to look up document: %w", err)
	}
}

// SaveFragment stores one analysis result for a document. The graph
// payload is kept as JSONB so past analyses stay inspectable after
// fusion has consumed them.
func (s *Store) SaveFragment(
	ctx context.Context,
	graphID string,
	documentID string,
	fragment common.Fragment,
) error {
	id, err := gonanoid.New()
	if err != nil {
		return err
	}

	payload, err := json.Marshal(fragment.KnowledgeGraph)
	if err != nil {
		return fmt.Errorf("failed to encode fragment payload: %w", err)
	}
	metadata, err := json.Marshal(fragment.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode fragment metadata: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO fragments (id, graph_id, document_id, summary, payload, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		id, graphID, documentID, util.SanitizePostgresText(fragment.Summary), payload, metadata,
	)
	if err != nil {
		return fmt.Errorf("failed to insert fragment: %w", err)
	}
	return nil
}

// ListSummaries returns the most recent fragment summary per document of
// a graph, oldest document first. Used for graph reports.
func (s *Store) ListSummaries(ctx context.Context, graphID string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT ON (document_id) summary
		 FROM fragments
		 WHERE graph_id = $1 AND summary <> ''
		 ORDER BY document_id, created_at DESC`,
		graphID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query summaries: %w", err)
	}
	defer rows.Close()

	var summaries []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// ListDocuments returns all documents recorded for a graph.
func (s *Store) ListDocuments(ctx context.Context, graphID string) ([]Document, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, graph_id, path, content_hash, created_at, updated_at
		 FROM documents WHERE graph_id = $1 ORDER BY created_at`,
		graphID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.GraphID, &d.Path, &d.ContentHash, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}
