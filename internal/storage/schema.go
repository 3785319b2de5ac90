package storage

import (
	"context"
	"fmt"
)

// SchemaStatements returns the DDL for the engine's tables, in
// execution order. The vector column width is fixed at migration time
// and must match the configured embedding dimensionality.
func SchemaStatements(dimensions int) []string {
	return []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,

		`CREATE TABLE IF NOT EXISTS documents (
			id uuid PRIMARY KEY,
			owner_id text NOT NULL,
			title text NOT NULL DEFAULT '',
			source_name text NOT NULL DEFAULT '',
			mime_type text NOT NULL DEFAULT '',
			size_bytes bigint NOT NULL DEFAULT 0,
			page_count integer,
			word_count integer,
			language text NOT NULL DEFAULT '',
			tags jsonb,
			status text NOT NULL,
			failure_reason text NOT NULL DEFAULT '',
			chunk_count integer NOT NULL DEFAULT 0,
			created_at timestamptz NOT NULL,
			processed_at timestamptz
		)`,

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS document_chunks (
			id uuid PRIMARY KEY,
			document_id uuid NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			owner_id text NOT NULL,
			ordinal integer NOT NULL,
			content text NOT NULL,
			token_count integer NOT NULL DEFAULT 0,
			page_estimate integer,
			embedding vector(%d),
			created_at timestamptz NOT NULL,
			UNIQUE (document_id, ordinal)
		)`, dimensions),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS memories (
			id uuid PRIMARY KEY,
			owner_id text NOT NULL,
			content text NOT NULL,
			type text NOT NULL,
			category text NOT NULL DEFAULT '',
			tags jsonb,
			context text NOT NULL DEFAULT '',
			source_conversation_id text NOT NULL DEFAULT '',
			importance double precision NOT NULL DEFAULT 0,
			embedding vector(%d),
			access_count integer NOT NULL DEFAULT 0,
			last_accessed_at timestamptz,
			created_at timestamptz NOT NULL,
			updated_at timestamptz NOT NULL
		)`, dimensions),

		`CREATE INDEX IF NOT EXISTS documents_owner_created_idx
			ON documents (owner_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS document_chunks_document_idx
			ON document_chunks (document_id)`,
		`CREATE INDEX IF NOT EXISTS document_chunks_owner_idx
			ON document_chunks (owner_id)`,
		`CREATE INDEX IF NOT EXISTS document_chunks_embedding_idx
			ON document_chunks USING hnsw (embedding vector_cosine_ops)`,
		`CREATE INDEX IF NOT EXISTS memories_owner_created_idx
			ON memories (owner_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS memories_embedding_idx
			ON memories USING hnsw (embedding vector_cosine_ops)`,
	}
}

// Migrate applies the schema. Statements are idempotent, so re-running
// against an up-to-date database is a no-op.
func (s *Store) Migrate(ctx context.Context, dimensions int) error {
	for _, stmt := range SchemaStatements(dimensions) {
		if err := s.db.WithContext(ctx).Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to execute migration: %w", err)
		}
	}
	return nil
}

// HasVectorExtension reports whether pgvector is installed.
func (s *Store) HasVectorExtension(ctx context.Context) (bool, error) {
	var exists bool
	err := s.db.WithContext(ctx).
		Raw("SELECT EXISTS(SELECT 1 FROM pg_extension WHERE extname = 'vector')").
		Scan(&exists).Error
	if err != nil {
		return false, fmt.Errorf("failed to check pgvector extension: %w", err)
	}
	return exists, nil
}
