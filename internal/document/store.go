package document

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/quarry-search/quarry/internal/db"
)

// Store manages documents and their chunks.
type Store struct {
	db *db.DB
}

// NewStore creates a new document store.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// CreateWithChunks inserts a document and all of its chunks in one
// transaction, so a half-ingested document can never be observed.
func (s *Store) CreateWithChunks(ctx context.Context, doc Document, chunks []Chunk) (*Document, error) {
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	doc.IngestedAt = time.Now().UTC()

	metadata, err := json.Marshal(doc.Metadata)
	if err != nil {
		return nil, fmt.Errorf("encoding document metadata: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO documents (id, content_hash, title, raw_text, file_name, file_path, file_type, file_size, metadata, ingested_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.ContentHash, doc.Title, doc.RawText, doc.FileName, doc.FilePath, doc.FileType, doc.FileSize, string(metadata), doc.IngestedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting document: %w", err)
	}

	for i := range chunks {
		chunk := &chunks[i]
		if chunk.ID == "" {
			chunk.ID = uuid.New().String()
		}
		chunk.DocumentID = doc.ID

		chunkMeta, err := json.Marshal(chunk.Metadata)
		if err != nil {
			return nil, fmt.Errorf("encoding chunk metadata: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO chunks (id, document_id, chunk_index, content, chunk_type, metadata, start_char, end_char)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			chunk.ID, chunk.DocumentID, chunk.ChunkIndex, chunk.Content, chunk.ChunkType, string(chunkMeta), chunk.StartChar, chunk.EndChar,
		)
		if err != nil {
			return nil, fmt.Errorf("inserting chunk %d: %w", chunk.ChunkIndex, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing document: %w", err)
	}
	return &doc, nil
}

// FindByContentHash returns the document with the given hash, or nil.
// Used for deduplication before ingesting.
func (s *Store) FindByContentHash(ctx context.Context, hash string) (*Document, error) {
	row := s.db.QueryRowContext(ctx, selectDocQuery+` WHERE content_hash = ?`, hash)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return doc, err
}

// GetByID returns a document by ID, or nil when absent.
func (s *Store) GetByID(ctx context.Context, id string) (*Document, error) {
	row := s.db.QueryRowContext(ctx, selectDocQuery+` WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return doc, err
}

// List returns documents newest first, without raw text.
func (s *Store) List(ctx context.Context, limit, offset int) ([]Document, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, content_hash, title, file_name, file_path, file_type, file_size, metadata, ingested_at
		 FROM documents ORDER BY ingested_at DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var doc Document
		var metadata string
		if err := rows.Scan(&doc.ID, &doc.ContentHash, &doc.Title, &doc.FileName, &doc.FilePath, &doc.FileType, &doc.FileSize, &metadata, &doc.IngestedAt); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		if err := json.Unmarshal([]byte(metadata), &doc.Metadata); err != nil {
			return nil, fmt.Errorf("decoding document metadata: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// Delete removes a document. Chunks cascade; the FTS delete trigger
// keeps the lexical index consistent.
func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	return nil
}

// Count returns the total number of documents.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting documents: %w", err)
	}
	return n, nil
}

// GetChunks returns a document's chunks in order.
func (s *Store) GetChunks(ctx context.Context, documentID string) ([]Chunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document_id, chunk_index, content, chunk_type, metadata, start_char, end_char, entities_extracted
		 FROM chunks WHERE document_id = ? ORDER BY chunk_index ASC`, documentID)
	if err != nil {
		return nil, fmt.Errorf("selecting chunks: %w", err)
	}
	defer rows.Close()
	return collectChunks(rows)
}

// UnembeddedChunks returns up to limit chunks without an embedding,
// oldest first.
func (s *Store) UnembeddedChunks(ctx context.Context, limit int) ([]Chunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document_id, chunk_index, content, chunk_type, metadata, start_char, end_char, entities_extracted
		 FROM chunks WHERE embedding IS NULL ORDER BY created_at ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("selecting unembedded chunks: %w", err)
	}
	defer rows.Close()
	return collectChunks(rows)
}

// UnextractedChunks returns up to limit chunks pending entity
// extraction, oldest first.
func (s *Store) UnextractedChunks(ctx context.Context, limit int) ([]Chunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document_id, chunk_index, content, chunk_type, metadata, start_char, end_char, entities_extracted
		 FROM chunks WHERE entities_extracted = 0 ORDER BY created_at ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("selecting unextracted chunks: %w", err)
	}
	defer rows.Close()
	return collectChunks(rows)
}

// CountChunks returns total chunks and how many have embeddings.
func (s *Store) CountChunks(ctx context.Context) (total, embedded int, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(embedding) FROM chunks`).Scan(&total, &embedded)
	if err != nil {
		return 0, 0, fmt.Errorf("counting chunks: %w", err)
	}
	return total, embedded, nil
}

// SaveEmbedding stores a chunk's embedding vector.
func (s *Store) SaveEmbedding(ctx context.Context, chunkID string, vector []float32) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE chunks SET embedding = ? WHERE id = ?`,
		EncodeVector(vector), chunkID)
	if err != nil {
		return fmt.Errorf("saving embedding for chunk %s: %w", chunkID, err)
	}
	return nil
}

// MarkEntitiesExtracted flags chunks as processed by entity extraction.
func (s *Store) MarkEntitiesExtracted(ctx context.Context, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	placeholders := strings.Repeat("?,", len(chunkIDs))
	args := make([]any, len(chunkIDs))
	for i, id := range chunkIDs {
		args[i] = id
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE chunks SET entities_extracted = 1 WHERE id IN (`+placeholders[:len(placeholders)-1]+`)`,
		args...)
	if err != nil {
		return fmt.Errorf("marking chunks extracted: %w", err)
	}
	return nil
}

// EmbeddedChunks streams all chunks that have an embedding, invoking fn
// for each. Used to rebuild the vector index.
func (s *Store) EmbeddedChunks(ctx context.Context, fn func(chunk Chunk) error) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document_id, chunk_index, content, chunk_type, embedding
		 FROM chunks WHERE embedding IS NOT NULL`)
	if err != nil {
		return fmt.Errorf("selecting embedded chunks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var chunk Chunk
		var blob []byte
		if err := rows.Scan(&chunk.ID, &chunk.DocumentID, &chunk.ChunkIndex, &chunk.Content, &chunk.ChunkType, &blob); err != nil {
			return fmt.Errorf("scanning embedded chunk: %w", err)
		}
		chunk.Embedding = DecodeVector(blob)
		if err := fn(chunk); err != nil {
			return err
		}
	}
	return rows.Err()
}

// SearchLexical runs a BM25-ranked full-text query over chunk content.
// bm25() returns more-negative-is-better, so the sign is flipped to make
// scores positive and comparable by max-normalization.
func (s *Store) SearchLexical(ctx context.Context, query string, limit int) ([]LexicalHit, error) {
	match := ftsQuery(query)
	if match == "" {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT c.id, c.document_id, c.content, c.chunk_type, -bm25(chunks_fts) AS score
		 FROM chunks_fts
		 JOIN chunks c ON c.rowid = chunks_fts.rowid
		 WHERE chunks_fts MATCH ?
		 ORDER BY score DESC
		 LIMIT ?`, match, limit)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}
	defer rows.Close()

	var hits []LexicalHit
	for rows.Next() {
		var hit LexicalHit
		if err := rows.Scan(&hit.ChunkID, &hit.DocumentID, &hit.Content, &hit.ChunkType, &hit.Score); err != nil {
			return nil, fmt.Errorf("scanning lexical hit: %w", err)
		}
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

// ResolveDisplayNames maps document IDs to citation names in one query.
// file_name wins, then title, then the raw ID.
func (s *Store) ResolveDisplayNames(ctx context.Context, documentIDs []string) (map[string]string, error) {
	names := make(map[string]string, len(documentIDs))
	if len(documentIDs) == 0 {
		return names, nil
	}

	seen := make(map[string]bool, len(documentIDs))
	args := make([]any, 0, len(documentIDs))
	for _, id := range documentIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		args = append(args, id)
		names[id] = id
	}

	placeholders := strings.Repeat("?,", len(args))
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, file_name, title FROM documents WHERE id IN (`+placeholders[:len(placeholders)-1]+`)`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("resolving display names: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, fileName, title string
		if err := rows.Scan(&id, &fileName, &title); err != nil {
			return nil, fmt.Errorf("scanning display name: %w", err)
		}
		switch {
		case fileName != "":
			names[id] = fileName
		case title != "":
			names[id] = title
		}
	}
	return names, rows.Err()
}

// ftsQuery turns free text into an FTS5 MATCH expression. Each token is
// double-quoted so user input can never hit FTS5 query syntax (AND,
// NEAR, column filters).
func ftsQuery(query string) string {
	fields := strings.Fields(query)
	tokens := make([]string, 0, len(fields))
	for _, field := range fields {
		cleaned := strings.ReplaceAll(field, `"`, "")
		if cleaned == "" {
			continue
		}
		tokens = append(tokens, `"`+cleaned+`"`)
	}
	return strings.Join(tokens, " ")
}

// EncodeVector packs a float32 vector into a little-endian blob.
func EncodeVector(vector []float32) []byte {
	buf := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// DecodeVector unpacks a little-endian blob into a float32 vector.
func DecodeVector(blob []byte) []float32 {
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vector
}

const selectDocQuery = `SELECT id, content_hash, title, raw_text, file_name, file_path, file_type, file_size, metadata, ingested_at
	 FROM documents`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*Document, error) {
	var doc Document
	var metadata string
	err := row.Scan(&doc.ID, &doc.ContentHash, &doc.Title, &doc.RawText, &doc.FileName, &doc.FilePath, &doc.FileType, &doc.FileSize, &metadata, &doc.IngestedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning document: %w", err)
	}
	if err := json.Unmarshal([]byte(metadata), &doc.Metadata); err != nil {
		return nil, fmt.Errorf("decoding document metadata: %w", err)
	}
	return &doc, nil
}

func collectChunks(rows *sql.Rows) ([]Chunk, error) {
	var chunks []Chunk
	for rows.Next() {
		var chunk Chunk
		var metadata string
		if err := rows.Scan(&chunk.ID, &chunk.DocumentID, &chunk.ChunkIndex, &chunk.Content, &chunk.ChunkType, &metadata, &chunk.StartChar, &chunk.EndChar, &chunk.EntitiesExtracted); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		if err := json.Unmarshal([]byte(metadata), &chunk.Metadata); err != nil {
			return nil, fmt.Errorf("decoding chunk metadata: %w", err)
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}
