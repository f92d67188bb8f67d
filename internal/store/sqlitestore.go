package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/katakuxiko/assistgw/internal/model"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore is an embedded vector store: embeddings are kept as JSON and
// ranked by brute-force cosine similarity within one collection.
type SQLiteStore struct {
	mu sync.RWMutex
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS chunks (
		id TEXT PRIMARY KEY,
		collection TEXT NOT NULL,
		doc_name TEXT,
		text TEXT NOT NULL,
		embedding BLOB NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_collection ON chunks(collection);
	`)
	return err
}

// Search ranks every chunk of collection against q and returns the top k.
func (s *SQLiteStore) Search(ctx context.Context, collection string, q []float32, k int) ([]model.Passage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT doc_name, text, embedding FROM chunks WHERE collection = ?`, collection)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var results []model.Passage
	for rows.Next() {
		var doc sql.NullString
		var text string
		var embeddingJSON []byte
		if err := rows.Scan(&doc, &text, &embeddingJSON); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		var emb []float32
		if err := json.Unmarshal(embeddingJSON, &emb); err != nil {
			continue // битые embeddings пропускаем
		}
		results = append(results, model.Passage{
			Text:       text,
			SourceID:   doc.String,
			Collection: collection,
			Score:      cosineSimilarity(q, emb),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if k >= 0 && len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
