package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
)

// chunks are written by the ingestion side; tests insert rows directly
func insertChunk(t *testing.T, s *SQLiteStore, id, collection, doc, text string, v []float32) {
	t.Helper()
	emb, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	_, err = s.db.Exec(`INSERT INTO chunks (id, collection, doc_name, text, embedding) VALUES (?, ?, ?, ?, ?)`,
		id, collection, doc, text, emb)
	if err != nil {
		t.Fatalf("insert %s: %v", id, err)
	}
}

func TestSQLiteStore_SearchWithinCollection(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "knowledge.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	insertChunk(t, s, "1", "docs", "eiffel.pdf", "330 m tall", []float32{1, 0})
	insertChunk(t, s, "2", "docs", "louvre.pdf", "a museum", []float32{0, 1})
	insertChunk(t, s, "3", "docs", "near.pdf", "almost", []float32{0.9, 0.1})
	insertChunk(t, s, "4", "faq", "other.pdf", "other collection", []float32{1, 0})
	insertChunk(t, s, "5", "docs", "broken.pdf", "bad embedding", nil)
	s.db.Exec(`UPDATE chunks SET embedding = 'not json' WHERE id = '5'`)

	res, err := s.Search(ctx, "docs", []float32{1, 0}, 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(res) != 2 {
		t.Fatalf("expected 2 results, got %d", len(res))
	}
	if res[0].SourceID != "eiffel.pdf" || res[1].SourceID != "near.pdf" {
		t.Errorf("unexpected ranking: %+v", res)
	}
	for _, p := range res {
		if p.Collection != "docs" {
			t.Errorf("passage from wrong collection: %+v", p)
		}
	}
	if res[0].Score < 0.99 {
		t.Errorf("expected score ~1, got %f", res[0].Score)
	}

	empty, err := s.Search(ctx, "missing", []float32{1, 0}, 2)
	if err != nil || len(empty) != 0 {
		t.Errorf("unknown collection should be empty: %+v, %v", empty, err)
	}
}

func TestCosineSimilarity(t *testing.T) {
	if got := cosineSimilarity([]float32{1, 0}, []float32{1, 0}); got < 0.999 {
		t.Errorf("identical vectors: %f", got)
	}
	if got := cosineSimilarity([]float32{1, 0}, []float32{0, 1}); got != 0 {
		t.Errorf("orthogonal vectors: %f", got)
	}
	if got := cosineSimilarity([]float32{1}, []float32{1, 0}); got != 0 {
		t.Errorf("length mismatch: %f", got)
	}
}
