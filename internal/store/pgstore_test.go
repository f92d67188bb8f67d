package store

import (
	"context"
	"os"
	"testing"

	"github.com/pgvector/pgvector-go"
)

// Needs a postgres with pgvector: PG_TEST_CONN="host=... sslmode=disable".
func TestPgStore_Search(t *testing.T) {
	conn := os.Getenv("PG_TEST_CONN")
	if conn == "" {
		t.Skip("PG_TEST_CONN not set")
	}
	s, err := NewPgStore(conn, 3)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	coll := "pgstore-test"
	insert := func(collection, doc, id, text string, v []float32) {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO chunks (collection, doc_name, chunk_id, text, embedding)
			VALUES ($1, $2, $3, $4, $5)
		`, collection, doc, id, text, pgvector.NewVector(v))
		if err != nil {
			t.Fatalf("insert %s: %v", id, err)
		}
	}
	defer s.db.ExecContext(ctx, `DELETE FROM chunks WHERE collection IN ($1, 'pgstore-other')`, coll)
	insert(coll, "a.pdf", "a", "first", []float32{1, 0, 0})
	insert(coll, "b.pdf", "b", "second", []float32{0, 1, 0})
	insert("pgstore-other", "c.pdf", "c", "other collection", []float32{1, 0, 0})

	res, err := s.Search(ctx, coll, []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(res) != 2 || res[0].SourceID != "a.pdf" || res[1].SourceID != "b.pdf" {
		t.Fatalf("unexpected result %+v", res)
	}
	if res[0].Score < 0.99 || res[0].Collection != coll {
		t.Errorf("unexpected top passage %+v", res[0])
	}
}
