package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/katakuxiko/assistgw/internal/model"
	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

// PgStore - векторное хранилище фрагментов на pgvector, разбитое по коллекциям
type PgStore struct {
	db *sql.DB
}

func NewPgStore(conn string, dim int) (*PgStore, error) {
	db, err := sql.Open("postgres", conn)
	if err != nil {
		return nil, err
	}
	if err := ensureSchema(db, dim); err != nil {
		db.Close()
		return nil, fmt.Errorf("pg schema: %w", err)
	}
	return &PgStore{db: db}, nil
}

// Search возвращает k ближайших фрагментов коллекции по косинусному расстоянию
func (s *PgStore) Search(ctx context.Context, collection string, q []float32, k int) ([]model.Passage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT doc_name, text, 1 - (embedding <=> $1::vector) AS score
		FROM chunks
		WHERE collection = $2
		ORDER BY embedding <=> $1::vector
		LIMIT $3
	`, pgvector.NewVector(q), collection, k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []model.Passage
	for rows.Next() {
		p := model.Passage{Collection: collection}
		var doc sql.NullString
		if err := rows.Scan(&doc, &p.Text, &p.Score); err != nil {
			return nil, err
		}
		p.SourceID = doc.String
		res = append(res, p)
	}
	return res, rows.Err()
}

func (s *PgStore) Close() error {
	return s.db.Close()
}
