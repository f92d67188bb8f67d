package store

import (
	"database/sql"
	"fmt"
)

const defaultCollection = "default"

// ensureSchema создаёт расширение, таблицу и индексы для pgvector.
// Старые таблицы без collection получают колонку со значением по умолчанию.
func ensureSchema(db *sql.DB, dim int) error {
	if dim <= 0 {
		dim = 768
	}
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS chunks (
			id SERIAL PRIMARY KEY,
			collection TEXT NOT NULL DEFAULT '%s',
			doc_name TEXT,
			chunk_id TEXT,
			text TEXT,
			embedding vector(%d)
		)`, defaultCollection, dim),
		fmt.Sprintf(`ALTER TABLE chunks ADD COLUMN IF NOT EXISTS collection TEXT NOT NULL DEFAULT '%s'`, defaultCollection),
		`CREATE INDEX IF NOT EXISTS chunks_collection_idx ON chunks (collection)`,
		`DO $$
		BEGIN
			IF NOT EXISTS (
				SELECT 1 FROM pg_class c
				JOIN pg_namespace n ON n.oid=c.relnamespace
				WHERE c.relname='chunks_embedding_ivfflat_idx'
			) THEN
				EXECUTE 'CREATE INDEX chunks_embedding_ivfflat_idx ON chunks USING ivfflat (embedding vector_cosine_ops) WITH (lists=100)';
			END IF;
		END $$;`,
	}

	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}

	// ANALYZE для корректной работы ivfflat
	_, _ = db.Exec(`ANALYZE chunks`)
	return nil
}
