package relstore

import (
	"database/sql"
	"encoding/binary"
	"math"

	"github.com/foldhq/fold/internal/foldxerr"
)

// EmbeddingCacheStore persists the content-hash-keyed embedding cache
// (spec §4.5) in SQLite instead of memory, so it survives process
// restarts. Implements the embedder.Cache interface.
type EmbeddingCacheStore struct {
	db    *DB
	model string
}

func NewEmbeddingCacheStore(db *DB, model string) *EmbeddingCacheStore {
	return &EmbeddingCacheStore{db: db, model: model}
}

func (s *EmbeddingCacheStore) Get(hash string) ([]float32, bool, error) {
	var blob []byte
	var dim int
	err := s.db.QueryRow(`SELECT embedding, dimension FROM embedding_cache WHERE content_hash = ?`, hash).Scan(&blob, &dim)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, foldxerr.Wrap(foldxerr.Storage, err, "get cached embedding")
	}
	return decodeFloat32s(blob, dim), true, nil
}

func (s *EmbeddingCacheStore) Put(hash string, vector []float32) error {
	_, err := s.db.Exec(`
		INSERT INTO embedding_cache (content_hash, embedding, dimension, model, updated_at)
		VALUES (?, ?, ?, ?, strftime('%s','now'))
		ON CONFLICT(content_hash) DO UPDATE SET
			embedding = excluded.embedding,
			dimension = excluded.dimension,
			model = excluded.model,
			updated_at = excluded.updated_at
	`, hash, encodeFloat32s(vector), len(vector), s.model)
	if err != nil {
		return foldxerr.Wrap(foldxerr.Storage, err, "put cached embedding")
	}
	return nil
}

func encodeFloat32s(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeFloat32s(buf []byte, dim int) []float32 {
	out := make([]float32, dim)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return out
}
