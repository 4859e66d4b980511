package recognition

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"time"
)

// KnownObjectEntity maps to the 'known_objects' table. Attribute uniqueness is
// enforced by the store, since MySQL's default collation would fold case.
type KnownObjectEntity struct {
	ID        string    `gorm:"primaryKey;size:36"`
	Attribute string    `gorm:"size:255;not null;index"`
	CreatedAt time.Time `gorm:"index"`
}

// TableName ensures GORM uses the expected table name.
func (KnownObjectEntity) TableName() string {
	return "known_objects"
}

// EmbeddingEntity maps to the 'embeddings' table.
type EmbeddingEntity struct {
	ID        uint      `gorm:"primaryKey"`
	ObjectID  string    `gorm:"size:36;not null;index:idx_embeddings_object_hash,priority:1"`
	Hash      string    `gorm:"size:64;not null;index:idx_embeddings_object_hash,priority:2"`
	Dim       int       `gorm:"not null"`
	Vector    []byte    `gorm:"not null"`
	CreatedAt time.Time
}

// TableName ensures GORM uses the expected table name.
func (EmbeddingEntity) TableName() string {
	return "embeddings"
}

// encodeEmbedding packs a vector as little-endian float32 values.
func encodeEmbedding(e Embedding) []byte {
	buf := make([]byte, 4*len(e))
	for i, v := range e {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

func decodeEmbedding(data []byte) (Embedding, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("embedding blob length %d is not a multiple of 4", len(data))
	}
	e := make(Embedding, len(data)/4)
	for i := range e {
		e[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
	}
	return e, nil
}

// hashEmbedding identifies exact duplicate vectors.
func hashEmbedding(packed []byte) string {
	sum := sha256.Sum256(packed)
	return hex.EncodeToString(sum[:])
}
