package domain

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"time"
)

// Embedding is the dense vector representation of exactly one chunk.
type Embedding struct {
	// ID is the unique identifier for this embedding record.
	ID string

	// ChunkID is the RetrievalID string of the embedded chunk.
	ChunkID string

	// ModelName is the embedding model that produced the vector.
	ModelName string

	// ModelVersion is the provider's model revision, if known.
	ModelVersion string

	// Dimension is the vector length.
	Dimension int

	// Vector is the embedding itself.
	Vector []float32

	// VectorHash is the hex SHA-256 of the little-endian vector bytes.
	VectorHash string

	// IndexPosition is the chunk's position in the vector index at insert time.
	IndexPosition int

	// CreatedAt is when the embedding was stored.
	CreatedAt time.Time
}

// Validate checks the vector against the expected dimension.
func (e *Embedding) Validate(expectedDim int) error {
	if e.ChunkID == "" {
		return fmt.Errorf("%w: embedding chunk id is required", ErrInvalidInput)
	}
	if e.ModelName == "" {
		return fmt.Errorf("%w: embedding model name is required", ErrInvalidInput)
	}
	if len(e.Vector) != expectedDim {
		return fmt.Errorf("%w: vector has %d dimensions, want %d", ErrDimensionMismatch, len(e.Vector), expectedDim)
	}
	if e.Dimension != 0 && e.Dimension != len(e.Vector) {
		return fmt.Errorf("%w: declared dimension %d, vector has %d", ErrDimensionMismatch, e.Dimension, len(e.Vector))
	}
	return nil
}

// VectorHash returns the hex SHA-256 of v in little-endian float32 form.
func VectorHash(v []float32) string {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	sum := sha256.Sum256(buf)
	return hex.EncodeToString(sum[:])
}

// IsZeroVector reports whether v is empty or has no non-zero component.
func IsZeroVector(v []float32) bool {
	for _, f := range v {
		if f != 0 {
			return false
		}
	}
	return true
}

// Cosine returns the cosine similarity of a and b.
// It returns 0 when either vector has zero norm or the lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Normalize returns a unit-length copy of v. A zero vector is returned as a zero copy.
func Normalize(v []float32) []float32 {
	out := make([]float32, len(v))
	var norm float64
	for _, f := range v {
		norm += float64(f) * float64(f)
	}
	if norm == 0 {
		return out
	}
	norm = math.Sqrt(norm)
	for i, f := range v {
		out[i] = float32(float64(f) / norm)
	}
	return out
}
