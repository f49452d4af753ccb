package utils

import (
	"fmt"
	"math"
)

// CosineSimilarity returns the cosine of the angle between two embedding
// vectors, in [-1, 1]. A zero vector scores 0 against everything.
func CosineSimilarity(vec1, vec2 []float32) (float32, error) {
	if len(vec1) == 0 || len(vec2) == 0 {
		return 0, fmt.Errorf("vectors cannot be empty")
	}
	if len(vec1) != len(vec2) {
		return 0, fmt.Errorf("vectors must have the same dimension (%d != %d)", len(vec1), len(vec2))
	}

	var dot, sq1, sq2 float32
	for i := range vec1 {
		dot += vec1[i] * vec2[i]
		sq1 += vec1[i] * vec1[i]
		sq2 += vec2[i] * vec2[i]
	}

	if sq1 == 0 || sq2 == 0 {
		return 0, nil
	}
	return dot / (float32(math.Sqrt(float64(sq1))) * float32(math.Sqrt(float64(sq2)))), nil
}
