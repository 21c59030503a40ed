package store

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
)

type match struct {
	index int
	score float32
}

// cosineSimilarity returns 0 for mismatched or zero-length vectors.
func cosineSimilarity(a, b []float32) float32 {
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
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// nearest ranks vectors by similarity to query, best first. Ties keep
// insertion order so results are stable across runs.
func nearest(query []float32, vectors [][]float32, k int, threshold float32) []match {
	matches := make([]match, 0, len(vectors))
	for i, v := range vectors {
		score := cosineSimilarity(query, v)
		if threshold > 0 && score < threshold {
			continue
		}
		matches = append(matches, match{index: i, score: score})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].score > matches[j].score
	})

	if k > 0 && k < len(matches) {
		matches = matches[:k]
	}
	return matches
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("invalid vector blob length %d", len(data))
	}
	v := make([]float32, len(data)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return v, nil
}
