package main

import (
	"sort"
	"sync"

	"github.com/disgoorg/snowflake/v2"
)

// ============================================================================
// Similarity Index
// ============================================================================

const (
	// DuplicateDistanceThreshold is the Hamming distance below which two
	// fingerprints count as the same image.
	DuplicateDistanceThreshold = 9

	// DuplicateMatchLimit caps how many near matches a query reports.
	DuplicateMatchLimit = 5
)

type DuplicateMatch struct {
	ID       snowflake.ID
	Distance int
}

// SimilarityIndex holds the fingerprint of every registered emoji and
// answers nearest-neighbor queries with a linear scan.
type SimilarityIndex struct {
	mu           sync.RWMutex
	fingerprints map[snowflake.ID]Fingerprint
}

func NewSimilarityIndex() *SimilarityIndex {
	return &SimilarityIndex{fingerprints: make(map[snowflake.ID]Fingerprint)}
}

func (idx *SimilarityIndex) Insert(id snowflake.ID, fp Fingerprint) {
	if fp.IsZero() {
		return
	}
	idx.mu.Lock()
	idx.fingerprints[id] = fp
	idx.mu.Unlock()
}

func (idx *SimilarityIndex) Remove(id snowflake.ID) {
	idx.mu.Lock()
	delete(idx.fingerprints, id)
	idx.mu.Unlock()
}

func (idx *SimilarityIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.fingerprints)
}

// Query returns the emojis whose fingerprint is within the duplicate
// threshold of fp, closest first, capped at DuplicateMatchLimit.
func (idx *SimilarityIndex) Query(fp Fingerprint) []DuplicateMatch {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var matches []DuplicateMatch
	for id, known := range idx.fingerprints {
		dist, err := Distance(fp, known)
		if err != nil {
			continue
		}
		if dist < DuplicateDistanceThreshold {
			matches = append(matches, DuplicateMatch{ID: id, Distance: dist})
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Distance != matches[j].Distance {
			return matches[i].Distance < matches[j].Distance
		}
		return matches[i].ID < matches[j].ID
	})

	if len(matches) > DuplicateMatchLimit {
		matches = matches[:DuplicateMatchLimit]
	}
	return matches
}
