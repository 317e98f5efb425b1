package domain

// Hit is a single similarity search result. Score is higher-is-closer and
// non-increasing within one result list. Metadata is nil on the text search
// path (the join is skipped there) and for hits whose metadata row vanished.
type Hit struct {
	ID       string
	Score    float64
	Metadata map[string]any
}

// DefaultSearchLimit is the candidate count requested from the vector store
// when a caller does not specify one.
const DefaultSearchLimit = 18
