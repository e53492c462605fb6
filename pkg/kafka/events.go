package kafka

import "time"

// IndexCompleteEvent announces that a field index has been published to blob
// storage. Searchers reload their index context when they receive it.
type IndexCompleteEvent struct {
	RunID       string    `json:"run_id"`
	Field       string    `json:"field"`
	IndexPath   string    `json:"index_path"`
	NumDocs     int       `json:"num_docs"`
	NumTerms    int       `json:"num_terms"`
	Blocks      int       `json:"blocks"`
	CompletedAt time.Time `json:"completed_at"`
}
