package models

// RetrievalResult is one ranked hit from a vector query. It is never persisted.
type RetrievalResult struct {
	NodeID       string   `json:"node_id"`
	Labels       []string `json:"labels"`
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Significance string   `json:"significance"`
	Score        float64  `json:"score"`
}

// PrimaryLabel returns the first category label, or "Unknown" when there is none.
func (r *RetrievalResult) PrimaryLabel() string {
	if len(r.Labels) == 0 || r.Labels[0] == "" {
		return "Unknown"
	}
	return r.Labels[0]
}

// Source is a retrieval hit as reported back to the asker.
type Source struct {
	Name           string  `json:"name"`
	Type           string  `json:"type"`
	RelevanceScore float64 `json:"relevance_score"`
}

// AskRequest is the body of a question request.
type AskRequest struct {
	Question string `json:"question"`
}

// AskResponse is the answer with the sources it was grounded on.
type AskResponse struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
}

// SimilarRequest is the body of a raw vector search request.
type SimilarRequest struct {
	Vector []float32 `json:"vector"`
	Limit  int       `json:"limit"`
}

// RefreshResponse reports a started embedding refresh.
type RefreshResponse struct {
	Message        string `json:"message"`
	JobStarted     bool   `json:"job_started"`
	NodesToProcess int    `json:"nodes_to_process"`
	JobID          string `json:"job_id"`
}
