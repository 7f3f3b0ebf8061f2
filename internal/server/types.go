package server

import "github.com/roach88/tapflow/internal/store"

// EnqueueRequest is the body of POST /v1/enqueue.
type EnqueueRequest struct {
	// Node is the workflow node name.
	Node string `json:"node" binding:"required"`

	// Inputs are the values handed to the node as one work item.
	Inputs []any `json:"inputs"`
}

// EnqueueResponse acknowledges queued work.
type EnqueueResponse struct {
	Node       string `json:"node"`
	QueueDepth int    `json:"queue_depth"`
}

// ResultsResponse is the body of GET /v1/results.
type ResultsResponse struct {
	Cycle   string           `json:"cycle"`
	Results map[string][]any `json:"results"`
}

// TrailResponse is the body of GET /v1/records/:id/trail.
type TrailResponse struct {
	ID    string               `json:"id"`
	Trail []store.StoredRecord `json:"trail"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the error message.
	Error string `json:"error"`

	// Code is the error code (optional).
	Code string `json:"code,omitempty"`
}
