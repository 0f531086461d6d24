// Package search finds rows of a backend's titled collections by name.
package search

import "context"

// Result is a single search hit returned to the caller.
type Result struct {
	Collection string `json:"collection"`
	ID         any    `json:"id"`
	Title      string `json:"title"`
	Snippet    string `json:"snippet,omitempty"`
}

// Query describes a search request.
type Query struct {
	Text       string
	Collection string // empty = all titled collections
	Limit      int
	Offset     int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Success bool     `json:"success"`
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a name search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// Record is the data we index for one row.
type Record struct {
	UID        string `json:"uid"`
	Collection string `json:"collection"`
	ID         any    `json:"id"`
	Name       string `json:"name"`
}

const defaultLimit = 20
