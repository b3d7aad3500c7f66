// Package serp talks to the web search provider and normalizes its answer
// into a SearchResponse.
package serp

import (
	"context"
	"encoding/json"
)

// Query is one search request to the provider.
type Query struct {
	// Q is sent verbatim, search operators included.
	Q        string
	Location string // omitted from the request when empty
	Start    int    // result offset, passed through unmodified
}

// OrganicResult is a non-sponsored search hit.
type OrganicResult struct {
	Title       string `json:"title"`
	Link        string `json:"link"`
	Snippet     string `json:"snippet"`
	TextContent string `json:"text_content,omitempty"`
}

// SearchResponse is the normalized provider answer. AnswerBox is passed
// through untouched and encodes as null when absent.
type SearchResponse struct {
	AnswerBox      json.RawMessage `json:"answer_box"`
	OrganicResults []OrganicResult `json:"organic_results"`
	// NextStart is the provider's offset for the next page, or -1.
	NextStart int `json:"-"`
}

// MarshalJSON keeps organic_results an array even when there are no hits.
func (r SearchResponse) MarshalJSON() ([]byte, error) {
	type plain SearchResponse
	if r.OrganicResults == nil {
		r.OrganicResults = []OrganicResult{}
	}
	return json.Marshal(plain(r))
}

// Provider abstracts the search engine backend.
type Provider interface {
	Search(ctx context.Context, q Query) (*SearchResponse, error)
}
