package service

import (
	"context"
	"errors"
	"strings"

	"lifevault/internal/storage"
)

// ErrSearchDisabled is returned when the binary was built without the
// sqlite_fts5 tag and no full-text index exists.
var ErrSearchDisabled = errors.New("full-text search is not available in this build")

// SearchService wraps the FTS5 index over entry summaries and raw text.
type SearchService struct {
	search *storage.SearchRepo
}

// NewSearchService creates a new SearchService. A nil repo disables search.
func NewSearchService(search *storage.SearchRepo) *SearchService {
	return &SearchService{search: search}
}

// SearchResponse is one query's hits and type facets.
type SearchResponse struct {
	Results []*storage.SearchResult `json:"results"`
	Facets  map[string]int          `json:"facets"`
}

// Search runs a full-text query over indexed entries.
func (s *SearchService) Search(ctx context.Context, query string, filter storage.SearchFilter) (*SearchResponse, error) {
	if s.search == nil {
		return nil, ErrSearchDisabled
	}
	if strings.TrimSpace(query) == "" {
		return nil, &ValidationError{Field: "q", Message: "cannot be empty"}
	}

	results, err := s.search.Search(ctx, query, filter)
	if err != nil {
		return nil, err
	}
	facets, err := s.search.TypeFacets(ctx, query)
	if err != nil {
		return nil, err
	}
	return &SearchResponse{Results: results, Facets: facets}, nil
}
