package api

import (
	"github.com/starford/pagetree/internal/exportservice"
	"github.com/starford/pagetree/internal/index"
)

// ExportRequest is the optional request body for triggering an export.
type ExportRequest struct {
	Force bool `json:"force" example:"false"`
}

// ExportResponse reports the outcome of a triggered export.
type ExportResponse struct {
	exportservice.Summary
	Groups  int    `json:"groups" example:"12"`
	Records int    `json:"records" example:"340"`
	Error   string `json:"error,omitempty"`
}

// GroupListResponse wraps the group listing.
type GroupListResponse struct {
	Groups []index.GroupRow `json:"groups" validate:"required"`
}

// GroupDetail is a group with one page of its records (aliased from the domain layer).
type GroupDetail = exportservice.GroupDetail

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []index.SearchResult `json:"results" validate:"required"`
}

// DuplicatesResponse lists pages exported into more than one group.
type DuplicatesResponse struct {
	Duplicates []index.DuplicatePage `json:"duplicates" validate:"required"`
}
