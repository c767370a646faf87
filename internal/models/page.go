// Package models defines the domain types for pagetree.
package models

import (
	"encoding/json"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Document is the root of a page export.
type Document struct {
	Page    *PageList   `json:"page,omitempty" yaml:"page,omitempty"`
	Results []*PageNode `json:"results,omitempty" yaml:"results,omitempty"`
}

// Roots returns the ordered top-level pages.
func (d *Document) Roots() []*PageNode {
	if d == nil {
		return nil
	}
	if d.Page != nil {
		return d.Page.Results
	}
	return d.Results
}

// PageList is the {results: [...]} envelope used at every level of the export.
type PageList struct {
	Results []*PageNode `json:"results" yaml:"results"`
}

// Children wraps a page's child list. Both the Confluence shape
// (children.page.results) and the flat shape (children.results) are accepted.
type Children struct {
	Page    *PageList   `json:"page,omitempty" yaml:"page,omitempty"`
	Results []*PageNode `json:"results,omitempty" yaml:"results,omitempty"`
}

// Links holds page locators.
type Links struct {
	WebUI string `json:"webui,omitempty" yaml:"webui,omitempty"`
}

// PageID is an opaque page identifier. Exports carry it either as a JSON
// string or as a bare number; both decode to the same text.
type PageID string

// UnmarshalJSON accepts a string or a number and keeps a number's literal
// text. Any other JSON value leaves the id empty, so the page is reported as
// malformed instead of failing the whole document.
func (id *PageID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*id = PageID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*id = PageID(n.String())
		return nil
	}
	*id = ""
	return nil
}

// PageNode is one page of the source tree.
type PageNode struct {
	ID       PageID    `json:"id" yaml:"id"`
	Title    string    `json:"title" yaml:"title"`
	Links    *Links    `json:"_links,omitempty" yaml:"_links,omitempty"`
	Children *Children `json:"children,omitempty" yaml:"children,omitempty"`
}

// Locator returns the page's relative or absolute locator, or "".
func (p *PageNode) Locator() string {
	if p == nil || p.Links == nil {
		return ""
	}
	return p.Links.WebUI
}

// ChildPages returns the page's children. Absent and empty are equivalent.
func (p *PageNode) ChildPages() []*PageNode {
	if p == nil || p.Children == nil {
		return nil
	}
	if p.Children.Page != nil {
		return p.Children.Page.Results
	}
	return p.Children.Results
}

// Validate checks the fields every page must carry.
func (p *PageNode) Validate() error {
	return validation.ValidateStruct(p,
		validation.Field(&p.ID, validation.Required),
		validation.Field(&p.Title, validation.Required),
	)
}

// TopLevelGroup is one output group, formed from a page directly under the document root.
type TopLevelGroup struct {
	Key   string `json:"key"`
	ID    string `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

// FlatRecord is one descendant row. Depth and ParentID feed the export index
// and are never written to the CSV output.
type FlatRecord struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	URL      string `json:"url"`
	Depth    int    `json:"depth"`
	ParentID string `json:"parent_id,omitempty"`
}
