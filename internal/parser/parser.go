// Package parser decodes a page export document into the page tree.
package parser

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/starford/pagetree/internal/models"
)

// Format is the encoding of an export document.
type Format int

const (
	FormatJSON Format = iota
	FormatYAML
)

// ErrNoPages is returned when a document has neither page.results nor results.
var ErrNoPages = errors.New("parser: document has no page list")

// Result holds a parsed document and the raw bytes it came from.
type Result struct {
	Document *models.Document
	Raw      []byte
}

// FormatFor picks the format from a file name; anything that is not
// .yaml or .yml is treated as JSON.
func FormatFor(name string) Format {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		return FormatYAML
	}
	return FormatJSON
}

// Load reads and parses the export document at path.
func Load(path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("parser: read %s: %w", path, err)
	}
	doc, err := Parse(data, FormatFor(path))
	if err != nil {
		return nil, err
	}
	return &Result{Document: doc, Raw: data}, nil
}

// Parse decodes data into a Document. The whole tree is decoded up front.
func Parse(data []byte, format Format) (*models.Document, error) {
	var doc models.Document
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parser: decode yaml: %w", err)
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("parser: decode json: %w", err)
		}
	}
	if doc.Page == nil && doc.Results == nil {
		return nil, ErrNoPages
	}
	return &doc, nil
}
