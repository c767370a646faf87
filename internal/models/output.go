package models

import "time"

// OutputFile describes one group's CSV file in the output directory.
type OutputFile struct {
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}
