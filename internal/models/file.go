package models

import (
	"time"
)

// FileRecord is the metadata index entry for an uploaded input file. The
// blob itself lives at Path under the uploads directory.
type FileRecord struct {
	ID          string    `json:"file_id" badgerhold:"key"`
	TenantID    string    `json:"tenant_id"`
	Filename    string    `json:"filename"`
	Ext         string    `json:"ext"`
	Path        string    `json:"path"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"created_at"`
}
