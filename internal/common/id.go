package common

import (
	"github.com/google/uuid"
)

// NewWorkflowID generates a unique workflow ID with the "wf_" prefix
func NewWorkflowID() string {
	return "wf_" + uuid.New().String()
}

// NewJobID generates a unique job ID with the "job_" prefix
func NewJobID() string {
	return "job_" + uuid.New().String()
}

// NewFileID generates a unique file ID with the "file_" prefix
func NewFileID() string {
	return "file_" + uuid.New().String()
}
