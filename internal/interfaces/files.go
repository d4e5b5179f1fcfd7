package interfaces

// FileLocator resolves uploaded inputs and per-job output directories on
// disk. The executor depends on this rather than the full file service.
type FileLocator interface {
	// InputPath returns the blob path of an uploaded file.
	InputPath(fileID string) (string, error)
	// ResultsDir returns the job's results directory, creating it if needed.
	ResultsDir(jobID string) (string, error)
}
