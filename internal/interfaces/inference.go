package interfaces

import (
	"image"
)

// InferenceFn maps one tile to a binary mask of identical bounds. White
// (255) marks positive pixels. Implementations must be pure with respect to
// shared state: the executor calls them from many jobs at once.
type InferenceFn func(tile image.Image) (*image.Gray, error)

// InferenceRegistry resolves a job type to the inference function that
// should run for it.
type InferenceRegistry interface {
	Resolve(jobType string) (InferenceFn, error)
}
