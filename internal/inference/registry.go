package inference

import (
	"sync"

	"github.com/YohanV1/TissueLab-Scheduler/internal/interfaces"
	"github.com/YohanV1/TissueLab-Scheduler/internal/models"
)

// Registry maps job types to inference functions. SEGMENT_CELLS uses a
// registered InstanSeg runner when the feature is enabled and one has been
// plugged in; otherwise it falls back to the deterministic mean-luminance
// threshold. TISSUE_MASK always uses the Otsu threshold.
type Registry struct {
	enableInstanSeg bool

	mu        sync.RWMutex
	instanSeg interfaces.InferenceFn
}

// NewRegistry creates a registry with the built-in functions.
func NewRegistry(enableInstanSeg bool) *Registry {
	return &Registry{enableInstanSeg: enableInstanSeg}
}

// RegisterInstanSeg plugs in a model-backed runner for SEGMENT_CELLS. It is
// only consulted when the feature flag is on.
func (r *Registry) RegisterInstanSeg(fn interfaces.InferenceFn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.instanSeg = fn
}

// Resolve returns the inference function for a job type.
func (r *Registry) Resolve(jobType string) (interfaces.InferenceFn, error) {
	switch models.JobType(jobType) {
	case models.JobTypeSegmentCells:
		if r.enableInstanSeg {
			r.mu.RLock()
			fn := r.instanSeg
			r.mu.RUnlock()
			if fn != nil {
				return fn, nil
			}
		}
		return MeanThreshold, nil
	case models.JobTypeTissueMask:
		return OtsuThreshold, nil
	default:
		return nil, models.NewError(models.KindInvalid, "no inference for job type %q", jobType)
	}
}
