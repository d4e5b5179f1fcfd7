package executor

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/YohanV1/TissueLab-Scheduler/internal/common"
	"github.com/YohanV1/TissueLab-Scheduler/internal/interfaces"
	"github.com/YohanV1/TissueLab-Scheduler/internal/models"
	"github.com/YohanV1/TissueLab-Scheduler/internal/store"
)

// Executor runs admitted jobs: decode the slide, tile it, run the job's
// inference per tile, and assemble mask, preview, manifest and zip
// artifacts. Execute owns the terminal transition; the scheduler only sees
// the call return.
type Executor struct {
	st       *store.Store
	files    interfaces.FileLocator
	registry interfaces.InferenceRegistry
	log      arbor.ILogger

	tileSize      int
	tileOverlap   int
	previewMaxDim int
}

// New creates an executor with the given tiling geometry.
func New(st *store.Store, files interfaces.FileLocator, registry interfaces.InferenceRegistry, cfg common.ExecutorConfig) *Executor {
	return &Executor{
		st:            st,
		files:         files,
		registry:      registry,
		log:           common.GetLogger(),
		tileSize:      cfg.TileSize,
		tileOverlap:   cfg.TileOverlap,
		previewMaxDim: cfg.PreviewMaxDim,
	}
}

// Execute drives one RUNNING job to SUCCEEDED or FAILED. A failure leaves
// whatever artifacts were already written but never a manifest, so the
// manifest's presence is the completion signal on disk.
func (e *Executor) Execute(ctx context.Context, job models.Job) {
	started := time.Now().UTC()
	manifest, err := e.run(ctx, job, started)
	if err != nil {
		e.log.Warn().
			Str("job_id", job.ID).
			Str("job_type", string(job.Type)).
			Err(err).
			Msg("Job failed")
		_, terr := e.st.Transition(job.ID, []models.JobState{models.JobRunning}, models.JobFailed, func(j *models.Job) {
			j.Error = err.Error()
		})
		if terr != nil {
			e.log.Error().Str("job_id", job.ID).Err(terr).Msg("Failed to record job failure")
		}
		return
	}

	_, terr := e.st.Transition(job.ID, []models.JobState{models.JobRunning}, models.JobSucceeded, func(j *models.Job) {
		j.Manifest = manifest
		j.Progress = 1
	})
	if terr != nil {
		e.log.Error().Str("job_id", job.ID).Err(terr).Msg("Failed to record job success")
		return
	}

	e.log.Info().
		Str("job_id", job.ID).
		Str("job_type", string(job.Type)).
		Int("tiles", manifest.TilesTotal).
		Str("duration", time.Since(started).String()).
		Msg("Job succeeded")
}

func (e *Executor) run(ctx context.Context, job models.Job, started time.Time) (*models.Manifest, error) {
	fn, err := e.registry.Resolve(string(job.Type))
	if err != nil {
		return nil, err
	}
	inputPath, err := e.files.InputPath(job.FileID)
	if err != nil {
		return nil, err
	}
	slide, err := openSlide(inputPath)
	if err != nil {
		return nil, err
	}
	resultsDir, err := e.files.ResultsDir(job.ID)
	if err != nil {
		return nil, err
	}

	tiles := Grid(slide.Bounds(), e.tileSize, e.tileOverlap)
	if len(tiles) == 0 {
		return nil, models.NewError(models.KindInvalid, "slide has no pixels")
	}
	if _, err := e.st.UpdateProgress(job.ID, 0, len(tiles)); err != nil {
		return nil, err
	}

	preview := newPreviewBuilder(slide.Bounds(), e.previewMaxDim)
	var artifacts []models.Artifact

	for i, tile := range tiles {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("execution interrupted at tile %d/%d: %w", i, len(tiles), err)
		}

		mask, err := fn(cropTile(slide, tile.Read))
		if err != nil {
			return nil, fmt.Errorf("tile (%d,%d): %w", tile.Row, tile.Col, err)
		}
		if mask.Bounds().Dx() != tile.Read.Dx() || mask.Bounds().Dy() != tile.Read.Dy() {
			return nil, models.NewError(models.KindInternal,
				"tile (%d,%d): mask size %v does not match tile size %dx%d",
				tile.Row, tile.Col, mask.Bounds().Size(), tile.Read.Dx(), tile.Read.Dy())
		}

		core := cropOverlap(mask, tile)
		name := fmt.Sprintf("mask_%d_%d.png", tile.Row, tile.Col)
		size, err := writePNG(filepath.Join(resultsDir, name), core)
		if err != nil {
			return nil, fmt.Errorf("write %s: %w", name, err)
		}
		artifacts = append(artifacts, models.Artifact{Path: name, Size: size})
		preview.addMask(core, tile.Core)

		if _, err := e.st.UpdateProgress(job.ID, i+1, len(tiles)); err != nil {
			return nil, err
		}
	}

	img := preview.compose(slide, overlayColor(job.Type))
	size, err := writePNG(filepath.Join(resultsDir, "preview.png"), img)
	if err != nil {
		return nil, fmt.Errorf("write preview.png: %w", err)
	}
	artifacts = append(artifacts, models.Artifact{Path: "preview.png", Size: size})

	manifest := &models.Manifest{
		JobID:       job.ID,
		WorkflowID:  job.WorkflowID,
		TenantID:    job.TenantID,
		JobType:     job.Type,
		Branch:      job.Branch,
		TileSize:    e.tileSize,
		TileOverlap: e.tileOverlap,
		TilesTotal:  len(tiles),
		Artifacts:   artifacts,
		StartedAt:   started,
		FinishedAt:  time.Now().UTC(),
	}
	if _, err := writeJSON(filepath.Join(resultsDir, "manifest.json"), manifest); err != nil {
		return nil, fmt.Errorf("write manifest.json: %w", err)
	}

	names := make([]string, 0, len(artifacts)+1)
	for _, a := range artifacts {
		names = append(names, a.Path)
	}
	names = append(names, "manifest.json")
	if err := zipArtifacts(resultsDir, names); err != nil {
		return nil, fmt.Errorf("bundle artifacts: %w", err)
	}

	return manifest, nil
}
