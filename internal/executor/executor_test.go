package executor

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YohanV1/TissueLab-Scheduler/internal/common"
	"github.com/YohanV1/TissueLab-Scheduler/internal/events"
	"github.com/YohanV1/TissueLab-Scheduler/internal/inference"
	"github.com/YohanV1/TissueLab-Scheduler/internal/models"
	"github.com/YohanV1/TissueLab-Scheduler/internal/store"
)

// dirLocator serves a single input file and per-job result dirs under a
// test temp dir.
type dirLocator struct {
	input string
	root  string
}

func (l *dirLocator) InputPath(fileID string) (string, error) {
	if l.input == "" {
		return "", models.NewError(models.KindNotFound, "file %s not found", fileID)
	}
	return l.input, nil
}

func (l *dirLocator) ResultsDir(jobID string) (string, error) {
	dir := filepath.Join(l.root, jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

func writeSlide(t *testing.T, dir string, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			// Dark band through the middle so the masks are non-trivial.
			v := uint8(230)
			if y > h/3 && y < 2*h/3 {
				v = 30
			}
			img.Set(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}
	path := filepath.Join(dir, "slide.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	return path
}

type execFixture struct {
	st      *store.Store
	exec    *Executor
	locator *dirLocator
}

func newExecFixture(t *testing.T, tileSize, overlap int) *execFixture {
	t.Helper()
	bus := events.NewBus(256)
	st := store.New(bus, 100)
	t.Cleanup(func() {
		st.Close()
		bus.Close()
	})

	dir := t.TempDir()
	locator := &dirLocator{root: dir}
	cfg := common.ExecutorConfig{TileSize: tileSize, TileOverlap: overlap, PreviewMaxDim: 64}
	exec := New(st, locator, inference.NewRegistry(false), cfg)
	return &execFixture{st: st, exec: exec, locator: locator}
}

func (f *execFixture) runningJob(t *testing.T, jobType models.JobType) models.Job {
	t.Helper()
	wf := f.st.CreateWorkflow("alice", "slides")
	job, err := f.st.CreateJob("alice", wf.ID, "file_abc", jobType, "main")
	require.NoError(t, err)
	job, err = f.st.Transition(job.ID, []models.JobState{models.JobPending}, models.JobRunning, nil)
	require.NoError(t, err)
	return job
}

func TestExecuteProducesAllArtifacts(t *testing.T) {
	f := newExecFixture(t, 32, 8)
	f.locator.input = writeSlide(t, t.TempDir(), 100, 80)

	job := f.runningJob(t, models.JobTypeTissueMask)
	f.exec.Execute(context.Background(), job)

	got, err := f.st.JobByID(job.ID)
	require.NoError(t, err)
	require.Equal(t, models.JobSucceeded, got.State)
	assert.Equal(t, 1.0, got.Progress)
	assert.Equal(t, 12, got.TilesTotal)
	assert.Equal(t, 12, got.TilesDone)

	require.NotNil(t, got.Manifest)
	assert.Equal(t, 12, got.Manifest.TilesTotal)
	assert.Len(t, got.Manifest.Artifacts, 13) // 12 masks + preview

	dir := filepath.Join(f.locator.root, job.ID)
	for row := 0; row < 3; row++ {
		for col := 0; col < 4; col++ {
			assert.FileExists(t, filepath.Join(dir, fmt.Sprintf("mask_%d_%d.png", row, col)))
		}
	}
	assert.FileExists(t, filepath.Join(dir, "preview.png"))
	assert.FileExists(t, filepath.Join(dir, "manifest.json"))
	assert.FileExists(t, filepath.Join(dir, "artifacts.zip"))
	assert.NoFileExists(t, filepath.Join(dir, "artifacts.zip.tmp"))
}

func TestMaskFilesMatchCoreSize(t *testing.T) {
	f := newExecFixture(t, 32, 8)
	f.locator.input = writeSlide(t, t.TempDir(), 70, 50)

	job := f.runningJob(t, models.JobTypeSegmentCells)
	f.exec.Execute(context.Background(), job)

	got, err := f.st.JobByID(job.ID)
	require.NoError(t, err)
	require.Equal(t, models.JobSucceeded, got.State)

	// Edge tile at row 1, col 2 is clipped to 6x18.
	path := filepath.Join(f.locator.root, job.ID, "mask_1_2.png")
	fh, err := os.Open(path)
	require.NoError(t, err)
	defer fh.Close()
	img, err := png.Decode(fh)
	require.NoError(t, err)
	assert.Equal(t, 6, img.Bounds().Dx())
	assert.Equal(t, 18, img.Bounds().Dy())
}

func TestExecuteFailureLeavesNoManifest(t *testing.T) {
	f := newExecFixture(t, 32, 8)
	// No input registered: the slide cannot be opened.

	job := f.runningJob(t, models.JobTypeTissueMask)
	f.exec.Execute(context.Background(), job)

	got, err := f.st.JobByID(job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, got.State)
	assert.NotEmpty(t, got.Error)
	assert.Nil(t, got.Manifest)
	assert.NoFileExists(t, filepath.Join(f.locator.root, job.ID, "manifest.json"))
}

func TestExecuteCanceledContextFails(t *testing.T) {
	f := newExecFixture(t, 32, 8)
	f.locator.input = writeSlide(t, t.TempDir(), 100, 80)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	job := f.runningJob(t, models.JobTypeTissueMask)
	f.exec.Execute(ctx, job)

	got, err := f.st.JobByID(job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, got.State)
	assert.Contains(t, got.Error, "interrupted")
	assert.Nil(t, got.Manifest)
}

func TestExecuteRejectsUnknownJobType(t *testing.T) {
	f := newExecFixture(t, 32, 8)
	f.locator.input = writeSlide(t, t.TempDir(), 40, 40)

	wf := f.st.CreateWorkflow("alice", "slides")
	job, err := f.st.CreateJob("alice", wf.ID, "file_abc", models.JobTypeTissueMask, "main")
	require.NoError(t, err)
	job, err = f.st.Transition(job.ID, []models.JobState{models.JobPending}, models.JobRunning, nil)
	require.NoError(t, err)

	// Corrupt the type after admission to exercise the registry error path.
	job.Type = "SHARPEN"
	f.exec.Execute(context.Background(), job)

	got, err := f.st.JobByID(job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, got.State)
}
