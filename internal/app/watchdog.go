package app

import (
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/YohanV1/TissueLab-Scheduler/internal/common"
	"github.com/YohanV1/TissueLab-Scheduler/internal/files"
	"github.com/YohanV1/TissueLab-Scheduler/internal/models"
	"github.com/YohanV1/TissueLab-Scheduler/internal/store"
)

// Watchdog runs periodic maintenance: it flags jobs that have been RUNNING
// longer than the configured ceiling and triggers value-log GC on the file
// index. It never kills a job; executions are not preemptible.
type Watchdog struct {
	store      *store.Store
	files      *files.Service
	cron       *cron.Cron
	schedule   string
	maxRunning time.Duration
	logger     arbor.ILogger
}

func NewWatchdog(st *store.Store, fs *files.Service, cfg common.WatchdogConfig) *Watchdog {
	maxRunning, err := time.ParseDuration(cfg.MaxRunning)
	if err != nil || maxRunning <= 0 {
		maxRunning = 30 * time.Minute
	}
	return &Watchdog{
		store:      st,
		files:      fs,
		cron:       cron.New(),
		schedule:   cfg.Schedule,
		maxRunning: maxRunning,
		logger:     common.GetLogger(),
	}
}

// Start begins the maintenance schedule.
func (w *Watchdog) Start() error {
	if _, err := w.cron.AddFunc(w.schedule, w.run); err != nil {
		return err
	}
	w.cron.Start()
	w.logger.Info().
		Str("schedule", w.schedule).
		Str("max_running", w.maxRunning.String()).
		Msg("Watchdog started")
	return nil
}

// Stop stops the schedule and waits for an in-flight run.
func (w *Watchdog) Stop() {
	ctx := w.cron.Stop()
	<-ctx.Done()
	w.logger.Info().Msg("Watchdog stopped")
}

func (w *Watchdog) run() {
	now := time.Now().UTC()
	for _, job := range w.store.RunningJobs() {
		started, ok := job.StateTimes[models.JobRunning]
		if !ok {
			continue
		}
		if age := now.Sub(started); age > w.maxRunning {
			w.logger.Warn().
				Str("job_id", job.ID).
				Str("workflow_id", job.WorkflowID).
				Str("running_for", age.Round(time.Second).String()).
				Int("tiles_done", job.TilesDone).
				Int("tiles_total", job.TilesTotal).
				Msg("Job running longer than expected")
		}
	}

	w.files.RunGC()
}
