package app

import (
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/YohanV1/TissueLab-Scheduler/internal/common"
	"github.com/YohanV1/TissueLab-Scheduler/internal/events"
	"github.com/YohanV1/TissueLab-Scheduler/internal/executor"
	"github.com/YohanV1/TissueLab-Scheduler/internal/files"
	"github.com/YohanV1/TissueLab-Scheduler/internal/handlers"
	"github.com/YohanV1/TissueLab-Scheduler/internal/inference"
	"github.com/YohanV1/TissueLab-Scheduler/internal/scheduler"
	"github.com/YohanV1/TissueLab-Scheduler/internal/store"
)

// App holds all application components and dependencies.
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	FileService *files.Service
	Bus         *events.Bus
	Store       *store.Store
	Registry    *inference.Registry
	Executor    *executor.Executor
	Scheduler   *scheduler.Scheduler
	Watchdog    *Watchdog

	APIHandler      *handlers.APIHandler
	WorkflowHandler *handlers.WorkflowHandler
	JobHandler      *handlers.JobHandler
	FileHandler     *handlers.FileHandler
	EventsHandler   *handlers.EventsHandler
	WSHandler       *handlers.WebSocketHandler
}

// New wires the application bottom-up: storage, bus, store, inference,
// executor, scheduler, handlers, watchdog.
func New(config *common.Config) (*App, error) {
	a := &App{
		Config: config,
		Logger: common.GetLogger(),
	}

	fileService, err := files.NewService(config.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize file service: %w", err)
	}
	a.FileService = fileService

	a.Bus = events.NewBus(config.Events.BufferSize)
	a.Store = store.New(a.Bus, config.Workflows.MaxJobsPerWorkflow)
	a.Registry = inference.NewRegistry(config.Executor.EnableInstanSeg)
	a.Executor = executor.New(a.Store, a.FileService, a.Registry, config.Executor)
	a.Scheduler = scheduler.New(a.Store, a.Executor,
		config.Scheduler.MaxWorkers, config.Scheduler.MaxActiveUsers)

	a.APIHandler = handlers.NewAPIHandler()
	a.WorkflowHandler = handlers.NewWorkflowHandler(a.Store)
	a.JobHandler = handlers.NewJobHandler(a.Store, a.Scheduler, a.FileService)
	a.FileHandler = handlers.NewFileHandler(a.FileService)
	a.EventsHandler = handlers.NewEventsHandler(a.Store, a.Bus, config.ProgressThrottleInterval())
	a.WSHandler = handlers.NewWebSocketHandler(a.Bus, config.ProgressThrottleInterval())

	if config.Watchdog.Enabled {
		a.Watchdog = NewWatchdog(a.Store, a.FileService, config.Watchdog)
		if err := a.Watchdog.Start(); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to start watchdog: %w", err)
		}
	}

	a.Logger.Info().
		Int("max_workers", config.Scheduler.MaxWorkers).
		Int("max_active_users", config.Scheduler.MaxActiveUsers).
		Int("tile_size", config.Executor.TileSize).
		Msg("Application initialized")
	return a, nil
}

// Close shuts components down in reverse dependency order: watchdog, then
// the scheduler (waits for running executions), then store, bus and file
// index.
func (a *App) Close() error {
	if a.Watchdog != nil {
		a.Watchdog.Stop()
	}
	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}
	if a.Store != nil {
		a.Store.Close()
	}
	if a.Bus != nil {
		a.Bus.Close()
	}
	if a.FileService != nil {
		if err := a.FileService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close file service")
		}
	}

	a.Logger.Info().Msg("Application closed")
	return nil
}
