package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/cozy-creator/vision-ai/internal/config"
	"github.com/cozy-creator/vision-ai/internal/db"
	"github.com/cozy-creator/vision-ai/internal/db/drivers"
	"github.com/cozy-creator/vision-ai/internal/db/repository"
	"github.com/cozy-creator/vision-ai/internal/dispatcher"
	"github.com/cozy-creator/vision-ai/internal/inference"
	"github.com/cozy-creator/vision-ai/internal/inference/onnx"
	"github.com/cozy-creator/vision-ai/internal/pipeline"
	"github.com/cozy-creator/vision-ai/internal/services/artifactstore"
	"github.com/cozy-creator/vision-ai/internal/services/filestorage"
	"github.com/cozy-creator/vision-ai/internal/services/fileuploader"
	"github.com/cozy-creator/vision-ai/internal/services/model_downloader"
	"github.com/cozy-creator/vision-ai/internal/services/outputs"
	"github.com/cozy-creator/vision-ai/internal/services/sessions"
	"github.com/cozy-creator/vision-ai/internal/types"
	"github.com/cozy-creator/vision-ai/internal/utils/pathutil"
	"github.com/cozy-creator/vision-ai/pkg/logger"

	"go.uber.org/zap"
)

type EventKind string

const (
	EventDownload EventKind = "download"
	EventLoad     EventKind = "load"
)

// Event is a download or session-load notification, delivered on the same
// goroutine as inference results.
type Event struct {
	Kind     EventKind
	Pipeline types.PipelineID
	State    types.ArtifactState
	Done     bool
	Err      error
}

type App struct {
	config     *config.Config
	ctx        context.Context
	cancelFunc context.CancelFunc

	engine     inference.Engine
	fetcher    artifactstore.Fetcher
	driver     drivers.Driver
	uploader   *fileuploader.Uploader
	store      *artifactstore.Store
	registry   *sessions.Registry
	dispatcher *dispatcher.Dispatcher
	pipelines  map[types.PipelineID]*pipeline.Pipeline
	outputs    *outputs.Manager
	onEvent    func(Event)

	Logger              *zap.Logger
	InferenceRepository repository.IInferenceRepository
}

// Option funcs used to initialize the App struct
type OptionFunc func(app *App) error

func WithLogger(logger *zap.Logger) OptionFunc {
	return func(app *App) error {
		app.Logger = logger
		return nil
	}
}

func WithEngine(engine inference.Engine) OptionFunc {
	return func(app *App) error {
		app.engine = engine
		return nil
	}
}

func WithFetcher(fetcher artifactstore.Fetcher) OptionFunc {
	return func(app *App) error {
		app.fetcher = fetcher
		return nil
	}
}

// WithEventHandler receives download and load events on the consumer goroutine.
func WithEventHandler(h func(Event)) OptionFunc {
	return func(app *App) error {
		app.onEvent = h
		return nil
	}
}

// WithDBInitialization opens the history database and applies migrations.
func WithDBInitialization() OptionFunc {
	return func(app *App) error {
		driver, err := db.NewConnection(app.ctx, app.config)
		if err != nil {
			return err
		}

		if err := db.Migrate(app.ctx, driver); err != nil {
			driver.Close()
			return err
		}

		app.driver = driver
		app.InferenceRepository = repository.NewInferenceRepository(driver.GetDB())
		return nil
	}
}

// WithFileUploader mirrors annotated images to the configured file storage.
// It is skipped for local storage since images are already in the outputs directory.
func WithFileUploader() OptionFunc {
	return func(app *App) error {
		if app.config.Filesystem == "" || app.config.Filesystem == config.FilesystemLocal {
			return nil
		}

		storage, err := filestorage.NewFileStorage(app.config)
		if err != nil {
			return err
		}

		app.uploader = fileuploader.NewFileUploader(storage, 2)
		return nil
	}
}

func NewApp(cfg *config.Config, options ...OptionFunc) (*App, error) {
	log, err := logger.InitLogger(cfg)
	if err != nil {
		return nil, err
	}

	if err := pathutil.EnsureDirs(cfg.ModelsDir, cfg.OutputsDir, cfg.LabelsDir, cfg.DataDir); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	app := &App{
		ctx:        ctx,
		config:     cfg,
		Logger:     log,
		cancelFunc: cancel,
		onEvent:    func(Event) {},
	}

	// Continue even if some options fail
	for _, opt := range options {
		if err := opt(app); err != nil {
			app.Logger.Error("failed to apply option", zap.Error(err))
		}
	}

	if err := app.build(); err != nil {
		cancel()
		return nil, err
	}

	return app, nil
}

func (app *App) build() error {
	descs := make(map[types.PipelineID]types.ModelDescriptor, len(types.Pipelines))
	for _, id := range types.Pipelines {
		desc, err := app.config.Descriptor(id)
		if err != nil {
			return err
		}
		descs[id] = desc
	}

	if app.engine == nil {
		app.engine = onnx.NewEngine(app.config.OnnxRuntimeLib, app.config.OnnxRuntimeThreads)
	}
	if app.fetcher == nil {
		app.fetcher = model_downloader.NewDownloader(
			model_downloader.WithProgressInterval(app.config.ProgressInterval),
			model_downloader.WithLogger(app.Logger.Named("downloader")),
		)
	}

	app.store = artifactstore.NewStore(app.config.ModelsDir, descs, app.fetcher,
		artifactstore.WithLogger(app.Logger.Named("artifacts")),
		artifactstore.WithNotifier(app.onDownload),
	)
	app.registry = sessions.NewRegistry(app.engine, app.store,
		sessions.WithLogger(app.Logger.Named("sessions")),
		sessions.WithNotifier(app.onLoad),
	)

	threshold := float32(0)
	if app.config.Detection != nil {
		threshold = app.config.Detection.Threshold
	}
	noMatch := config.DefaultSpeciesNoMatchIndex
	if app.config.Species != nil {
		noMatch = app.config.Species.NoMatchIndex
	}
	labels := app.config.Labels
	if labels == nil {
		labels = &config.LabelsConfig{
			Classification: config.DefaultClassificationLabels,
			Species:        config.DefaultSpeciesLabels,
		}
	}

	app.pipelines = map[types.PipelineID]*pipeline.Pipeline{
		types.PipelineDetection: pipeline.NewDetection(pipeline.DetectionOptions{
			Threshold:  threshold,
			OutputsDir: app.config.OutputsDir,
		}),
		types.PipelineClassification: pipeline.NewClassification(app.config.LabelPath(labels.Classification)),
		types.PipelineSpecies:        pipeline.NewSpecies(app.config.LabelPath(labels.Species), noMatch),
	}

	executors := make(map[types.PipelineID]dispatcher.Executor, len(app.pipelines))
	for id, p := range app.pipelines {
		executors[id] = p
	}

	opts := []dispatcher.Option{
		dispatcher.WithLogger(app.Logger.Named("dispatcher")),
		dispatcher.WithWorkers(app.config.Workers),
	}
	if app.InferenceRepository != nil {
		opts = append(opts, dispatcher.WithRecorder(app.InferenceRepository))
	}
	app.dispatcher = dispatcher.New(app.ctx, app.store, app.registry, executors, opts...)
	app.outputs = outputs.NewManager(app.config.OutputsDir)

	return nil
}

// onDownload runs on the download goroutine. A finished download warms the
// session right away, the event itself is handed to the consumer.
func (app *App) onDownload(ev artifactstore.DownloadEvent) {
	if ev.Done && ev.Err == nil {
		app.registry.Warm(ev.Pipeline)
	}

	app.post(Event{Kind: EventDownload, Pipeline: ev.Pipeline, State: ev.State, Done: ev.Done, Err: ev.Err})
}

func (app *App) onLoad(ev sessions.LoadEvent) {
	app.post(Event{Kind: EventLoad, Pipeline: ev.Pipeline, Done: true, Err: ev.Err})
}

func (app *App) post(ev Event) {
	if app.dispatcher == nil {
		return
	}

	if err := app.dispatcher.Post(func() { app.onEvent(ev) }); err != nil {
		app.Logger.Debug("event dropped", zap.String("pipeline", string(ev.Pipeline)), zap.Error(err))
	}
}

// Submit queues an inference. The handler runs on the goroutine calling Run.
func (app *App) Submit(req types.InferenceRequest, handler dispatcher.Handler) (string, error) {
	if req.ImagePath != "" {
		if abs, err := filepath.Abs(req.ImagePath); err == nil {
			req.ImagePath = abs
		}
	}

	return app.dispatcher.Submit(req, func(result types.InferenceResult) {
		if result.OK && result.Pipeline == types.PipelineDetection && app.uploader != nil {
			app.mirror(result)
		}
		handler(result)
	})
}

func (app *App) mirror(result types.InferenceResult) {
	app.uploader.UploadFile(app.ctx, result.Message, func(r fileuploader.Result) {
		if r.Err != nil {
			app.Logger.Error("failed to mirror output", zap.String("path", r.Path), zap.Error(r.Err))
			return
		}
		app.Logger.Info("output mirrored", zap.String("token", result.Token), zap.String("url", r.URL))
	})
}

// Run delivers results and events until ctx is done or the app is closed.
func (app *App) Run(ctx context.Context) error {
	return app.dispatcher.Run(ctx)
}

// Prepare downloads the model for id if needed and loads its session,
// blocking until both are done.
func (app *App) Prepare(ctx context.Context, id types.PipelineID) error {
	if _, err := app.store.EnsurePresent(app.ctx, id); err != nil {
		return err
	}
	if err := app.store.Wait(ctx, id); err != nil {
		return err
	}

	_, err := app.registry.Get(ctx, id)
	return err
}

// Download starts the model download for id without waiting.
func (app *App) Download(id types.PipelineID) (types.ArtifactState, error) {
	return app.store.EnsurePresent(app.ctx, id)
}

// Warm starts the download for id if needed. A model already on disk has
// its session loaded in the background.
func (app *App) Warm(id types.PipelineID) error {
	state, err := app.store.EnsurePresent(app.ctx, id)
	if err != nil {
		return err
	}
	if state.Status == types.ArtifactPresent {
		app.registry.Warm(id)
	}

	return nil
}

// WaitDownload blocks until the model for id is present or its download fails.
func (app *App) WaitDownload(ctx context.Context, id types.PipelineID) error {
	return app.store.Wait(ctx, id)
}

func (app *App) ModelStatus(id types.PipelineID) (types.ModelStatus, error) {
	desc, err := app.store.Descriptor(id)
	if err != nil {
		return types.ModelStatus{}, err
	}

	st := app.store.State(id)
	status := types.ModelStatus{
		Pipeline:  id,
		Name:      desc.Name,
		Filename:  desc.Filename,
		Status:    st.Status,
		Completed: st.Completed,
		Total:     st.Total,
		Loaded:    app.registry.Ready(id),
		Running:   app.dispatcher.Running(id),
	}
	if err := app.registry.LoadError(id); err != nil {
		status.LoadFailed = err.Error()
	}

	return status, nil
}

func (app *App) ModelStatuses() []types.ModelStatus {
	statuses := make([]types.ModelStatus, 0, len(types.Pipelines))
	for _, id := range types.Pipelines {
		if st, err := app.ModelStatus(id); err == nil {
			statuses = append(statuses, st)
		}
	}

	return statuses
}

func (app *App) Close() error {
	app.cancelFunc()

	var errs []error
	app.dispatcher.Close()
	app.store.Close()
	if err := app.registry.Close(); err != nil {
		errs = append(errs, err)
	}
	if app.uploader != nil {
		app.uploader.Stop()
	}
	if app.driver != nil {
		if err := app.driver.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := onnx.Destroy(); err != nil {
		errs = append(errs, err)
	}
	app.Logger.Sync()

	return errors.Join(errs...)
}

func (app *App) Config() *config.Config {
	return app.config
}

func (app *App) Context() context.Context {
	return app.ctx
}

func (app *App) Outputs() *outputs.Manager {
	return app.outputs
}
