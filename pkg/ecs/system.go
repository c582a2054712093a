package ecs

import (
	"context"
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/argus-labs/ecstore/pkg/ecs/internal/performance"
	"github.com/kelindar/bitmap"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// System is a function that runs once per SystemManager.Run over the entities of its query.
type System func(ctx *SystemContext) error

// SystemStats aggregates the execution times of one system.
type SystemStats = performance.SystemStats

// SystemHook defines when a system is executed in a run.
type SystemHook uint8

const (
	// PreUpdate runs before the main update.
	PreUpdate SystemHook = 0
	// Update runs during the main update phase.
	Update SystemHook = 1
	// PostUpdate runs after the main update.
	PostUpdate SystemHook = 2
	// Init runs once, before the first run.
	Init SystemHook = 3
)

func (h SystemHook) String() string {
	switch h {
	case PreUpdate:
		return "pre_update"
	case Update:
		return "update"
	case PostUpdate:
		return "post_update"
	case Init:
		return "init"
	default:
		return "unknown"
	}
}

// systemConfig holds the options of one system registration.
type systemConfig struct {
	hook     SystemHook
	access   []Member
	excluded []Member
}

// SystemOption configures a system registration.
type SystemOption func(*systemConfig)

// WithHook sets the hook the system runs in. Systems default to Update.
func WithHook(hook SystemHook) SystemOption {
	return func(cfg *systemConfig) { cfg.hook = hook }
}

// WithAccess declares members the system touches besides its query, e.g. components it reads with
// GetComponent. Systems sharing a member never run concurrently.
func WithAccess(members ...Member) SystemOption {
	return func(cfg *systemConfig) { cfg.access = append(cfg.access, members...) }
}

// WithExcludedTags excludes entities holding any of the tags from the system's query.
func WithExcludedTags(tags ...Member) SystemOption {
	return func(cfg *systemConfig) { cfg.excluded = append(cfg.excluded, tags...) }
}

// SystemContext is what a system sees while it runs.
//
// Systems of the same hook may run concurrently. A system can read anything and write component
// values in place through its query's columns or views. Every other change, structural or indexed,
// goes through Commands, which is played back once every system of the hook has finished.
type SystemContext struct {
	ctx      context.Context
	name     string
	run      uint64
	store    *Store
	query    *Query
	commands *CommandBuffer
	logger   zerolog.Logger
}

func (c *SystemContext) Context() context.Context { return c.ctx }
func (c *SystemContext) Name() string             { return c.name }
func (c *SystemContext) Run() uint64              { return c.run }
func (c *SystemContext) Store() *Store            { return c.store }
func (c *SystemContext) Query() *Query            { return c.query }
func (c *SystemContext) Commands() *CommandBuffer { return c.commands }
func (c *SystemContext) Logger() *zerolog.Logger  { return &c.logger }

type registeredSystem struct {
	name    string
	hook    SystemHook
	fn      System
	query   *Query
	pending *CommandBuffer // Buffer of the current run, nil once played back or discarded
}

// SystemManagerOptions configures a SystemManager.
type SystemManagerOptions struct {
	Tracer       trace.Tracer           // Defaults to a noop tracer
	Statsd       statsd.ClientInterface // Defaults to a noop client
	Logger       *zerolog.Logger        // Defaults to the store's logger
	BatchSize    int                    // Runs per performance batch
	TimingWindow int                    // Durations kept per system for Stats
}

func newDefaultSystemManagerOptions(s *Store) SystemManagerOptions {
	logger := s.logger
	return SystemManagerOptions{
		Tracer:       noop.NewTracerProvider().Tracer("ecstore"),
		Statsd:       &statsd.NoOpClient{},
		Logger:       &logger,
		BatchSize:    1,
		TimingWindow: s.opts.TimingWindow,
	}
}

func (opt *SystemManagerOptions) apply(newOpt SystemManagerOptions) {
	if newOpt.Tracer != nil {
		opt.Tracer = newOpt.Tracer
	}
	if newOpt.Statsd != nil {
		opt.Statsd = newOpt.Statsd
	}
	if newOpt.Logger != nil {
		opt.Logger = newOpt.Logger
	}
	if newOpt.BatchSize != 0 {
		opt.BatchSize = newOpt.BatchSize
	}
	if newOpt.TimingWindow != 0 {
		opt.TimingWindow = newOpt.TimingWindow
	}
}

func (opt *SystemManagerOptions) validate() error {
	if opt.BatchSize <= 0 {
		return eris.New("batch size must be positive")
	}
	if opt.TimingWindow <= 0 {
		return eris.New("timing window must be positive")
	}
	return nil
}

// SystemManager runs systems against a store in hooks: Init once, then PreUpdate, Update and
// PostUpdate on every Run.
type SystemManager struct {
	store   *Store
	opts    SystemManagerOptions
	logger  zerolog.Logger
	systems []*registeredSystem
	names   map[string]struct{}
	hooks   [3]systemScheduler // PreUpdate, Update, PostUpdate
	perf    *performance.Collector

	started  bool // Set by the first RunInit; registration is closed afterwards
	initDone bool
	runs     uint64
}

// NewSystemManager creates a system manager for s.
func NewSystemManager(s *Store, opts SystemManagerOptions) (*SystemManager, error) {
	options := newDefaultSystemManagerOptions(s)
	options.apply(opts)
	if err := options.validate(); err != nil {
		return nil, eris.Wrap(err, "invalid system manager options")
	}

	m := &SystemManager{
		store:  s,
		opts:   options,
		logger: options.Logger.With().Str("component", "systems").Logger(),
		names:  make(map[string]struct{}),
		perf:   performance.NewCollector(options.BatchSize, options.TimingWindow),
	}
	for i := range m.hooks {
		m.hooks[i] = newSystemScheduler()
	}
	return m, nil
}

// RegisterSystem registers fn under a unique name. The system's query selects the entities whose
// signature contains required. Registration closes when the manager first runs.
func (m *SystemManager) RegisterSystem(
	name string, required *Signature, fn System, opts ...SystemOption,
) error {
	if m.started {
		return eris.Wrapf(ErrInvalidState, "cannot register system %s after the first run", name)
	}
	if name == "" {
		return eris.New("system name cannot be empty")
	}
	if fn == nil {
		return eris.Errorf("system %s has no function", name)
	}
	if _, ok := m.names[name]; ok {
		return eris.Errorf("system %s is already registered", name)
	}

	cfg := systemConfig{hook: Update}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.hook > Init {
		return eris.Errorf("system %s has an invalid hook %d", name, cfg.hook)
	}

	sys := &registeredSystem{
		name:  name,
		hook:  cfg.hook,
		fn:    fn,
		query: NewQuery(m.store, required, cfg.excluded...),
	}
	m.systems = append(m.systems, sys)
	m.names[name] = struct{}{}

	if cfg.hook != Init {
		var access bitmap.Bitmap
		for _, c := range sys.query.required.components {
			access.Set(accessKey(Member{ID: c}))
		}
		for _, t := range sys.query.required.tags {
			access.Set(accessKey(Member{ID: t, Tag: true}))
		}
		for _, member := range append(cfg.access, cfg.excluded...) {
			access.Set(accessKey(member))
		}
		m.hooks[cfg.hook].register(scheduledSystem{
			name:   name,
			access: access,
			run: func(ctx context.Context) error {
				return m.execute(ctx, sys)
			},
		})
	}

	m.logger.Debug().Str("system", name).Stringer("hook", cfg.hook).Msg("system registered")
	return nil
}

// RunInit runs the Init systems in registration order and plays back their buffers. It can only be
// called once; Run calls it when it was not called before.
func (m *SystemManager) RunInit(ctx context.Context) error {
	if m.initDone {
		return eris.Wrap(ErrInvalidState, "init systems already ran")
	}
	m.start()
	m.initDone = true

	for _, sys := range m.systems {
		if sys.hook != Init {
			continue
		}
		if err := m.execute(ctx, sys); err != nil {
			return eris.Wrapf(err, "init system %s failed", sys.name)
		}
		if err := m.playback(sys); err != nil {
			return err
		}
	}
	return nil
}

// Run executes PreUpdate, Update and PostUpdate once. Command buffers of a hook are played back in
// registration order before the next hook starts, so later hooks see the changes. The buffer of a
// failed system is discarded.
func (m *SystemManager) Run(ctx context.Context) error {
	if !m.initDone {
		if err := m.RunInit(ctx); err != nil {
			return err
		}
	}

	runStart := time.Now()
	m.perf.StartRun()
	defer func() {
		m.perf.RecordRun(m.runs, runStart)
		_ = m.opts.Statsd.Timing("all_systems", time.Since(runStart), nil, 1)
		m.runs++
	}()

	for hook := range m.hooks {
		runErr := m.hooks[hook].Run(ctx)
		for _, sys := range m.systems {
			if sys.hook != SystemHook(hook) { //nolint:gosec // hook < 3
				continue
			}
			if err := m.playback(sys); err != nil {
				return err
			}
		}
		if runErr != nil {
			return eris.Wrapf(runErr, "%s hook failed", SystemHook(hook)) //nolint:gosec // hook < 3
		}
	}
	return nil
}

// Store returns the store the systems run against.
func (m *SystemManager) Store() *Store {
	return m.store
}

// Stats returns the execution time totals of a system.
func (m *SystemManager) Stats(name string) (SystemStats, bool) {
	return m.perf.Stats(name)
}

// Runs returns the number of completed runs.
func (m *SystemManager) Runs() uint64 {
	return m.runs
}

// Timings streams per-run system spans in batches of SystemManagerOptions.BatchSize runs. The
// returned function stops the stream.
func (m *SystemManager) Timings() (<-chan performance.Batch, func()) {
	ch := m.perf.Subscribe()
	return ch, func() { m.perf.Unsubscribe(ch) }
}

func (m *SystemManager) start() {
	if m.started {
		return
	}
	m.started = true
	for i := range m.hooks {
		m.hooks[i].build()
	}
}

// execute runs one system with a fresh command buffer and records its timing.
func (m *SystemManager) execute(ctx context.Context, sys *registeredSystem) error {
	ctx, span := m.opts.Tracer.Start(ctx, "system."+sys.name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("system.hook", sys.hook.String()),
			attribute.Int64("system.run", int64(m.runs)), //nolint:gosec // run count fits
		))
	defer span.End()

	buffer := NewCommandBuffer()
	sctx := &SystemContext{
		ctx:      ctx,
		name:     sys.name,
		run:      m.runs,
		store:    m.store,
		query:    sys.query,
		commands: buffer,
		logger: m.logger.With().
			Str("system", sys.name).
			Str("trace_id", buffer.ID().String()).
			Logger(),
	}

	start := time.Now()
	err := sys.fn(sctx)
	end := time.Now()

	m.perf.RecordSpan(performance.RunSpan{
		Run:       m.runs,
		Hook:      uint8(sys.hook),
		System:    sys.name,
		StartTime: start,
		EndTime:   end,
	})
	_ = m.opts.Statsd.Timing("system."+sys.name, end.Sub(start), nil, 1)
	span.SetAttributes(attribute.Int64("system.duration_us", end.Sub(start).Microseconds()))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	sys.pending = buffer
	return nil
}

func (m *SystemManager) playback(sys *registeredSystem) error {
	buffer := sys.pending
	if buffer == nil {
		return nil
	}
	sys.pending = nil
	if buffer.Len() == 0 {
		return nil
	}
	if err := buffer.Playback(m.store); err != nil {
		return eris.Wrapf(err, "failed to play back commands of system %s", sys.name)
	}
	return nil
}
