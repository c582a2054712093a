package ecs

import (
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

// storeConfig holds the store settings that can be set through environment variables.
type storeConfig struct {
	// Number of entity residency records allocated up front.
	EntityCapacity int `env:"ECSTORE_ENTITY_CAPACITY" envDefault:"1024"`

	// Initial row capacity of every new archetype.
	ArchetypeCapacity int `env:"ECSTORE_ARCHETYPE_CAPACITY" envDefault:"16"`

	// Whether in-place component writes notify observers ("never", "indexed", "always").
	SetNotify string `env:"ECSTORE_SET_NOTIFY" envDefault:"never"`

	// Upper bound of goroutines used by parallel chunk iteration, 0 means GOMAXPROCS.
	ParallelChunkLimit int `env:"ECSTORE_PARALLEL_CHUNK_LIMIT" envDefault:"0"`

	// Number of recent executions kept per system for timing stats.
	TimingWindow int `env:"ECSTORE_TIMING_WINDOW" envDefault:"128"`
}

// loadStoreConfig loads the store configuration from environment variables.
func loadStoreConfig() (storeConfig, error) {
	cfg := storeConfig{}

	if err := env.Parse(&cfg); err != nil {
		return cfg, eris.Wrap(err, "failed to parse store config")
	}

	if err := cfg.validate(); err != nil {
		return cfg, eris.Wrap(err, "failed to validate store config")
	}

	return cfg, nil
}

func (cfg *storeConfig) validate() error {
	if cfg.EntityCapacity < 0 {
		return eris.New("entity capacity cannot be negative")
	}
	if cfg.ArchetypeCapacity <= 0 {
		return eris.New("archetype capacity must be positive")
	}
	if ParseSetNotifyPolicy(cfg.SetNotify) == SetNotifyUndefined {
		return eris.Errorf("invalid set notify policy: %s (must be 'never', 'indexed', or 'always')", cfg.SetNotify)
	}
	if cfg.ParallelChunkLimit < 0 {
		return eris.New("parallel chunk limit cannot be negative")
	}
	if cfg.TimingWindow <= 0 {
		return eris.New("timing window must be positive")
	}
	return nil
}

func (cfg *storeConfig) applyToOptions(opt *StoreOptions) {
	opt.EntityCapacity = cfg.EntityCapacity
	opt.ArchetypeCapacity = cfg.ArchetypeCapacity
	opt.SetNotify = ParseSetNotifyPolicy(cfg.SetNotify)
	opt.ParallelChunkLimit = cfg.ParallelChunkLimit
	opt.TimingWindow = cfg.TimingWindow
}

// StoreOptions configures a Store. Zero fields keep the value loaded from the environment.
type StoreOptions struct {
	EntityCapacity     int             // Residency records allocated up front
	ArchetypeCapacity  int             // Initial rows per archetype
	SetNotify          SetNotifyPolicy // Notification policy for in-place writes
	ParallelChunkLimit int             // Goroutine bound for ParallelChunks
	TimingWindow       int             // Recent executions kept per system
	Logger             *zerolog.Logger // Defaults to a disabled logger
}

func newDefaultStoreOptions() StoreOptions {
	nop := zerolog.Nop()
	return StoreOptions{
		EntityCapacity:     0,
		ArchetypeCapacity:  0,
		SetNotify:          SetNotifyUndefined,
		ParallelChunkLimit: 0,
		TimingWindow:       0,
		Logger:             &nop,
	}
}

// apply merges the given options into the current options, overriding non-zero values.
func (opt *StoreOptions) apply(newOpt StoreOptions) {
	if newOpt.EntityCapacity != 0 {
		opt.EntityCapacity = newOpt.EntityCapacity
	}
	if newOpt.ArchetypeCapacity != 0 {
		opt.ArchetypeCapacity = newOpt.ArchetypeCapacity
	}
	if newOpt.SetNotify != SetNotifyUndefined {
		opt.SetNotify = newOpt.SetNotify
	}
	if newOpt.ParallelChunkLimit != 0 {
		opt.ParallelChunkLimit = newOpt.ParallelChunkLimit
	}
	if newOpt.TimingWindow != 0 {
		opt.TimingWindow = newOpt.TimingWindow
	}
	if newOpt.Logger != nil {
		opt.Logger = newOpt.Logger
	}
}

// validate checks that all options are set and valid.
func (opt *StoreOptions) validate() error {
	if opt.EntityCapacity < 0 {
		return eris.New("entity capacity cannot be negative")
	}
	if opt.ArchetypeCapacity <= 0 {
		return eris.New("archetype capacity must be positive")
	}
	if opt.SetNotify == SetNotifyUndefined {
		return eris.New("set notify policy must be specified")
	}
	if opt.ParallelChunkLimit < 0 {
		return eris.New("parallel chunk limit cannot be negative")
	}
	if opt.TimingWindow <= 0 {
		return eris.New("timing window must be positive")
	}
	if opt.Logger == nil {
		return eris.New("logger cannot be nil")
	}
	return nil
}

// SetNotifyPolicy decides whether SetComponent, and Add on a component the entity already has,
// emit an ActionChanged event.
type SetNotifyPolicy uint8

const (
	SetNotifyUndefined SetNotifyPolicy = iota // Used as the zero value
	SetNotifyNever                            // In-place writes are silent
	SetNotifyIndexed                          // Only writes to indexed components notify
	SetNotifyAlways                           // Every in-place write notifies
)

func (p SetNotifyPolicy) String() string {
	switch p {
	case SetNotifyUndefined:
		return "undefined"
	case SetNotifyNever:
		return "never"
	case SetNotifyIndexed:
		return "indexed"
	case SetNotifyAlways:
		return "always"
	default:
		return "undefined"
	}
}

// ParseSetNotifyPolicy converts a string to a SetNotifyPolicy.
func ParseSetNotifyPolicy(s string) SetNotifyPolicy {
	switch strings.ToLower(s) {
	case "never":
		return SetNotifyNever
	case "indexed":
		return SetNotifyIndexed
	case "always":
		return SetNotifyAlways
	default:
		return SetNotifyUndefined
	}
}

func (p SetNotifyPolicy) notifies(st *SchemaType) bool {
	switch p {
	case SetNotifyAlways:
		return true
	case SetNotifyIndexed:
		return st.indexed()
	case SetNotifyUndefined, SetNotifyNever:
		return false
	default:
		return false
	}
}
