package xlsmap

import (
	"log/slog"
	"reflect"
)

// DefaultMaxNestingDepth bounds nested-table recursion.
const DefaultMaxNestingDepth = 8

// Options controls a Mapper. A nil *Options means the defaults.
type Options struct {
	// TolerateTypeFailures records conversion failures and keeps going
	// instead of aborting the call.
	TolerateTypeFailures bool

	// RegexLabels enables /pattern/ labels. When false such labels are
	// compared literally, slashes included.
	RegexLabels bool

	// NormalizeLabels compares literal labels after folding character
	// width, dropping line breaks and collapsing white space.
	NormalizeLabels bool

	// IgnoreSheetNotFound makes Load and Save return without error when the
	// model's sheet does not exist.
	IgnoreSheetNotFound bool

	// SkipFormulas disables formula directives on save.
	SkipFormulas bool

	// MaxNestingDepth bounds nested-table recursion. Zero means
	// DefaultMaxNestingDepth.
	MaxNestingDepth int

	// Logger receives debug events and tolerated failures. Nil discards.
	Logger *slog.Logger

	// Overrides supplies directives that replace static declarations.
	Overrides OverrideSource

	// Converters registers converters for field types the built-ins do not
	// handle, or replaces a built-in for a type.
	Converters map[reflect.Type]Converter
}

// Config is the read-only settings snapshot every component sees during
// one call. It is copied from Options when a Mapper is created.
type Config struct {
	TolerateTypeFailures bool
	RegexLabels          bool
	NormalizeLabels      bool
	IgnoreSheetNotFound  bool
	SkipFormulas         bool
	MaxNestingDepth      int
	Logger               *slog.Logger
	converters           map[reflect.Type]Converter
}

func newConfig(opts *Options) *Config {
	cfg := &Config{MaxNestingDepth: DefaultMaxNestingDepth}
	if opts != nil {
		cfg.TolerateTypeFailures = opts.TolerateTypeFailures
		cfg.RegexLabels = opts.RegexLabels
		cfg.NormalizeLabels = opts.NormalizeLabels
		cfg.IgnoreSheetNotFound = opts.IgnoreSheetNotFound
		cfg.SkipFormulas = opts.SkipFormulas
		cfg.Logger = opts.Logger
		if opts.MaxNestingDepth > 0 {
			cfg.MaxNestingDepth = opts.MaxNestingDepth
		}
		if len(opts.Converters) > 0 {
			cfg.converters = make(map[reflect.Type]Converter, len(opts.Converters))
			for t, c := range opts.Converters {
				cfg.converters[t] = c
			}
		}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return cfg
}
