// Package syncconfig loads and validates the reconciliation engine's
// tunables, the way the teacher's pkg/content.Config/DefaultConfig
// validates content-addressing settings: a typed Options struct, a
// DefaultOptions baseline, and an explicit Validate step callers run
// before handing Options to pkg/reconcile.
package syncconfig

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/mediasync/libsync/pkg/chunk"
	"github.com/mediasync/libsync/pkg/reconcile"
)

// Options is the full set of knobs a host application sets once per
// (table, peer) sync relationship.
type Options struct {
	NodeID              string  `mapstructure:"node_id"`
	Direction           string  `mapstructure:"direction"`
	ChunkPreset         string  `mapstructure:"chunk_preset"`
	MinSize             int     `mapstructure:"min_size"`
	MaxSize             int     `mapstructure:"max_size"`
	Alpha               float64 `mapstructure:"alpha"`
	ComparisonThreshold int     `mapstructure:"comparison_threshold"`
}

// DefaultOptions mirrors chunk.Balanced and reconcile.Bidirectional, the
// safest defaults for a first-time sync relationship.
func DefaultOptions() Options {
	return Options{
		Direction:           "bidirectional",
		ChunkPreset:         "balanced",
		MinSize:             chunk.Balanced.MinSize,
		MaxSize:             chunk.Balanced.MaxSize,
		Alpha:               chunk.Balanced.Alpha,
		ComparisonThreshold: reconcile.ComparisonThreshold,
	}
}

// namedPresets resolves a chunk_preset name to the matching spec.md §6
// sizing policy. Explicit min_size/max_size/alpha in the loaded config
// always override whatever the preset set, so a config file can start
// from a named preset and tweak one field.
var namedPresets = map[string]chunk.Options{
	"high_frequency_mobile":    chunk.HighFrequencyMobile,
	"append_optimized_backend": chunk.AppendOptimizedBackend,
	"balanced":                 chunk.Balanced,
	"initial_sync_optimized":   chunk.InitialSyncOptimized,
}

// Load reads Options from a config file (if path is non-empty) and from
// environment variables prefixed LIBSYNC_, via viper, the way the
// teacher's CLI wiring favors file+env configuration over flags alone.
func Load(path string) (Options, error) {
	v := viper.New()
	v.SetEnvPrefix("LIBSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := DefaultOptions()
	v.SetDefault("node_id", def.NodeID)
	v.SetDefault("direction", def.Direction)
	v.SetDefault("chunk_preset", def.ChunkPreset)
	_ = v.BindEnv("min_size")
	_ = v.BindEnv("max_size")
	_ = v.BindEnv("alpha")
	v.SetDefault("comparison_threshold", def.ComparisonThreshold)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Options{}, fmt.Errorf("syncconfig: failed to read config file %s: %w", path, err)
		}
	}

	var opts Options
	if err := v.Unmarshal(&opts); err != nil {
		return Options{}, fmt.Errorf("syncconfig: failed to decode config: %w", err)
	}
	co := opts.ChunkOptions()
	opts.MinSize, opts.MaxSize, opts.Alpha = co.MinSize, co.MaxSize, co.Alpha
	if err := opts.Validate(); err != nil {
		return Options{}, err
	}
	return opts, nil
}

// Validate checks Options for internal consistency before it is wired
// into a reconcile.Engine run, the same fail-fast-at-load-time shape as
// the teacher's DefaultConfig validation.
func (o Options) Validate() error {
	if o.NodeID == "" {
		return fmt.Errorf("syncconfig: node_id is required")
	}
	switch o.Direction {
	case "pull", "push", "bidirectional":
	default:
		return fmt.Errorf("syncconfig: direction must be one of pull, push, bidirectional, got %q", o.Direction)
	}
	if o.MinSize <= 0 || o.MaxSize <= 0 {
		return fmt.Errorf("syncconfig: min_size and max_size must be positive")
	}
	if o.MinSize > o.MaxSize {
		return fmt.Errorf("syncconfig: min_size (%d) must not exceed max_size (%d)", o.MinSize, o.MaxSize)
	}
	if o.Alpha < 0 {
		return fmt.Errorf("syncconfig: alpha must be non-negative")
	}
	if o.ComparisonThreshold <= 0 {
		return fmt.Errorf("syncconfig: comparison_threshold must be positive")
	}
	return nil
}

// ChunkOptions resolves the configured preset, overridden by any
// explicit min_size/max_size/alpha.
func (o Options) ChunkOptions() chunk.Options {
	base, ok := namedPresets[o.ChunkPreset]
	if !ok {
		base = chunk.Balanced
	}
	if o.MinSize > 0 {
		base.MinSize = o.MinSize
	}
	if o.MaxSize > 0 {
		base.MaxSize = o.MaxSize
	}
	if o.Alpha > 0 {
		base.Alpha = o.Alpha
	}
	return base
}

// ReconcileDirection resolves the configured direction string to a
// reconcile.Direction.
func (o Options) ReconcileDirection() reconcile.Direction {
	switch o.Direction {
	case "pull":
		return reconcile.Pull
	case "push":
		return reconcile.Push
	default:
		return reconcile.Bidirectional
	}
}
