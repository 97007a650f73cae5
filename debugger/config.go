package debugger

import (
	"errors"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/skdltmxn/cv50-go/cdebug"
)

// Defaults
const (
	DefaultPageSize   = 4096
	DefaultCachePages = 256
)

// Config configures a Debugger.
type Config struct {
	PointerSize   uint64 `yaml:"pointer_size"`
	PageSize      int    `yaml:"page_size"`
	CachePages    int    `yaml:"cache_pages"`
	StrictResolve bool   `yaml:"strict_resolve"`
}

// DefaultConfig returns the configuration RegisterFlags starts from.
func DefaultConfig() Config {
	return Config{
		PointerSize: cdebug.DefaultPointerSize,
		PageSize:    DefaultPageSize,
		CachePages:  DefaultCachePages,
	}
}

// RegisterFlags registers debugger flags. Values already set in cfg, for
// example from a config file, become the flag defaults.
func (cfg *Config) RegisterFlags(f *pflag.FlagSet) {
	def := DefaultConfig()
	if cfg.PointerSize == 0 {
		cfg.PointerSize = def.PointerSize
	}
	if cfg.PageSize == 0 {
		cfg.PageSize = def.PageSize
	}
	if cfg.CachePages == 0 {
		cfg.CachePages = def.CachePages
	}

	f.Uint64Var(&cfg.PointerSize, "pointer-size", cfg.PointerSize, "Size in bytes of pointer types in the target.")
	f.IntVar(&cfg.PageSize, "page-size", cfg.PageSize, "Granularity in bytes of target memory reads. Must be a power of two.")
	f.IntVar(&cfg.CachePages, "cache-pages", cfg.CachePages, "Number of target memory pages kept in the read cache. Negative disables the cache.")
	f.BoolVar(&cfg.StrictResolve, "strict-resolve", cfg.StrictResolve, "Treat a module with unresolved debug info references as having no symbols.")
}

// Validate checks the configuration.
func (cfg *Config) Validate() error {
	switch cfg.PointerSize {
	case 2, 4, 8:
	default:
		return fmt.Errorf("invalid pointer size %d: must be 2, 4 or 8", cfg.PointerSize)
	}
	if cfg.PageSize <= 0 || cfg.PageSize&(cfg.PageSize-1) != 0 {
		return fmt.Errorf("invalid page size %d: must be a positive power of two", cfg.PageSize)
	}
	if cfg.CachePages == 0 {
		return errors.New("cache pages must be positive, or negative to disable the cache")
	}
	return nil
}
