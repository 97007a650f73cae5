package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skdltmxn/cv50-go/cdebug"
	"github.com/skdltmxn/cv50-go/debugger"
)

func TestLoadConfig(t *testing.T) {
	saved := cfg
	t.Cleanup(func() { cfg = saved })

	path := filepath.Join(t.TempDir(), "cvview.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pointer_size: 8\ncache_pages: 32\nstrict_resolve: true\n"), 0o644))

	cfg = debugger.Config{}
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	cfg.RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--cache-pages=64"}))

	require.NoError(t, loadConfig(path, fs))
	assert.Equal(t, uint64(8), cfg.PointerSize)
	assert.Equal(t, 64, cfg.CachePages, "flags override the file")
	assert.Equal(t, debugger.DefaultPageSize, cfg.PageSize)
	assert.True(t, cfg.StrictResolve)

	require.NoError(t, os.WriteFile(path, []byte("pointer_size: [1]\n"), 0o644))
	assert.ErrorContains(t, loadConfig(path, fs), "failed to parse config")
	assert.Error(t, loadConfig(filepath.Join(t.TempDir(), "missing.yaml"), fs))
}

func TestParseTypeKind(t *testing.T) {
	k, err := parseTypeKind("Struct")
	require.NoError(t, err)
	assert.Equal(t, cdebug.TypeKindStruct, k)

	k, err = parseTypeKind("member_function")
	require.NoError(t, err)
	assert.Equal(t, cdebug.TypeKindMemberFunction, k)

	_, err = parseTypeKind("widget")
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	for _, lvl := range []string{"debug", "info", "warn", "error"} {
		_, err := newLogger(lvl)
		assert.NoError(t, err, lvl)
	}
	_, err := newLogger("loud")
	assert.Error(t, err)
}
