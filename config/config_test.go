package config

import (
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ccworker/pruntime-core/common/fixedpoint"
)

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := "ListenAddr = \":9999\"\n\n[Tokenomic]\nVMax = \"50000\"\n"
	require.NoError(t, ioutil.WriteFile(path, []byte(body), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.ListenAddr)
	assert.Equal(t, Default().MetricsAddr, cfg.MetricsAddr)
	assert.Equal(t, 0, cfg.Tokenomic.VMax.Cmp(fixedpoint.FromInt(50000)))
}

func TestLoadMissingFileErrors(t *testing.T) {
	_, err := Load("/nonexistent/path/config.toml")
	assert.Error(t, err)
}
