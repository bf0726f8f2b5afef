package model_test

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xtalpipe/screen/internal/model"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()
	cfg := model.DefaultConfig()
	require.Equal(t, "dials.import", cfg.Tools.Import)
	require.Equal(t, "dials.refine_bravais_settings", cfg.Tools.RefineBravais)
	require.Equal(t, "xia2.overload", cfg.Tools.Overload)
	require.Equal(t, "gnuplot", cfg.Plot.Gnuplot)
	require.Equal(t, 120*time.Second, cfg.Plot.Timeout)
}

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	t.Run("partial yaml keeps defaults", func(t *testing.T) {
		t.Parallel()
		cfg, err := model.LoadConfig(strings.NewReader("install_root: /opt/dials\n"))
		require.NoError(t, err)
		require.Equal(t, "/opt/dials", cfg.InstallRoot)
		require.Equal(t, "dials.import", cfg.Tools.Import)
		require.Equal(t, 120*time.Second, cfg.Plot.Timeout)
	})

	t.Run("unknown fields rejected", func(t *testing.T) {
		t.Parallel()
		_, err := model.LoadConfig(strings.NewReader("no_such_key: 1\n"))
		require.Error(t, err)
	})
}

func TestResolve(t *testing.T) {
	t.Parallel()

	t.Run("no install root keeps PATH lookup", func(t *testing.T) {
		t.Parallel()
		cfg := model.DefaultConfig()
		require.Equal(t, "dials.index", cfg.Resolve("dials.index"))
	})

	t.Run("install root anchors the tool", func(t *testing.T) {
		t.Parallel()
		cfg := model.DefaultConfig()
		cfg.InstallRoot = "/opt/dials"
		require.Equal(t, filepath.Join("/opt/dials", "bin", "dials.index"),
			cfg.Resolve("dials.index"))
	})
}
