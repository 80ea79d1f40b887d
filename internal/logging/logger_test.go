package logging

import (
	"testing"

	"github.com/leanmesh/leanmesh/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSONFormat(t *testing.T) {
	cfg := config.DefaultLogConfig()
	logger, err := New(cfg)
	require.NoError(t, err)
	require.NotNil(t, logger)
}

func TestNew_ConsoleFormat(t *testing.T) {
	cfg := config.DefaultLogConfig()
	cfg.Format = "console"
	logger, err := New(cfg)
	require.NoError(t, err)
	require.NotNil(t, logger)
}

func TestNew_InvalidLevel(t *testing.T) {
	cfg := config.DefaultLogConfig()
	cfg.Level = "not-a-level"
	_, err := New(cfg)
	assert.Error(t, err)
}
