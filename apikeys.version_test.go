package apikeys

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestVersion(t *testing.T) {
	t.Run("project version matches the package constant", func(t *testing.T) {
		assert.Equal(t, PACKAGE_VERSION, GetProjectVersion())
	})

	t.Run("api version", func(t *testing.T) {
		assert.Equal(t, DEFAULT_API_VERSION, GetAPIVersion(VERSION_API_MANAGEMENT))
		assert.Equal(t, DEFAULT_API_VERSION, GetAPIVersion("unknown-api"))
	})

	t.Run("unknown component", func(t *testing.T) {
		assert.Equal(t, VERSION_UNKNOWN, GetComponentVersion("flux-capacitor"))
	})

	t.Run("version info lists every component", func(t *testing.T) {
		info := GetVersionInfo()
		assert.Equal(t, GetProjectVersion(), info.Project)
		assert.Equal(t, DEFAULT_API_VERSION, info.API)
		assert.Len(t, info.Components, len(versionComponents))
	})

	t.Run("log version info", func(t *testing.T) {
		core, logs := observer.New(zapcore.InfoLevel)
		LogVersionInfo(zap.New(core))
		assert.Equal(t, 1, logs.Len())
	})
}
