// Package apikeys provides API key issuance, authentication and scope authorization middleware.
//
// This file handles version management using go-version.
package apikeys

import (
	"embed"
	"sync"

	goversion "github.com/itsatony/go-version"
	"go.uber.org/zap"
)

//go:embed versions.yaml
var versionsFS embed.FS

const (
	DEFAULT_API_VERSION    = "v1"
	VERSION_UNKNOWN        = "unknown"
	VERSION_API_MANAGEMENT = "management"
)

var (
	versionInitOnce sync.Once
	versionInitErr  error

	versionComponents = []string{"authenticator", "scope-guard", "repository-datarepo", "repository-postgres"}
)

// InitializeVersion initializes the go-version package with our versions.yaml
func InitializeVersion() error {
	versionInitOnce.Do(func() {
		// Read versions.yaml from embedded FS
		data, err := versionsFS.ReadFile("versions.yaml")
		if err != nil {
			versionInitErr = NewInternalError("version_init_read", err)
			return
		}

		// Initialize go-version with embedded manifest data
		versionInitErr = goversion.Initialize(
			goversion.WithEmbedded(data),
		)
	})

	return versionInitErr
}

// GetProjectVersion returns the current project version
func GetProjectVersion() string {
	// Ensure initialized
	if err := InitializeVersion(); err != nil {
		return PACKAGE_VERSION // Fallback to constant
	}

	info, err := goversion.Get()
	if err != nil {
		return PACKAGE_VERSION
	}
	return info.Project.Version
}

// GetAPIVersion returns the API version
func GetAPIVersion(apiName string) string {
	if err := InitializeVersion(); err != nil {
		return DEFAULT_API_VERSION
	}

	info, err := goversion.Get()
	if err != nil {
		return DEFAULT_API_VERSION
	}

	if ver, ok := info.GetAPIVersion(apiName); ok {
		return ver
	}
	return DEFAULT_API_VERSION
}

// GetComponentVersion returns a component version
func GetComponentVersion(componentName string) string {
	if err := InitializeVersion(); err != nil {
		return VERSION_UNKNOWN
	}

	info, err := goversion.Get()
	if err != nil {
		return VERSION_UNKNOWN
	}

	if ver, ok := info.GetComponentVersion(componentName); ok {
		return ver
	}
	return VERSION_UNKNOWN
}

// VersionInfo is the body of GET /version.
type VersionInfo struct {
	Project    string            `json:"project"`
	API        string            `json:"api"`
	Components map[string]string `json:"components"`
}

// GetVersionInfo collects the versions reported by GET /version.
func GetVersionInfo() *VersionInfo {
	components := make(map[string]string, len(versionComponents))
	for _, name := range versionComponents {
		components[name] = GetComponentVersion(name)
	}
	return &VersionInfo{
		Project:    GetProjectVersion(),
		API:        GetAPIVersion(VERSION_API_MANAGEMENT),
		Components: components,
	}
}

// LogVersionInfo logs version information at startup
func LogVersionInfo(logger *zap.Logger) {
	if err := InitializeVersion(); err != nil {
		logger.Warn("Failed to initialize version",
			zap.Error(err),
			zap.String("fallback_version", PACKAGE_VERSION))
		return
	}

	info, err := goversion.Get()
	if err != nil {
		logger.Warn("Failed to get version info",
			zap.Error(err),
			zap.String("fallback_version", PACKAGE_VERSION))
		return
	}

	// Use the LogFields() method from go-version Info
	fields := info.LogFields()
	logger.Info("Version information loaded", fields...)
}
