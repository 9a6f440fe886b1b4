// Package config provides API version configuration for the saga orchestrator.
package config

import (
	"time"
)

// APIVersion represents a single API version configuration
type APIVersion struct {
	Version      string
	ReleaseDate  time.Time
	Deprecated   bool
	DeprecatedAt *time.Time
	SunsetDate   *time.Time
	Features     []string
	Changes      []string
}

// APIVersionConfig holds the complete API versioning configuration
type APIVersionConfig struct {
	// CurrentVersion is the current stable API version
	CurrentVersion string

	// DefaultVersion is the version used when none is specified
	DefaultVersion string

	// Versions contains configuration for all API versions
	Versions map[string]APIVersion

	// VersionFeatures maps features to the minimum version required
	VersionFeatures map[string]string
}

// GetAPIVersionConfig returns the API version configuration
func GetAPIVersionConfig() APIVersionConfig {
	return APIVersionConfig{
		CurrentVersion: "1",
		DefaultVersion: "1",

		Versions: map[string]APIVersion{
			"1": {
				Version:      "1",
				ReleaseDate:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
				Deprecated:   false,
				DeprecatedAt: nil,
				SunsetDate:   nil,
				Features: []string{
					"saga-creation",
					"saga-execution",
					"saga-retry",
					"saga-compensation",
					"correlation-query",
					"bulk-cleanup",
				},
				Changes: []string{
					"Initial API release",
					"Saga lifecycle management (create, execute, retry, compensate)",
					"Correlation-based saga lookup",
				},
			},
			// Future version placeholder
			"2": {
				Version:      "2",
				ReleaseDate:  time.Time{}, // Not released yet
				Deprecated:   false,
				DeprecatedAt: nil,
				SunsetDate:   nil,
				Features: []string{
					"partial-compensation",
					"saga-pause-resume",
					"step-level-webhooks",
				},
				Changes: []string{
					"Planned: pause/resume of in-flight sagas",
					"Planned: per-step webhook notifications",
				},
			},
		},

		VersionFeatures: map[string]string{
			"saga-creation":        "1",
			"saga-execution":       "1",
			"saga-retry":           "1",
			"saga-compensation":    "1",
			"correlation-query":    "1",
			"bulk-cleanup":         "1",

			// Future v2 features
			"partial-compensation": "2",
			"saga-pause-resume":    "2",
			"step-level-webhooks":  "2",
		},
	}
}

// IsVersionSupported checks if a version is supported
func (c APIVersionConfig) IsVersionSupported(version string) bool {
	_, exists := c.Versions[version]
	return exists
}

// GetSupportedVersions returns a list of all supported versions
func (c APIVersionConfig) GetSupportedVersions() []string {
	versions := make([]string, 0, len(c.Versions))
	for v := range c.Versions {
		versions = append(versions, v)
	}
	return versions
}

// IsFeatureAvailable checks if a feature is available in a given version
func (c APIVersionConfig) IsFeatureAvailable(feature, version string) bool {
	requiredVersion, exists := c.VersionFeatures[feature]
	if !exists {
		return false // Unknown feature
	}

	// Simple numeric comparison (works for single digit versions)
	return version >= requiredVersion
}

// GetVersionFeatures returns all features available in a specific version
func (c APIVersionConfig) GetVersionFeatures(version string) []string {
	v, exists := c.Versions[version]
	if !exists {
		return nil
	}
	return v.Features
}

// GetVersionChanges returns the changes introduced in a specific version
func (c APIVersionConfig) GetVersionChanges(version string) []string {
	v, exists := c.Versions[version]
	if !exists {
		return nil
	}
	return v.Changes
}

// IsVersionDeprecated checks if a version is deprecated
func (c APIVersionConfig) IsVersionDeprecated(version string) bool {
	v, exists := c.Versions[version]
	if !exists {
		return false
	}
	return v.Deprecated
}

// GetDeprecationInfo returns deprecation information for a version
func (c APIVersionConfig) GetDeprecationInfo(version string) (deprecated bool, deprecatedAt *time.Time, sunsetDate *time.Time) {
	v, exists := c.Versions[version]
	if !exists {
		return false, nil, nil
	}
	return v.Deprecated, v.DeprecatedAt, v.SunsetDate
}

// VersionFeatureFlags provides feature flags based on API version
type VersionFeatureFlags struct {
	EnableBulkCleanup      bool
	EnableCorrelationQuery bool
	EnablePauseResume      bool
	EnableStepWebhooks     bool
	MaxStepsPerSaga        int
	MaxPageSize            int
	DefaultPageSize        int
}

// GetFeatureFlags returns feature flags for a specific API version
func GetFeatureFlags(version string) VersionFeatureFlags {
	switch version {
	case "1":
		return VersionFeatureFlags{
			EnableBulkCleanup:      true,
			EnableCorrelationQuery: true,
			EnablePauseResume:      false,
			EnableStepWebhooks:     false,
			MaxStepsPerSaga:        25,
			MaxPageSize:            200,
			DefaultPageSize:        50,
		}
	case "2":
		return VersionFeatureFlags{
			EnableBulkCleanup:      true,
			EnableCorrelationQuery: true,
			EnablePauseResume:      true,
			EnableStepWebhooks:     true,
			MaxStepsPerSaga:        50,
			MaxPageSize:            500,
			DefaultPageSize:        50,
		}
	default:
		return GetFeatureFlags("1")
	}
}
