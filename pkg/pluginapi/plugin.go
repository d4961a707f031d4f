// Package pluginapi exposes the stable contract schema packs implement to
// contribute translation rules, upgrade steps, and component schemas.
package pluginapi

import "gridcore/internal/core"

type (
	// Registry accumulates plugin contributions during registration.
	Registry = core.PluginRegistry
	// Plugin is the contract a schema pack implements.
	Plugin = core.Plugin
	// Metadata describes an installed plugin.
	Metadata = core.PluginMetadata
)

// NewRegistry constructs an empty registry, mostly useful in plugin tests.
func NewRegistry() *Registry { return core.NewPluginRegistry() }

// Version is the plugin API contract version.
const Version = "v1"
