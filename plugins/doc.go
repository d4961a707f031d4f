// Package plugins hosts schema-pack subpackages. It intentionally contains
// no production runtime code itself; this file exists to satisfy tooling for
// the architectural guard test that lives alongside it.
//
// Schema packs register their contributions through *core.PluginRegistry and
// build records via the core aliases; they must not import gridcore/pkg/domain
// directly so the domain model can evolve behind the core facade.
package plugins
