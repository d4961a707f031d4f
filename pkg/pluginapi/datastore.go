package pluginapi

import "gridcore/internal/datastore"

type (
	// DataStore resolves a schema pack's logical resource names to the data
	// files shipped alongside it.
	DataStore = datastore.Store
	// DataStoreConfig is the opaque plugin configuration handed through by
	// the host.
	DataStoreConfig = datastore.Config
	// DataStoreOption customizes data store construction.
	DataStoreOption = datastore.Option
	// DataTable is a lazily materialized tabular view over one resource.
	DataTable = datastore.Table
	// DataColumn describes one column of a materialized table.
	DataColumn = datastore.Column
	// DataReader parses one resource file format.
	DataReader = datastore.Reader
	// DataUpgradeHandler reshapes a pack's data folder when its resource
	// mapping cannot be resolved; it runs at most once per store.
	DataUpgradeHandler = datastore.UpgradeHandler
)

// ErrResourceNotMapped reports a logical name absent from a pack's resource
// mapping after any upgrade handling.
var ErrResourceNotMapped = datastore.ErrResourceNotMapped

// OpenDataStore opens the resource store rooted at path for a schema pack.
// See datastore.FromPluginConfig for the upgrade-handler contract.
func OpenDataStore(cfg DataStoreConfig, path string, handler DataUpgradeHandler, opts ...DataStoreOption) (*DataStore, error) {
	return datastore.FromPluginConfig(cfg, path, handler, opts...)
}

// WithDataReader installs a reader for an additional data format.
func WithDataReader(format string, reader DataReader) DataStoreOption {
	return datastore.WithReader(format, reader)
}
