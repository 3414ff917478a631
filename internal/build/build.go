// Package build holds build-time metadata, overridden via -ldflags at release time.
package build

var (
	// Version is the release version of gffdb.
	Version = "dev"

	// Commit is the git commit the binary was built from.
	Commit = ""
)

// MinimumSupportedDatastoreSchemaRevision is the minimum migration revision
// the engine can run against. `gffdb migrate` brings a datastore up to date.
const MinimumSupportedDatastoreSchemaRevision int64 = 1
