package util

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gffdb/gffdb/pkg/logger"
)

func TestOpenDatastore(t *testing.T) {
	log := logger.NewNoopLogger()

	ds, err := OpenDatastore("memory", "", log)
	require.NoError(t, err)
	ds.Close()

	_, err = OpenDatastore("", "", log)
	require.ErrorContains(t, err, "missing datastore engine")

	_, err = OpenDatastore("oracle", "", log)
	require.ErrorContains(t, err, "unknown datastore engine")
}

func TestOpenDatastoreSqlite(t *testing.T) {
	uri := filepath.Join(t.TempDir(), "gffdb.sqlite")

	ds, err := OpenDatastore("sqlite", uri, logger.NewNoopLogger())
	require.NoError(t, err)
	ds.Close()
}
