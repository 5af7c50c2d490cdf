// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tphakala/radiotracker/internal/conf"
	"github.com/tphakala/radiotracker/internal/datastore"
)

// NewSQLiteStore opens a throwaway SQLite store under t.TempDir and closes
// it when the test ends.
func NewSQLiteStore(t *testing.T) *datastore.SQLiteStore {
	t.Helper()

	settings := &conf.Settings{}
	settings.Database.Type = "sqlite"
	settings.Database.SQLite.Path = filepath.Join(t.TempDir(), "radiotracker.db")

	store := &datastore.SQLiteStore{Settings: settings}
	require.NoError(t, store.Open())
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// SeedStation upserts an active station with the given slug and type.
func SeedStation(t *testing.T, ds datastore.Interface, slug string, metadataType datastore.MetadataType) *datastore.Station {
	t.Helper()

	st := &datastore.Station{
		Slug:         slug,
		Name:         slug,
		StreamURL:    "http://stream.example.com/" + slug,
		MetadataType: metadataType,
		Active:       true,
	}
	require.NoError(t, ds.UpsertStation(context.Background(), st))
	return st
}
