package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ClementNoelRenard/Running-Map-Run-For-Life/config"
)

type probe struct {
	ID   int64
	Name string
}

func TestOpen_SQLiteMemoryIsolated(t *testing.T) {
	a, err := Open(config.DatabaseConfig{Mode: ModeSQLiteMemory})
	require.NoError(t, err)
	b, err := Open(config.DatabaseConfig{Mode: ModeSQLiteMemory})
	require.NoError(t, err)

	require.NoError(t, a.AutoMigrate(&probe{}))
	require.NoError(t, a.Create(&probe{Name: "x"}).Error)
	assert.False(t, b.Migrator().HasTable(&probe{}))
}

func TestOpen_SQLiteFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "nested", "runmap.db")
	gdb, err := Open(config.DatabaseConfig{Mode: ModeSQLite, SQLitePath: p})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(&probe{}))
	assert.FileExists(t, p)
}

func TestOpen_UnknownMode(t *testing.T) {
	_, err := Open(config.DatabaseConfig{Mode: "embedded_xml"})
	assert.ErrorContains(t, err, "unknown mode")
}
