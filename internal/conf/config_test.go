package conf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	settings, err := Load()
	require.NoError(t, err)

	assert.False(t, settings.Debug)
	assert.Equal(t, "samples", settings.AssetRoot)
	assert.Equal(t, "0.0.0.0", settings.WebServer.Host)
	assert.Equal(t, "8080", settings.WebServer.Port)
	assert.True(t, settings.Output.SQLite.Enabled)
	assert.Equal(t, "pqtoolkit.db", settings.Output.SQLite.Path)
	assert.False(t, settings.Output.MySQL.Enabled)

	assert.Same(t, settings, Setting())
}

func TestValidateSettings(t *testing.T) {
	valid := func() *Settings {
		return &Settings{
			AssetRoot: "samples",
			Output: OutputSettings{
				SQLite: SQLiteSettings{Enabled: true, Path: "test.db"},
			},
		}
	}

	require.NoError(t, ValidateSettings(valid()))

	noAssets := valid()
	noAssets.AssetRoot = ""
	assert.Error(t, ValidateSettings(noAssets))

	noBackend := valid()
	noBackend.Output.SQLite.Enabled = false
	assert.Error(t, ValidateSettings(noBackend))

	noPath := valid()
	noPath.Output.SQLite.Path = ""
	assert.Error(t, ValidateSettings(noPath))
}
