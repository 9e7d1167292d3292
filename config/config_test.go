package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig("")
	assert.Equal(t, "accstore", cfg.System.Appid)
	assert.Equal(t, 1880, cfg.Web.Port)
	assert.Equal(t, "postgres", cfg.Database.Type)
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfile := filepath.Join(dir, "accstore.yml")
	require.NoError(t, os.WriteFile(cfile, []byte(`
web:
  host: 127.0.0.1
  port: 9090
database:
  type: sqlite
  name: test
`), 0o644))

	cfg := LoadConfig(cfile)
	assert.Equal(t, "127.0.0.1", cfg.Web.Host)
	assert.Equal(t, 9090, cfg.Web.Port)
	assert.Equal(t, "sqlite", cfg.Database.Type)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ACCSTORE_WEB_PORT", "2999")
	t.Setenv("ACCSTORE_DB_NAME", "override")

	cfg := LoadConfig("")
	assert.Equal(t, 2999, cfg.Web.Port)
	assert.Equal(t, "override", cfg.Database.Name)
}

func TestAbsUploadDir(t *testing.T) {
	cfg := LoadConfig("")
	cfg.System.Workdir = "/srv/accstore"
	cfg.Web.UploadDir = "uploads"
	assert.Equal(t, "/srv/accstore/uploads", cfg.AbsUploadDir())

	cfg.Web.UploadDir = "/data/uploads"
	assert.Equal(t, "/data/uploads", cfg.AbsUploadDir())
}
