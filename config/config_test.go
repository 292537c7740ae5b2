package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alwitt/visitsync/config"
	"github.com/alwitt/visitsync/models"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm/logger"
)

func TestConfigDefaults(t *testing.T) {
	assert := assert.New(t)

	cfg, err := config.Load(viper.New(), "")
	assert.Nil(err)
	assert.Equal("visitsync.db", cfg.DB.File)
	assert.Equal(logger.Error, cfg.DB.GORMLogLevel())
	assert.Equal(time.Second, cfg.Sync.SettleDelay)
	assert.Equal(time.Second*15, cfg.Sync.ProbeInterval)
	assert.Equal(time.Duration(0), cfg.Sync.RefreshInterval)
	assert.Equal(models.DefaultOrgName, cfg.Visit.OrgName)
	assert.Equal("info", cfg.Log.Level)
	assert.False(cfg.Log.JSON)
}

func TestConfigFileAndEnv(t *testing.T) {
	assert := assert.New(t)

	configFile := filepath.Join(t.TempDir(), "visitsync.yaml")
	content := `
db:
  file: /var/lib/visitsync/visits.db
  logLevel: warn
remote:
  baseURL: https://visits.example.com/api
  timeout: 30s
sync:
  refreshInterval: 5m
visit:
  orgName: acme-care
`
	assert.Nil(os.WriteFile(configFile, []byte(content), 0o600))

	t.Setenv("VISITSYNC_VISIT_ORGNAME", "from-env")
	t.Setenv("VISITSYNC_SYNC_SETTLEDELAY", "3s")

	cfg, err := config.Load(viper.New(), configFile)
	assert.Nil(err)
	assert.Equal("/var/lib/visitsync/visits.db", cfg.DB.File)
	assert.Equal(logger.Warn, cfg.DB.GORMLogLevel())
	assert.Equal("https://visits.example.com/api", cfg.Remote.BaseURL)
	assert.Equal(time.Second*30, cfg.Remote.Timeout)
	assert.Equal(time.Minute*5, cfg.Sync.RefreshInterval)
	assert.Equal(time.Second*3, cfg.Sync.SettleDelay)
	assert.Equal("from-env", cfg.Visit.OrgName)
}

func TestConfigInvalid(t *testing.T) {
	assert := assert.New(t)

	_, err := config.Load(viper.New(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(err)

	t.Setenv("VISITSYNC_REMOTE_BASEURL", "not a url")
	_, err = config.Load(viper.New(), "")
	assert.Error(err)

	t.Setenv("VISITSYNC_REMOTE_BASEURL", "http://localhost:3000/api")
	t.Setenv("VISITSYNC_LOG_LEVEL", "verbose")
	_, err = config.Load(viper.New(), "")
	assert.Error(err)
}
