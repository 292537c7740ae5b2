// Package config - application configuration
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/alwitt/visitsync/models"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"gorm.io/gorm/logger"
)

// EnvPrefix prefix of the environment variables overriding configuration keys
const EnvPrefix = "VISITSYNC"

// DBConfig local database settings
type DBConfig struct {
	// File sqlite database file
	File string `mapstructure:"file" json:"file" validate:"required"`
	// LogLevel SQL log level
	LogLevel string `mapstructure:"logLevel" json:"logLevel" validate:"oneof=silent error warn info"`
}

// CryptoConfig device key pair settings
type CryptoConfig struct {
	// CertFile device certificate PEM file
	CertFile string `mapstructure:"certFile" json:"certFile" validate:"required"`
	// KeyFile device RSA private key PEM file
	KeyFile string `mapstructure:"keyFile" json:"keyFile" validate:"required"`
}

// RemoteConfig visit REST API settings
type RemoteConfig struct {
	// BaseURL API base URL
	BaseURL string `mapstructure:"baseURL" json:"baseURL" validate:"required,url"`
	// Token optional bearer token
	Token string `mapstructure:"token" json:"-"`
	// Timeout per request timeout
	Timeout time.Duration `mapstructure:"timeout" json:"timeout" validate:"gt=0"`
	// PingPath path probed for connectivity
	PingPath string `mapstructure:"pingPath" json:"pingPath" validate:"required"`
}

// SyncConfig sync orchestrator settings
type SyncConfig struct {
	// SettleDelay wait after coming online before syncing
	SettleDelay time.Duration `mapstructure:"settleDelay" json:"settleDelay" validate:"gte=0"`
	// ProbeInterval connectivity probe period; zero disables probing
	ProbeInterval time.Duration `mapstructure:"probeInterval" json:"probeInterval" validate:"gte=0"`
	// ProbeTimeout per probe timeout
	ProbeTimeout time.Duration `mapstructure:"probeTimeout" json:"probeTimeout" validate:"gt=0"`
	// RefreshInterval periodic sync period while online; zero disables it
	RefreshInterval time.Duration `mapstructure:"refreshInterval" json:"refreshInterval" validate:"gte=0"`
}

// VisitConfig visit record settings
type VisitConfig struct {
	// OrgName organization stamped on new visits without one
	OrgName string `mapstructure:"orgName" json:"orgName" validate:"required"`
}

// LogConfig application log settings
type LogConfig struct {
	// Level log level
	Level string `mapstructure:"level" json:"level" validate:"oneof=debug info warn error fatal"`
	// JSON log in JSON
	JSON bool `mapstructure:"json" json:"json"`
	// File optional log file, rotated
	File string `mapstructure:"file" json:"file"`
	// MaxSizeMB rotate the log file after this size
	MaxSizeMB int `mapstructure:"maxSizeMB" json:"maxSizeMB" validate:"gt=0"`
	// MaxBackups number of rotated log files to keep
	MaxBackups int `mapstructure:"maxBackups" json:"maxBackups" validate:"gte=0"`
}

// Config application configuration
type Config struct {
	DB     DBConfig     `mapstructure:"db" json:"db"`
	Crypto CryptoConfig `mapstructure:"crypto" json:"crypto"`
	Remote RemoteConfig `mapstructure:"remote" json:"remote"`
	Sync   SyncConfig   `mapstructure:"sync" json:"sync"`
	Visit  VisitConfig  `mapstructure:"visit" json:"visit"`
	Log    LogConfig    `mapstructure:"log" json:"log"`
}

/*
InstallDefaults install the default value of every configuration key

	@param v *viper.Viper - the viper instance
*/
func InstallDefaults(v *viper.Viper) {
	v.SetDefault("db.file", "visitsync.db")
	v.SetDefault("db.logLevel", "error")

	v.SetDefault("crypto.certFile", "device.crt")
	v.SetDefault("crypto.keyFile", "device.key")

	v.SetDefault("remote.baseURL", "http://localhost:3000/api")
	v.SetDefault("remote.token", "")
	v.SetDefault("remote.timeout", time.Second*15)
	v.SetDefault("remote.pingPath", "/")

	v.SetDefault("sync.settleDelay", time.Second)
	v.SetDefault("sync.probeInterval", time.Second*15)
	v.SetDefault("sync.probeTimeout", time.Second*5)
	v.SetDefault("sync.refreshInterval", time.Duration(0))

	v.SetDefault("visit.orgName", models.DefaultOrgName)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
	v.SetDefault("log.file", "")
	v.SetDefault("log.maxSizeMB", 50)
	v.SetDefault("log.maxBackups", 3)
}

/*
Load read the configuration. Defaults are overridden by the config file, if given, and
then by VISITSYNC_* environment variables, e.g. VISITSYNC_REMOTE_BASEURL.

	@param v *viper.Viper - the viper instance, with any flags already bound
	@param configFile string - optional config file (YAML, TOML, or JSON)
	@returns the validated configuration
*/
func Load(v *viper.Viper, configFile string) (Config, error) {
	InstallDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config file '%s' [%w]", configFile, err)
		}
	}

	return Decode(v)
}

/*
Decode decode and validate the configuration currently held by viper

	@param v *viper.Viper - the viper instance
	@returns the validated configuration
*/
func Decode(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config [%w]", err)
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return Config{}, fmt.Errorf("config is not valid [%w]", err)
	}
	return cfg, nil
}

// GORMLogLevel the SQL log level
func (c DBConfig) GORMLogLevel() logger.LogLevel {
	switch c.LogLevel {
	case "silent":
		return logger.Silent
	case "warn":
		return logger.Warn
	case "info":
		return logger.Info
	default:
		return logger.Error
	}
}
