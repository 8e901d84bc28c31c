package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config interface {
	EnvConfig
	GoogleConfig
	StorageConfig
	SyncConfig
}

type EnvConfig interface {
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
	GetMetricsAddr() string
}

type GoogleConfig interface {
	GetClientID() string
	GetClientSecret() string
	GetIssuer() string
	GetScopes() []string
	GetLoopbackAddr() string
	GetMapsAPIKey() string
	GetSpreadsheetID() string
	GetSheetName() string
}

type StorageConfig interface {
	GetDataFolder() string
	GetKVBackend() string
	GetSessionPassphrase() string
}

type SyncConfig interface {
	GetSyncInterval() time.Duration
	GetSyncWritesPerMinute() int
	GetDistanceCacheTTL() time.Duration
}

type mainConfig struct {
	EnvVars
	Google
	Storage
	Sync
}

// New loads a .env file if present, then environment variables over defaults.
func New() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	return FromViper(v), nil
}

// FromViper wraps an already populated viper instance. Defaults are applied.
func FromViper(v *viper.Viper) Config {
	setDefaults(v)
	return mainConfig{
		EnvVars: EnvVars{v: v},
		Google:  Google{v: v},
		Storage: Storage{v: v},
		Sync:    Sync{v: v},
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(envVar, "DEV")
	v.SetDefault(appNameVar, "Korebog")
	v.SetDefault(logLevelVar, "info")
	v.SetDefault(metricsAddrVar, ":9090")

	v.SetDefault(issuerVar, "https://accounts.google.com")
	v.SetDefault(scopesVar, strings.Join(defaultScopes, " "))
	v.SetDefault(loopbackAddrVar, "127.0.0.1:8765")
	v.SetDefault(sheetNameVar, "Kørsler")

	v.SetDefault(folderVar, "./data")
	v.SetDefault(kvBackendVar, "file")

	v.SetDefault(syncIntervalVar, "5m")
	v.SetDefault(writesPerMinuteVar, 60)
	v.SetDefault(distanceCacheTTLVar, "24h")
}
