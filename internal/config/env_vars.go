package config

import "github.com/spf13/viper"

const (
	envVar         = "ENV"
	appNameVar     = "APP_NAME"
	logLevelVar    = "LOG_LEVEL"
	metricsAddrVar = "METRICS_ADDR"
)

type EnvVars struct {
	v *viper.Viper
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetAppName() string {
	return e.v.GetString(appNameVar)
}

// GetEnv returns DEV unless ENV says otherwise.
func (e EnvVars) GetEnv() string {
	env := e.v.GetString(envVar)
	if env == "" {
		return "DEV"
	}
	return env
}

func (e EnvVars) GetLogLevel() string {
	return e.v.GetString(logLevelVar)
}

func (e EnvVars) GetMetricsAddr() string {
	return e.v.GetString(metricsAddrVar)
}
