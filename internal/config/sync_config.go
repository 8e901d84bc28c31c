package config

import (
	"time"

	"github.com/spf13/viper"
)

const (
	syncIntervalVar     = "SYNC_INTERVAL"
	writesPerMinuteVar  = "SYNC_WRITES_PER_MINUTE"
	distanceCacheTTLVar = "DISTANCE_CACHE_TTL"
)

type Sync struct {
	v *viper.Viper
}

var _ SyncConfig = Sync{}

func (s Sync) GetSyncInterval() time.Duration {
	return s.v.GetDuration(syncIntervalVar)
}

// GetSyncWritesPerMinute is the Sheets write budget. Anything below 1 means 1.
func (s Sync) GetSyncWritesPerMinute() int {
	n := s.v.GetInt(writesPerMinuteVar)
	if n < 1 {
		return 1
	}
	return n
}

func (s Sync) GetDistanceCacheTTL() time.Duration {
	return s.v.GetDuration(distanceCacheTTLVar)
}
