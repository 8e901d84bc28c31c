package config

import "github.com/spf13/viper"

const (
	folderVar     = "DATA_DIR"
	kvBackendVar  = "KV_BACKEND"
	passphraseVar = "SESSION_PASSPHRASE"
)

type Storage struct {
	v *viper.Viper
}

var _ StorageConfig = Storage{}

func (s Storage) GetDataFolder() string {
	return s.v.GetString(folderVar)
}

// GetKVBackend is "file" or "sqlite".
func (s Storage) GetKVBackend() string {
	return s.v.GetString(kvBackendVar)
}

// GetSessionPassphrase enables sealing of the persisted session when set.
func (s Storage) GetSessionPassphrase() string {
	return s.v.GetString(passphraseVar)
}
