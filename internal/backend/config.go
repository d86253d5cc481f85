package backend

import (
	"fmt"

	"forecast/internal/config"
)

// FromAppConfig creates backend config from application config
func FromAppConfig(appConfig *config.Config) Config {
	return Config{
		Type:         BackendType(appConfig.DataBackend),
		SQLiteDBPath: appConfig.SQLiteDBPath,
		SeedDir:      appConfig.SeedDir,
	}
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s (must be one of: %s, %s)",
			c.Type, SQLiteBackend, MemoryBackend)
	}

	if c.Type == SQLiteBackend && c.SQLiteDBPath == "" {
		return fmt.Errorf("sqlite backend requires a database path")
	}

	return nil
}

// GetBackendTypes returns all valid backend types
func GetBackendTypes() []BackendType {
	return []BackendType{SQLiteBackend, MemoryBackend}
}
