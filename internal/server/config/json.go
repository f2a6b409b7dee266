package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/gophauth/internal/flagx"
	"github.com/dmitrijs2005/gophauth/internal/timex"
)

// JSONConfig is the on-disk shape of the config file. Durations accept
// either strings such as "30m" or integer nanoseconds. Absent fields keep
// the value they had before the file was read.
type JSONConfig struct {
	EndpointAddrHTTP             *string         `json:"endpoint_addr_http"`
	DatabaseDSN                  *string         `json:"database_dsn"`
	SecretKey                    *string         `json:"secret_key"`
	Algorithm                    *string         `json:"algorithm"`
	AccessTokenValidityDuration  *timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration *timex.Duration `json:"refresh_token_validity_duration"`
	MaxActiveSessions            *int            `json:"max_active_sessions"`
	Environment                  *string         `json:"environment"`
	LogLevel                     *string         `json:"log_level"`
	DBRetryAttempts              *int            `json:"db_retry_attempts"`
}

// parseJSON overlays values from the file named by -c/-config, if any.
func parseJSON(config *Config) error {
	path := flagx.ConfigFileFlag()
	if path == "" {
		return nil
	}

	file, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	c := &JSONConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.Algorithm, c.Algorithm)
	setString(&config.Environment, c.Environment)
	setString(&config.LogLevel, c.LogLevel)
	if c.AccessTokenValidityDuration != nil {
		config.AccessTokenValidityDuration = c.AccessTokenValidityDuration.Duration
	}
	if c.RefreshTokenValidityDuration != nil {
		config.RefreshTokenValidityDuration = c.RefreshTokenValidityDuration.Duration
	}
	if c.MaxActiveSessions != nil {
		config.MaxActiveSessions = *c.MaxActiveSessions
	}
	if c.DBRetryAttempts != nil {
		config.DBRetryAttempts = *c.DBRetryAttempts
	}
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
