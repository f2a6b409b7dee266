package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// parseEnv overlays values from the process environment. Token lifetimes are
// given in minutes, as in ACCESS_TOKEN_EXPIRE_MINUTES=30.
func parseEnv(config *Config) error {
	lookupString("HTTP_ADDR", &config.EndpointAddrHTTP)
	lookupString("DATABASE_URL", &config.DatabaseDSN)
	lookupString("SECRET_KEY", &config.SecretKey)
	lookupString("ALGORITHM", &config.Algorithm)
	lookupString("ENVIRONMENT", &config.Environment)
	lookupString("LOG_LEVEL", &config.LogLevel)

	if err := lookupMinutes("ACCESS_TOKEN_EXPIRE_MINUTES", &config.AccessTokenValidityDuration); err != nil {
		return err
	}
	if err := lookupMinutes("REFRESH_TOKEN_EXPIRE_MINUTES", &config.RefreshTokenValidityDuration); err != nil {
		return err
	}
	if v, ok := os.LookupEnv("MAX_ACTIVE_SESSIONS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: MAX_ACTIVE_SESSIONS: %w", err)
		}
		config.MaxActiveSessions = n
	}
	return nil
}

func lookupString(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func lookupMinutes(key string, dst *time.Duration) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*dst = time.Duration(n) * time.Minute
	return nil
}
