package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/userapi/internal/flagx"
	"github.com/dmitrijs2005/userapi/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON
// unmarshalling. It uses timex.Duration for interval fields, which allows
// parsing both string values such as "15m" and integer nanoseconds.
//
// This struct is an intermediate DTO used only for reading JSON
// configuration files. After unmarshalling, its fields are copied into
// the runtime Config struct which uses time.Duration.
type JsonConfig struct {
	EndpointAddr          string         `json:"endpoint_addr"`
	DatabaseDSN           string         `json:"database_dsn"`
	SecretKey             string         `json:"secret_key"`
	TokenValidityDuration timex.Duration `json:"token_validity_duration"`
	RequireActiveUser     bool           `json:"require_active_user"`
	LoginRatePerMinute    int            `json:"login_rate_per_minute"`
	LoginRateBurst        int            `json:"login_rate_burst"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance.
//
// The file path comes from the -c or -config command-line flags; if
// neither is set, no JSON file is loaded and the Config is left as is.
// If the file cannot be read or contains invalid JSON, the function
// panics: a requested-but-broken config file should stop startup.
func parseJson(config *Config) {

	// try flags
	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	config.EndpointAddr = c.EndpointAddr
	config.DatabaseDSN = c.DatabaseDSN
	config.SecretKey = c.SecretKey
	config.TokenValidityDuration = time.Duration(c.TokenValidityDuration.Duration)
	config.RequireActiveUser = c.RequireActiveUser
	config.LoginRatePerMinute = c.LoginRatePerMinute
	config.LoginRateBurst = c.LoginRateBurst
}
