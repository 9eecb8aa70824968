package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/credkeeper/credkeeper/internal/flagx"
	"github.com/credkeeper/credkeeper/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Durations
// may be spelled as strings like "15m" or as integer nanoseconds; only
// fields present in the file override the running config.
type JsonConfig struct {
	StorePath        *string         `json:"store_path"`
	TokenTTL         *timex.Duration `json:"token_ttl"`
	RefreshTokenTTL  *timex.Duration `json:"refresh_token_ttl"`
	RefreshThreshold *timex.Duration `json:"refresh_threshold"`
	AutoRefresh      *bool           `json:"auto_refresh"`
	LogLevel         *string         `json:"log_level"`
}

// parseJson overlays cfg with values from the JSON file named by the
// -c/-config flags. With no such flag the function is a no-op. Read or
// unmarshal errors panic; the caller decides whether to recover.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.StorePath != nil {
		cfg.StorePath = *jc.StorePath
	}
	if jc.TokenTTL != nil {
		cfg.TokenTTL = time.Duration(jc.TokenTTL.Duration)
	}
	if jc.RefreshTokenTTL != nil {
		cfg.RefreshTokenTTL = time.Duration(jc.RefreshTokenTTL.Duration)
	}
	if jc.RefreshThreshold != nil {
		cfg.RefreshThreshold = time.Duration(jc.RefreshThreshold.Duration)
	}
	if jc.AutoRefresh != nil {
		cfg.AutoRefresh = *jc.AutoRefresh
	}
	if jc.LogLevel != nil {
		cfg.LogLevel = *jc.LogLevel
	}
}
