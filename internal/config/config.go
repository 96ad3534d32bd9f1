// Package config loads service configuration once at startup. Everything
// downstream receives an immutable Config value; nothing reads environment
// state after boot.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"

	"listimport/internal/listing"
)

// Config is the frozen runtime configuration.
type Config struct {
	Addr              string
	StatePath         string
	DatabaseURL       string
	GeocoderURL       string
	MediaDir          string
	UploadDir         string
	OperatorToken     string
	FingerprintSecret string
	SessionTTL        time.Duration
	DefaultLocation   listing.Location
}

// Load reads listimport.yaml (optional) and LISTIMPORT_* environment
// variables, env taking precedence.
func Load() (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("listimport")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("addr", ":8080")
	v.SetDefault("state_path", "listimport.db")
	v.SetDefault("database_url", "")
	v.SetDefault("geocoder_url", "")
	v.SetDefault("media_dir", "")
	v.SetDefault("upload_dir", "")
	v.SetDefault("operator_token", "")
	v.SetDefault("fingerprint_secret", "")
	v.SetDefault("session_ttl", "12h")
	v.SetDefault("location.street", "")
	v.SetDefault("location.city", "")
	v.SetDefault("location.region", "")
	v.SetDefault("location.country", "")
	v.SetDefault("location.postal", "")

	v.SetConfigName("listimport")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, err
		}
	}

	return Config{
		Addr:              v.GetString("addr"),
		StatePath:         v.GetString("state_path"),
		DatabaseURL:       v.GetString("database_url"),
		GeocoderURL:       v.GetString("geocoder_url"),
		MediaDir:          v.GetString("media_dir"),
		UploadDir:         v.GetString("upload_dir"),
		OperatorToken:     v.GetString("operator_token"),
		FingerprintSecret: v.GetString("fingerprint_secret"),
		SessionTTL:        v.GetDuration("session_ttl"),
		DefaultLocation: listing.Location{
			Street:  v.GetString("location.street"),
			City:    v.GetString("location.city"),
			Region:  v.GetString("location.region"),
			Country: v.GetString("location.country"),
			Postal:  v.GetString("location.postal"),
		},
	}, nil
}
