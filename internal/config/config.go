package config

import (
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v2"

	"github.com/charleshuang3/visitorlink/internal/gormw"
	"github.com/charleshuang3/visitorlink/internal/handlers/firewall"
	"github.com/charleshuang3/visitorlink/internal/handlers/invitations"
	"github.com/charleshuang3/visitorlink/internal/handlers/residentauth"
	"github.com/charleshuang3/visitorlink/internal/logging"
	"github.com/charleshuang3/visitorlink/internal/storage"
)

var (
	logger = logging.Component("config")
)

type Config struct {
	Port    uint   `yaml:"port" env:"PORT"`
	GinMode string `yaml:"gin_mode" env:"GIN_MODE"`

	// PublicOrigin is where visitors open their links, e.g.
	// https://condominio.example.com
	PublicOrigin string `yaml:"public_origin" env:"PUBLIC_ORIGIN"`

	// StoreTimeout bounds every invitation store call.
	StoreTimeout time.Duration `yaml:"store_timeout"`

	Log          logging.Config          `yaml:"log"`
	DB           gormw.Config            `yaml:"db"`
	ResidentAuth residentauth.Config     `yaml:"resident_auth"`
	Invitations  invitations.Config      `yaml:"invitations"`
	Sweeper      storage.SweeperConfig   `yaml:"sweeper"`
	Firewall     firewall.FirewallConfig `yaml:"firewall"`
}

// LoadConfig reads the yaml file at path, then lets environment variables
// override the fields that declare one.
func LoadConfig(path string) *Config {
	cfg := &Config{}

	file, err := os.Open(path)
	if err != nil {
		logger.Fatal().Err(err).Msgf("failed to open config file: %s", path)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(cfg); err != nil {
		logger.Fatal().Err(err).Msg("failed to decode config file")
	}

	if err := env.Parse(cfg); err != nil {
		logger.Fatal().Err(err).Msg("failed to parse environment variables")
	}

	cfg.validate()

	return cfg
}

func (c *Config) validate() {
	if c.Port == 0 {
		logger.Fatal().Msg("Port is missing")
	}

	if c.GinMode == "" {
		logger.Fatal().Msg("GinMode is missing")
	}

	u, err := url.Parse(c.PublicOrigin)
	if c.PublicOrigin == "" || err != nil || u.Scheme == "" || u.Host == "" {
		logger.Fatal().Msgf("PublicOrigin %q is not an absolute url", c.PublicOrigin)
	}
	c.PublicOrigin = strings.TrimSuffix(c.PublicOrigin, "/")

	c.ResidentAuth.Validate()
	c.Firewall.Validate()
}
