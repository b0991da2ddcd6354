// Package firewall reports clients that probe invitation tokens to
// charleshuang3/firewall, which bans them after repeated errors.
package firewall

import (
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	zlog "github.com/rs/zerolog"

	fw "github.com/charleshuang3/firewall"
	"github.com/charleshuang3/firewall/gcplog"
	"github.com/charleshuang3/firewall/ipgeo"
	"github.com/charleshuang3/firewall/opn"
	"github.com/charleshuang3/firewall/pf"
	"github.com/charleshuang3/firewall/ros"
	"github.com/charleshuang3/firewall/zerolog"

	"github.com/charleshuang3/visitorlink/internal/logging"
)

var (
	logger = logging.Component("firewall")
)

const (
	appName = "visitorlink"

	defaultBanMinutes       = 10
	defaultDurationInMinute = 10
	defaultCount            = 5

	// KeyHackingError is set on the gin context by handlers that saw a
	// request only a token guesser would send.
	KeyHackingError = "HACKING_ERROR"
)

var (
	supportedProviders = []string{"none", "ros", "opn", "pf"}
)

type ForgivableError struct {
	DurationInMinute uint `yaml:"duration_in_minute"`
	Count            uint `yaml:"count"`
}

type FirewallConfig struct {
	// Enabled turns on error counting, off by default.
	Enabled bool `yaml:"enabled"`

	Provider         string          `yaml:"provider"`
	ProviderIP       string          `yaml:"provider_ip"`
	ProviderUser     string          `yaml:"provider_user"`
	ProviderPassword string          `yaml:"provider_password"`
	ListUUID         string          `yaml:"list_uuid"`
	BanMinutes       uint            `yaml:"ban_minutes"`
	Whitelist        []string        `yaml:"whitelist"`
	Forgivable       ForgivableError `yaml:"forgivable"`

	CityDBFile        string `yaml:"city_db_file"`
	UpdatedCityDBFile string `yaml:"updated_city_db_file"`
	ASNDBFile         string `yaml:"asn_db_file"`
	UpdatedASNDBFile  string `yaml:"updated_asn_db_file"`

	GoogleKeyFile   string `yaml:"google_key_file"`
	GoogleProjectID string `yaml:"google_project_id"`
}

func (c *FirewallConfig) Validate() {
	if !c.Enabled {
		return
	}

	if !slices.Contains(supportedProviders, c.Provider) {
		logger.Fatal().Msgf("Provider %s is not supported", c.Provider)
	}

	if c.Provider != "none" {
		if c.ProviderIP == "" {
			logger.Fatal().Msg("ProviderIP is missing")
		}
		if c.ProviderUser == "" {
			logger.Fatal().Msg("ProviderUser is missing")
		}
		if c.ProviderPassword == "" {
			logger.Fatal().Msg("ProviderPassword is missing")
		}
		if c.Provider == "opn" && c.ListUUID == "" {
			logger.Fatal().Msg("ListUUID is missing")
		}
	}

	if c.CityDBFile == "" || c.UpdatedCityDBFile == "" {
		logger.Fatal().Msg("City DB files are missing")
	}

	if c.ASNDBFile == "" || c.UpdatedASNDBFile == "" {
		logger.Fatal().Msg("ASN DB files are missing")
	}

	c.applyDefault()
}

func (c *FirewallConfig) applyDefault() {
	if c.BanMinutes == 0 {
		c.BanMinutes = defaultBanMinutes
	}

	if c.Forgivable.DurationInMinute == 0 {
		c.Forgivable.DurationInMinute = defaultDurationInMinute
	}

	if c.Forgivable.Count == 0 {
		c.Forgivable.Count = defaultCount
	}
}

type Firewall struct {
	fw *fw.Firewall
}

// New returns nil when the firewall is disabled.
func New(conf *FirewallConfig) *Firewall {
	if !conf.Enabled {
		return nil
	}

	var provider fw.IFirewall
	switch conf.Provider {
	case "ros":
		provider = ros.New(conf.ProviderIP, conf.ProviderUser, conf.ProviderPassword)
	case "pf":
		provider = pf.New(conf.ProviderIP, conf.ProviderUser, conf.ProviderPassword)
	case "opn":
		provider = opn.New(conf.ProviderIP, conf.ProviderUser, conf.ProviderPassword, conf.ListUUID)
	default:
		// nil provider only counts and logs.
	}

	var fwlogger fw.ILogger
	if conf.GoogleKeyFile != "" {
		var err error
		fwlogger, err = gcplog.New(conf.GoogleKeyFile, conf.GoogleProjectID, appName)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to create gcp logger")
		}
	} else {
		fwlogger = zerolog.New(logger, zlog.InfoLevel, appName)
	}

	geo, err := ipgeo.NewAutoUpdateMMIPGeo(
		conf.CityDBFile,
		conf.UpdatedCityDBFile,
		conf.ASNDBFile,
		conf.UpdatedASNDBFile)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load ip geo databases")
	}

	return &Firewall{
		fw: fw.New(
			conf.Whitelist,
			provider,
			fwlogger,
			geo,
			fw.ForgivableError{
				Duration:    time.Duration(conf.Forgivable.DurationInMinute) * time.Minute,
				Count:       int(conf.Forgivable.Count),
				BanInMinute: int(conf.BanMinutes),
			}),
	}
}

// Flag marks the request as suspicious, the middleware reports it after the
// handler returns.
func Flag(c *gin.Context, reason string) {
	c.Set(KeyHackingError, c.FullPath()+" "+reason)
}

func (f *Firewall) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if reason, ok := c.Get(KeyHackingError); ok {
			f.fw.LogIPError(c.ClientIP(), reason.(string))
			return
		}

		// scanners walk paths looking for tokens.
		if c.Writer.Status() == http.StatusNotFound {
			f.fw.LogIPError(c.ClientIP(), "undefined_url")
		}
	}
}
