package firewall

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/charleshuang3/firewall"
	"github.com/charleshuang3/firewall/ipgeo"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestFirewallConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		config FirewallConfig
	}{
		{
			name:   "disabled",
			config: FirewallConfig{},
		},
		{
			name: "log only",
			config: FirewallConfig{
				Enabled:           true,
				Provider:          "none",
				CityDBFile:        "/path/to/city.mmdb",
				UpdatedCityDBFile: "/path/to/updated_city.mmdb",
				ASNDBFile:         "/path/to/asn.mmdb",
				UpdatedASNDBFile:  "/path/to/updated_asn.mmdb",
			},
		},
		{
			name: "full",
			config: FirewallConfig{
				Enabled:          true,
				Provider:         "opn",
				ProviderIP:       "192.168.1.1",
				ProviderUser:     "admin",
				ProviderPassword: "password",
				ListUUID:         "12345",
				Whitelist:        []string{"192.168.1.1", "192.168.1.2"},
				BanMinutes:       10,
				Forgivable: ForgivableError{
					DurationInMinute: 10,
					Count:            3,
				},

				CityDBFile:        "/path/to/city.mmdb",
				UpdatedCityDBFile: "/path/to/updated_city.mmdb",
				ASNDBFile:         "/path/to/asn.mmdb",
				UpdatedASNDBFile:  "/path/to/updated_asn.mmdb",

				GoogleKeyFile:   "/path/to/key.json",
				GoogleProjectID: "project-id",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.config.Validate()
		})
	}
}

func TestFirewallConfig_applyDefault(t *testing.T) {
	config := FirewallConfig{}
	config.applyDefault()

	assert.Equal(t, FirewallConfig{
		BanMinutes: defaultBanMinutes,
		Forgivable: ForgivableError{
			DurationInMinute: defaultDurationInMinute,
			Count:            defaultCount,
		},
	}, config)
}

func TestNew_Disabled(t *testing.T) {
	assert.Nil(t, New(&FirewallConfig{}))
}

// MockILogger is a mock implementation of ILogger for testing.
type MockILogger struct {
	mu   sync.Mutex
	logs []LogEntry
	wg   sync.WaitGroup
}

type LogEntry struct {
	IP     string
	action string
}

func (m *MockILogger) Log(ip string, jailUntil time.Time, reasons []string, action string, geo *ipgeo.IPGeo) {
	m.mu.Lock()
	m.logs = append(m.logs, LogEntry{
		IP:     ip,
		action: action,
	})
	m.mu.Unlock()
	m.wg.Done()
}

func setupTestFirewallForMiddleware(t *testing.T) (*MockILogger, *gin.Engine) {
	t.Helper()

	logger := &MockILogger{}
	f := &Firewall{
		fw: firewall.New([]string{}, nil, logger, nil, firewall.ForgivableError{
			Duration:    time.Minute,
			Count:       3,
			BanInMinute: 10,
		}),
	}

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(f.Middleware())
	router.GET("/ok", func(c *gin.Context) {})
	router.GET("/visitante/:token", func(c *gin.Context) {
		Flag(c, "unknown token")
		c.Status(http.StatusNotFound)
	})
	router.GET("/500", func(c *gin.Context) {
		// no action on firewall
		c.Status(http.StatusInternalServerError)
	})

	return logger, router
}

func TestMiddleware_NoAction(t *testing.T) {
	for _, path := range []string{"/ok", "/500"} {
		t.Run(path, func(t *testing.T) {
			logger, router := setupTestFirewallForMiddleware(t)

			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, path, nil)

			router.ServeHTTP(rec, req)

			// give some time if go func run.
			time.Sleep(time.Millisecond * 100)

			logger.mu.Lock()
			defer logger.mu.Unlock()
			assert.Len(t, logger.logs, 0)
		})
	}
}

func TestMiddleware_LogErr(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{
			name: "undefined url",
			path: "/not-a-route",
		},
		{
			name: "flagged",
			path: "/visitante/guess-123",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, router := setupTestFirewallForMiddleware(t)
			logger.wg.Add(1)

			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)

			router.ServeHTTP(rec, req)

			logger.wg.Wait()

			logger.mu.Lock()
			defer logger.mu.Unlock()
			assert.Len(t, logger.logs, 1)
			assert.Equal(t, "count error", logger.logs[0].action)
		})
	}
}
