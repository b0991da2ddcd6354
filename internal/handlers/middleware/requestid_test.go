package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestLogger(t *testing.T) {
	const callerID = "6f1c2d0e-8a4b-4c3d-9e2f-1a2b3c4d5e6f"

	tests := []struct {
		name   string
		header string
		keep   bool
	}{
		{name: "no header", header: ""},
		{name: "caller uuid", header: callerID, keep: true},
		{name: "not a uuid", header: "<script>", keep: false},
	}

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestLogger())
	router.GET("/ping", func(c *gin.Context) {
		ctxLogger := zerolog.Ctx(c.Request.Context())
		if ctxLogger.GetLevel() == zerolog.Disabled {
			c.String(http.StatusInternalServerError, "no logger")
			return
		}
		c.String(http.StatusOK, RequestID(c))
	})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/ping", nil)
			if tt.header != "" {
				req.Header.Set(HeaderRequestID, tt.header)
			}

			router.ServeHTTP(rec, req)

			require.Equal(t, http.StatusOK, rec.Code)
			id := rec.Header().Get(HeaderRequestID)
			assert.Equal(t, id, rec.Body.String())
			_, err := uuid.Parse(id)
			assert.NoError(t, err)
			if tt.keep {
				assert.Equal(t, tt.header, id)
			} else {
				assert.NotEqual(t, tt.header, id)
			}
		})
	}
}

func TestRequestLogger_UndefinedRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestLogger())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(HeaderRequestID))
}
