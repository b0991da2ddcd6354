// Package residentauth authenticates residents by the bearer token their
// identity provider issued. The resident identity is the token subject and
// is trusted as opaque.
package residentauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/gin-gonic/gin"
	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jwt"

	"github.com/charleshuang3/visitorlink/internal/logging"
)

var (
	logger = logging.Component("resident-auth")

	errNoSubject = errors.New("token has no subject")
)

const (
	keyResidentID = "RESIDENT_ID"
)

type Config struct {
	// Issuer is the url of the OIDC Provider residents log in with.
	Issuer string `yaml:"issuer" env:"RESIDENT_AUTH_ISSUER"`

	// Audience is the client id tokens must be issued to. Empty skips the
	// audience check.
	Audience string `yaml:"audience"`

	// PublicKeyPEM is the RSA public key of the issuer. When set, tokens are
	// verified offline and discovery is skipped.
	PublicKeyPEM string `yaml:"public_key_pem"`
}

func (c *Config) Validate() {
	if c.Issuer == "" {
		logger.Fatal().Msg("ResidentAuthConfig: Issuer is missing")
	}
}

// Verifier returns the resident id carried by a raw bearer token.
type Verifier interface {
	Verify(ctx context.Context, rawToken string) (string, error)
}

// NewVerifier verifies against a static key when configured, otherwise
// against the keys published by the issuer.
func NewVerifier(ctx context.Context, cfg *Config) (Verifier, error) {
	if cfg.PublicKeyPEM != "" {
		return NewStaticKeyVerifier(cfg)
	}

	provider, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to discover oidc provider %s: %w", cfg.Issuer, err)
	}

	return NewOIDCVerifier(provider.Verifier(oidcConfig(cfg))), nil
}

func oidcConfig(cfg *Config) *oidc.Config {
	return &oidc.Config{
		ClientID:          cfg.Audience,
		SkipClientIDCheck: cfg.Audience == "",
	}
}

type staticKeyVerifier struct {
	publicKey jwk.Key
	issuer    string
	audience  string
}

func NewStaticKeyVerifier(cfg *Config) (Verifier, error) {
	pub, err := jwk.ParseKey([]byte(cfg.PublicKeyPEM), jwk.WithPEM(true))
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}

	return &staticKeyVerifier{
		publicKey: pub,
		issuer:    cfg.Issuer,
		audience:  cfg.Audience,
	}, nil
}

func (v *staticKeyVerifier) Verify(_ context.Context, rawToken string) (string, error) {
	opts := []jwt.ParseOption{
		jwt.WithKey(jwa.RS256(), v.publicKey),
		jwt.WithIssuer(v.issuer),
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	token, err := jwt.Parse([]byte(rawToken), opts...)
	if err != nil {
		return "", err
	}

	sub, ok := token.Subject()
	if !ok || sub == "" {
		return "", errNoSubject
	}
	return sub, nil
}

type oidcVerifier struct {
	verifier *oidc.IDTokenVerifier
}

func NewOIDCVerifier(verifier *oidc.IDTokenVerifier) Verifier {
	return &oidcVerifier{verifier: verifier}
}

func (v *oidcVerifier) Verify(ctx context.Context, rawToken string) (string, error) {
	token, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return "", err
	}
	if token.Subject == "" {
		return "", errNoSubject
	}
	return token.Subject, nil
}

// Middleware rejects requests without a valid resident token.
func Middleware(v Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		rawToken, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || rawToken == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		residentID, err := v.Verify(c.Request.Context(), rawToken)
		if err != nil {
			logger.Debug().Err(err).Msg("Rejected resident token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(keyResidentID, residentID)
		c.Next()
	}
}

// ResidentID is the authenticated resident, empty outside Middleware.
func ResidentID(c *gin.Context) string {
	return c.GetString(keyResidentID)
}
