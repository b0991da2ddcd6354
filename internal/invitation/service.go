package invitation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/charleshuang3/visitorlink/internal/logging"
	"github.com/charleshuang3/visitorlink/internal/models"
)

var (
	logger = logging.Component("invitation")
)

const (
	// MaxCreateAttempts bounds token regeneration on collision.
	MaxCreateAttempts = 3

	visitorPath = "/visitante/"
)

// Store persists invitations and performs the redemption transition
// atomically.
type Store interface {
	Create(ctx context.Context, invitation *models.Invitation) error
	Lookup(ctx context.Context, token string) (*models.Invitation, error)
	Redeem(ctx context.Context, token string, now time.Time) (*models.Invitation, error)
	ListByIssuer(ctx context.Context, issuerID string) ([]models.Invitation, error)
}

// Service composes Issuer and Store on the server clock.
type Service struct {
	issuer *Issuer
	store  Store
	origin string

	// tests use this to override clock
	now func() time.Time
}

func NewService(issuer *Issuer, store Store, origin string) *Service {
	return &Service{
		issuer: issuer,
		store:  store,
		origin: strings.TrimRight(origin, "/"),
		now:    time.Now,
	}
}

// URL is the shareable link for token.
func (s *Service) URL(token string) string {
	return s.origin + visitorPath + token
}

// Create issues and persists a new invitation for issuerID. The record is
// durable when Create returns.
func (s *Service) Create(ctx context.Context, issuerID, visitorName string, validityDays int) (*models.Invitation, error) {
	if issuerID == "" {
		return nil, fmt.Errorf("%w: issuer is empty", ErrInvalidInput)
	}

	var created *models.Invitation
	err := retry.Do(
		func() error {
			now := s.now().UTC()
			issued, err := s.issuer.Issue(visitorName, validityDays, now)
			if err != nil {
				return err
			}

			invitation := &models.Invitation{
				Token:        issued.Token,
				IssuerID:     issuerID,
				VisitorName:  strings.TrimSpace(visitorName),
				ValidityDays: validityDays,
				CreatedAt:    now,
				ExpiresAt:    issued.ExpiresAt,
			}
			if err := s.store.Create(ctx, invitation); err != nil {
				if errors.Is(err, ErrDuplicateToken) {
					logger.Warn().Str("issuer", issuerID).Msg("Token collision, regenerating")
				}
				return err
			}

			created = invitation
			return nil
		},
		retry.Attempts(MaxCreateAttempts),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, ErrDuplicateToken)
		}),
		retry.Delay(0),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	)
	if err != nil {
		// retry-go returns the bare context error when ctx ends first.
		if ctx.Err() != nil && !errors.Is(err, ErrStoreUnavailable) {
			return nil, fmt.Errorf("%w: create: %v", ErrStoreUnavailable, err)
		}
		return nil, err
	}

	return created, nil
}

func (s *Service) Lookup(ctx context.Context, token string) (*models.Invitation, error) {
	return s.store.Lookup(ctx, token)
}

// Redeem consumes token on the server clock.
func (s *Service) Redeem(ctx context.Context, token string) (*models.Invitation, error) {
	return s.store.Redeem(ctx, token, s.now().UTC())
}

func (s *Service) ListByIssuer(ctx context.Context, issuerID string) ([]models.Invitation, error) {
	return s.store.ListByIssuer(ctx, issuerID)
}

// State derives the live state of invitation on the server clock.
func (s *Service) State(invitation *models.Invitation) models.InvitationState {
	return invitation.State(s.now())
}

// ValidityLabel is the human label shown to the resident, e.g. "2 dias".
func ValidityLabel(days int) string {
	if days == 1 {
		return "1 dia"
	}
	return fmt.Sprintf("%d dias", days)
}

// ShareText is the message residents forward to their visitor.
func ShareText(url string) string {
	return "Você foi autorizado a visitar o condomínio. Use este link: " + url
}
