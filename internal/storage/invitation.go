package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charleshuang3/visitorlink/internal/gormw"
	"github.com/charleshuang3/visitorlink/internal/invitation"
	"github.com/charleshuang3/visitorlink/internal/models"
)

const (
	defaultStoreTimeout = 5 * time.Second
)

// InvitationStore is the gorm implementation of invitation.Store. It keeps
// no state between calls, every decision is read from the database.
type InvitationStore struct {
	db      *gormw.DB
	timeout time.Duration
}

func NewInvitationStore(db *gormw.DB, timeout time.Duration) *InvitationStore {
	if timeout <= 0 {
		timeout = defaultStoreTimeout
	}
	return &InvitationStore{
		db:      db,
		timeout: timeout,
	}
}

func (s *InvitationStore) withTimeout(ctx context.Context) (*gorm.DB, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	return s.db.WithContext(ctx), cancel
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", invitation.ErrStoreUnavailable, op, err)
}

// Create inserts the invitation if no record holds its token yet.
func (s *InvitationStore) Create(ctx context.Context, inv *models.Invitation) error {
	db, cancel := s.withTimeout(ctx)
	defer cancel()

	res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(inv)
	if res.Error != nil {
		return unavailable("create", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", invitation.ErrDuplicateToken, inv.Token)
	}
	return nil
}

// Lookup returns the invitation whatever its state.
func (s *InvitationStore) Lookup(ctx context.Context, token string) (*models.Invitation, error) {
	db, cancel := s.withTimeout(ctx)
	defer cancel()

	return lookup(db, token)
}

func lookup(db *gorm.DB, token string) (*models.Invitation, error) {
	res := &models.Invitation{}
	if err := db.Where("token = ?", token).First(res).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, invitation.ErrNotFound
		}
		return nil, unavailable("lookup", err)
	}
	return res, nil
}

// Redeem consumes the invitation exactly once.
//
// expires_at is immutable so the expiry check on the read is final. The
// used flag is flipped by a conditional update, a racing redeemer that
// loses sees no affected row and gets ErrAlreadyUsed.
func (s *InvitationStore) Redeem(ctx context.Context, token string, now time.Time) (*models.Invitation, error) {
	db, cancel := s.withTimeout(ctx)
	defer cancel()

	inv, err := lookup(db, token)
	if err != nil {
		return nil, err
	}

	if inv.Used {
		return nil, invitation.ErrAlreadyUsed
	}

	if inv.IsExpired(now) {
		if !inv.Expired {
			// best effort, only an index for reporting.
			if err := db.Model(inv).Update("expired", true).Error; err != nil {
				logger.Warn().Err(err).Str("issuer", inv.IssuerID).Msg("Failed to flag expired invitation")
			}
		}
		return nil, invitation.ErrExpired
	}

	usedAt := now.UTC()
	res := db.Model(&models.Invitation{}).
		Where("token = ? AND used = ?", token, false).
		Updates(map[string]any{
			"used":    true,
			"used_at": usedAt,
		})
	if res.Error != nil {
		return nil, unavailable("redeem", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, invitation.ErrAlreadyUsed
	}

	inv.Used = true
	inv.UsedAt = &usedAt
	return inv, nil
}

// ListByIssuer returns the invitations of a resident, newest first.
func (s *InvitationStore) ListByIssuer(ctx context.Context, issuerID string) ([]models.Invitation, error) {
	db, cancel := s.withTimeout(ctx)
	defer cancel()

	res := []models.Invitation{}
	if err := db.Where("issuer_id = ?", issuerID).Order("created_at DESC").Find(&res).Error; err != nil {
		return nil, unavailable("list", err)
	}
	return res, nil
}
