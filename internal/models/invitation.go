package models

import "time"

type InvitationState string

const (
	StatePending  InvitationState = "pending"
	StateRedeemed InvitationState = "redeemed"
	StateExpired  InvitationState = "expired"
)

// Invitation is a single-use visitor link issued by a resident.
type Invitation struct {
	Token        string `gorm:"primarykey"`
	IssuerID     string `gorm:"index"` // with index, resident easy to list their links
	VisitorName  string
	ValidityDays int
	CreatedAt    time.Time
	ExpiresAt    time.Time
	Used         bool
	UsedAt       *time.Time
	// Expired is only an index for reporting, updated by the sweeper or a
	// failed redemption. Use State() to decide.
	Expired bool `gorm:"index"`
}

func (i *Invitation) IsExpired(now time.Time) bool {
	return !now.Before(i.ExpiresAt)
}

func (i *Invitation) State(now time.Time) InvitationState {
	if i.Used {
		return StateRedeemed
	}
	if i.IsExpired(now) {
		return StateExpired
	}
	return StatePending
}
