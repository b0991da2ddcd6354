package storage

import (
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/charleshuang3/visitorlink/internal/gormw"
	"github.com/charleshuang3/visitorlink/internal/logging"
	"github.com/charleshuang3/visitorlink/internal/models"
)

var (
	logger = logging.Component("storage")
)

const (
	// 4am Daily
	defaultSweepSchedule = "0 4 * * *"
)

type SweeperConfig struct {
	// Schedule is a crontab expression.
	Schedule string `yaml:"schedule"`

	// RetentionDays deletes invitations that expired this many days ago.
	// 0 keeps them forever.
	RetentionDays uint `yaml:"retention_days"`
}

type SweepResult struct {
	Flagged int64
	Deleted int64
}

// SweepInvitations flags expired invitations for reporting and removes the
// ones past retention. Redemption never reads the flag.
func SweepInvitations(db *gormw.DB, retentionDays uint, now time.Time) (*SweepResult, error) {
	now = now.UTC()
	result := &SweepResult{}

	res := db.Model(&models.Invitation{}).
		Where("expired = ? AND used = ? AND expires_at <= ?", false, false, now).
		Update("expired", true)
	if res.Error != nil {
		return nil, res.Error
	}
	result.Flagged = res.RowsAffected

	if retentionDays > 0 {
		cutoff := now.Add(-time.Duration(retentionDays) * 24 * time.Hour)
		res = db.Where("expires_at < ?", cutoff).Delete(&models.Invitation{})
		if res.Error != nil {
			return nil, res.Error
		}
		result.Deleted = res.RowsAffected
	}

	return result, nil
}

// Invitations will exists in database forever if not register a sweeper
// with retention.
func RegisterInvitationSweeper(scheduler gocron.Scheduler, db *gormw.DB, cfg *SweeperConfig) error {
	schedule := cfg.Schedule
	if schedule == "" {
		schedule = defaultSweepSchedule
	}

	_, err := scheduler.NewJob(
		gocron.CronJob(schedule, false),
		gocron.NewTask(
			func() {
				logger.Info().Msg("Sweeping expired invitations")
				res, err := SweepInvitations(db, cfg.RetentionDays, time.Now())
				if err != nil {
					logger.Error().Err(err).Msg("Failed to sweep invitations")
					return
				}
				logger.Info().
					Int64("flagged", res.Flagged).
					Int64("deleted", res.Deleted).
					Msg("Swept invitations")
			},
		),
	)
	return err
}
