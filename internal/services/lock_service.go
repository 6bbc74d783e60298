package services

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"fx-eod-service/internal/database"
	"fx-eod-service/internal/models"
	"fx-eod-service/pkg/common"
)

const defaultLockTTLHours = 2

// LockService enforces single-terminal EOD sessions: at most one active lock
// per branch, refreshed on every step, swept after inactivity.
type LockService struct {
	DB  *gorm.DB
	Log *logrus.Logger
}

func NewLockService(db *gorm.DB) *LockService {
	return &LockService{DB: db, Log: database.Log}
}

// LockMetadata is what a rejected caller learns about the holding terminal.
// No session id, no credentials.
type LockMetadata struct {
	Operator  string    `json:"operator"`
	IP        string    `json:"ip"`
	CreatedAt time.Time `json:"created_at"`
}

// Acquire deletes stale locks for the branch and inserts a fresh active one.
// The caller runs it inside the step-1 transaction.
func (s *LockService) Acquire(tx *gorm.DB, branchID, eodID int, sessionID, operator, ip, userAgent string) error {
	if err := tx.Where("branch_id = ?", branchID).Delete(&models.EODSessionLock{}).Error; err != nil {
		return err
	}
	now := time.Now().UTC()
	lock := models.EODSessionLock{
		BranchId:     branchID,
		SessionID:    sessionID,
		Operator:     operator,
		EodID:        eodID,
		IP:           ip,
		UserAgent:    userAgent,
		IsActive:     true,
		LastActivity: now,
		CreatedAt:    now,
	}
	return tx.Create(&lock).Error
}

// ActiveLock returns the branch's active lock, if any.
func (s *LockService) ActiveLock(tx *gorm.DB, branchID int) (*models.EODSessionLock, error) {
	var lock models.EODSessionLock
	res := tx.Where("branch_id = ? AND is_active = ?", branchID, true).Limit(1).Find(&lock)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return &lock, nil
}

// Validate checks that sessionID holds the branch lock and refreshes
// last_activity. A different session gets session_conflict with the holder's
// metadata; a missing lock gets session_invalid.
func (s *LockService) Validate(tx *gorm.DB, branchID int, sessionID string) error {
	lock, err := s.ActiveLock(tx, branchID)
	if err != nil {
		return err
	}
	if lock == nil {
		return common.NewEODError(common.KindSessionInvalid, "no active EOD session for this branch")
	}
	if lock.SessionID != sessionID {
		return common.NewEODErrorWithData(
			common.KindSessionConflict,
			fmt.Sprintf("session lock held by another terminal (operator %s)", lock.Operator),
			LockMetadata{Operator: lock.Operator, IP: lock.IP, CreatedAt: lock.CreatedAt},
		)
	}
	return tx.Model(&models.EODSessionLock{}).
		Where("id = ?", lock.ID).
		Update("last_activity", time.Now().UTC()).Error
}

// Release removes the branch's lock rows. Callers that need atomicity
// (cancel, complete) run it inside their own transaction and abort on error.
func (s *LockService) Release(tx *gorm.DB, branchID int) error {
	return tx.Where("branch_id = ?", branchID).Delete(&models.EODSessionLock{}).Error
}

// LockTTL reads EOD_LOCK_TTL_HOURS, defaulting to 2h.
func LockTTL() time.Duration {
	if v := os.Getenv("EOD_LOCK_TTL_HOURS"); v != "" {
		if hours, err := strconv.Atoi(v); err == nil && hours > 0 {
			return time.Duration(hours) * time.Hour
		}
	}
	return defaultLockTTLHours * time.Hour
}

// Sweep removes locks idle beyond the TTL. Idempotent; removal does not
// cancel the EOD itself, the next start attempt cleans the orphan.
func (s *LockService) Sweep() {
	cutoff := time.Now().UTC().Add(-LockTTL())
	res := s.DB.Where("last_activity < ?", cutoff).Delete(&models.EODSessionLock{})
	if res.Error != nil {
		s.Log.WithError(res.Error).Error("session lock sweep failed")
		return
	}
	if res.RowsAffected > 0 {
		s.Log.WithFields(logrus.Fields{"removed": res.RowsAffected}).Info("expired session locks removed")
	}
}

// StartScheduler runs the sweep every 10 minutes.
func (s *LockService) StartScheduler() {
	c := cron.New()
	_, err := c.AddFunc("*/10 * * * *", s.Sweep)
	if err != nil {
		s.Log.WithError(err).Error("failed to schedule lock sweep")
		return
	}
	c.Start()
	s.Log.Info("session lock sweeper scheduled")
}
