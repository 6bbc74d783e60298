package services

import (
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"fx-eod-service/internal/database"
	"fx-eod-service/internal/models"
)

const archiveBatchSize = 500

// ArchiveService moves settled transactions older than 4 months into
// archived_fx_transactions. Only rows already inside a completed EOD window
// are eligible, so reconciliation history stays replayable.
type ArchiveService struct {
	DB  *gorm.DB
	Log *logrus.Logger
}

func NewArchiveService(db *gorm.DB) *ArchiveService {
	return &ArchiveService{DB: db, Log: database.Log}
}

// ArchiveTransactions runs one archive pass across all branches.
func (s *ArchiveService) ArchiveTransactions() {
	cutoff := time.Now().UTC().AddDate(0, -4, 0)

	var branches []models.Branch
	if err := s.DB.Find(&branches).Error; err != nil {
		s.Log.WithError(err).Error("archive: branch listing failed")
		return
	}

	for _, branch := range branches {
		if err := s.archiveBranch(branch, cutoff); err != nil {
			s.Log.WithError(err).WithFields(logrus.Fields{"branch_id": branch.ID}).Error("archive pass failed")
		}
	}
}

func (s *ArchiveService) archiveBranch(branch models.Branch, cutoff time.Time) error {
	// Never archive past the last reconciled point: anything at or after the
	// latest completed EOD's business_end_time may still be needed as a
	// window anchor.
	var latest models.EODStatus
	res := s.DB.Where("branch_id = ? AND status = ?", branch.ID, models.EODStatusCompleted).
		Order("business_end_time DESC").
		Limit(1).
		Find(&latest)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return nil
	}
	boundary := cutoff
	if latest.BusinessEndTime.Before(boundary) {
		boundary = latest.BusinessEndTime
	}

	var old []models.Transaction
	err := s.DB.Where("branch_id = ? AND created_at < ? AND status IN ?", branch.ID, boundary, changeStatuses).
		Order("created_at ASC, id ASC").
		Limit(archiveBatchSize).
		Find(&old).Error
	if err != nil {
		return err
	}
	if len(old) == 0 {
		return nil
	}

	archived := make([]models.ArchivedTransaction, 0, len(old))
	ids := make([]int, 0, len(old))
	for _, trx := range old {
		archived = append(archived, models.ArchivedTransaction{
			BranchId:      trx.BranchId,
			Currency:      trx.Currency,
			TrxType:       trx.TrxType,
			Amount:        trx.Amount,
			Rate:          trx.Rate,
			LocalAmount:   trx.LocalAmount,
			Status:        trx.Status,
			BalanceBefore: trx.BalanceBefore,
			BalanceAfter:  trx.BalanceAfter,
			ReferenceNo:   trx.ReferenceNo,
			Description:   trx.Description,
			CreatedBy:     trx.CreatedBy,
			CreatedAt:     trx.CreatedAt,
			UpdatedAt:     trx.UpdatedAt,
		})
		ids = append(ids, trx.ID)
	}

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&archived).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Transaction{}, ids).Error
	})
	if err != nil {
		return err
	}

	s.Log.WithFields(logrus.Fields{"branch_id": branch.ID, "count": len(old)}).Info("transactions archived")
	return nil
}

// StartScheduler runs the archive pass daily at midnight.
func (s *ArchiveService) StartScheduler() {
	c := cron.New()
	_, err := c.AddFunc("0 0 * * *", s.ArchiveTransactions)
	if err != nil {
		s.Log.WithError(err).Error("failed to schedule archive task")
		return
	}
	c.Start()
	s.Log.Info("archive scheduler started (daily at 00:00)")
}
