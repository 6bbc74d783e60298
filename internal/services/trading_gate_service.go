package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"fx-eod-service/internal/database"
	"fx-eod-service/internal/models"
)

const tradingGateCacheTTL = 30 * time.Second

// LockState is the trading front end's view of a branch lock: whether the
// branch is closed for end-of-day, and which run closed it.
type LockState struct {
	IsLocked bool      `json:"is_locked"`
	EodID    int       `json:"eod_id,omitempty"`
	LockDate time.Time `json:"lock_date,omitempty"`
}

// TradingGateService answers "is this branch locked for end-of-day?" for the
// trading front end. Answers are cached in redis for a short window; Start,
// Cancel and Complete invalidate the key so the gate flips immediately.
type TradingGateService struct {
	DB    *gorm.DB
	Redis *redis.Client
	Log   *logrus.Logger
}

func NewTradingGateService(db *gorm.DB, redisClient *redis.Client) *TradingGateService {
	return &TradingGateService{DB: db, Redis: redisClient, Log: database.Log}
}

func tradingGateKey(branchID int) string {
	return fmt.Sprintf("eod:lock:%d", branchID)
}

// CheckLock reports the branch's lock state, including the locking run's id
// and start time. Redis misses and redis failures both fall through to the
// database.
func (s *TradingGateService) CheckLock(ctx context.Context, branchID int) (LockState, error) {
	if s.Redis != nil {
		cached, err := s.Redis.Get(ctx, tradingGateKey(branchID)).Result()
		if err == nil {
			var state LockState
			if jerr := json.Unmarshal([]byte(cached), &state); jerr == nil {
				return state, nil
			}
			s.Log.Warn("trading gate cache entry unreadable, falling back to database")
		} else if err != redis.Nil {
			s.Log.WithError(err).Warn("trading gate cache read failed, falling back to database")
		}
	}

	var eod models.EODStatus
	res := s.DB.Where("branch_id = ? AND status = ? AND is_locked = ?", branchID, models.EODStatusProcessing, true).
		Order("id DESC").
		Limit(1).
		Find(&eod)
	if res.Error != nil {
		return LockState{}, res.Error
	}
	state := LockState{}
	if res.RowsAffected > 0 {
		state = LockState{IsLocked: true, EodID: eod.ID, LockDate: eod.StartedAt}
	}

	if s.Redis != nil {
		if data, err := json.Marshal(state); err == nil {
			if err := s.Redis.Set(ctx, tradingGateKey(branchID), data, tradingGateCacheTTL).Err(); err != nil {
				s.Log.WithError(err).Warn("trading gate cache write failed")
			}
		}
	}
	return state, nil
}

// Invalidate drops the cached answer after a lock transition.
func (s *TradingGateService) Invalidate(ctx context.Context, branchID int) {
	if s.Redis == nil {
		return
	}
	if err := s.Redis.Del(ctx, tradingGateKey(branchID)).Err(); err != nil {
		s.Log.WithError(err).Warn("trading gate cache invalidation failed")
	}
}
