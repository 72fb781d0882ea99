package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"botcontrol/internal/models"
	"botcontrol/pkg/crypto"
	"botcontrol/pkg/exchange"
)

// Store is the engine's database surface. It satisfies the safety gate's
// query interface and adds the bot, trade and audit-log persistence the
// executor needs.
type Store struct {
	db   *gorm.DB
	keys *crypto.KeyManager
}

func NewStore(db *gorm.DB, keys *crypto.KeyManager) *Store {
	return &Store{db: db, keys: keys}
}

// SystemKillSwitch reports whether the global kill switch parameter is active.
func (s *Store) SystemKillSwitch(ctx context.Context) (bool, error) {
	var param models.SystemParams
	err := s.db.WithContext(ctx).
		Where("name = ?", models.ParamKillSwitch).
		First(&param).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return param.IsActive, nil
}

// UserEmergencyStop reports whether the user has pulled their emergency stop.
func (s *Store) UserEmergencyStop(ctx context.Context, userID uint) (bool, error) {
	var setting models.UserSetting
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&setting).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return setting.EmergencyStop, nil
}

func (s *Store) RecentClosedTrades(ctx context.Context, botID uint, limit int) ([]models.TradeRecord, error) {
	var trades []models.TradeRecord
	err := s.db.WithContext(ctx).
		Where("bot_id = ? AND status = ?", botID, models.TradeStatusClosed).
		Order("executed_at DESC").
		Limit(limit).
		Find(&trades).Error
	return trades, err
}

func (s *Store) RealizedPnlSince(ctx context.Context, botID uint, since time.Time) (float64, error) {
	var total float64
	err := s.db.WithContext(ctx).
		Model(&models.TradeRecord{}).
		Where("bot_id = ? AND status = ? AND executed_at >= ?", botID, models.TradeStatusClosed, since).
		Select("COALESCE(SUM(pnl), 0)").
		Scan(&total).Error
	return total, err
}

func (s *Store) TradeCountSince(ctx context.Context, botID uint, since time.Time) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.TradeRecord{}).
		Where("bot_id = ? AND executed_at >= ? AND status <> ?", botID, since, models.TradeStatusFailed).
		Count(&count).Error
	return count, err
}

func (s *Store) OpenPositionCount(ctx context.Context, botID uint) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.TradeRecord{}).
		Where("bot_id = ? AND status = ?", botID, models.TradeStatusOpen).
		Count(&count).Error
	return count, err
}

// BotByID loads one bot scoped to its owner.
func (s *Store) BotByID(ctx context.Context, botID, userID uint) (*models.BotConfig, error) {
	var bot models.BotConfig
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", botID, userID).
		First(&bot).Error
	if err != nil {
		return nil, err
	}
	return &bot, nil
}

// RunningBots lists every bot eligible for a scheduled run.
func (s *Store) RunningBots(ctx context.Context) ([]models.BotConfig, error) {
	var bots []models.BotConfig
	err := s.db.WithContext(ctx).
		Where("status = ?", models.BotStatusRunning).
		Order("id ASC").
		Find(&bots).Error
	return bots, err
}

// PauseBot transitions the bot to paused and records why. This is the only
// status transition the engine performs on its own.
func (s *Store) PauseBot(ctx context.Context, botID uint, reason string) error {
	return s.db.WithContext(ctx).
		Model(&models.BotConfig{}).
		Where("id = ?", botID).
		Updates(map[string]interface{}{
			"status":        models.BotStatusPaused,
			"paused_reason": reason,
		}).Error
}

// RecordTrade appends one trade row.
func (s *Store) RecordTrade(ctx context.Context, trade *models.TradeRecord) error {
	return s.db.WithContext(ctx).Create(trade).Error
}

// BumpTradeCounters recomputes the bot's aggregate counters from the trade
// table. Idempotent: it runs after every fill and every close, and the win
// rate is derived from closed trades only so an open position never skews it.
func (s *Store) BumpTradeCounters(ctx context.Context, botID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var total, closed, winning int64
		var totalPnl float64
		if err := tx.Model(&models.TradeRecord{}).
			Where("bot_id = ? AND status <> ?", botID, models.TradeStatusFailed).
			Count(&total).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.TradeRecord{}).
			Where("bot_id = ? AND status = ?", botID, models.TradeStatusClosed).
			Count(&closed).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.TradeRecord{}).
			Where("bot_id = ? AND status = ? AND pnl > 0", botID, models.TradeStatusClosed).
			Count(&winning).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.TradeRecord{}).
			Where("bot_id = ? AND status = ?", botID, models.TradeStatusClosed).
			Select("COALESCE(SUM(pnl), 0)").
			Scan(&totalPnl).Error; err != nil {
			return err
		}

		winRate := 0.0
		if closed > 0 {
			winRate = float64(winning) / float64(closed) * 100
		}

		return tx.Model(&models.BotConfig{}).
			Where("id = ?", botID).
			Updates(map[string]interface{}{
				"total_trades":   total,
				"winning_trades": winning,
				"win_rate":       winRate,
				"total_pnl":      totalPnl,
			}).Error
	})
}

// LogActivity appends one audit-trail row. Failures here are reported but the
// caller must not let them abort the run: losing a log line is better than
// losing an order acknowledgement.
func (s *Store) LogActivity(ctx context.Context, log *models.ActivityLog) error {
	return s.db.WithContext(ctx).Create(log).Error
}

// Credentials loads and decrypts the user's active API key pair for the given
// exchange. The plaintext lives only in the returned value.
func (s *Store) Credentials(ctx context.Context, userID uint, exchangeName string) (exchange.Credentials, error) {
	var cred models.ExchangeCredential
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND exchange = ? AND is_active = ?", userID, exchangeName, true).
		First(&cred).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return exchange.Credentials{}, fmt.Errorf("no active %s credentials for user %d", exchangeName, userID)
	}
	if err != nil {
		return exchange.Credentials{}, err
	}

	apiKey, err := s.keys.Decrypt(cred.APIKeyEnc)
	if err != nil {
		return exchange.Credentials{}, fmt.Errorf("decrypt api key: %w", err)
	}
	apiSecret, err := s.keys.Decrypt(cred.APISecretEnc)
	if err != nil {
		return exchange.Credentials{}, fmt.Errorf("decrypt api secret: %w", err)
	}
	return exchange.Credentials{APIKey: apiKey, APISecret: apiSecret}, nil
}
