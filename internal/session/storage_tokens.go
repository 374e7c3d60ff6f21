package session

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type dashboardToken struct {
	ClientID      string    `gorm:"column:client_id;primaryKey;type:text"`
	UserID        string    `gorm:"column:user_id;type:text;not null;index"`
	AccessSealed  []byte    `gorm:"column:access_sealed;not null"`
	RefreshSealed []byte    `gorm:"column:refresh_sealed;not null"`
	ExpiresAt     time.Time `gorm:"column:expires_at;not null"`
	UpdatedAt     time.Time `gorm:"column:updated_at;not null"`
}

func (dashboardToken) TableName() string { return "dashboard_tokens" }

// DBTokenStore keeps provider tokens in the dashboard_tokens table, sealed.
type DBTokenStore struct {
	db     *gorm.DB
	sealer *Sealer
	log    *zap.Logger
}

func NewDBTokenStore(db *gorm.DB, sealer *Sealer, log *zap.Logger) *DBTokenStore {
	return &DBTokenStore{db: db, sealer: sealer, log: log.Named("session.tokens")}
}

func (s *DBTokenStore) Load(ctx context.Context, clientID string) (*TokenRecord, error) {
	var row dashboardToken
	err := s.db.WithContext(ctx).Where("client_id = ?", clientID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	access, err := s.sealer.Open(row.AccessSealed)
	if err != nil {
		s.log.Warn("discarding unreadable token row", zap.String("client_id", clientID))
		_ = s.Delete(ctx, clientID)
		return nil, nil
	}
	refresh, err := s.sealer.Open(row.RefreshSealed)
	if err != nil {
		s.log.Warn("discarding unreadable token row", zap.String("client_id", clientID))
		_ = s.Delete(ctx, clientID)
		return nil, nil
	}
	return &TokenRecord{
		UserID:       row.UserID,
		AccessToken:  string(access),
		RefreshToken: string(refresh),
		ExpiresAt:    row.ExpiresAt,
	}, nil
}

func (s *DBTokenStore) Save(ctx context.Context, clientID string, rec TokenRecord) error {
	access, err := s.sealer.Seal([]byte(rec.AccessToken))
	if err != nil {
		return err
	}
	refresh, err := s.sealer.Seal([]byte(rec.RefreshToken))
	if err != nil {
		return err
	}
	row := dashboardToken{
		ClientID:      clientID,
		UserID:        rec.UserID,
		AccessSealed:  access,
		RefreshSealed: refresh,
		ExpiresAt:     rec.ExpiresAt.UTC(),
		UpdatedAt:     time.Now().UTC(),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "client_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_id", "access_sealed", "refresh_sealed", "expires_at", "updated_at"}),
	}).Create(&row).Error
}

func (s *DBTokenStore) Delete(ctx context.Context, clientID string) error {
	return s.db.WithContext(ctx).Where("client_id = ?", clientID).Delete(&dashboardToken{}).Error
}

// AutoMigrate creates the token table. Used by tests and sqlite setups where
// the SQL migrations do not run.
func (s *DBTokenStore) AutoMigrate() error {
	return s.db.AutoMigrate(&dashboardToken{})
}

func Models() []any { return []any{&dashboardToken{}} }

// SweepTokens deletes token rows not written since before. Clients that come
// back after that start unauthenticated.
func SweepTokens(ctx context.Context, db *gorm.DB, before time.Time) (int64, error) {
	res := db.WithContext(ctx).Where("updated_at < ?", before.UTC()).Delete(&dashboardToken{})
	return res.RowsAffected, res.Error
}
