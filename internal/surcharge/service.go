package surcharge

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/fauter/cochera-admin/internal/config"
	"github.com/fauter/cochera-admin/internal/orgcontext"
	"github.com/fauter/cochera-admin/internal/role"
	"github.com/fauter/cochera-admin/pkg/rls"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// defaultMonth marks the default rule row; override rows use 1-12.
const defaultMonth = 0

type ruleRow struct {
	ID        int64                      `gorm:"primaryKey;autoIncrement:false"`
	GarageID  string                     `gorm:"type:varchar(36);not null;uniqueIndex:ux_surcharge_garage_month,priority:1"`
	Month     int                        `gorm:"not null;uniqueIndex:ux_surcharge_garage_month,priority:2"`
	GraceDay  int                        `gorm:"not null"`
	Steps     datatypes.JSONType[[]Step] `gorm:"not null"`
	UpdatedAt time.Time                  `gorm:"not null"`
}

func (ruleRow) TableName() string { return "surcharge_rules" }

func (r ruleRow) rule() Rule {
	steps := r.Steps.Data()
	if steps == nil {
		steps = []Step{}
	}
	return Rule{GraceDay: r.GraceDay, Steps: steps}
}

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Config *config.DashboardConfigHolder
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	cfg   *config.DashboardConfigHolder
	now   func() time.Time
}

// SaveResult echoes the stored rule with its ordering violations.
type SaveResult struct {
	Rule       Rule        `json:"rule"`
	Violations []Violation `json:"violations"`
}

func NewService(p Params) *Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("surcharge.service"),
		genID: p.GenID,
		cfg:   p.Config,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) Get(ctx context.Context, garageID string) (*Config, error) {
	garageID = strings.TrimSpace(garageID)
	if garageID == "" {
		return nil, ErrInvalidGarage
	}
	var rows []ruleRow
	err := rls.Transaction(ctx, s.db, func(tx *gorm.DB) error {
		return tx.Where("garage_id = ?", garageID).Order("month ASC").Find(&rows).Error
	})
	if err != nil {
		return nil, err
	}

	out := &Config{
		GarageID:  garageID,
		Default:   FromConfig(s.cfg.Get().DefaultSurcharge),
		Overrides: map[time.Month]Rule{},
	}
	for _, row := range rows {
		if row.Month == defaultMonth {
			out.Default = row.rule()
			out.DefaultStored = true
			continue
		}
		out.Overrides[time.Month(row.Month)] = row.rule()
	}
	return out, nil
}

func (s *Service) SaveDefault(ctx context.Context, garageID string, rule Rule) (*SaveResult, error) {
	return s.save(ctx, garageID, defaultMonth, rule)
}

func (s *Service) SaveOverride(ctx context.Context, garageID string, month time.Month, rule Rule) (*SaveResult, error) {
	if month < time.January || month > time.December {
		return nil, ErrInvalidMonth
	}
	return s.save(ctx, garageID, int(month), rule)
}

func (s *Service) DeleteOverride(ctx context.Context, garageID string, month time.Month) error {
	if err := authorize(ctx); err != nil {
		return err
	}
	if month < time.January || month > time.December {
		return ErrInvalidMonth
	}
	return rls.Transaction(ctx, s.db, func(tx *gorm.DB) error {
		return tx.Where("garage_id = ? AND month = ?", strings.TrimSpace(garageID), int(month)).Delete(&ruleRow{}).Error
	})
}

// EffectiveFor is the rule in force for garageID on the month of at.
func (s *Service) EffectiveFor(ctx context.Context, garageID string, at time.Time) (Rule, error) {
	cfg, err := s.Get(ctx, garageID)
	if err != nil {
		return Rule{}, err
	}
	return Effective(*cfg, at.Month()), nil
}

func (s *Service) save(ctx context.Context, garageID string, month int, rule Rule) (*SaveResult, error) {
	if err := authorize(ctx); err != nil {
		return nil, err
	}
	garageID = strings.TrimSpace(garageID)
	if garageID == "" {
		return nil, ErrInvalidGarage
	}
	if err := CheckFormat(rule); err != nil {
		return nil, err
	}
	rule = clone(rule)
	violations := Validate(rule)

	row := ruleRow{
		ID:        s.genID.Generate().Int64(),
		GarageID:  garageID,
		Month:     month,
		GraceDay:  rule.GraceDay,
		Steps:     datatypes.NewJSONType(rule.Steps),
		UpdatedAt: s.now(),
	}
	err := rls.Transaction(ctx, s.db, func(tx *gorm.DB) error {
		if err := rls.WithGarage(tx, garageID); err != nil {
			return err
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "garage_id"}, {Name: "month"}},
			DoUpdates: clause.AssignmentColumns([]string{"grace_day", "steps", "updated_at"}),
		}).Create(&row).Error
	})
	if err != nil {
		return nil, err
	}
	if len(violations) > 0 {
		s.log.Info("surcharge rule saved with ordering violations",
			zap.String("garage_id", garageID),
			zap.Int("month", month),
			zap.Int("violations", len(violations)),
		)
	}
	if violations == nil {
		violations = []Violation{}
	}
	return &SaveResult{Rule: rule, Violations: violations}, nil
}

func authorize(ctx context.Context) error {
	p, ok := orgcontext.PrincipalFromContext(ctx)
	if !ok || !p.Can(role.CapEditSurcharges) {
		return ErrForbidden
	}
	return nil
}

func Models() []any { return []any{&ruleRow{}} }
