package building

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/fauter/cochera-admin/internal/orgcontext"
	"github.com/fauter/cochera-admin/internal/role"
	"github.com/fauter/cochera-admin/pkg/rls"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	now   func() time.Time
}

// View is the structure screen: the derived counts plus the level rows.
type View struct {
	Structure     Structure `json:"structure"`
	Levels        []Level   `json:"levels"`
	TotalCapacity int       `json:"total_capacity"`
}

func NewService(p Params) *Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("building.service"),
		genID: p.GenID,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) Get(ctx context.Context, garageID string) (*View, error) {
	garageID = strings.TrimSpace(garageID)
	if garageID == "" {
		return nil, ErrInvalidGarage
	}
	var levels []Level
	err := rls.Transaction(ctx, s.db, func(tx *gorm.DB) error {
		var err error
		levels, err = s.list(tx, garageID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return newView(levels), nil
}

// ApplyStructure reconciles the stored levels with desired in one transaction.
func (s *Service) ApplyStructure(ctx context.Context, garageID string, desired Structure) (*View, error) {
	if err := authorize(ctx); err != nil {
		return nil, err
	}
	garageID = strings.TrimSpace(garageID)
	if garageID == "" {
		return nil, ErrInvalidGarage
	}
	if err := desired.Validate(); err != nil {
		return nil, err
	}

	var levels []Level
	err := rls.Transaction(ctx, s.db, func(tx *gorm.DB) error {
		if err := rls.WithGarage(tx, garageID); err != nil {
			return err
		}
		existing, err := s.list(tx, garageID)
		if err != nil {
			return err
		}
		plan := Reconcile(garageID, existing, desired)
		if len(plan.Delete) > 0 {
			ids := make([]int64, 0, len(plan.Delete))
			for _, l := range plan.Delete {
				ids = append(ids, l.ID)
			}
			if err := tx.Where("garage_id = ? AND id IN ?", garageID, ids).Delete(&Level{}).Error; err != nil {
				return err
			}
		}
		if len(plan.Create) > 0 {
			now := s.now()
			for i := range plan.Create {
				plan.Create[i].ID = s.genID.Generate().Int64()
				plan.Create[i].CreatedAt = now
				plan.Create[i].UpdatedAt = now
			}
			if err := tx.Create(&plan.Create).Error; err != nil {
				return err
			}
		}
		if plan.Changed() {
			s.log.Info("building structure applied",
				zap.String("garage_id", garageID),
				zap.Int("created", len(plan.Create)),
				zap.Int("deleted", len(plan.Delete)),
			)
		}
		levels, err = s.list(tx, garageID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return newView(levels), nil
}

func (s *Service) UpdateCapacity(ctx context.Context, garageID string, levelID int64, capacity int) (*Level, error) {
	if err := authorize(ctx); err != nil {
		return nil, err
	}
	if capacity < 0 {
		return nil, ErrInvalidCapacity
	}
	if levelID == 0 {
		return nil, ErrInvalidID
	}

	var out Level
	err := rls.Transaction(ctx, s.db, func(tx *gorm.DB) error {
		res := tx.Model(&Level{}).
			Where("garage_id = ? AND id = ?", strings.TrimSpace(garageID), levelID).
			Updates(map[string]any{"capacity": capacity, "updated_at": s.now()})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.Where("id = ?", levelID).First(&out).Error
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Service) list(tx *gorm.DB, garageID string) ([]Level, error) {
	var levels []Level
	err := tx.Where("garage_id = ?", garageID).Order("sort_order ASC").Find(&levels).Error
	return levels, err
}

func newView(levels []Level) *View {
	if levels == nil {
		levels = []Level{}
	}
	return &View{
		Structure:     Describe(levels),
		Levels:        levels,
		TotalCapacity: TotalCapacity(levels),
	}
}

func authorize(ctx context.Context) error {
	p, ok := orgcontext.PrincipalFromContext(ctx)
	if !ok || !p.Can(role.CapEditStructure) {
		return ErrForbidden
	}
	return nil
}
