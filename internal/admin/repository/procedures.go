package repository

import (
	"context"

	"github.com/fauter/cochera-admin/internal/admin/domain"
	"github.com/fauter/cochera-admin/internal/errtext"
	"gorm.io/gorm"
)

type procedures struct{}

func ProvideProcedures() domain.Procedures {
	return &procedures{}
}

// FactoryReset calls the backend procedure, which repeats the superadmin
// check against the claims of the transaction.
func (p *procedures) FactoryReset(ctx context.Context, tx *gorm.DB) error {
	err := tx.WithContext(ctx).Exec("SELECT factory_reset()").Error
	if err == nil {
		return nil
	}
	if errtext.Raw(err).Code == "42501" {
		return domain.ErrResetNotAllowed
	}
	return err
}

func (p *procedures) RunProbe(ctx context.Context, tx *gorm.DB, probe domain.Probe) error {
	var rows []map[string]any
	return tx.WithContext(ctx).Raw(probe.Query).Scan(&rows).Error
}
