package domain

import (
	"time"

	"github.com/fauter/cochera-admin/internal/role"
	"gorm.io/datatypes"
)

// Employee is an account without its own provider identity. The secret hash
// lives in the same table but is only ever written and checked by the
// database functions.
type Employee struct {
	ID          string                                      `json:"id" gorm:"type:varchar(36);primaryKey"`
	OwnerID     string                                      `json:"owner_id" gorm:"type:varchar(36);not null;index:idx_employee_accounts_owner"`
	Username    string                                      `json:"username" gorm:"type:varchar(40);not null;uniqueIndex:ux_employee_accounts_username"`
	FullName    string                                      `json:"full_name" gorm:"type:text;not null"`
	Role        role.Role                                   `json:"role" gorm:"type:varchar(32);not null"`
	GarageID    *string                                     `json:"garage_id,omitempty" gorm:"type:varchar(36)"`
	Permissions datatypes.JSONType[role.PermissionDocument] `json:"permissions" gorm:"type:jsonb;not null"`
	CreatedAt   time.Time                                   `json:"created_at" gorm:"not null"`
	UpdatedAt   time.Time                                   `json:"updated_at" gorm:"not null"`
}

func (Employee) TableName() string { return "employee_accounts" }

// Document is the permission document a live session of this employee
// should carry.
func (e Employee) Document() role.PermissionDocument {
	doc := e.Permissions.Data()
	if len(doc.AllowedGarages) == 0 && e.GarageID != nil && *e.GarageID != "" {
		doc.AllowedGarages = []string{*e.GarageID}
	}
	return doc.Normalize()
}
