package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type ActorType string

const (
	ActorTypeUser     ActorType = "user"
	ActorTypeEmployee ActorType = "employee"
	ActorTypeSystem   ActorType = "system"
)

// AuditLog records a privileged action, granted or denied.
type AuditLog struct {
	ID         snowflake.ID      `json:"id,string" gorm:"primaryKey;autoIncrement:false"`
	ActorType  string            `json:"actor_type" gorm:"type:varchar(20);not null"`
	ActorID    *string           `json:"actor_id,omitempty" gorm:"type:varchar(64)"`
	Action     string            `json:"action" gorm:"type:varchar(80);not null;index:idx_admin_audit_logs_action"`
	TargetType string            `json:"target_type" gorm:"type:varchar(40);not null"`
	TargetID   *string           `json:"target_id,omitempty" gorm:"type:varchar(64)"`
	GarageID   *string           `json:"garage_id,omitempty" gorm:"type:varchar(36)"`
	RequestID  *string           `json:"request_id,omitempty" gorm:"type:varchar(64)"`
	Metadata   datatypes.JSONMap `json:"metadata" gorm:"type:jsonb"`
	CreatedAt  time.Time         `json:"created_at" gorm:"not null;index:idx_admin_audit_logs_created_at"`
}

func (AuditLog) TableName() string { return "admin_audit_logs" }
