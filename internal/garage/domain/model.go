package domain

import "time"

// Garage is one tenant: a parking facility owned by an Owner account.
type Garage struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	OwnerID   string    `json:"owner_id" gorm:"type:varchar(36);not null;index:idx_garages_owner"`
	Name      string    `json:"name" gorm:"type:text;not null"`
	Slug      string    `json:"slug" gorm:"type:varchar(120);not null"`
	Address   *string   `json:"address,omitempty" gorm:"type:text"`
	TaxID     *string   `json:"tax_id,omitempty" gorm:"type:varchar(11)"`
	CreatedAt time.Time `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null"`
}

func (Garage) TableName() string { return "garages" }
