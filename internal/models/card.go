package models

import (
	"time"

	"gorm.io/gorm"
)

// Card is the authoritative loyalty record for one client.
//
// CanonicalPhone is derived from Phone at write time and is the identity key:
// uniqueness across active cards is enforced by the registration transaction,
// not by a column constraint, since raw phone formats vary.
type Card struct {
	ID             uint           `gorm:"primarykey" json:"id"`
	Serial         string         `gorm:"type:varchar(64);uniqueIndex;not null" json:"serial"`
	Phone          string         `gorm:"type:varchar(32);not null" json:"phone"`
	CanonicalPhone string         `gorm:"type:varchar(16);index;not null" json:"canonical_phone"`
	DisplayName    string         `gorm:"type:varchar(120);not null" json:"display_name"`
	Plan           string         `gorm:"type:varchar(24);index;not null;default:'loyalty'" json:"plan"`
	Stamps         int            `gorm:"not null;default:0" json:"stamps"`
	MaxStamps      int            `gorm:"not null;default:0" json:"max_stamps"`
	SessionsUsed   int            `gorm:"not null;default:0" json:"sessions_used"`
	SessionsTotal  int            `gorm:"not null;default:0" json:"sessions_total"`
	Status         string         `gorm:"type:varchar(24);index;not null;default:'active'" json:"status"`
	PlanPrice      Money          `gorm:"type:decimal(20,2);not null;default:0" json:"plan_price"`
	LastVisitAt    *time.Time     `gorm:"index" json:"last_visit_at"`
	CreatedAt      time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"index" json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName sets the table name.
func (Card) TableName() string {
	return "cards"
}
