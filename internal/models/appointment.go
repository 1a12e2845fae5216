package models

import (
	"time"

	"gorm.io/gorm"
)

// Appointment statuses
const (
	AppointmentStatusScheduled = "scheduled"
	AppointmentStatusDone      = "done"
	AppointmentStatusCanceled  = "canceled"
)

// Appointment is a visit record tied to a card. During a duplicate merge these
// rows are re-pointed to the surviving card before the duplicate is deleted.
type Appointment struct {
	ID          uint           `gorm:"primarykey" json:"id"`
	CardID      uint           `gorm:"index;not null" json:"card_id"`
	ServiceName string         `gorm:"type:varchar(120);not null" json:"service_name"`
	ScheduledAt time.Time      `gorm:"index;not null" json:"scheduled_at"`
	Status      string         `gorm:"type:varchar(24);index;not null;default:'scheduled'" json:"status"`
	Notes       string         `gorm:"type:text" json:"notes"`
	CreatedAt   time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"index" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName sets the table name.
func (Appointment) TableName() string {
	return "appointments"
}
