package repository

import (
	"errors"
	"time"

	"github.com/sellos-next/internal/models"

	"gorm.io/gorm"
)

// AppointmentListFilter narrows appointment listings.
type AppointmentListFilter struct {
	CardID        uint
	Status        string
	ScheduledFrom *time.Time
	ScheduledTo   *time.Time
	Page          int
	PageSize      int
}

// AppointmentRepository appointment data access interface
type AppointmentRepository interface {
	GetByID(id uint) (*models.Appointment, error)
	ListByCard(cardID uint) ([]models.Appointment, error)
	List(filter AppointmentListFilter) ([]models.Appointment, int64, error)
	CountByCard(cardID uint) (int64, error)
	Create(appointment *models.Appointment) error
	Update(appointment *models.Appointment) error
	ReassignCard(fromCardID, toCardID uint) error
	WithTx(tx *gorm.DB) *GormAppointmentRepository
}

// GormAppointmentRepository GORM appointment repository implementation
type GormAppointmentRepository struct {
	db *gorm.DB
}

// NewAppointmentRepository creates the appointment repository
func NewAppointmentRepository(db *gorm.DB) *GormAppointmentRepository {
	return &GormAppointmentRepository{db: db}
}

// WithTx binds a transaction
func (r *GormAppointmentRepository) WithTx(tx *gorm.DB) *GormAppointmentRepository {
	if tx == nil {
		return r
	}
	return &GormAppointmentRepository{db: tx}
}

// GetByID fetches an appointment by primary key
func (r *GormAppointmentRepository) GetByID(id uint) (*models.Appointment, error) {
	if id == 0 {
		return nil, nil
	}
	var appointment models.Appointment
	if err := r.db.First(&appointment, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &appointment, nil
}

// ListByCard fetches every appointment on a card, newest first
func (r *GormAppointmentRepository) ListByCard(cardID uint) ([]models.Appointment, error) {
	if cardID == 0 {
		return []models.Appointment{}, nil
	}
	var appointments []models.Appointment
	if err := r.db.Where("card_id = ?", cardID).
		Order("scheduled_at desc").
		Find(&appointments).Error; err != nil {
		return nil, err
	}
	return appointments, nil
}

// List queries appointments with pagination
func (r *GormAppointmentRepository) List(filter AppointmentListFilter) ([]models.Appointment, int64, error) {
	query := r.db.Model(&models.Appointment{})
	if filter.CardID != 0 {
		query = query.Where("card_id = ?", filter.CardID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.ScheduledFrom != nil {
		query = query.Where("scheduled_at >= ?", *filter.ScheduledFrom)
	}
	if filter.ScheduledTo != nil {
		query = query.Where("scheduled_at <= ?", *filter.ScheduledTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = applyPagination(query, filter.Page, filter.PageSize)

	var appointments []models.Appointment
	if err := query.Order("id desc").Find(&appointments).Error; err != nil {
		return nil, 0, err
	}
	return appointments, total, nil
}

// CountByCard counts appointments on a card
func (r *GormAppointmentRepository) CountByCard(cardID uint) (int64, error) {
	if cardID == 0 {
		return 0, nil
	}
	var total int64
	if err := r.db.Model(&models.Appointment{}).
		Where("card_id = ?", cardID).
		Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

// Create inserts an appointment
func (r *GormAppointmentRepository) Create(appointment *models.Appointment) error {
	return r.db.Create(appointment).Error
}

// Update saves an appointment
func (r *GormAppointmentRepository) Update(appointment *models.Appointment) error {
	return r.db.Save(appointment).Error
}

// ReassignCard moves every appointment from one card to another
func (r *GormAppointmentRepository) ReassignCard(fromCardID, toCardID uint) error {
	if fromCardID == 0 || toCardID == 0 {
		return nil
	}
	return r.db.Model(&models.Appointment{}).
		Where("card_id = ?", fromCardID).
		Update("card_id", toCardID).Error
}
