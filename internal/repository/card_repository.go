package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/sellos-next/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CardListFilter narrows card listings.
type CardListFilter struct {
	Plan        string
	Status      string
	Phone       string
	Keyword     string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Page        int
	PageSize    int
}

// CardRepository card data access interface
type CardRepository interface {
	GetByID(id uint) (*models.Card, error)
	GetByIDForUpdate(id uint) (*models.Card, error)
	GetBySerial(serial string) (*models.Card, error)
	GetByCanonicalPhone(canonical string) (*models.Card, error)
	GetByCanonicalPhoneForUpdate(canonical string) (*models.Card, error)
	ListByCanonicalPhone(canonical string) ([]models.Card, error)
	ListCanonicalPhonesWithDuplicates() ([]string, error)
	List(filter CardListFilter) ([]models.Card, int64, error)
	Create(card *models.Card) error
	Update(card *models.Card) error
	Delete(card *models.Card) error
	WithTx(tx *gorm.DB) *GormCardRepository
}

// GormCardRepository GORM card repository implementation
type GormCardRepository struct {
	db *gorm.DB
}

// NewCardRepository creates the card repository
func NewCardRepository(db *gorm.DB) *GormCardRepository {
	return &GormCardRepository{db: db}
}

// WithTx binds a transaction
func (r *GormCardRepository) WithTx(tx *gorm.DB) *GormCardRepository {
	if tx == nil {
		return r
	}
	return &GormCardRepository{db: tx}
}

// GetByID fetches a card by primary key
func (r *GormCardRepository) GetByID(id uint) (*models.Card, error) {
	if id == 0 {
		return nil, nil
	}
	var card models.Card
	if err := r.db.First(&card, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &card, nil
}

// GetByIDForUpdate fetches a card by primary key with a row lock
func (r *GormCardRepository) GetByIDForUpdate(id uint) (*models.Card, error) {
	if id == 0 {
		return nil, nil
	}
	var card models.Card
	if err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&card, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &card, nil
}

// GetBySerial fetches a card by its wallet serial
func (r *GormCardRepository) GetBySerial(serial string) (*models.Card, error) {
	serial = strings.TrimSpace(serial)
	if serial == "" {
		return nil, nil
	}
	var card models.Card
	if err := r.db.Where("serial = ?", serial).First(&card).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &card, nil
}

// GetByCanonicalPhone fetches the oldest card on a canonical phone
func (r *GormCardRepository) GetByCanonicalPhone(canonical string) (*models.Card, error) {
	canonical = strings.TrimSpace(canonical)
	if canonical == "" {
		return nil, nil
	}
	var card models.Card
	if err := r.db.Where("canonical_phone = ?", canonical).
		Order("created_at asc, id asc").
		First(&card).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &card, nil
}

// GetByCanonicalPhoneForUpdate fetches the oldest card on a canonical phone with a row lock
func (r *GormCardRepository) GetByCanonicalPhoneForUpdate(canonical string) (*models.Card, error) {
	canonical = strings.TrimSpace(canonical)
	if canonical == "" {
		return nil, nil
	}
	var card models.Card
	if err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("canonical_phone = ?", canonical).
		Order("created_at asc, id asc").
		First(&card).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &card, nil
}

// ListByCanonicalPhone fetches every card on a canonical phone, oldest first
func (r *GormCardRepository) ListByCanonicalPhone(canonical string) ([]models.Card, error) {
	canonical = strings.TrimSpace(canonical)
	if canonical == "" {
		return []models.Card{}, nil
	}
	var cards []models.Card
	if err := r.db.Where("canonical_phone = ?", canonical).
		Order("created_at asc, id asc").
		Find(&cards).Error; err != nil {
		return nil, err
	}
	return cards, nil
}

// ListCanonicalPhonesWithDuplicates returns phones that map to more than one card
func (r *GormCardRepository) ListCanonicalPhonesWithDuplicates() ([]string, error) {
	var phones []string
	if err := r.db.Model(&models.Card{}).
		Select("canonical_phone").
		Where("canonical_phone <> ''").
		Group("canonical_phone").
		Having("COUNT(id) > 1").
		Pluck("canonical_phone", &phones).Error; err != nil {
		return nil, err
	}
	return phones, nil
}

// List queries cards with pagination
func (r *GormCardRepository) List(filter CardListFilter) ([]models.Card, int64, error) {
	query := r.db.Model(&models.Card{})
	if filter.Plan != "" {
		query = query.Where("plan = ?", filter.Plan)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Phone != "" {
		query = query.Where("canonical_phone = ?", filter.Phone)
	}
	if filter.Keyword != "" {
		like := "%" + filter.Keyword + "%"
		query = query.Where("(display_name LIKE ? OR phone LIKE ?)", like, like)
	}
	if filter.CreatedFrom != nil {
		query = query.Where("created_at >= ?", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		query = query.Where("created_at <= ?", *filter.CreatedTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = applyPagination(query, filter.Page, filter.PageSize)

	var cards []models.Card
	if err := query.Order("id desc").Find(&cards).Error; err != nil {
		return nil, 0, err
	}
	return cards, total, nil
}

// Create inserts a card
func (r *GormCardRepository) Create(card *models.Card) error {
	return r.db.Create(card).Error
}

// Update saves a card
func (r *GormCardRepository) Update(card *models.Card) error {
	return r.db.Save(card).Error
}

// Delete removes a card row outright. Merge cleanup is the only caller;
// verified duplicates are not kept as soft-deleted ghosts.
func (r *GormCardRepository) Delete(card *models.Card) error {
	return r.db.Unscoped().Delete(card).Error
}
