package service

import (
	"context"
	"strings"
	"time"

	"github.com/sellos-next/internal/constants"
	"github.com/sellos-next/internal/logger"
	"github.com/sellos-next/internal/models"
	"github.com/sellos-next/internal/phone"
	"github.com/sellos-next/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CardMutationNotifier receives the committed card after every state change.
// Notification is best effort; a failing notifier never rolls back the write.
type CardMutationNotifier interface {
	NotifyCardMutated(ctx context.Context, card *models.Card)
}

// CardService owns the card state machine.
type CardService struct {
	cardRepo        repository.CardRepository
	appointmentRepo repository.AppointmentRepository
	normalizer      *phone.Normalizer
	notifier        CardMutationNotifier
}

// RegisterCardInput creates a new card.
type RegisterCardInput struct {
	Phone         string
	DisplayName   string
	Plan          string
	MaxStamps     int
	SessionsTotal int
	PlanPrice     models.Money
}

// ChangePlanInput moves a card to another plan.
type ChangePlanInput struct {
	Plan          string
	MaxStamps     int
	SessionsTotal int
	PlanPrice     models.Money
}

// ScheduleAppointmentInput books a visit on a card.
type ScheduleAppointmentInput struct {
	CardID      uint
	ServiceName string
	ScheduledAt time.Time
	Notes       string
}

// NewCardService creates the card service.
func NewCardService(
	cardRepo repository.CardRepository,
	appointmentRepo repository.AppointmentRepository,
	normalizer *phone.Normalizer,
	notifier CardMutationNotifier,
) *CardService {
	return &CardService{
		cardRepo:        cardRepo,
		appointmentRepo: appointmentRepo,
		normalizer:      normalizer,
		notifier:        notifier,
	}
}

// Register creates a card for a phone that has none yet. The duplicate check
// and the insert share one transaction so two concurrent registrations of the
// same phone cannot both succeed.
func (s *CardService) Register(ctx context.Context, input RegisterCardInput) (*models.Card, error) {
	canonical := s.normalizer.Normalize(input.Phone)
	if !canonical.National {
		return nil, ErrPhoneInvalid
	}
	displayName := strings.TrimSpace(input.DisplayName)
	if displayName == "" {
		return nil, ErrPhoneInvalid
	}

	plan := strings.TrimSpace(input.Plan)
	if plan == "" {
		plan = constants.PlanLoyalty
	}
	planCfg, err := PlanConfigFor(plan)
	if err != nil {
		return nil, err
	}

	card := &models.Card{
		Serial:         uuid.NewString(),
		Phone:          strings.TrimSpace(input.Phone),
		CanonicalPhone: canonical.Digits,
		DisplayName:    displayName,
		Plan:           plan,
		Status:         constants.CardStatusActive,
		PlanPrice:      input.PlanPrice,
	}
	applyPlanShape(card, planCfg, input.MaxStamps, input.SessionsTotal)

	err = models.DB.Transaction(func(tx *gorm.DB) error {
		cardRepo := s.cardRepo.WithTx(tx)
		existing, err := cardRepo.GetByCanonicalPhoneForUpdate(canonical.Digits)
		if err != nil {
			return err
		}
		if existing != nil {
			return ErrPhoneTaken
		}
		return cardRepo.Create(card)
	})
	if err != nil {
		return nil, err
	}

	logger.Infow("card_registered",
		"card_id", card.ID,
		"serial", card.Serial,
		"plan", card.Plan,
	)
	s.notify(ctx, card)
	return card, nil
}

// GetByID fetches a card.
func (s *CardService) GetByID(id uint) (*models.Card, error) {
	card, err := s.cardRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if card == nil {
		return nil, ErrCardNotFound
	}
	return card, nil
}

// GetBySerial fetches a card by its wallet serial.
func (s *CardService) GetBySerial(serial string) (*models.Card, error) {
	card, err := s.cardRepo.GetBySerial(serial)
	if err != nil {
		return nil, err
	}
	if card == nil {
		return nil, ErrCardNotFound
	}
	return card, nil
}

// List queries cards.
func (s *CardService) List(filter repository.CardListFilter) ([]models.Card, int64, error) {
	return s.cardRepo.List(filter)
}

// AddStamp adds stamps to a stamp-plan card. The count clamps at the plan
// maximum; reaching it flips the card to completed. A zero amount means one.
func (s *CardService) AddStamp(ctx context.Context, id uint, amount int) (*models.Card, error) {
	if amount <= 0 {
		amount = 1
	}
	card, err := s.mutate(id, func(card *models.Card) error {
		if constants.SessionPlans(card.Plan) {
			return ErrInvalidPlan
		}
		if card.Status != constants.CardStatusActive {
			return ErrCardAlreadyCompleted
		}
		card.Stamps += amount
		if card.Stamps >= card.MaxStamps {
			card.Stamps = card.MaxStamps
			card.Status = constants.CardStatusCompleted
		}
		now := time.Now()
		card.LastVisitAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Infow("card_stamp_added",
		"card_id", card.ID,
		"stamps", card.Stamps,
		"status", card.Status,
	)
	s.notify(ctx, card)
	return card, nil
}

// ConsumeSession burns sessions on a session-plan card. Unlike stamps there is
// no clamping: asking for more than remains fails. Consuming the last session
// flips the card to completed. A zero amount means one.
func (s *CardService) ConsumeSession(ctx context.Context, id uint, amount int) (*models.Card, error) {
	if amount <= 0 {
		amount = 1
	}
	card, err := s.mutate(id, func(card *models.Card) error {
		if !constants.SessionPlans(card.Plan) {
			return ErrInvalidPlan
		}
		if card.Status != constants.CardStatusActive {
			return ErrCardAlreadyCompleted
		}
		if card.SessionsUsed+amount > card.SessionsTotal {
			return ErrInsufficientSessions
		}
		card.SessionsUsed += amount
		if card.SessionsUsed >= card.SessionsTotal {
			card.Status = constants.CardStatusCompleted
		}
		now := time.Now()
		card.LastVisitAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Infow("card_session_consumed",
		"card_id", card.ID,
		"sessions_used", card.SessionsUsed,
		"status", card.Status,
	)
	s.notify(ctx, card)
	return card, nil
}

// ChangePlan switches a card to a new plan and resets its counters to the new
// plan's shape.
func (s *CardService) ChangePlan(ctx context.Context, id uint, input ChangePlanInput) (*models.Card, error) {
	planCfg, err := PlanConfigFor(strings.TrimSpace(input.Plan))
	if err != nil {
		return nil, err
	}
	card, err := s.mutate(id, func(card *models.Card) error {
		card.Plan = planCfg.Plan
		card.Status = constants.CardStatusActive
		card.PlanPrice = input.PlanPrice
		applyPlanShape(card, planCfg, input.MaxStamps, input.SessionsTotal)
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Infow("card_plan_changed",
		"card_id", card.ID,
		"plan", card.Plan,
	)
	s.notify(ctx, card)
	return card, nil
}

// Redeem marks a completed card's reward as claimed.
func (s *CardService) Redeem(ctx context.Context, id uint) (*models.Card, error) {
	card, err := s.mutate(id, func(card *models.Card) error {
		if card.Status != constants.CardStatusCompleted {
			return ErrCardNotCompleted
		}
		card.Status = constants.CardStatusRedeemed
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Infow("card_redeemed", "card_id", card.ID)
	s.notify(ctx, card)
	return card, nil
}

// ResetCompleted starts a finished card over with zeroed counters.
func (s *CardService) ResetCompleted(ctx context.Context, id uint) (*models.Card, error) {
	card, err := s.mutate(id, func(card *models.Card) error {
		if card.Status == constants.CardStatusActive {
			return ErrCardNotCompleted
		}
		card.Status = constants.CardStatusActive
		card.Stamps = 0
		card.SessionsUsed = 0
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Infow("card_reset", "card_id", card.ID)
	s.notify(ctx, card)
	return card, nil
}

// ScheduleAppointment books a visit on an existing card.
func (s *CardService) ScheduleAppointment(input ScheduleAppointmentInput) (*models.Appointment, error) {
	serviceName := strings.TrimSpace(input.ServiceName)
	if serviceName == "" || input.ScheduledAt.IsZero() {
		return nil, ErrAppointmentInvalid
	}
	card, err := s.GetByID(input.CardID)
	if err != nil {
		return nil, err
	}
	appointment := &models.Appointment{
		CardID:      card.ID,
		ServiceName: serviceName,
		ScheduledAt: input.ScheduledAt,
		Status:      models.AppointmentStatusScheduled,
		Notes:       strings.TrimSpace(input.Notes),
	}
	if err := s.appointmentRepo.Create(appointment); err != nil {
		return nil, err
	}
	return appointment, nil
}

// ListAppointments fetches the visit history of a card.
func (s *CardService) ListAppointments(cardID uint) ([]models.Appointment, error) {
	if _, err := s.GetByID(cardID); err != nil {
		return nil, err
	}
	return s.appointmentRepo.ListByCard(cardID)
}

// mutate applies one state change under a row lock and returns the committed
// card.
func (s *CardService) mutate(id uint, apply func(card *models.Card) error) (*models.Card, error) {
	if id == 0 {
		return nil, ErrCardNotFound
	}
	var card *models.Card
	err := models.DB.Transaction(func(tx *gorm.DB) error {
		cardRepo := s.cardRepo.WithTx(tx)
		locked, err := cardRepo.GetByIDForUpdate(id)
		if err != nil {
			return err
		}
		if locked == nil {
			return ErrCardNotFound
		}
		if err := apply(locked); err != nil {
			return err
		}
		if err := cardRepo.Update(locked); err != nil {
			return err
		}
		card = locked
		return nil
	})
	if err != nil {
		return nil, err
	}
	return card, nil
}

func (s *CardService) notify(ctx context.Context, card *models.Card) {
	if s.notifier == nil || card == nil {
		return
	}
	s.notifier.NotifyCardMutated(ctx, card)
}

// applyPlanShape sizes the counters for a plan, falling back to the plan
// default when no explicit total is given.
func applyPlanShape(card *models.Card, planCfg PlanConfig, maxStamps, sessionsTotal int) {
	if planCfg.UsesSessions {
		total := sessionsTotal
		if total <= 0 {
			total = planCfg.DefaultTotal
		}
		card.SessionsTotal = total
		card.SessionsUsed = 0
		card.Stamps = 0
		card.MaxStamps = 0
		return
	}
	max := maxStamps
	if max <= 0 {
		max = planCfg.DefaultTotal
	}
	card.MaxStamps = max
	card.Stamps = 0
	card.SessionsTotal = 0
	card.SessionsUsed = 0
}
