package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sellos-next/internal/constants"
	"github.com/sellos-next/internal/models"
	"github.com/sellos-next/internal/phone"
	"github.com/sellos-next/internal/repository"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type recordingNotifier struct {
	cards []*models.Card
}

func (n *recordingNotifier) NotifyCardMutated(ctx context.Context, card *models.Card) {
	n.cards = append(n.cards, card)
}

func setupCardServiceTest(t *testing.T) (*CardService, *recordingNotifier, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:card_service_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(&models.Card{}, &models.Appointment{}); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	models.DB = db
	notifier := &recordingNotifier{}
	svc := NewCardService(
		repository.NewCardRepository(db),
		repository.NewAppointmentRepository(db),
		phone.NewNormalizer("52", 10),
		notifier,
	)
	return svc, notifier, db
}

func TestCardServiceRegister(t *testing.T) {
	svc, notifier, _ := setupCardServiceTest(t)

	card, err := svc.Register(context.Background(), RegisterCardInput{
		Phone:       "+52 55 1234 5678",
		DisplayName: "Ana López",
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if card.CanonicalPhone != "5512345678" {
		t.Fatalf("canonical phone = %s", card.CanonicalPhone)
	}
	if card.Plan != constants.PlanLoyalty || card.MaxStamps != 10 {
		t.Fatalf("unexpected plan shape: %s max=%d", card.Plan, card.MaxStamps)
	}
	if card.Serial == "" {
		t.Fatal("serial not assigned")
	}
	if len(notifier.cards) != 1 {
		t.Fatalf("notifier calls = %d, want 1", len(notifier.cards))
	}
}

func TestCardServiceRegisterInvalidPhone(t *testing.T) {
	svc, _, _ := setupCardServiceTest(t)

	_, err := svc.Register(context.Background(), RegisterCardInput{
		Phone:       "12345",
		DisplayName: "Corta",
	})
	if !errors.Is(err, ErrPhoneInvalid) {
		t.Fatalf("expected phone invalid, got: %v", err)
	}
}

func TestCardServiceRegisterPhoneTakenAcrossFormats(t *testing.T) {
	svc, _, _ := setupCardServiceTest(t)

	if _, err := svc.Register(context.Background(), RegisterCardInput{
		Phone:       "5512345678",
		DisplayName: "Primera",
	}); err != nil {
		t.Fatalf("first register failed: %v", err)
	}

	_, err := svc.Register(context.Background(), RegisterCardInput{
		Phone:       "+52 (55) 1234-5678",
		DisplayName: "Segunda",
	})
	if !errors.Is(err, ErrPhoneTaken) {
		t.Fatalf("expected phone taken, got: %v", err)
	}
}

func TestCardServiceAddStampToCompletion(t *testing.T) {
	svc, notifier, _ := setupCardServiceTest(t)

	card, err := svc.Register(context.Background(), RegisterCardInput{
		Phone:       "5512345678",
		DisplayName: "Ana",
		MaxStamps:   3,
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		card, err = svc.AddStamp(context.Background(), card.ID, 1)
		if err != nil {
			t.Fatalf("stamp %d failed: %v", i+1, err)
		}
	}
	if card.Status != constants.CardStatusCompleted || card.Stamps != 3 {
		t.Fatalf("card = %s stamps=%d", card.Status, card.Stamps)
	}
	if card.LastVisitAt == nil {
		t.Fatal("last visit not recorded")
	}

	if _, err := svc.AddStamp(context.Background(), card.ID, 1); !errors.Is(err, ErrCardAlreadyCompleted) {
		t.Fatalf("expected already completed, got: %v", err)
	}
	// register + 3 stamps
	if len(notifier.cards) != 4 {
		t.Fatalf("notifier calls = %d, want 4", len(notifier.cards))
	}
}

func TestCardServiceStampOnSessionPlan(t *testing.T) {
	svc, _, _ := setupCardServiceTest(t)

	card, err := svc.Register(context.Background(), RegisterCardInput{
		Phone:       "5512345678",
		DisplayName: "Ana",
		Plan:        constants.PlanAnnual,
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if _, err := svc.AddStamp(context.Background(), card.ID, 1); !errors.Is(err, ErrInvalidPlan) {
		t.Fatalf("expected invalid plan, got: %v", err)
	}
}

func TestCardServiceConsumeSessionToCompletion(t *testing.T) {
	svc, _, _ := setupCardServiceTest(t)

	card, err := svc.Register(context.Background(), RegisterCardInput{
		Phone:         "5512345678",
		DisplayName:   "Ana",
		Plan:          constants.PlanGold,
		SessionsTotal: 2,
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	card, err = svc.ConsumeSession(context.Background(), card.ID, 1)
	if err != nil {
		t.Fatalf("first session failed: %v", err)
	}
	if card.Status != constants.CardStatusActive || card.SessionsUsed != 1 {
		t.Fatalf("card = %s used=%d", card.Status, card.SessionsUsed)
	}

	card, err = svc.ConsumeSession(context.Background(), card.ID, 1)
	if err != nil {
		t.Fatalf("second session failed: %v", err)
	}
	if card.Status != constants.CardStatusCompleted {
		t.Fatalf("status = %s, want completed", card.Status)
	}

	if _, err := svc.ConsumeSession(context.Background(), card.ID, 1); !errors.Is(err, ErrCardAlreadyCompleted) {
		t.Fatalf("expected already completed, got: %v", err)
	}
}

func TestCardServiceAddStampClampsAtMax(t *testing.T) {
	svc, _, _ := setupCardServiceTest(t)

	card, err := svc.Register(context.Background(), RegisterCardInput{
		Phone:       "5512345678",
		DisplayName: "Ana",
		MaxStamps:   8,
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	card, err = svc.AddStamp(context.Background(), card.ID, 20)
	if err != nil {
		t.Fatalf("bulk stamp failed: %v", err)
	}
	if card.Stamps != 8 || card.Status != constants.CardStatusCompleted {
		t.Fatalf("card = %s stamps=%d, want completed at 8", card.Status, card.Stamps)
	}
}

func TestCardServiceConsumeSessionOverRemaining(t *testing.T) {
	svc, _, _ := setupCardServiceTest(t)

	card, err := svc.Register(context.Background(), RegisterCardInput{
		Phone:         "5512345678",
		DisplayName:   "Ana",
		Plan:          constants.PlanAnnual,
		SessionsTotal: 3,
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	if _, err := svc.ConsumeSession(context.Background(), card.ID, 4); !errors.Is(err, ErrInsufficientSessions) {
		t.Fatalf("expected insufficient sessions, got: %v", err)
	}

	card, err = svc.GetByID(card.ID)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if card.SessionsUsed != 0 {
		t.Fatalf("sessions_used = %d, want untouched", card.SessionsUsed)
	}
}

func TestCardServiceConsumeSessionInsufficient(t *testing.T) {
	svc, _, db := setupCardServiceTest(t)

	// An active session card with nothing left can exist after manual edits.
	card := models.Card{
		Serial:         "manual-0001",
		Phone:          "5512345678",
		CanonicalPhone: "5512345678",
		DisplayName:    "Ana",
		Plan:           constants.PlanAnnual,
		SessionsUsed:   2,
		SessionsTotal:  2,
		Status:         constants.CardStatusActive,
	}
	if err := db.Create(&card).Error; err != nil {
		t.Fatalf("create card failed: %v", err)
	}

	if _, err := svc.ConsumeSession(context.Background(), card.ID, 1); !errors.Is(err, ErrInsufficientSessions) {
		t.Fatalf("expected insufficient sessions, got: %v", err)
	}
}

func TestCardServiceChangePlanResetsCounters(t *testing.T) {
	svc, _, _ := setupCardServiceTest(t)

	card, err := svc.Register(context.Background(), RegisterCardInput{
		Phone:       "5512345678",
		DisplayName: "Ana",
		MaxStamps:   5,
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if _, err := svc.AddStamp(context.Background(), card.ID, 1); err != nil {
		t.Fatalf("stamp failed: %v", err)
	}

	card, err = svc.ChangePlan(context.Background(), card.ID, ChangePlanInput{
		Plan:          constants.PlanAnnual,
		SessionsTotal: 8,
	})
	if err != nil {
		t.Fatalf("change plan failed: %v", err)
	}
	if card.Plan != constants.PlanAnnual || card.SessionsTotal != 8 {
		t.Fatalf("plan = %s total=%d", card.Plan, card.SessionsTotal)
	}
	if card.Stamps != 0 || card.MaxStamps != 0 || card.SessionsUsed != 0 {
		t.Fatalf("counters not reset: %+v", card)
	}
	if card.Status != constants.CardStatusActive {
		t.Fatalf("status = %s", card.Status)
	}
}

func TestCardServiceChangePlanUnknown(t *testing.T) {
	svc, _, _ := setupCardServiceTest(t)

	card, err := svc.Register(context.Background(), RegisterCardInput{
		Phone:       "5512345678",
		DisplayName: "Ana",
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if _, err := svc.ChangePlan(context.Background(), card.ID, ChangePlanInput{Plan: "platinum"}); !errors.Is(err, ErrInvalidPlan) {
		t.Fatalf("expected invalid plan, got: %v", err)
	}
}

func TestCardServiceRedeemAndReset(t *testing.T) {
	svc, _, _ := setupCardServiceTest(t)

	card, err := svc.Register(context.Background(), RegisterCardInput{
		Phone:       "5512345678",
		DisplayName: "Ana",
		MaxStamps:   1,
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	if _, err := svc.Redeem(context.Background(), card.ID); !errors.Is(err, ErrCardNotCompleted) {
		t.Fatalf("expected not completed, got: %v", err)
	}

	if _, err := svc.AddStamp(context.Background(), card.ID, 1); err != nil {
		t.Fatalf("stamp failed: %v", err)
	}
	card, err = svc.Redeem(context.Background(), card.ID)
	if err != nil {
		t.Fatalf("redeem failed: %v", err)
	}
	if card.Status != constants.CardStatusRedeemed {
		t.Fatalf("status = %s", card.Status)
	}

	card, err = svc.ResetCompleted(context.Background(), card.ID)
	if err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	if card.Status != constants.CardStatusActive || card.Stamps != 0 {
		t.Fatalf("card after reset: %s stamps=%d", card.Status, card.Stamps)
	}
}

func TestCardServiceAppointments(t *testing.T) {
	svc, _, _ := setupCardServiceTest(t)

	card, err := svc.Register(context.Background(), RegisterCardInput{
		Phone:       "5512345678",
		DisplayName: "Ana",
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	appointment, err := svc.ScheduleAppointment(ScheduleAppointmentInput{
		CardID:      card.ID,
		ServiceName: "Manicure",
		ScheduledAt: time.Now().Add(24 * time.Hour),
	})
	if err != nil {
		t.Fatalf("schedule failed: %v", err)
	}
	if appointment.Status != models.AppointmentStatusScheduled {
		t.Fatalf("status = %s", appointment.Status)
	}

	list, err := svc.ListAppointments(card.ID)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(list) != 1 || list[0].ServiceName != "Manicure" {
		t.Fatalf("unexpected appointments: %+v", list)
	}
}
