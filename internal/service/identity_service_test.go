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

func setupIdentityServiceTest(t *testing.T) (*IdentityService, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:identity_service_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(&models.Card{}, &models.Appointment{}); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	models.DB = db
	svc := NewIdentityService(
		repository.NewCardRepository(db),
		repository.NewAppointmentRepository(db),
		phone.NewNormalizer("52", 10),
		nil,
	)
	return svc, db
}

func createIdentityCard(t *testing.T, db *gorm.DB, serial, canonical string, stamps int, createdAt time.Time) *models.Card {
	t.Helper()
	card := &models.Card{
		Serial:         serial,
		Phone:          canonical,
		CanonicalPhone: canonical,
		DisplayName:    "Cliente " + serial,
		Plan:           constants.PlanLoyalty,
		Stamps:         stamps,
		MaxStamps:      10,
		Status:         constants.CardStatusActive,
		CreatedAt:      createdAt,
		UpdatedAt:      createdAt,
	}
	if err := db.Create(card).Error; err != nil {
		t.Fatalf("create card failed: %v", err)
	}
	return card
}

func TestIdentityServiceResolveAcrossFormats(t *testing.T) {
	svc, db := setupIdentityServiceTest(t)
	created := createIdentityCard(t, db, "card-0001", "5512345678", 2, time.Now())

	for _, raw := range []string{"5512345678", "+52 55 1234 5678", "(55) 1234-5678"} {
		card, err := svc.Resolve(raw)
		if err != nil {
			t.Fatalf("resolve %q failed: %v", raw, err)
		}
		if card.ID != created.ID {
			t.Fatalf("resolve %q hit card %d, want %d", raw, card.ID, created.ID)
		}
	}
}

func TestIdentityServiceResolveNotFound(t *testing.T) {
	svc, _ := setupIdentityServiceTest(t)

	if _, err := svc.Resolve("5599999999"); !errors.Is(err, ErrCardNotFound) {
		t.Fatalf("expected not found, got: %v", err)
	}
	if _, err := svc.Resolve("sin numero"); !errors.Is(err, ErrPhoneInvalid) {
		t.Fatalf("expected phone invalid, got: %v", err)
	}
}

func TestIdentityServiceResolveAmbiguous(t *testing.T) {
	svc, db := setupIdentityServiceTest(t)
	createIdentityCard(t, db, "card-0001", "5512345678", 0, time.Now().Add(-time.Hour))
	createIdentityCard(t, db, "card-0002", "5512345678", 0, time.Now())

	if _, err := svc.Resolve("5512345678"); !errors.Is(err, ErrAmbiguousDuplicate) {
		t.Fatalf("expected ambiguous, got: %v", err)
	}
}

func TestIdentityServiceFindDuplicatesKeeperIsOldest(t *testing.T) {
	svc, db := setupIdentityServiceTest(t)
	old := createIdentityCard(t, db, "card-old", "5512345678", 1, time.Now().Add(-48*time.Hour))
	createIdentityCard(t, db, "card-new", "5512345678", 3, time.Now())
	createIdentityCard(t, db, "card-solo", "5587654321", 0, time.Now())

	groups, err := svc.FindDuplicates()
	if err != nil {
		t.Fatalf("find duplicates failed: %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("groups = %d, want 1", len(groups))
	}
	group := groups[0]
	if group.CanonicalPhone != "5512345678" {
		t.Fatalf("canonical = %s", group.CanonicalPhone)
	}
	if group.Keeper.ID != old.ID {
		t.Fatalf("keeper = %d, want oldest %d", group.Keeper.ID, old.ID)
	}
	if len(group.Duplicates) != 1 {
		t.Fatalf("duplicates = %d, want 1", len(group.Duplicates))
	}
}

func TestIdentityServiceMerge(t *testing.T) {
	svc, db := setupIdentityServiceTest(t)
	keeper := createIdentityCard(t, db, "card-old", "5512345678", 4, time.Now().Add(-48*time.Hour))
	duplicate := createIdentityCard(t, db, "card-new", "5512345678", 3, time.Now())

	appointment := models.Appointment{
		CardID:      duplicate.ID,
		ServiceName: "Pedicure",
		ScheduledAt: time.Now().Add(24 * time.Hour),
		Status:      models.AppointmentStatusScheduled,
	}
	if err := db.Create(&appointment).Error; err != nil {
		t.Fatalf("create appointment failed: %v", err)
	}

	merged, err := svc.Merge(context.Background(), keeper.ID, duplicate.ID)
	if err != nil {
		t.Fatalf("merge failed: %v", err)
	}
	if merged.Stamps != 7 {
		t.Fatalf("stamps = %d, want 7", merged.Stamps)
	}

	resolved, err := svc.Resolve("5512345678")
	if err != nil {
		t.Fatalf("resolve after merge failed: %v", err)
	}
	if resolved.ID != keeper.ID {
		t.Fatalf("resolved card %d, want keeper %d", resolved.ID, keeper.ID)
	}

	var moved models.Appointment
	if err := db.First(&moved, appointment.ID).Error; err != nil {
		t.Fatalf("load appointment failed: %v", err)
	}
	if moved.CardID != keeper.ID {
		t.Fatalf("appointment card = %d, want keeper %d", moved.CardID, keeper.ID)
	}
}

func TestIdentityServiceMergeCompletesKeeper(t *testing.T) {
	svc, db := setupIdentityServiceTest(t)
	keeper := createIdentityCard(t, db, "card-old", "5512345678", 8, time.Now().Add(-48*time.Hour))
	duplicate := createIdentityCard(t, db, "card-new", "5512345678", 5, time.Now())

	merged, err := svc.Merge(context.Background(), keeper.ID, duplicate.ID)
	if err != nil {
		t.Fatalf("merge failed: %v", err)
	}
	if merged.Stamps != 10 || merged.Status != constants.CardStatusCompleted {
		t.Fatalf("merged card: stamps=%d status=%s", merged.Stamps, merged.Status)
	}
}

func TestIdentityServiceMergeDifferentPhones(t *testing.T) {
	svc, db := setupIdentityServiceTest(t)
	keeper := createIdentityCard(t, db, "card-a", "5512345678", 1, time.Now().Add(-time.Hour))
	other := createIdentityCard(t, db, "card-b", "5587654321", 1, time.Now())

	if _, err := svc.Merge(context.Background(), keeper.ID, other.ID); !errors.Is(err, ErrMergeAborted) {
		t.Fatalf("expected merge aborted, got: %v", err)
	}

	// Both cards must survive a refused merge.
	var count int64
	if err := db.Model(&models.Card{}).Count(&count).Error; err != nil {
		t.Fatalf("count cards failed: %v", err)
	}
	if count != 2 {
		t.Fatalf("cards = %d, want 2", count)
	}
}

func TestIdentityServiceMergeRollsBackOnFailure(t *testing.T) {
	svc, db := setupIdentityServiceTest(t)
	keeper := createIdentityCard(t, db, "card-old", "5512345678", 4, time.Now().Add(-48*time.Hour))
	duplicate := createIdentityCard(t, db, "card-new", "5512345678", 3, time.Now())

	// Breaking the appointments table makes the reassign step fail mid-merge.
	if err := db.Migrator().DropTable(&models.Appointment{}); err != nil {
		t.Fatalf("drop table failed: %v", err)
	}

	if _, err := svc.Merge(context.Background(), keeper.ID, duplicate.ID); err == nil {
		t.Fatal("expected merge to fail")
	}

	var keeperAfter, duplicateAfter models.Card
	if err := db.First(&keeperAfter, keeper.ID).Error; err != nil {
		t.Fatalf("keeper gone after failed merge: %v", err)
	}
	if err := db.First(&duplicateAfter, duplicate.ID).Error; err != nil {
		t.Fatalf("duplicate gone after failed merge: %v", err)
	}
	if keeperAfter.Stamps != 4 || duplicateAfter.Stamps != 3 {
		t.Fatalf("progress changed after failed merge: keeper=%d duplicate=%d", keeperAfter.Stamps, duplicateAfter.Stamps)
	}
}

func TestIdentityServiceMergeGroup(t *testing.T) {
	svc, db := setupIdentityServiceTest(t)
	keeper := createIdentityCard(t, db, "card-1", "5512345678", 1, time.Now().Add(-72*time.Hour))
	createIdentityCard(t, db, "card-2", "5512345678", 2, time.Now().Add(-24*time.Hour))
	createIdentityCard(t, db, "card-3", "5512345678", 3, time.Now())

	merged, err := svc.MergeGroup(context.Background(), "5512345678")
	if err != nil {
		t.Fatalf("merge group failed: %v", err)
	}
	if merged.ID != keeper.ID || merged.Stamps != 6 {
		t.Fatalf("merged = id %d stamps %d", merged.ID, merged.Stamps)
	}

	groups, err := svc.FindDuplicates()
	if err != nil {
		t.Fatalf("find duplicates failed: %v", err)
	}
	if len(groups) != 0 {
		t.Fatalf("groups after merge = %d, want 0", len(groups))
	}
}
