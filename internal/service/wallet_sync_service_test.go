package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sellos-next/internal/constants"
	"github.com/sellos-next/internal/models"
	"github.com/sellos-next/internal/repository"
	"github.com/sellos-next/internal/wallet/apple"
	"github.com/sellos-next/internal/wallet/google"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type fakePassBuilder struct {
	inputs []apple.PassInput
	err    error
}

func (b *fakePassBuilder) Build(input apple.PassInput) ([]byte, error) {
	b.inputs = append(b.inputs, input)
	if b.err != nil {
		return nil, b.err
	}
	return []byte("pkpass:" + input.Serial), nil
}

type fakeObjectClient struct {
	hosted  map[string]map[string]interface{}
	inserts int
	patches int
	gets    int
	failAll bool
}

func newFakeObjectClient() *fakeObjectClient {
	return &fakeObjectClient{hosted: map[string]map[string]interface{}{}}
}

func (c *fakeObjectClient) ObjectID(serial string) string {
	return "issuer." + serial
}

func (c *fakeObjectClient) BuildObject(input google.ObjectInput) (map[string]interface{}, error) {
	state := "ACTIVE"
	if !input.Active {
		state = "INACTIVE"
	}
	return map[string]interface{}{
		"id":      c.ObjectID(input.Serial),
		"state":   state,
		"counter": input.CounterValue,
	}, nil
}

func (c *fakeObjectClient) GetObject(ctx context.Context, objectID string) (map[string]interface{}, error) {
	c.gets++
	if c.failAll {
		return nil, google.ErrRequestFailed
	}
	object, ok := c.hosted[objectID]
	if !ok {
		return nil, google.ErrObjectNotFound
	}
	return object, nil
}

func (c *fakeObjectClient) InsertObject(ctx context.Context, object map[string]interface{}) error {
	c.inserts++
	if c.failAll {
		return google.ErrRequestFailed
	}
	c.hosted[object["id"].(string)] = object
	return nil
}

func (c *fakeObjectClient) PatchObject(ctx context.Context, objectID string, object map[string]interface{}) error {
	c.patches++
	if c.failAll {
		return google.ErrRequestFailed
	}
	c.hosted[objectID] = object
	return nil
}

func (c *fakeObjectClient) SaveURL(serial string) (string, error) {
	return "https://pay.google.com/gp/v/save/jwt-for-" + serial, nil
}

func setupWalletSyncTest(t *testing.T) (repository.CardRepository, *models.Card) {
	t.Helper()
	dsn := fmt.Sprintf("file:wallet_sync_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(&models.Card{}); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	models.DB = db

	card := &models.Card{
		Serial:         "card-0001",
		Phone:          "5512345678",
		CanonicalPhone: "5512345678",
		DisplayName:    "Ana López",
		Plan:           constants.PlanLoyalty,
		Stamps:         3,
		MaxStamps:      10,
		Status:         constants.CardStatusActive,
	}
	if err := db.Create(card).Error; err != nil {
		t.Fatalf("create card failed: %v", err)
	}
	return repository.NewCardRepository(db), card
}

func TestWalletSyncApplePass(t *testing.T) {
	cardRepo, card := setupWalletSyncTest(t)
	builder := &fakePassBuilder{}
	svc := NewWalletSyncService(cardRepo, builder, nil, 0)

	bundle, filename, err := svc.ApplePass(card.ID)
	if err != nil {
		t.Fatalf("apple pass failed: %v", err)
	}
	if string(bundle) != "pkpass:card-0001" || filename != "card-0001.pkpass" {
		t.Fatalf("bundle=%q filename=%q", bundle, filename)
	}

	input := builder.inputs[0]
	if input.PlanLabel != "Tarjeta de Lealtad" || input.CounterLabel != "Sellos" {
		t.Fatalf("plan presentation: %+v", input)
	}
	if input.CounterValue != "3/10" {
		t.Fatalf("counter = %s", input.CounterValue)
	}
	if input.BackgroundColor != "rgb(236,64,122)" {
		t.Fatalf("background = %s", input.BackgroundColor)
	}
}

func TestWalletSyncAppleDisabled(t *testing.T) {
	cardRepo, card := setupWalletSyncTest(t)
	svc := NewWalletSyncService(cardRepo, nil, nil, 0)

	if _, _, err := svc.ApplePass(card.ID); !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("expected provider unavailable, got: %v", err)
	}
}

func TestWalletSyncApplePassCardNotFound(t *testing.T) {
	cardRepo, _ := setupWalletSyncTest(t)
	svc := NewWalletSyncService(cardRepo, &fakePassBuilder{}, nil, 0)

	if _, _, err := svc.ApplePass(9999); !errors.Is(err, ErrCardNotFound) {
		t.Fatalf("expected card not found, got: %v", err)
	}
}

func TestWalletSyncGoogleInsertThenPatch(t *testing.T) {
	cardRepo, card := setupWalletSyncTest(t)
	client := newFakeObjectClient()
	svc := NewWalletSyncService(cardRepo, nil, client, 0)

	// First sync finds no hosted object and inserts.
	svc.NotifyCardMutated(context.Background(), card)
	if client.inserts != 1 || client.patches != 0 {
		t.Fatalf("after first sync: inserts=%d patches=%d", client.inserts, client.patches)
	}

	// Later syncs hit the existing object and patch it.
	card.Stamps = 5
	svc.NotifyCardMutated(context.Background(), card)
	if client.inserts != 1 || client.patches != 1 {
		t.Fatalf("after second sync: inserts=%d patches=%d", client.inserts, client.patches)
	}

	object := client.hosted["issuer.card-0001"]
	if object["counter"] != "5/10" {
		t.Fatalf("hosted counter = %v", object["counter"])
	}
}

func TestWalletSyncGoogleSaveURL(t *testing.T) {
	cardRepo, card := setupWalletSyncTest(t)
	client := newFakeObjectClient()
	svc := NewWalletSyncService(cardRepo, nil, client, 0)

	url, err := svc.GoogleSaveURL(context.Background(), card.ID)
	if err != nil {
		t.Fatalf("save url failed: %v", err)
	}
	if url != "https://pay.google.com/gp/v/save/jwt-for-card-0001" {
		t.Fatalf("url = %s", url)
	}
	// The link is only handed out once the hosted object exists.
	if client.inserts != 1 {
		t.Fatalf("inserts = %d, want 1", client.inserts)
	}
}

func TestWalletSyncGoogleDisabled(t *testing.T) {
	cardRepo, card := setupWalletSyncTest(t)
	svc := NewWalletSyncService(cardRepo, nil, nil, 0)

	if _, err := svc.GoogleSaveURL(context.Background(), card.ID); !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("expected provider unavailable, got: %v", err)
	}
}

func TestWalletSyncNotifySwallowsProviderFailure(t *testing.T) {
	cardRepo, card := setupWalletSyncTest(t)
	client := newFakeObjectClient()
	client.failAll = true
	svc := NewWalletSyncService(cardRepo, nil, client, 0)

	// Must not panic or surface the error; the DB write already stands.
	svc.NotifyCardMutated(context.Background(), card)
	if client.gets != 1 {
		t.Fatalf("gets = %d, want 1", client.gets)
	}
}
