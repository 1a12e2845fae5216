package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sellos-next/internal/cache"
	"github.com/sellos-next/internal/constants"
	"github.com/sellos-next/internal/logger"
	"github.com/sellos-next/internal/models"
	"github.com/sellos-next/internal/repository"
	"github.com/sellos-next/internal/wallet/apple"
	"github.com/sellos-next/internal/wallet/google"
)

// ApplePassBuilder renders a signed pass bundle from a card snapshot.
type ApplePassBuilder interface {
	Build(input apple.PassInput) ([]byte, error)
}

// WalletObjectClient maintains hosted Google Wallet objects.
type WalletObjectClient interface {
	ObjectID(serial string) string
	BuildObject(input google.ObjectInput) (map[string]interface{}, error)
	GetObject(ctx context.Context, objectID string) (map[string]interface{}, error)
	InsertObject(ctx context.Context, object map[string]interface{}) error
	PatchObject(ctx context.Context, objectID string, object map[string]interface{}) error
	SaveURL(serial string) (string, error)
}

// WalletSyncService keeps both wallet surfaces aligned with card state.
// Apple passes are rebuilt on demand and never pushed; Google objects are
// upserted after every committed mutation.
type WalletSyncService struct {
	cardRepo     repository.CardRepository
	appleBuilder ApplePassBuilder
	googleClient WalletObjectClient
	hashTTL      time.Duration
}

// NewWalletSyncService creates the sync service. Either provider may be nil
// when disabled by configuration.
func NewWalletSyncService(
	cardRepo repository.CardRepository,
	appleBuilder ApplePassBuilder,
	googleClient WalletObjectClient,
	hashTTL time.Duration,
) *WalletSyncService {
	if hashTTL <= 0 {
		hashTTL = 72 * time.Hour
	}
	return &WalletSyncService{
		cardRepo:     cardRepo,
		appleBuilder: appleBuilder,
		googleClient: googleClient,
		hashTTL:      hashTTL,
	}
}

// ApplePass builds the current .pkpass for a card. The bundle reflects the
// card row at call time; no pass state is stored anywhere.
func (s *WalletSyncService) ApplePass(cardID uint) ([]byte, string, error) {
	if s.appleBuilder == nil {
		return nil, "", ErrProviderUnavailable
	}
	card, err := s.getCard(cardID)
	if err != nil {
		return nil, "", err
	}
	input, err := buildApplePassInput(card)
	if err != nil {
		return nil, "", err
	}
	bundle, err := s.appleBuilder.Build(input)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrPassUnavailable, err)
	}
	return bundle, card.Serial + ".pkpass", nil
}

// GoogleSaveURL upserts the card's hosted object and returns the signed
// add-to-wallet link.
func (s *WalletSyncService) GoogleSaveURL(ctx context.Context, cardID uint) (string, error) {
	if s.googleClient == nil {
		return "", ErrProviderUnavailable
	}
	card, err := s.getCard(cardID)
	if err != nil {
		return "", err
	}
	if err := s.syncGoogle(ctx, card); err != nil {
		return "", err
	}
	url, err := s.googleClient.SaveURL(card.Serial)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPassUnavailable, err)
	}
	return url, nil
}

// NotifyCardMutated pushes the committed card state to Google. Failures are
// logged and swallowed; the database write already happened and stands.
func (s *WalletSyncService) NotifyCardMutated(ctx context.Context, card *models.Card) {
	if s.googleClient == nil || card == nil {
		return
	}
	if err := s.syncGoogle(ctx, card); err != nil {
		logger.Warnw("wallet_sync_failed",
			"card_id", card.ID,
			"serial", card.Serial,
			"error", err,
		)
	}
}

// syncGoogle upserts the hosted loyalty object: a missing object is inserted,
// an existing one patched. A payload-hash cache skips pushes when the
// rendered object has not changed since the last successful sync.
func (s *WalletSyncService) syncGoogle(ctx context.Context, card *models.Card) error {
	input, err := buildGoogleObjectInput(card)
	if err != nil {
		return err
	}
	object, err := s.googleClient.BuildObject(input)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPassUnavailable, err)
	}

	hash, err := objectHash(object)
	if err != nil {
		return err
	}
	cacheKey := "wallet:google:" + card.Serial
	if cached, ok, err := cache.GetString(ctx, cacheKey); err == nil && ok && cached == hash {
		return nil
	}

	objectID := s.googleClient.ObjectID(card.Serial)
	_, err = s.googleClient.GetObject(ctx, objectID)
	switch {
	case err == nil:
		if err := s.googleClient.PatchObject(ctx, objectID, object); err != nil {
			return err
		}
	case errors.Is(err, google.ErrObjectNotFound):
		if err := s.googleClient.InsertObject(ctx, object); err != nil {
			return err
		}
	default:
		return err
	}

	if err := cache.SetString(ctx, cacheKey, hash, s.hashTTL); err != nil {
		logger.Warnw("wallet_hash_cache_failed", "serial", card.Serial, "error", err)
	}
	logger.Infow("wallet_object_synced", "card_id", card.ID, "serial", card.Serial)
	return nil
}

func (s *WalletSyncService) getCard(cardID uint) (*models.Card, error) {
	card, err := s.cardRepo.GetByID(cardID)
	if err != nil {
		return nil, err
	}
	if card == nil {
		return nil, ErrCardNotFound
	}
	return card, nil
}

func buildApplePassInput(card *models.Card) (apple.PassInput, error) {
	planCfg, err := PlanConfigFor(card.Plan)
	if err != nil {
		return apple.PassInput{}, err
	}
	return apple.PassInput{
		Serial:          card.Serial,
		DisplayName:     card.DisplayName,
		Phone:           card.Phone,
		PlanLabel:       planCfg.Label,
		CounterLabel:    planCfg.CounterLabel,
		CounterValue:    CounterValue(card),
		BackgroundColor: planCfg.RGBBackground,
		ForegroundColor: "rgb(255,255,255)",
		StatusText:      statusText(card.Status),
	}, nil
}

func buildGoogleObjectInput(card *models.Card) (google.ObjectInput, error) {
	planCfg, err := PlanConfigFor(card.Plan)
	if err != nil {
		return google.ObjectInput{}, err
	}
	return google.ObjectInput{
		Serial:             card.Serial,
		DisplayName:        card.DisplayName,
		Phone:              card.Phone,
		PlanLabel:          planCfg.Label,
		CounterLabel:       planCfg.CounterLabel,
		CounterValue:       CounterValue(card),
		HexBackgroundColor: planCfg.HexBackground,
		Active:             card.Status == constants.CardStatusActive,
	}, nil
}

func statusText(status string) string {
	switch status {
	case constants.CardStatusCompleted:
		return "Completada"
	case constants.CardStatusRedeemed:
		return "Canjeada"
	default:
		return ""
	}
}

// objectHash fingerprints the rendered object payload.
func objectHash(object map[string]interface{}) (string, error) {
	data, err := json.Marshal(object)
	if err != nil {
		return "", fmt.Errorf("%w: marshal object: %v", ErrPassUnavailable, err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
