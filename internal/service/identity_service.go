package service

import (
	"context"
	"fmt"

	"github.com/sellos-next/internal/constants"
	"github.com/sellos-next/internal/logger"
	"github.com/sellos-next/internal/models"
	"github.com/sellos-next/internal/phone"
	"github.com/sellos-next/internal/repository"

	"gorm.io/gorm"
)

// IdentityService resolves phones to cards and repairs duplicate identities.
type IdentityService struct {
	cardRepo        repository.CardRepository
	appointmentRepo repository.AppointmentRepository
	normalizer      *phone.Normalizer
	notifier        CardMutationNotifier
}

// DuplicateGroup is one canonical phone mapped to more than one card. The
// keeper is the oldest card; ties break on the lowest id.
type DuplicateGroup struct {
	CanonicalPhone string        `json:"canonical_phone"`
	Keeper         models.Card   `json:"keeper"`
	Duplicates     []models.Card `json:"duplicates"`
}

// NewIdentityService creates the identity service.
func NewIdentityService(
	cardRepo repository.CardRepository,
	appointmentRepo repository.AppointmentRepository,
	normalizer *phone.Normalizer,
	notifier CardMutationNotifier,
) *IdentityService {
	return &IdentityService{
		cardRepo:        cardRepo,
		appointmentRepo: appointmentRepo,
		normalizer:      normalizer,
		notifier:        notifier,
	}
}

// Resolve maps a raw phone in any format to its card. A phone carried by more
// than one card is ambiguous and must be merged before resolution succeeds.
func (s *IdentityService) Resolve(raw string) (*models.Card, error) {
	canonical := s.normalizer.Normalize(raw)
	if canonical.Digits == "" {
		return nil, ErrPhoneInvalid
	}
	cards, err := s.cardRepo.ListByCanonicalPhone(canonical.Digits)
	if err != nil {
		return nil, err
	}
	switch len(cards) {
	case 0:
		return nil, ErrCardNotFound
	case 1:
		return &cards[0], nil
	default:
		return nil, ErrAmbiguousDuplicate
	}
}

// FindDuplicates lists every canonical phone held by more than one card.
func (s *IdentityService) FindDuplicates() ([]DuplicateGroup, error) {
	phones, err := s.cardRepo.ListCanonicalPhonesWithDuplicates()
	if err != nil {
		return nil, err
	}
	groups := make([]DuplicateGroup, 0, len(phones))
	for _, canonical := range phones {
		cards, err := s.cardRepo.ListByCanonicalPhone(canonical)
		if err != nil {
			return nil, err
		}
		if len(cards) < 2 {
			continue
		}
		groups = append(groups, DuplicateGroup{
			CanonicalPhone: canonical,
			Keeper:         cards[0],
			Duplicates:     cards[1:],
		})
	}
	return groups, nil
}

// Merge folds a duplicate card into its keeper: progress is combined,
// appointments are re-pointed, and the duplicate is deleted. The whole merge
// is one transaction; any failure leaves both cards untouched.
func (s *IdentityService) Merge(ctx context.Context, keeperID, duplicateID uint) (*models.Card, error) {
	if keeperID == 0 || duplicateID == 0 || keeperID == duplicateID {
		return nil, ErrCardNotFound
	}

	var keeper *models.Card
	err := models.DB.Transaction(func(tx *gorm.DB) error {
		cardRepo := s.cardRepo.WithTx(tx)
		appointmentRepo := s.appointmentRepo.WithTx(tx)

		// Lock in id order so two overlapping merges cannot deadlock.
		firstID, secondID := keeperID, duplicateID
		if secondID < firstID {
			firstID, secondID = secondID, firstID
		}
		first, err := cardRepo.GetByIDForUpdate(firstID)
		if err != nil {
			return err
		}
		second, err := cardRepo.GetByIDForUpdate(secondID)
		if err != nil {
			return err
		}
		if first == nil || second == nil {
			return ErrCardNotFound
		}

		locked := map[uint]*models.Card{first.ID: first, second.ID: second}
		keeper = locked[keeperID]
		duplicate := locked[duplicateID]

		if keeper.CanonicalPhone != duplicate.CanonicalPhone {
			return fmt.Errorf("%w: cards do not share a phone", ErrMergeAborted)
		}

		mergeProgress(keeper, duplicate)

		if err := appointmentRepo.ReassignCard(duplicate.ID, keeper.ID); err != nil {
			return fmt.Errorf("%w: reassign appointments: %v", ErrMergeAborted, err)
		}
		if err := cardRepo.Update(keeper); err != nil {
			return fmt.Errorf("%w: update keeper: %v", ErrMergeAborted, err)
		}
		if err := cardRepo.Delete(duplicate); err != nil {
			return fmt.Errorf("%w: delete duplicate: %v", ErrMergeAborted, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Infow("cards_merged",
		"keeper_id", keeperID,
		"duplicate_id", duplicateID,
		"canonical_phone", keeper.CanonicalPhone,
	)
	s.notify(ctx, keeper)
	return keeper, nil
}

// MergeGroup merges every duplicate of one canonical phone into its keeper.
func (s *IdentityService) MergeGroup(ctx context.Context, canonical string) (*models.Card, error) {
	cards, err := s.cardRepo.ListByCanonicalPhone(canonical)
	if err != nil {
		return nil, err
	}
	if len(cards) == 0 {
		return nil, ErrCardNotFound
	}
	keeper := &cards[0]
	for _, duplicate := range cards[1:] {
		merged, err := s.Merge(ctx, keeper.ID, duplicate.ID)
		if err != nil {
			return nil, err
		}
		keeper = merged
	}
	return keeper, nil
}

func (s *IdentityService) notify(ctx context.Context, card *models.Card) {
	if s.notifier == nil || card == nil {
		return
	}
	s.notifier.NotifyCardMutated(ctx, card)
}

// mergeProgress folds the duplicate's earned progress into the keeper without
// exceeding the keeper's plan shape.
func mergeProgress(keeper, duplicate *models.Card) {
	if constants.SessionPlans(keeper.Plan) {
		keeper.SessionsUsed += duplicate.SessionsUsed
		if keeper.SessionsUsed >= keeper.SessionsTotal {
			keeper.SessionsUsed = keeper.SessionsTotal
			if keeper.Status == constants.CardStatusActive {
				keeper.Status = constants.CardStatusCompleted
			}
		}
	} else {
		keeper.Stamps += duplicate.Stamps
		if keeper.Stamps >= keeper.MaxStamps {
			keeper.Stamps = keeper.MaxStamps
			if keeper.Status == constants.CardStatusActive {
				keeper.Status = constants.CardStatusCompleted
			}
		}
	}
	if duplicate.LastVisitAt != nil {
		if keeper.LastVisitAt == nil || duplicate.LastVisitAt.After(*keeper.LastVisitAt) {
			keeper.LastVisitAt = duplicate.LastVisitAt
		}
	}
}
