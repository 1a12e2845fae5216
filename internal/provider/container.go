package provider

import (
	"time"

	"github.com/sellos-next/internal/cache"
	"github.com/sellos-next/internal/config"
	"github.com/sellos-next/internal/logger"
	"github.com/sellos-next/internal/models"
	"github.com/sellos-next/internal/phone"
	"github.com/sellos-next/internal/queue"
	"github.com/sellos-next/internal/repository"
	"github.com/sellos-next/internal/service"
	"github.com/sellos-next/internal/wallet/apple"
	"github.com/sellos-next/internal/wallet/google"
)

// Container is the dependency injection container
type Container struct {
	Config      *config.Config
	QueueClient *queue.Client

	// Repositories
	CardRepo        repository.CardRepository
	AppointmentRepo repository.AppointmentRepository

	// Services
	CardService       *service.CardService
	IdentityService   *service.IdentityService
	WalletSyncService *service.WalletSyncService
}

// NewContainer builds the container
func NewContainer(cfg *config.Config) *Container {
	if err := cache.InitRedis(&cfg.Redis); err != nil {
		logger.Warnw("provider_init_redis_failed", "error", err)
	}

	var queueClient *queue.Client
	if cfg.Queue.Enabled {
		qc, err := queue.NewClient(&cfg.Queue)
		if err != nil {
			logger.Errorw("provider_init_queue_client_failed", "error", err)
		} else {
			queueClient = qc
		}
	}

	c := &Container{
		Config:      cfg,
		QueueClient: queueClient,
	}

	c.initRepositories()
	c.initServices()

	return c
}

func (c *Container) initRepositories() {
	db := models.DB
	c.CardRepo = repository.NewCardRepository(db)
	c.AppointmentRepo = repository.NewAppointmentRepository(db)
}

func (c *Container) initServices() {
	normalizer := phone.NewNormalizer(c.Config.Phone.CountryCode, c.Config.Phone.NationalLength)

	var appleBuilder service.ApplePassBuilder
	if c.Config.Wallet.Apple.Enabled {
		builder, err := apple.NewBuilder(apple.Config{
			PassTypeIdentifier: c.Config.Wallet.Apple.PassTypeIdentifier,
			TeamIdentifier:     c.Config.Wallet.Apple.TeamIdentifier,
			OrganizationName:   c.Config.Wallet.Apple.OrganizationName,
			CertificatePath:    c.Config.Wallet.Apple.CertificatePath,
			PrivateKeyPath:     c.Config.Wallet.Apple.PrivateKeyPath,
			WWDRPath:           c.Config.Wallet.Apple.WWDRPath,
			AssetsDir:          c.Config.Wallet.Apple.AssetsDir,
		})
		if err != nil {
			logger.Errorw("provider_init_apple_wallet_failed", "error", err)
		} else {
			appleBuilder = builder
		}
	}

	var googleClient service.WalletObjectClient
	if c.Config.Wallet.Google.Enabled {
		client, err := google.NewClient(google.Config{
			IssuerID:            c.Config.Wallet.Google.IssuerID,
			ClassSuffix:         c.Config.Wallet.Google.ClassSuffix,
			ServiceAccountEmail: c.Config.Wallet.Google.ServiceAccountEmail,
			PrivateKeyPath:      c.Config.Wallet.Google.PrivateKeyPath,
			APIBaseURL:          c.Config.Wallet.Google.APIBaseURL,
		})
		if err != nil {
			logger.Errorw("provider_init_google_wallet_failed", "error", err)
		} else {
			googleClient = client
		}
	}

	hashTTL := time.Duration(c.Config.Wallet.Google.ObjectHashTTLHours) * time.Hour
	c.WalletSyncService = service.NewWalletSyncService(c.CardRepo, appleBuilder, googleClient, hashTTL)

	// The sync service observes card mutations, so it is built first.
	c.CardService = service.NewCardService(c.CardRepo, c.AppointmentRepo, normalizer, c.WalletSyncService)
	c.IdentityService = service.NewIdentityService(c.CardRepo, c.AppointmentRepo, normalizer, c.WalletSyncService)
}
