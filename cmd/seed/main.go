package main

import (
	"fmt"
	"time"

	"github.com/sellos-next/internal/config"
	"github.com/sellos-next/internal/constants"
	"github.com/sellos-next/internal/logger"
	"github.com/sellos-next/internal/models"
	"github.com/sellos-next/internal/phone"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func main() {
	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	stdLog := logger.StdLogger()
	if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, models.DBPoolConfig{
		MaxOpenConns:           cfg.Database.Pool.MaxOpenConns,
		MaxIdleConns:           cfg.Database.Pool.MaxIdleConns,
		ConnMaxLifetimeSeconds: cfg.Database.Pool.ConnMaxLifetimeSeconds,
		ConnMaxIdleTimeSeconds: cfg.Database.Pool.ConnMaxIdleTimeSeconds,
	}); err != nil {
		stdLog.Fatalf("Failed to connect database: %v", err)
	}

	if err := models.AutoMigrate(); err != nil {
		stdLog.Fatalf("Failed to migrate database: %v", err)
	}

	normalizer := phone.NewNormalizer(cfg.Phone.CountryCode, cfg.Phone.NationalLength)

	cards := []models.Card{
		{
			Phone:       "55 1234 5678",
			DisplayName: "María Fernanda López",
			Plan:        constants.PlanLoyalty,
			Stamps:      3,
			MaxStamps:   10,
			Status:      constants.CardStatusActive,
			PlanPrice:   models.NewMoneyFromDecimal(decimal.Zero),
		},
		{
			Phone:         "+52 55 8765 4321",
			DisplayName:   "Ana Sofía Ramírez",
			Plan:          constants.PlanAnnual,
			SessionsUsed:  4,
			SessionsTotal: 12,
			Status:        constants.CardStatusActive,
			PlanPrice:     models.NewMoneyFromDecimal(decimal.NewFromInt(4800)),
		},
		{
			Phone:         "5559876543",
			DisplayName:   "Valentina Cruz",
			Plan:          constants.PlanGold,
			SessionsUsed:  24,
			SessionsTotal: 24,
			Status:        constants.CardStatusCompleted,
			PlanPrice:     models.NewMoneyFromDecimal(decimal.NewFromInt(9600)),
		},
	}

	for i := range cards {
		card := &cards[i]
		canonical := normalizer.Normalize(card.Phone)
		if !canonical.National {
			stdLog.Printf("Skip card %s: phone not normalizable", card.DisplayName)
			continue
		}
		card.CanonicalPhone = canonical.Digits

		var existing models.Card
		if err := models.DB.Where("canonical_phone = ?", card.CanonicalPhone).First(&existing).Error; err != nil {
			card.Serial = uuid.NewString()
			if err := models.DB.Create(card).Error; err != nil {
				stdLog.Printf("Failed to create card %s: %v", card.DisplayName, err)
			} else {
				stdLog.Printf("Created card: %s (%s)", card.DisplayName, card.Serial)
			}
		} else {
			stdLog.Printf("Card already exists: %s", existing.DisplayName)
			card.ID = existing.ID
		}
	}

	now := time.Now()
	appointments := []models.Appointment{
		{
			ServiceName: "Limpieza facial profunda",
			ScheduledAt: now.Add(48 * time.Hour),
			Status:      models.AppointmentStatusScheduled,
			Notes:       "Primera visita del mes",
		},
		{
			ServiceName: "Masaje relajante",
			ScheduledAt: now.Add(96 * time.Hour),
			Status:      models.AppointmentStatusScheduled,
		},
	}

	if cards[0].ID != 0 {
		for _, appt := range appointments {
			appt.CardID = cards[0].ID
			var existing models.Appointment
			err := models.DB.
				Where("card_id = ? AND service_name = ?", appt.CardID, appt.ServiceName).
				First(&existing).Error
			if err != nil {
				if err := models.DB.Create(&appt).Error; err != nil {
					stdLog.Printf("Failed to create appointment %s: %v", appt.ServiceName, err)
				} else {
					stdLog.Printf("Created appointment: %s", appt.ServiceName)
				}
			} else {
				stdLog.Printf("Appointment already exists: %s", appt.ServiceName)
			}
		}
	}

	fmt.Println("\nSeed data ready:")
	fmt.Println("- 3 cards (loyalty, annual, gold)")
	fmt.Println("- 2 appointments on the loyalty card")
}
