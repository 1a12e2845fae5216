package service

import (
	"fmt"

	"github.com/sellos-next/internal/constants"
	"github.com/sellos-next/internal/models"
)

// PlanConfig is the presentation and counter shape of one plan. Both wallet
// builders render from this table so the two passes never drift apart.
type PlanConfig struct {
	Plan          string
	Label         string
	CounterLabel  string
	UsesSessions  bool
	DefaultTotal  int
	RGBBackground string
	HexBackground string
}

var planConfigs = map[string]PlanConfig{
	constants.PlanLoyalty: {
		Plan:          constants.PlanLoyalty,
		Label:         "Tarjeta de Lealtad",
		CounterLabel:  "Sellos",
		UsesSessions:  false,
		DefaultTotal:  10,
		RGBBackground: "rgb(236,64,122)",
		HexBackground: "#EC407A",
	},
	constants.PlanAnnual: {
		Plan:          constants.PlanAnnual,
		Label:         "Plan Anual",
		CounterLabel:  "Sesiones",
		UsesSessions:  true,
		DefaultTotal:  12,
		RGBBackground: "rgb(126,87,194)",
		HexBackground: "#7E57C2",
	},
	constants.PlanGold: {
		Plan:          constants.PlanGold,
		Label:         "Plan Gold",
		CounterLabel:  "Sesiones",
		UsesSessions:  true,
		DefaultTotal:  24,
		RGBBackground: "rgb(255,179,0)",
		HexBackground: "#FFB300",
	},
}

// PlanConfigFor looks up the plan table.
func PlanConfigFor(plan string) (PlanConfig, error) {
	cfg, ok := planConfigs[plan]
	if !ok {
		return PlanConfig{}, fmt.Errorf("%w: %s", ErrInvalidPlan, plan)
	}
	return cfg, nil
}

// CounterValue renders the pass counter for a card: consumed/total for stamp
// plans, remaining/total for session plans.
func CounterValue(card *models.Card) string {
	if card == nil {
		return ""
	}
	if constants.SessionPlans(card.Plan) {
		remaining := card.SessionsTotal - card.SessionsUsed
		if remaining < 0 {
			remaining = 0
		}
		return fmt.Sprintf("%d/%d", remaining, card.SessionsTotal)
	}
	return fmt.Sprintf("%d/%d", card.Stamps, card.MaxStamps)
}
