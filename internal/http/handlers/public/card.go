package public

import (
	"strings"
	"time"

	"github.com/sellos-next/internal/http/response"
	"github.com/sellos-next/internal/models"
	"github.com/sellos-next/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// RegisterCardRequest creates a new card.
type RegisterCardRequest struct {
	Phone         string `json:"phone" binding:"required"`
	DisplayName   string `json:"display_name" binding:"required"`
	Plan          string `json:"plan"`
	MaxStamps     int    `json:"max_stamps"`
	SessionsTotal int    `json:"sessions_total"`
	PlanPrice     string `json:"plan_price"`
}

// ChangePlanRequest moves a card to another plan.
type ChangePlanRequest struct {
	Plan          string `json:"plan" binding:"required"`
	MaxStamps     int    `json:"max_stamps"`
	SessionsTotal int    `json:"sessions_total"`
	PlanPrice     string `json:"plan_price"`
}

// ScheduleAppointmentRequest books a visit.
type ScheduleAppointmentRequest struct {
	ServiceName string    `json:"service_name" binding:"required"`
	ScheduledAt time.Time `json:"scheduled_at" binding:"required"`
	Notes       string    `json:"notes"`
}

// RegisterCard creates a card for a new client phone
func (h *Handler) RegisterCard(c *gin.Context) {
	var req RegisterCardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "bad request", err)
		return
	}
	price, ok := parsePlanPrice(c, req.PlanPrice)
	if !ok {
		return
	}
	card, err := h.CardService.Register(c.Request.Context(), service.RegisterCardInput{
		Phone:         req.Phone,
		DisplayName:   req.DisplayName,
		Plan:          req.Plan,
		MaxStamps:     req.MaxStamps,
		SessionsTotal: req.SessionsTotal,
		PlanPrice:     price,
	})
	if err != nil {
		respondWithMappedError(c, err, cardCommonErrorRules, response.CodeInternal, "card create failed")
		return
	}
	response.Success(c, card)
}

// ResolveCard maps a raw phone in any format to its card
func (h *Handler) ResolveCard(c *gin.Context) {
	phone := strings.TrimSpace(c.Query("phone"))
	if phone == "" {
		respondError(c, response.CodeBadRequest, "phone is required", nil)
		return
	}
	card, err := h.IdentityService.Resolve(phone)
	if err != nil {
		respondWithMappedError(c, err, cardCommonErrorRules, response.CodeInternal, "card lookup failed")
		return
	}
	response.Success(c, card)
}

// GetCard fetches one card
func (h *Handler) GetCard(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	card, err := h.CardService.GetByID(id)
	if err != nil {
		respondWithMappedError(c, err, cardCommonErrorRules, response.CodeInternal, "card lookup failed")
		return
	}
	response.Success(c, card)
}

// CounterAmountRequest carries an optional amount; absent means one.
type CounterAmountRequest struct {
	Amount int `json:"amount"`
}

// AddStamp adds stamps to a stamp-plan card
func (h *Handler) AddStamp(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	amount, ok := parseCounterAmount(c)
	if !ok {
		return
	}
	card, err := h.CardService.AddStamp(c.Request.Context(), id, amount)
	if err != nil {
		respondWithMappedError(c, err, cardCommonErrorRules, response.CodeInternal, "stamp failed")
		return
	}
	response.Success(c, card)
}

// ConsumeSession burns sessions on a session-plan card
func (h *Handler) ConsumeSession(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	amount, ok := parseCounterAmount(c)
	if !ok {
		return
	}
	card, err := h.CardService.ConsumeSession(c.Request.Context(), id, amount)
	if err != nil {
		respondWithMappedError(c, err, cardCommonErrorRules, response.CodeInternal, "session consume failed")
		return
	}
	response.Success(c, card)
}

// ChangePlan switches a card to another plan
func (h *Handler) ChangePlan(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req ChangePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "bad request", err)
		return
	}
	price, ok := parsePlanPrice(c, req.PlanPrice)
	if !ok {
		return
	}
	card, err := h.CardService.ChangePlan(c.Request.Context(), id, service.ChangePlanInput{
		Plan:          req.Plan,
		MaxStamps:     req.MaxStamps,
		SessionsTotal: req.SessionsTotal,
		PlanPrice:     price,
	})
	if err != nil {
		respondWithMappedError(c, err, cardCommonErrorRules, response.CodeInternal, "plan change failed")
		return
	}
	response.Success(c, card)
}

// RedeemCard claims the reward of a completed card
func (h *Handler) RedeemCard(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	card, err := h.CardService.Redeem(c.Request.Context(), id)
	if err != nil {
		respondWithMappedError(c, err, cardCommonErrorRules, response.CodeInternal, "redeem failed")
		return
	}
	response.Success(c, card)
}

// ScheduleAppointment books a visit on a card
func (h *Handler) ScheduleAppointment(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req ScheduleAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "bad request", err)
		return
	}
	appointment, err := h.CardService.ScheduleAppointment(service.ScheduleAppointmentInput{
		CardID:      id,
		ServiceName: req.ServiceName,
		ScheduledAt: req.ScheduledAt,
		Notes:       req.Notes,
	})
	if err != nil {
		respondWithMappedError(c, err, cardCommonErrorRules, response.CodeInternal, "appointment create failed")
		return
	}
	response.Success(c, appointment)
}

// ListCardAppointments fetches the visit history of a card
func (h *Handler) ListCardAppointments(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	appointments, err := h.CardService.ListAppointments(id)
	if err != nil {
		respondWithMappedError(c, err, cardCommonErrorRules, response.CodeInternal, "appointment lookup failed")
		return
	}
	response.Success(c, appointments)
}

func parseCounterAmount(c *gin.Context) (int, bool) {
	var req CounterAmountRequest
	// An empty body keeps the default of one.
	_ = c.ShouldBindJSON(&req)
	if req.Amount < 0 {
		respondError(c, response.CodeBadRequest, "amount invalid", nil)
		return 0, false
	}
	return req.Amount, true
}

func parsePlanPrice(c *gin.Context, raw string) (models.Money, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return models.NewMoneyFromDecimal(decimal.Zero), true
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil || amount.IsNegative() {
		respondError(c, response.CodeBadRequest, "plan price invalid", err)
		return models.Money{}, false
	}
	return models.NewMoneyFromDecimal(amount), true
}
