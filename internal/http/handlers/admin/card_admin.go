package admin

import (
	"errors"
	"strconv"
	"strings"

	"github.com/sellos-next/internal/http/response"
	"github.com/sellos-next/internal/queue"
	"github.com/sellos-next/internal/repository"
	"github.com/sellos-next/internal/service"

	"github.com/gin-gonic/gin"
)

// MergeCardsRequest folds a duplicate card into its keeper.
type MergeCardsRequest struct {
	KeeperID    uint `json:"keeper_id" binding:"required"`
	DuplicateID uint `json:"duplicate_id" binding:"required"`
}

// DuplicateScanRequest kicks off an async duplicate sweep.
type DuplicateScanRequest struct {
	AutoMerge   bool   `json:"auto_merge"`
	RequestedBy string `json:"requested_by"`
}

// ListCards queries cards for the back office
func (h *Handler) ListCards(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	page, pageSize = normalizePagination(page, pageSize)

	cards, total, err := h.CardService.List(repository.CardListFilter{
		Plan:     strings.TrimSpace(c.Query("plan")),
		Status:   strings.TrimSpace(c.Query("status")),
		Keyword:  strings.TrimSpace(c.Query("keyword")),
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		respondError(c, response.CodeInternal, "card list failed", err)
		return
	}
	response.SuccessWithPage(c, cards, response.BuildPagination(page, pageSize, total))
}

// ListDuplicates reports every phone held by more than one card
func (h *Handler) ListDuplicates(c *gin.Context) {
	groups, err := h.IdentityService.FindDuplicates()
	if err != nil {
		respondError(c, response.CodeInternal, "duplicate lookup failed", err)
		return
	}
	response.Success(c, groups)
}

// MergeCards folds a duplicate card into its keeper
func (h *Handler) MergeCards(c *gin.Context) {
	var req MergeCardsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "bad request", err)
		return
	}
	card, err := h.IdentityService.Merge(c.Request.Context(), req.KeeperID, req.DuplicateID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrCardNotFound):
			respondError(c, response.CodeNotFound, "card not found", nil)
		case errors.Is(err, service.ErrMergeAborted):
			respondError(c, response.CodeConflict, "merge aborted", err)
		default:
			respondError(c, response.CodeInternal, "merge failed", err)
		}
		return
	}
	response.Success(c, card)
}

// ResetCard starts a finished card over
func (h *Handler) ResetCard(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	card, err := h.CardService.ResetCompleted(c.Request.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrCardNotFound):
			respondError(c, response.CodeNotFound, "card not found", nil)
		case errors.Is(err, service.ErrCardNotCompleted):
			respondError(c, response.CodeConflict, "card not completed", nil)
		default:
			respondError(c, response.CodeInternal, "reset failed", err)
		}
		return
	}
	response.Success(c, card)
}

// EnqueueDuplicateScan pushes an async duplicate sweep to the worker
func (h *Handler) EnqueueDuplicateScan(c *gin.Context) {
	var req DuplicateScanRequest
	// An empty body is a plain report-only scan.
	_ = c.ShouldBindJSON(&req)
	if h.QueueClient == nil || !h.QueueClient.Enabled() {
		respondError(c, response.CodeBadRequest, "queue disabled", nil)
		return
	}
	err := h.QueueClient.EnqueueDuplicateScan(queue.DuplicateScanPayload{
		AutoMerge:   req.AutoMerge,
		RequestedBy: strings.TrimSpace(req.RequestedBy),
	})
	if err != nil {
		respondError(c, response.CodeInternal, "scan enqueue failed", err)
		return
	}
	response.SuccessWithMsg(c, "scan enqueued", gin.H{"auto_merge": req.AutoMerge})
}
