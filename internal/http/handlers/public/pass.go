package public

import (
	"net/http"

	"github.com/sellos-next/internal/http/response"

	"github.com/gin-gonic/gin"
)

// GetApplePass streams the freshly signed .pkpass bundle for a card
func (h *Handler) GetApplePass(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	bundle, filename, err := h.WalletSyncService.ApplePass(id)
	if err != nil {
		respondWithMappedError(c, err, walletPassErrorRules, response.CodeInternal, "wallet pass unavailable")
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, "application/vnd.apple.pkpass", bundle)
}

// GetGoogleSaveURL returns the add-to-Google-Wallet link for a card
func (h *Handler) GetGoogleSaveURL(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	url, err := h.WalletSyncService.GoogleSaveURL(c.Request.Context(), id)
	if err != nil {
		respondWithMappedError(c, err, walletPassErrorRules, response.CodeInternal, "wallet pass unavailable")
		return
	}
	response.Success(c, gin.H{"save_url": url})
}
