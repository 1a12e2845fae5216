package public

import (
	"errors"

	"github.com/sellos-next/internal/http/response"
	"github.com/sellos-next/internal/service"

	"github.com/gin-gonic/gin"
)

// mappedHandlerError maps a business error onto a response code and message.
type mappedHandlerError struct {
	target error
	code   int
	msg    string
}

func respondWithMappedError(c *gin.Context, err error, rules []mappedHandlerError, fallbackCode int, fallbackMsg string) {
	for _, rule := range rules {
		if errors.Is(err, rule.target) {
			respondError(c, rule.code, rule.msg, nil)
			return
		}
	}
	respondError(c, fallbackCode, fallbackMsg, err)
}

var cardCommonErrorRules = []mappedHandlerError{
	{target: service.ErrCardNotFound, code: response.CodeNotFound, msg: "card not found"},
	{target: service.ErrPhoneInvalid, code: response.CodeBadRequest, msg: "phone invalid"},
	{target: service.ErrPhoneTaken, code: response.CodeConflict, msg: "phone already registered"},
	{target: service.ErrAmbiguousDuplicate, code: response.CodeConflict, msg: "phone maps to multiple cards"},
	{target: service.ErrInvalidPlan, code: response.CodeBadRequest, msg: "invalid plan"},
	{target: service.ErrCardAlreadyCompleted, code: response.CodeConflict, msg: "card already completed"},
	{target: service.ErrCardNotCompleted, code: response.CodeConflict, msg: "card not completed"},
	{target: service.ErrInsufficientSessions, code: response.CodeConflict, msg: "no sessions remaining"},
	{target: service.ErrAppointmentInvalid, code: response.CodeBadRequest, msg: "appointment invalid"},
}

var walletPassErrorRules = []mappedHandlerError{
	{target: service.ErrCardNotFound, code: response.CodeNotFound, msg: "card not found"},
	{target: service.ErrProviderUnavailable, code: response.CodeBadRequest, msg: "wallet provider disabled"},
	{target: service.ErrPassUnavailable, code: response.CodeInternal, msg: "wallet pass unavailable"},
	{target: service.ErrInvalidPlan, code: response.CodeInternal, msg: "wallet pass unavailable"},
}
