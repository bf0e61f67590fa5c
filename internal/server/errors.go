package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	allocationdomain "github.com/vhodhq/vhod/internal/allocation/domain"
	billingdomain "github.com/vhodhq/vhod/internal/billing/domain"
	buildingdomain "github.com/vhodhq/vhod/internal/building/domain"
	directorydomain "github.com/vhodhq/vhod/internal/directory/domain"
	expensedomain "github.com/vhodhq/vhod/internal/expense/domain"
	"github.com/vhodhq/vhod/internal/identity"
	intercomdomain "github.com/vhodhq/vhod/internal/intercom/domain"
	meteringdomain "github.com/vhodhq/vhod/internal/metering/domain"
	"github.com/vhodhq/vhod/internal/policy"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrInvalidRequest = errors.New("invalid_request")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	switch {
	case err == nil:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, identity.ErrIdentityNotFound):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, policy.ErrNoGrant):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case isValidationError(err):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: err.Error(),
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: err.Error(),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: err.Error(),
		}
	case errors.Is(err, identity.ErrCollaboratorUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "collaborator unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, buildingdomain.ErrInvalidName),
		errors.Is(err, buildingdomain.ErrInvalidLabel),
		errors.Is(err, buildingdomain.ErrInvalidWeight),
		errors.Is(err, buildingdomain.ErrInvalidOccupants),
		errors.Is(err, buildingdomain.ErrInvalidSettings),
		errors.Is(err, buildingdomain.ErrUnknownEntrance),
		errors.Is(err, directorydomain.ErrInvalidEmail),
		errors.Is(err, directorydomain.ErrInvalidRole),
		errors.Is(err, expensedomain.ErrInvalidCategoryName),
		errors.Is(err, expensedomain.ErrInvalidMethod),
		errors.Is(err, expensedomain.ErrInvalidTariff),
		errors.Is(err, expensedomain.ErrInvalidAmount),
		errors.Is(err, expensedomain.ErrInvalidPeriod),
		errors.Is(err, expensedomain.ErrCategoryMismatch),
		errors.Is(err, meteringdomain.ErrInvalidKind),
		errors.Is(err, meteringdomain.ErrInvalidReading),
		errors.Is(err, allocationdomain.ErrInvalidWeight),
		errors.Is(err, allocationdomain.ErrNoAllocationTargets),
		errors.Is(err, allocationdomain.ErrMeteredTotalMismatch),
		errors.Is(err, billingdomain.ErrInvalidPaymentAmount),
		errors.Is(err, intercomdomain.ErrInvalidEndpoint),
		errors.Is(err, policy.ErrUnknownAction),
		errors.Is(err, policy.ErrUnknownRole),
		errors.Is(err, policy.ErrInvalidOverrideEffect),
		errors.Is(err, policy.ErrDestructiveActionOverride):
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, buildingdomain.ErrDuplicateUnit),
		errors.Is(err, buildingdomain.ErrEntranceInUse),
		errors.Is(err, directorydomain.ErrDuplicateEmail),
		errors.Is(err, directorydomain.ErrMembershipClosed),
		errors.Is(err, expensedomain.ErrDuplicateCategory),
		errors.Is(err, expensedomain.ErrExpenseVoided),
		errors.Is(err, meteringdomain.ErrDuplicateMeter),
		errors.Is(err, meteringdomain.ErrNonMonotonicReading),
		errors.Is(err, billingdomain.ErrInvoiceVoid),
		errors.Is(err, billingdomain.ErrInvoiceNotVoidable),
		errors.Is(err, billingdomain.ErrOverpaymentNotAllowed),
		errors.Is(err, billingdomain.ErrNothingToInvoice),
		errors.Is(err, billingdomain.ErrLateFeeNotDue),
		errors.Is(err, billingdomain.ErrLateFeeApplied),
		errors.Is(err, billingdomain.ErrRecalcNotNeeded),
		errors.Is(err, billingdomain.ErrRecalcAfterPayment),
		errors.Is(err, intercomdomain.ErrDuplicateEndpoint):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, buildingdomain.ErrBuildingNotFound),
		errors.Is(err, buildingdomain.ErrUnitNotFound),
		errors.Is(err, directorydomain.ErrUserNotFound),
		errors.Is(err, directorydomain.ErrMembershipNotFound),
		errors.Is(err, expensedomain.ErrCategoryNotFound),
		errors.Is(err, expensedomain.ErrExpenseNotFound),
		errors.Is(err, meteringdomain.ErrMeterNotFound),
		errors.Is(err, billingdomain.ErrInvoiceNotFound),
		errors.Is(err, intercomdomain.ErrEndpointNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}
