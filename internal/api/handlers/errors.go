package handlers

import (
	"errors"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/Marga-Ghale/ora-admin-console/internal/apperr"
	"github.com/Marga-Ghale/ora-admin-console/internal/models"
	"github.com/Marga-Ghale/ora-admin-console/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// ============================================
// HELPER FUNCTIONS
// ============================================

var registerTagNames sync.Once

// useJSONFieldNames makes binding errors report the JSON field name.
func useJSONFieldNames() {
	registerTagNames.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
}

func bindMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if":
		return "This field is required"
	case "oneof":
		return "Must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	default:
		return "Invalid value"
	}
}

// handleBindError reports a malformed request body.
func handleBindError(c *gin.Context, err error) {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		fields := make(map[string]string, len(ve))
		for _, fe := range ve {
			fields[fe.Field()] = bindMessage(fe)
		}
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request", Fields: fields})
		return
	}
	c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
}

// handleServiceError maps the error taxonomy onto HTTP statuses.
func handleServiceError(c *gin.Context, err error) {
	_ = c.Error(err)

	var (
		fe apperr.FieldErrors
		ve *apperr.ValidationError
		ce *apperr.ConflictError
		iv *apperr.InvariantViolation
		pe *apperr.PersistenceError
	)
	switch {
	case errors.As(err, &fe):
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Please fix the highlighted fields", Fields: fe})
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: ve.Message, Fields: map[string]string{ve.Field: ve.Message}})
	case errors.As(err, &ce):
		c.JSON(http.StatusConflict, models.ErrorResponse{Error: ce.Message, Fields: map[string]string{ce.Field: ce.Message}})
	case errors.As(err, &iv):
		c.JSON(http.StatusUnprocessableEntity, models.ErrorResponse{Error: iv.Reason})
	case errors.Is(err, apperr.ErrForbidden):
		c.JSON(http.StatusForbidden, models.ErrorResponse{Error: "You are not allowed to perform this action"})
	case errors.Is(err, apperr.ErrNotFound):
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "Organization not found"})
	case errors.Is(err, apperr.ErrSessionOpen),
		errors.Is(err, apperr.ErrFlowBusy),
		errors.Is(err, apperr.ErrNoSession),
		errors.Is(err, apperr.ErrNoDecision):
		c.JSON(http.StatusConflict, models.ErrorResponse{Error: err.Error()})
	case errors.As(err, &pe):
		c.JSON(http.StatusBadGateway, models.ErrorResponse{Error: pe.Message})
	case errors.Is(err, service.ErrInvalidToken), errors.Is(err, service.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "Unauthorized"})
	default:
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "Internal server error"})
	}
}
