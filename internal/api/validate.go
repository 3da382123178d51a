package api

import (
	"errors"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// newValidator reports fields by their JSON names and adds the future_date rule,
// which needs the handler's clock and zone.
func (h *Handler) newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("future_date", h.isFutureDate)
	return v
}

// isFutureDate accepts a YYYY-MM-DD string naming a day after today in the handler's zone.
func (h *Handler) isFutureDate(fl validator.FieldLevel) bool {
	day, err := time.Parse(time.DateOnly, fl.Field().String())
	if err != nil {
		return false
	}
	today := h.now().In(h.loc)
	start := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	return day.After(start)
}

// validate runs the struct rules on req and flattens failures into one message per field.
func (h *Handler) validate(req any) []string {
	err := h.validator.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, validationMessage(fe))
	}
	return msgs
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "oneof":
		return fe.Field() + " must be one of: " + fe.Param()
	case "gt":
		return fe.Field() + " must be greater than " + fe.Param()
	case "gte":
		return fe.Field() + " must be at least " + fe.Param()
	case "gtfield":
		// Param is the Go field name; report it the way clients spell it.
		p := fe.Param()
		return fe.Field() + " must be greater than " + strings.ToLower(p[:1]) + p[1:]
	case "datetime":
		return fe.Field() + " must be YYYY-MM-DD"
	case "future_date":
		return fe.Field() + " must be in the future"
	default:
		return fe.Field() + " is invalid"
	}
}

func writeValidation(w http.ResponseWriter, msgs []string) {
	writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
		"error":   "validation failed: " + strings.Join(msgs, "; "),
		"details": msgs,
	})
}
