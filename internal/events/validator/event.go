package validator

import (
	"errors"
	"fmt"
	"strings"

	"queuegate/pkg/logger"
	"queuegate/pkg/model"

	"github.com/go-playground/validator/v10"
)

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ""
	}
	var messages []string
	for _, err := range v {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %d error(s): [%s]", len(v), strings.Join(messages, "; "))
}

type EventValidator struct {
	validate *validator.Validate
	logger   *logger.Logger
}

func NewEventValidator(log *logger.Logger) *EventValidator {
	v := validator.New()

	if err := v.RegisterValidation("notblank", validateNotBlank); err != nil {
		log.Fatal("Failed to register 'notblank' validator",
			"error", err,
		)
	}

	return &EventValidator{
		validate: v,
		logger:   log,
	}
}

func validateNotBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

func (v *EventValidator) ValidateCreate(req *model.EventCreate) error {
	if err := v.validate.Struct(req); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return v.translateValidationErrors(validationErrs)
		}
		return err
	}

	return v.validateSlots(req.Slots, req.MaxParticipants)
}

func (v *EventValidator) ValidateSlot(req *model.SlotCreate, existing []*model.Slot, maxParticipants int) error {
	if err := v.validate.Struct(req); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return v.translateValidationErrors(validationErrs)
		}
		return err
	}

	all := make([]model.SlotCreate, 0, len(existing)+1)
	for _, s := range existing {
		all = append(all, model.SlotCreate{Name: s.Name, Quantity: s.Quantity, Price: s.Price})
	}
	all = append(all, *req)

	return v.validateSlots(all, maxParticipants)
}

// validateSlots checks slot names are unique and that the slots together do
// not offer more places than the event admits.
func (v *EventValidator) validateSlots(slots []model.SlotCreate, maxParticipants int) error {
	if len(slots) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(slots))
	total := 0
	for _, s := range slots {
		key := strings.ToLower(s.Name)
		if _, ok := seen[key]; ok {
			return ValidationErrors{
				ValidationError{
					Field:   "Slots",
					Message: fmt.Sprintf("duplicate slot name %q", s.Name),
				},
			}
		}
		seen[key] = struct{}{}
		total += s.Quantity
	}

	if total > maxParticipants {
		return ValidationErrors{
			ValidationError{
				Field:   "Slots",
				Message: fmt.Sprintf("slot quantities (%d) exceed max_participants (%d)", total, maxParticipants),
			},
		}
	}

	return nil
}

func (v *EventValidator) translateValidationErrors(errs validator.ValidationErrors) ValidationErrors {
	var validationErrors ValidationErrors

	for _, err := range errs {
		message := err.Error()

		switch err.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", err.Field())
		case "notblank":
			message = fmt.Sprintf("%s cannot be blank", err.Field())
		case "min":
			message = fmt.Sprintf("%s must be at least %s", err.Field(), err.Param())
		case "max":
			message = fmt.Sprintf("%s must be at most %s", err.Field(), err.Param())
		case "gtfield":
			message = fmt.Sprintf("%s must be after %s", err.Field(), err.Param())
		case "mongodb":
			message = fmt.Sprintf("%s must be a valid MongoDB ObjectID", err.Field())
		}

		validationErrors = append(validationErrors, ValidationError{
			Field:   err.Field(),
			Message: message,
		})
	}

	return validationErrors
}
