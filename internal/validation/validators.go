package validation

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/benvon/gtd/internal/models"
	"github.com/go-playground/validator/v10"
)

var (
	// Validate is a shared validator instance
	Validate *validator.Validate
)

func init() {
	Validate = validator.New()

	// Register custom validators for enums
	// These should never fail in normal operation, but log if they do
	if err := Validate.RegisterValidation("task_status", validateTaskStatus); err != nil {
		panic(fmt.Sprintf("failed to register task_status validator: %v", err))
	}
	if err := Validate.RegisterValidation("time_estimate", validateTimeEstimate); err != nil {
		panic(fmt.Sprintf("failed to register time_estimate validator: %v", err))
	}
	if err := Validate.RegisterValidation("energy_level", validateEnergyLevel); err != nil {
		panic(fmt.Sprintf("failed to register energy_level validator: %v", err))
	}
	if err := Validate.RegisterValidation("email_folder", validateEmailFolder); err != nil {
		panic(fmt.Sprintf("failed to register email_folder validator: %v", err))
	}
	if err := Validate.RegisterValidation("hexcolor_or_empty", validateColor); err != nil {
		panic(fmt.Sprintf("failed to register hexcolor_or_empty validator: %v", err))
	}
}

func validateTaskStatus(fl validator.FieldLevel) bool {
	return models.TaskStatus(fl.Field().String()).Valid()
}

func validateTimeEstimate(fl validator.FieldLevel) bool {
	return models.TimeEstimate(fl.Field().String()).Valid()
}

func validateEnergyLevel(fl validator.FieldLevel) bool {
	return models.EnergyLevel(fl.Field().String()).Valid()
}

func validateEmailFolder(fl validator.FieldLevel) bool {
	return models.EmailFolder(fl.Field().String()).Valid()
}

// validateColor accepts an empty string or a #rgb / #rrggbb hex color
func validateColor(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}
	return Validate.Var(value, "hexcolor") == nil
}

// SanitizeText sanitizes text input by trimming whitespace and removing control characters
func SanitizeText(text string) string {
	// Trim whitespace
	text = strings.TrimSpace(text)

	// Remove control characters except newline and tab
	var sanitized strings.Builder
	for _, r := range text {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		sanitized.WriteRune(r)
	}

	return sanitized.String()
}

// SanitizeOptional applies SanitizeText to an optional value. Blank results become nil.
func SanitizeOptional(text *string) *string {
	if text == nil {
		return nil
	}
	s := SanitizeText(*text)
	if s == "" {
		return nil
	}
	return &s
}

// ValidateTaskStatus validates a TaskStatus string value
func ValidateTaskStatus(value string) error {
	if !models.TaskStatus(value).Valid() {
		return fmt.Errorf("invalid status: %s (must be one of inbox, next_action, waiting, someday, reference, done, trash)", value)
	}
	return nil
}

// ValidateEmailFolder validates an EmailFolder string value
func ValidateEmailFolder(value string) error {
	if !models.EmailFolder(value).Valid() {
		return fmt.Errorf("invalid folder: %s (must be one of INBOX, SENT, DRAFTS, ARCHIVED, TRASH)", value)
	}
	return nil
}

// FormatErrors turns validator errors into a single readable message
func FormatErrors(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", field))
		case "min":
			msgs = append(msgs, fmt.Sprintf("%s must be at least %s characters", field, fe.Param()))
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s characters", field, fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s is invalid (%s)", field, fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}
