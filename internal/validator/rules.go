package validator

import (
	"daohub_backend/internal/models"

	"github.com/go-playground/validator/v10"
)

func registerCustomRules(v *validator.Validate) error {
	if err := v.RegisterValidation("notification_type", func(fl validator.FieldLevel) bool {
		return models.NotificationType(fl.Field().String()).Valid()
	}); err != nil {
		return err
	}
	return v.RegisterValidation("channel", func(fl validator.FieldLevel) bool {
		return models.Channel(fl.Field().String()).Valid()
	})
}
