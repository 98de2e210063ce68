package api

import (
	"github.com/go-playground/validator/v10"

	"github.com/AdotAyush/cedefi-banking/internal/models"
)

// validate carries the request validator with the custom did rule registered.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("did", func(fl validator.FieldLevel) bool {
		return models.ValidDID(fl.Field().String())
	})
	return v
}
