package config

import (
	validatorPkg "FaceBridge/pkg/validator"

	"github.com/go-playground/validator/v10"
)

func NewValidator() *validator.Validate {
	return validatorPkg.New()
}
