package controllers

import (
	"errors"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/myseetara-source/seetara-website-sub001/services"
)

// RegisterValidators adds the custom binding tags used by request structs.
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return errors.New("unexpected binding validator engine")
	}
	return v.RegisterValidation("bdphone", func(fl validator.FieldLevel) bool {
		return services.ValidBDPhone(fl.Field().String())
	})
}
