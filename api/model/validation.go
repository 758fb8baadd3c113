package model

import (
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// chatRoles are the message roles the API accepts.
var chatRoles = map[string]bool{
	"user":      true,
	"assistant": true,
	"system":    true,
}

// RegisterValidations installs the custom binding rules on gin's
// validator engine. Safe to call more than once.
func RegisterValidations() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}

	_ = v.RegisterValidation("chatrole", func(fl validator.FieldLevel) bool {
		return chatRoles[fl.Field().String()]
	})
}
