package handlers

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	govalidator "github.com/go-playground/validator/v10"
	"github.com/staylet/rental-booking-backend/internal/services"
	"github.com/staylet/rental-booking-backend/internal/utils"
	"github.com/staylet/rental-booking-backend/pkg/validator"
)

// RegisterValidators adds the custom binding tags used by request models
func RegisterValidators() error {
	engine, ok := binding.Validator.Engine().(*govalidator.Validate)
	if !ok {
		return errors.New("unexpected binding validator engine")
	}

	phones := validator.NewPhoneValidator()
	return engine.RegisterValidation("phone", func(fl govalidator.FieldLevel) bool {
		return phones.IsValid(fl.Field().String())
	})
}

// requestContext carries the caller's IP and user agent into the services
func requestContext(c *gin.Context) context.Context {
	return services.WithRequestMeta(c.Request.Context(), services.RequestMeta{
		IPAddress: utils.ClientIP(c),
		UserAgent: utils.UserAgent(c),
	})
}
