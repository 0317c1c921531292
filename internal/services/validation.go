package services

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/screener-back/pkg/models"
)

// newValidator returns a validator that also understands the "metric" tag
func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("metric", func(fl validator.FieldLevel) bool {
		return models.Metric(fl.Field().String()).Valid()
	})
	return v
}

// validationError flattens validator field errors into one readable error
func validationError(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", fe.Field()))
		case "metric":
			msgs = append(msgs, fmt.Sprintf("%s: unknown metric %q", fe.Field(), fe.Value()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag()))
		}
	}
	return fmt.Errorf("invalid input: %s", strings.Join(msgs, "; "))
}
