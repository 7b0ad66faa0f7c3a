package middleware

import (
	stderrors "errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/medassist/booking-api/internal/model"
	"github.com/medassist/booking-api/pkg/errors"
)

var customErrorMessages = map[string]string{
	"required":  "is required",
	"min":       "is too short",
	"max":       "is too long",
	"oneof":     "has an unsupported value",
	"timeofday": "must be a time of day between 00:00 and 23:59",
}

var registerOnce sync.Once

// RegisterValidators installs the custom binding tags and makes validation
// errors report JSON field names. Safe to call more than once.
func RegisterValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		if err := v.RegisterValidation("timeofday", validTimeOfDay); err != nil {
			panic(err)
		}
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "" || name == "-" {
				return fld.Name
			}
			return name
		})
	})
}

func validTimeOfDay(fl validator.FieldLevel) bool {
	t := model.TimeOfDay(fl.Field().Int())
	return t >= 0 && t < model.NewTimeOfDay(24, 0)
}

// BindingError turns a ShouldBind failure into an AppError. Rule violations
// become validation errors naming the field; malformed bodies are bad requests.
func BindingError(err error) error {
	var verrs validator.ValidationErrors
	if stderrors.As(err, &verrs) && len(verrs) > 0 {
		e := verrs[0]
		msg := customErrorMessages[e.Tag()]
		if msg == "" {
			msg = "is invalid"
		}
		return errors.Validation(fmt.Sprintf("%s %s", e.Field(), msg))
	}
	return errors.BadRequest("invalid request body", err)
}
