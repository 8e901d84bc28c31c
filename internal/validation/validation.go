package validation

import (
	"math"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	kerrors "github.com/jrsteele09/korebog/internal/errors"
)

// New returns a validator that reports fields by their json names. It adds the
// "finite" tag, which rejects NaN and infinite floats.
func New() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("finite", finite)
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return strings.ToLower(fld.Name)
		}
		return name
	})
	return v
}

func finite(fl validator.FieldLevel) bool {
	switch fl.Field().Kind() {
	case reflect.Float32, reflect.Float64:
		f := fl.Field().Float()
		return !math.IsNaN(f) && !math.IsInf(f, 0)
	}
	return true
}

// Struct converts validator failures into a *errors.ValidationError.
func Struct(v *validator.Validate, s interface{}) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !kerrors.As(err, &verrs) {
		return kerrors.Wrapf(kerrors.ErrValidation, "%v", err)
	}
	fields := make([]kerrors.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, kerrors.FieldError{Field: fe.Field(), Rule: fe.Tag()})
	}
	return kerrors.NewValidationError(fields...)
}
