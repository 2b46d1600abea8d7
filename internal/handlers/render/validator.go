package render

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/nkiryanov/walletledger/internal/models"
)

func configureValidator(validate *validator.Validate) {
	_ = validate.RegisterValidation("utr", validateUTR)
	validate.RegisterTagNameFunc(useJSONTagNames)
}

func useJSONTagNames(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	// skip if tag key says it should be ignored
	if name == "-" {
		return ""
	}
	return name
}

// Bank UTR: exactly 12 digits
func validateUTR(fl validator.FieldLevel) bool {
	return models.ValidUTR(fl.Field().String())
}
