package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	enTranslations "github.com/go-playground/validator/v10/translations/en"
)

var reIndianPhone = regexp.MustCompile(`^[6-9]\d{9}$`)

// ErrTranslatorNotFound indicates the requested translator is unavailable.
var ErrTranslatorNotFound = errors.New("translator not found")

// Errors maps JSON field names to translated messages.
type Errors map[string]string

// Error implements the error interface.
func (e Errors) Error() string {
	if len(e) == 0 {
		return "validation error"
	}
	b, err := json.Marshal(map[string]string(e))
	if err != nil {
		return fmt.Sprintf("validation error (failed to marshal: %v)", err)
	}
	return string(b)
}

// Validator checks request structs using go-playground/validator tags.
type Validator struct {
	validate   *validator.Validate
	translator ut.Translator
}

// New constructs a Validator with English messages and the inphone rule.
func New() (*Validator, error) {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(jsonFieldName)

	enLang := en.New()
	uni := ut.New(enLang, enLang)
	enTrans, ok := uni.GetTranslator("en")
	if !ok {
		return nil, ErrTranslatorNotFound
	}
	if err := enTranslations.RegisterDefaultTranslations(validate, enTrans); err != nil {
		return nil, err
	}
	if err := registerCustom(validate, enTrans); err != nil {
		return nil, err
	}

	return &Validator{validate: validate, translator: enTrans}, nil
}

// Validate returns Errors when data fails its tags.
func (v *Validator) Validate(data any) error {
	err := v.validate.Struct(data)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	out := make(Errors, len(fieldErrs))
	for _, fe := range fieldErrs {
		out[fe.Field()] = fe.Translate(v.translator)
	}
	return out
}

func jsonFieldName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	if name == "-" || name == "" {
		return fld.Name
	}
	return name
}

func registerCustom(validate *validator.Validate, enTrans ut.Translator) error {
	err := validate.RegisterValidation("inphone", func(fl validator.FieldLevel) bool {
		p, ok := fl.Field().Interface().(string)
		return ok && reIndianPhone.MatchString(p)
	})
	if err != nil {
		return err
	}
	return validate.RegisterTranslation("inphone", enTrans,
		func(ut ut.Translator) error {
			return ut.Add("inphone", "{0} must be a 10-digit Indian mobile number", false)
		},
		func(ut ut.Translator, fe validator.FieldError) string {
			t, err := ut.T(fe.Tag(), fe.Field())
			if err != nil {
				return fe.Error()
			}
			return t
		},
	)
}
