package dto

import (
	"html"
	"reflect"
	"regexp"
	"strings"

	"phantom-ledger/internal/core/domain"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var (
	safeStringRe  = regexp.MustCompile(`^[a-zA-Z0-9_\-\.]+$`)
	referenceRe   = regexp.MustCompile(`^[a-zA-Z0-9_\-\./]{1,100}$`)
	accessTokenRe = regexp.MustCompile(`^[0-9]{6}$`)
	phoneRe       = regexp.MustCompile(`^\+?[0-9]{7,15}$`)
)

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("safe_id", validateSafeID)
		_ = v.RegisterValidation("reference", validateReference)
		_ = v.RegisterValidation("access_token", validateAccessToken)
		_ = v.RegisterValidation("phone", validatePhone)
		_ = v.RegisterValidation("channel", validateChannel)
		_ = v.RegisterValidation("amount", validateAmount)
	}
}

// validateSafeID allows alphanumeric, underscore, dash, and dot.
func validateSafeID(fl validator.FieldLevel) bool {
	return safeStringRe.MatchString(fl.Field().String())
}

// validateReference rejects ':', which is reserved for derived references
// such as "<ref>:fee" and "<ref>:reversal".
func validateReference(fl validator.FieldLevel) bool {
	return referenceRe.MatchString(fl.Field().String())
}

func validateAccessToken(fl validator.FieldLevel) bool {
	return accessTokenRe.MatchString(fl.Field().String())
}

func validatePhone(fl validator.FieldLevel) bool {
	return phoneRe.MatchString(fl.Field().String())
}

// validateChannel accepts external channels only; "upgrade" is internal.
func validateChannel(fl validator.FieldLevel) bool {
	return domain.Channel(fl.Field().String()).IsExternal()
}

// validateAmount accepts a non-negative major-unit decimal string.
// Precision and range are checked when converting to minor units.
func validateAmount(fl validator.FieldLevel) bool {
	d, err := decimal.NewFromString(fl.Field().String())
	return err == nil && !d.IsNegative()
}

// SanitizeStruct trims whitespace and HTML-escapes every exported string
// field (including *string and map[string]string values) of a struct pointer.
// Fields tagged `sanitize:"-"` are left untouched.
func SanitizeStruct(v interface{}) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.Elem().Kind() != reflect.Struct {
		return
	}
	sanitizeFields(rv.Elem())
}

func sanitizeFields(rv reflect.Value) {
	rt := rv.Type()
	for i := 0; i < rv.NumField(); i++ {
		f := rv.Field(i)
		if !f.CanSet() || rt.Field(i).Tag.Get("sanitize") == "-" {
			continue
		}
		switch f.Kind() {
		case reflect.String:
			f.SetString(sanitize(f.String()))
		case reflect.Ptr:
			if f.IsNil() {
				continue
			}
			elem := f.Elem()
			if elem.Kind() == reflect.String {
				elem.SetString(sanitize(elem.String()))
			}
		case reflect.Map:
			if f.IsNil() || f.Type().Elem().Kind() != reflect.String {
				continue
			}
			iter := f.MapRange()
			for iter.Next() {
				f.SetMapIndex(iter.Key(), reflect.ValueOf(sanitize(iter.Value().String())).Convert(f.Type().Elem()))
			}
		}
	}
}

func sanitize(s string) string {
	return html.EscapeString(strings.TrimSpace(s))
}
