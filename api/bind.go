package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"

	"github.com/warp/oee-tracker/logger"
	"github.com/warp/oee-tracker/production"
)

const maxBodyBytes = 1 << 20

type validatorSvc struct {
	validate   *validator.Validate
	translator ut.Translator
}

var (
	vOnce sync.Once
	vSvc  *validatorSvc
)

// validation returns the validator singleton with english messages and
// json field names.
func validation() *validatorSvc {
	vOnce.Do(func() {
		enLoc := en.New()
		uni := ut.New(enLoc, enLoc)
		trans, _ := uni.GetTranslator("en")

		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			tag := fld.Tag.Get("json")
			if tag == "-" || tag == "" {
				return fld.Name
			}
			if idx := strings.Index(tag, ","); idx >= 0 {
				tag = tag[:idx]
			}
			return tag
		})
		_ = en_translations.RegisterDefaultTranslations(v, trans)

		_ = v.RegisterTranslation("min", trans,
			func(ut ut.Translator) error { return ut.Add("min", "{0} must be at least {1}", true) },
			func(ut ut.Translator, fe validator.FieldError) string {
				msg, _ := ut.T("min", fe.Field(), fe.Param())
				return msg
			},
		)

		vSvc = &validatorSvc{validate: v, translator: trans}
	})
	return vSvc
}

// parseJSON decodes the body into T and validates it. Failures are
// KindValidation errors naming the offending field.
func parseJSON[T any](r *http.Request) (T, error) {
	const op = "api.parseJSON"
	var zero T

	defer func() {
		if err := r.Body.Close(); err != nil {
			logger.C(r.Context()).Warn().Err(err).Msg("failed to close request body")
		}
	}()

	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	var dst T
	if err := dec.Decode(&dst); err != nil {
		if errors.Is(err, io.EOF) {
			return zero, production.Validationf(op, "body", "request body is empty")
		}
		var perr *production.Error
		if errors.As(err, &perr) {
			return zero, perr
		}
		return zero, production.Validationf(op, "body", "invalid JSON: %v", err)
	}
	if dec.More() {
		return zero, production.Validationf(op, "body", "unexpected trailing data")
	}

	if err := validation().validate.Struct(dst); err != nil {
		var inv *validator.InvalidValidationError
		if errors.As(err, &inv) {
			return zero, production.E(production.KindInternal, op, err)
		}
		field, msg := fieldAndMessage(err)
		return zero, production.Validationf(op, field, "%s", msg)
	}
	return dst, nil
}

// fieldAndMessage returns the first failing field and its translated
// message.
func fieldAndMessage(err error) (field, message string) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		ns := fe.Namespace()
		if i := strings.Index(ns, "."); i >= 0 {
			ns = ns[i+1:]
		}
		return ns, fe.Translate(validation().translator)
	}
	return "", err.Error()
}
