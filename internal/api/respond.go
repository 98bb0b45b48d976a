package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/lojinha/storefront/internal/middleware"
	"github.com/lojinha/storefront/internal/models"
	"github.com/lojinha/storefront/internal/payments"
	"github.com/lojinha/storefront/internal/services"
	"github.com/lojinha/storefront/pkg/logkey"
)

const maxBodyBytes = 1 << 20

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report fields by their JSON names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
		return slugPattern.MatchString(fl.Field().String())
	})
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String(logkey.Error, err.Error()))
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, models.ErrorResponse{Error: message})
}

// decode reads a JSON body into dst and validates it. It writes the 400
// response itself and reports false when the request is unusable.
func (a *App) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := a.validate.Struct(dst); err != nil {
		slog.Info("validation failed",
			slog.String(logkey.Error, err.Error()),
			slog.String(logkey.RequestID, middleware.RequestID(r.Context())))
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var vErrs validator.ValidationErrors
	if !errors.As(err, &vErrs) || len(vErrs) == 0 {
		return http.StatusText(http.StatusBadRequest)
	}
	vErr := vErrs[0]
	switch vErr.Tag() {
	case "required":
		return vErr.Field() + " value missing"
	case "min", "gte", "gt":
		return vErr.Field() + " value is less than " + vErr.Param()
	case "max":
		return vErr.Field() + " value is too long"
	case "email":
		return vErr.Field() + " must be a valid email"
	case "slug":
		return vErr.Field() + " may only contain lowercase letters, digits and dashes"
	default:
		return vErr.Field() + " is invalid"
	}
}

// errorStatus maps service errors to HTTP responses
func errorStatus(err error) (int, string) {
	var (
		stockErr   *services.InsufficientStockError
		paymentErr *payments.Error
	)
	switch {
	case errors.Is(err, services.ErrProductNotFound),
		errors.Is(err, services.ErrOrderNotFound),
		errors.Is(err, services.ErrCategoryNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, services.ErrDuplicateSlug),
		errors.Is(err, services.ErrProductInUse):
		return http.StatusConflict, err.Error()
	case errors.As(err, &stockErr):
		return http.StatusBadRequest, stockErr.Error()
	case errors.Is(err, services.ErrInvalidQuantity),
		errors.Is(err, services.ErrTotalTooLarge),
		errors.Is(err, services.ErrEmptyCart),
		errors.Is(err, services.ErrEmailRequired),
		errors.Is(err, services.ErrLookupFieldsMissing),
		errors.Is(err, services.ErrLookupNoMatch),
		errors.Is(err, services.ErrNoOrdersForEmail),
		errors.Is(err, services.ErrOTPNotRequested),
		errors.Is(err, services.ErrOTPExpired):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, services.ErrOTPMismatch):
		return http.StatusForbidden, err.Error()
	case errors.As(err, &paymentErr):
		return http.StatusBadGateway, "payment provider unavailable"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func (a *App) handleError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := errorStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed",
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			slog.String(logkey.Error, err.Error()),
			slog.String(logkey.RequestID, middleware.RequestID(r.Context())))
	}
	writeError(w, status, message)
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id, err == nil && id > 0
}
