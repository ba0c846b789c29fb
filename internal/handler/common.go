package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"ledger-core/internal/errors"
)

const idempotencyHeader = "Idempotency-Key"

var validate = validator.New(validator.WithRequiredStructEnabled())

type Response struct {
	Data  interface{} `json:"data,omitempty"`
	Error *Error      `json:"error,omitempty"`
}

type Error struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Details   string `json:"details,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := Response{Data: data}
	json.NewEncoder(w).Encode(response)
}

func writeError(w http.ResponseWriter, err error) {
	appErr := errors.As(err)
	w.Header().Set("Content-Type", "application/json")

	statusCode := appErr.HTTPStatus()
	errResponse := Error{
		Code:      string(appErr.Code),
		Message:   appErr.Message,
		Details:   appErr.Details,
		Retryable: appErr.Retryable(),
	}
	if statusCode == http.StatusInternalServerError {
		errResponse.Details = ""
	}

	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(Response{Error: &errResponse})
}

// decodeAndValidate reads a JSON body into T and checks its validate tags.
func decodeAndValidate[T any](r *http.Request) (*T, error) {
	var req T
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, errors.NewAppError(errors.InvalidInput, "invalid request body").WithDetails(err.Error())
	}
	if err := validate.Struct(&req); err != nil {
		return nil, errors.NewAppError(errors.InvalidInput, "validation failed").WithDetails(err.Error())
	}
	return &req, nil
}

func parseAmount(field, value string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, errors.NewAppErrorf(errors.InvalidAmount, "invalid %s format", field).WithDetails(err.Error())
	}
	return amount, nil
}

// parseOptionalAmount returns zero for an empty value.
func parseOptionalAmount(field, value string) (decimal.Decimal, error) {
	if value == "" {
		return decimal.Zero, nil
	}
	amount, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, errors.NewAppErrorf(errors.InvalidInput, "invalid %s format", field).WithDetails(err.Error())
	}
	return amount, nil
}

// idempotencyKey takes the key from the request body, falling back to the
// Idempotency-Key header.
func idempotencyKey(r *http.Request, fromBody string) (*uuid.UUID, error) {
	raw := fromBody
	if raw == "" {
		raw = r.Header.Get(idempotencyHeader)
	}
	if raw == "" {
		return nil, nil
	}
	key, err := uuid.Parse(raw)
	if err != nil {
		return nil, errors.NewAppError(errors.InvalidInput, "invalid idempotency_key format").WithDetails(err.Error())
	}
	return &key, nil
}
