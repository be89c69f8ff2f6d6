package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"edu-checkout/internal/domain"
	"edu-checkout/internal/infra/logging"
)

// envelope is the response shape every JSON endpoint uses.
type envelope struct {
	StatusCode    int         `json:"statusCode"`
	StatusMessage string      `json:"statusMessage"`
	Data          interface{} `json:"data,omitempty"`
	Error         *apiError   `json:"error,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Reason  string `json:"reason,omitempty"`
}

// Error codes exposed to clients.
const (
	CodeInvalidRequest     = "INVALID_REQUEST"
	CodeUserNotFound       = "USER_NOT_FOUND"
	CodeTargetNotFound     = "TARGET_NOT_FOUND"
	CodeAmountTooLow       = "AMOUNT_TOO_LOW"
	CodeCouponInvalid      = "COUPON_INVALID"
	CodeGatewayUnavailable = "GATEWAY_UNAVAILABLE"
	CodeGatewayRejected    = "GATEWAY_REJECTED"
	CodeRateLimited        = "RATE_LIMITED"
	CodeNotFound           = "NOT_FOUND"
	CodeInvalidState       = "INVALID_STATE"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeForbidden          = "FORBIDDEN"
	CodeInternal           = "INTERNAL"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(w, status, envelope{StatusCode: status, StatusMessage: http.StatusText(status), Data: data})
}

func writeFailure(w http.ResponseWriter, status int, e apiError) {
	writeJSON(w, status, envelope{StatusCode: status, StatusMessage: http.StatusText(status), Error: &e})
}

// writeError maps err onto a status and code. With embedded set the HTTP
// status stays 200 and the real status only appears in the body.
func writeError(w http.ResponseWriter, r *http.Request, log *zerolog.Logger, err error, embedded bool) {
	status, e := classify(err)
	if status >= http.StatusInternalServerError {
		logging.With(r.Context(), log).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	httpStatus := status
	if embedded {
		httpStatus = http.StatusOK
	}
	writeJSON(w, httpStatus, envelope{StatusCode: status, StatusMessage: http.StatusText(status), Error: &e})
}

func classify(err error) (int, apiError) {
	var couponErr *domain.CouponError
	switch {
	case errors.As(err, &couponErr):
		return http.StatusBadRequest, apiError{Code: CodeCouponInvalid, Message: "coupon cannot be applied", Reason: string(couponErr.Reason)}
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest, apiError{Code: CodeInvalidRequest, Message: err.Error()}
	case errors.Is(err, domain.ErrAmountTooLow):
		return http.StatusBadRequest, apiError{Code: CodeAmountTooLow, Message: err.Error()}
	case errors.Is(err, domain.ErrUserNotFound):
		return http.StatusNotFound, apiError{Code: CodeUserNotFound, Message: err.Error()}
	case errors.Is(err, domain.ErrTargetNotFound):
		return http.StatusNotFound, apiError{Code: CodeTargetNotFound, Message: err.Error()}
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests, apiError{Code: CodeRateLimited, Message: err.Error()}
	// gateway details stay in the logs and on the record
	case errors.Is(err, domain.ErrGatewayUnavailable), errors.Is(err, domain.ErrGatewayAuth):
		return http.StatusServiceUnavailable, apiError{Code: CodeGatewayUnavailable, Message: "payment service is temporarily unavailable"}
	case errors.Is(err, domain.ErrGatewayRejected):
		return http.StatusBadGateway, apiError{Code: CodeGatewayRejected, Message: "payment could not be started"}
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrUnknownPayment):
		return http.StatusNotFound, apiError{Code: CodeNotFound, Message: "not found"}
	case errors.Is(err, domain.ErrInvalidState), errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict, apiError{Code: CodeInvalidState, Message: err.Error()}
	default:
		return http.StatusInternalServerError, apiError{Code: CodeInternal, Message: "internal error"}
	}
}

// decodeJSON reads a bounded request body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &requestError{msg: "invalid request body: " + err.Error()}
	}
	return nil
}

type requestError struct{ msg string }

func (e *requestError) Error() string { return e.msg }
func (e *requestError) Unwrap() error { return domain.ErrInvalidArgument }
