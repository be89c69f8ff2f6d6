package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"edu-checkout/internal/domain/model"
	"edu-checkout/internal/infra/logging"
	"edu-checkout/internal/infra/metrics"
	"edu-checkout/internal/usecase"
)

// requireAdmin accepts a session JWT as bearer token or cookie.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.d.Auth == nil {
			s.log.Error().Msg("admin auth is not configured")
			writeFailure(w, http.StatusForbidden, apiError{Code: CodeForbidden, Message: "admin API disabled"})
			return
		}
		if _, err := s.d.Auth.ParseFromRequest(r); err != nil {
			writeFailure(w, http.StatusUnauthorized, apiError{Code: CodeUnauthorized, Message: err.Error()})
			return
		}
		next.ServeHTTP(w, r)
	})
}

type sessionRequest struct {
	APIKey string `json:"api_key"`
}

// handleAdminSession trades the admin API key for a short-lived session.
func (s *Server) handleAdminSession(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get("X-API-Key")
	if key == "" {
		var req sessionRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, s.log, err, false)
			return
		}
		key = req.APIKey
	}
	if s.d.Auth == nil || !secretEqual(key, s.d.AdminAPIKey) {
		metrics.IncAdminAction("session", "denied")
		writeFailure(w, http.StatusUnauthorized, apiError{Code: CodeUnauthorized, Message: "invalid api key"})
		return
	}
	token, exp, err := s.d.Auth.Mint(w)
	if err != nil {
		metrics.IncAdminAction("session", "error")
		writeError(w, r, s.log, err, false)
		return
	}
	metrics.IncAdminAction("session", "ok")
	writeData(w, http.StatusCreated, map[string]interface{}{"token": token, "expiresAt": exp.UTC()})
}

// paymentView is the operator-facing projection of a payment record.
type paymentView struct {
	ID               string          `json:"id"`
	OrderID          string          `json:"orderID"`
	UserID           string          `json:"userID"`
	Target           string          `json:"target"`
	Amount           decimal.Decimal `json:"amount"`
	ListAmount       decimal.Decimal `json:"listAmount"`
	Currency         string          `json:"currency"`
	Status           string          `json:"status"`
	GatewayPaymentID *string         `json:"paymentID,omitempty"`
	TrxID            *string         `json:"trxID,omitempty"`
	CouponCode       *string         `json:"couponCode,omitempty"`
	DiscountAmount   decimal.Decimal `json:"discountAmount"`
	Verified         bool            `json:"verified"`
	FailureReason    *string         `json:"failureReason,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
	PaidAt           *time.Time      `json:"paidAt,omitempty"`
}

func toPaymentView(p *model.Payment) paymentView {
	return paymentView{
		ID:               p.ID,
		OrderID:          p.OrderID,
		UserID:           p.UserID,
		Target:           p.Target.String(),
		Amount:           p.Amount,
		ListAmount:       p.ListAmount(),
		Currency:         p.Currency,
		Status:           string(p.Status),
		GatewayPaymentID: p.GatewayPaymentID,
		TrxID:            p.GatewayTrxID,
		CouponCode:       p.CouponCode,
		DiscountAmount:   p.DiscountAmount,
		Verified:         p.Verified,
		FailureReason:    p.FailureReason,
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
		PaidAt:           p.PaidAt,
	}
}

func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p, err := s.d.Payments.Lookup(r.Context(), usecase.LookupQuery{
		OrderID:   strings.TrimSpace(q.Get("orderID")),
		PaymentID: strings.TrimSpace(q.Get("paymentID")),
		TrxID:     strings.TrimSpace(q.Get("trxID")),
	})
	if err != nil {
		writeError(w, r, s.log, err, false)
		return
	}
	writeData(w, http.StatusOK, toPaymentView(p))
}

func (s *Server) handleFulfill(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")
	ctx := logging.WithOrderID(r.Context(), orderID)
	report, err := s.d.Fulfillment.FulfillOrder(ctx, orderID)
	if err != nil {
		metrics.IncAdminAction("fulfill", "error")
		writeError(w, r, s.log, err, false)
		return
	}
	metrics.IncAdminAction("fulfill", "ok")
	logging.With(ctx, s.log).Info().Interface("report", report).Msg("admin fulfillment")
	writeData(w, http.StatusOK, fulfillmentView{
		Enrolled:         report.Enrolled,
		AlreadyEnrolled:  report.AlreadyHad,
		GrantedByPayment: report.GrantedByPayment,
		EmailQueued:      report.EmailQueued,
		EmailAlreadySent: report.EmailAlreadyOK,
	})
}

type fulfillmentView struct {
	Enrolled         bool   `json:"enrolled"`
	AlreadyEnrolled  bool   `json:"alreadyEnrolled"`
	GrantedByPayment string `json:"grantedByPayment,omitempty"`
	EmailQueued      bool   `json:"emailQueued"`
	EmailAlreadySent bool   `json:"emailAlreadySent"`
}

type refundRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleRefund(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")
	ctx := logging.WithOrderID(r.Context(), orderID)
	var req refundRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, s.log, err, false)
			return
		}
	}
	p, err := s.d.Payments.Refund(ctx, orderID, strings.TrimSpace(req.Reason))
	if err != nil {
		metrics.IncAdminAction("refund", "error")
		writeError(w, r, s.log, err, false)
		return
	}
	metrics.IncAdminAction("refund", "ok")
	writeData(w, http.StatusOK, toPaymentView(p))
}
