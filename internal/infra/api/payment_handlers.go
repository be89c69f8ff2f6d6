package api

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"edu-checkout/internal/domain"
	"edu-checkout/internal/domain/model"
	"edu-checkout/internal/infra/logging"
	"edu-checkout/internal/usecase"
)

// targetFields is the exactly-one-of selector shared by checkout and coupon
// preview bodies.
type targetFields struct {
	CourseID   string `json:"course_id"`
	WorkshopID string `json:"workshop_id"`
	BookID     string `json:"book_id"`
	Purpose    string `json:"purpose"`
}

func (f targetFields) target() (model.PurchaseTarget, error) {
	var picked []model.PurchaseTarget
	if f.CourseID != "" {
		picked = append(picked, model.CourseTarget(f.CourseID))
	}
	if f.WorkshopID != "" {
		picked = append(picked, model.WorkshopTarget(f.WorkshopID))
	}
	if f.BookID != "" {
		picked = append(picked, model.BookTarget(f.BookID))
	}
	switch {
	case len(picked) == 1:
		return picked[0], nil
	case len(picked) == 0 && (f.Purpose == "" || f.Purpose == string(model.TargetOther)):
		return model.OtherTarget(), nil
	default:
		return model.PurchaseTarget{}, &requestError{msg: "exactly one of course_id, workshop_id, book_id may be set"}
	}
}

type createPaymentRequest struct {
	UserID string `json:"user_id"`
	targetFields
	Amount         decimal.Decimal  `json:"amount"`
	Email          string           `json:"email"`
	Name           string           `json:"name"`
	Phone          string           `json:"phone"`
	CouponCode     string           `json:"coupon_code"`
	CouponID       string           `json:"coupon_id"` // accepted, the code is authoritative
	DiscountAmount *decimal.Decimal `json:"discount_amount"`
}

type createPaymentResponse struct {
	PaymentID string          `json:"paymentID"`
	BkashURL  string          `json:"bkashURL"`
	OrderID   string          `json:"orderID"`
	Amount    decimal.Decimal `json:"amount"`
}

// handleCreatePayment answers with HTTP 200 in all cases and embeds the real
// status in the body.
func (s *Server) handleCreatePayment(w http.ResponseWriter, r *http.Request) {
	var req createPaymentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, s.log, err, true)
		return
	}
	target, err := req.target()
	if err != nil {
		writeError(w, r, s.log, err, true)
		return
	}
	userID := strings.TrimSpace(req.UserID)
	if _, err := uuid.Parse(userID); userID != "" && err != nil {
		writeError(w, r, s.log, domain.ErrUserNotFound, true)
		return
	}

	res, err := s.d.Payments.Initiate(r.Context(), usecase.InitiateRequest{
		UserID:         userID,
		Target:         target,
		Amount:         req.Amount,
		PayerName:      strings.TrimSpace(req.Name),
		PayerEmail:     strings.TrimSpace(req.Email),
		PayerPhone:     strings.TrimSpace(req.Phone),
		CouponCode:     req.CouponCode,
		ClientDiscount: req.DiscountAmount,
	})
	if err != nil {
		writeError(w, r, s.log, err, true)
		return
	}
	writeData(w, http.StatusOK, createPaymentResponse{
		PaymentID: res.PaymentID,
		BkashURL:  res.RedirectURL,
		OrderID:   res.OrderID,
		Amount:    res.Amount,
	})
}

type callbackAck struct {
	Status  string `json:"status"`
	OrderID string `json:"orderID,omitempty"`
}

// handleCallback receives the payer's browser back from the gateway. Unknown
// and repeated ids are acknowledged so nothing retries them.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	cb := usecase.Callback{
		PaymentID: strings.TrimSpace(r.FormValue("paymentID")),
		Status:    strings.ToLower(strings.TrimSpace(r.FormValue("status"))),
		TrxID:     strings.TrimSpace(r.FormValue("trxID")),
	}
	res, err := s.d.Callbacks.HandleCallback(r.Context(), cb)

	ack := callbackAck{Status: "pending"}
	switch {
	case err == nil:
		ack = ackFor(res)
	case errors.Is(err, domain.ErrInvalidArgument):
		writeError(w, r, s.log, err, false)
		return
	default:
		// the usecase already logged it; the payer still needs an answer
		logging.With(r.Context(), s.log).Warn().Err(err).Str("payment_id", cb.PaymentID).Msg("callback not settled")
		if errors.Is(err, domain.ErrUnknownPayment) {
			ack.Status = "failed"
		}
	}

	if s.d.FrontendURL != "" {
		http.Redirect(w, r, s.frontendRedirect(ack), http.StatusSeeOther)
		return
	}
	writeData(w, http.StatusOK, ack)
}

func ackFor(res *usecase.CallbackResult) callbackAck {
	ack := callbackAck{}
	if res.Payment != nil {
		ack.OrderID = res.Payment.OrderID
	}
	switch res.Outcome {
	case usecase.OutcomeCompleted:
		ack.Status = "success"
	case usecase.OutcomeFailed:
		ack.Status = "failed"
	case usecase.OutcomeAlreadyProcessed:
		ack.Status = "failed"
		if res.Payment != nil && res.Payment.Status == model.PaymentStatusSuccessful {
			ack.Status = "success"
		}
	default:
		ack.Status = "pending"
	}
	return ack
}

func (s *Server) frontendRedirect(ack callbackAck) string {
	u, err := url.Parse(s.d.FrontendURL)
	if err != nil {
		return s.d.FrontendURL
	}
	q := u.Query()
	q.Set("status", ack.Status)
	if ack.OrderID != "" {
		q.Set("orderID", ack.OrderID)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// handleTokenRefresh is called by an external cron with the shared secret.
func (s *Server) handleTokenRefresh(w http.ResponseWriter, r *http.Request) {
	secret := r.URL.Query().Get("secret")
	if secret == "" {
		secret = r.Header.Get("X-Cron-Secret")
	}
	if !secretEqual(secret, s.d.CronSecret) {
		writeFailure(w, http.StatusForbidden, apiError{Code: CodeForbidden, Message: "invalid secret"})
		return
	}
	s.d.Tokens.RefreshInBackground(r.Context())
	writeData(w, http.StatusAccepted, map[string]string{"message": "token refresh started"})
}

type validateCouponRequest struct {
	Code   string `json:"code"`
	UserID string `json:"user_id"`
	targetFields
	Amount decimal.Decimal `json:"amount"`
}

type couponPreview struct {
	Code       string          `json:"code"`
	Applicable bool            `json:"applicable"`
	Discount   decimal.Decimal `json:"discount"`
	Payable    decimal.Decimal `json:"payable"`
	Reason     string          `json:"reason,omitempty"`
}

func (s *Server) handleValidateCoupon(w http.ResponseWriter, r *http.Request) {
	var req validateCouponRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, s.log, err, false)
		return
	}
	target, err := req.target()
	if err != nil {
		writeError(w, r, s.log, err, false)
		return
	}
	if strings.TrimSpace(req.Code) == "" || !req.Amount.IsPositive() {
		writeError(w, r, s.log, &requestError{msg: "code and a positive amount are required"}, false)
		return
	}
	q, err := s.d.Coupons.Quote(r.Context(), req.Code, strings.TrimSpace(req.UserID), target, req.Amount)
	if err != nil {
		writeError(w, r, s.log, err, false)
		return
	}
	writeData(w, http.StatusOK, couponPreview{
		Code:       q.Code,
		Applicable: q.Applicable,
		Discount:   q.Discount,
		Payable:    q.Payable,
		Reason:     string(q.Reason),
	})
}
