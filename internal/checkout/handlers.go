package checkout

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-storefront/internal/backend"
	"github.com/noah-isme/toko-storefront/internal/common"
)

// Handler exposes the checkout endpoints used by the storefront UI.
type Handler struct {
	Svc *Service
}

type amountsPayload struct {
	CartID      string `json:"cartId"`
	Subtotal    int64  `json:"subtotal" validate:"gte=0"`
	ShippingFee int64  `json:"shippingFee" validate:"gte=0"`
}

func (p amountsPayload) amounts() Amounts {
	return Amounts{CartID: p.CartID, Subtotal: p.Subtotal, ShippingFee: p.ShippingFee}
}

type togglePayload struct {
	Subtotal int64    `json:"subtotal" validate:"gte=0"`
	Selected []string `json:"selected" validate:"max=20"`
	Code     string   `json:"code" validate:"required"`
}

type applyPayload struct {
	amountsPayload
	Selected []string `json:"selected" validate:"max=20"`
	Code     string   `json:"code"`
}

type removePayload struct {
	amountsPayload
	Applied []string `json:"applied" validate:"max=20"`
	Code    string   `json:"code" validate:"required"`
}

type previewPayload struct {
	amountsPayload
	Applied []string `json:"applied" validate:"max=20"`
}

type orderPayload struct {
	CartID    string                 `json:"cartId" validate:"required"`
	AddressID string                 `json:"addressId" validate:"required"`
	Shipping  backend.ShippingOption `json:"shipping"`
	Vouchers  []string               `json:"vouchers" validate:"max=20"`
	Notes     string                 `json:"notes" validate:"max=500"`
}

// Vouchers lists the annotated voucher directory.
func (h *Handler) Vouchers(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	subtotal := max(common.ParseInt64Default(q.Get("subtotal"), 0), 0)
	entries, err := h.Svc.Directory(r.Context(), sess, subtotal, common.SplitCSV(q.Get("selected")))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.Data(w, http.StatusOK, entries)
}

// Toggle flips a voucher in the selected set.
func (h *Handler) Toggle(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var p togglePayload
	if err := common.DecodeJSON(r, &p); err != nil {
		common.WriteError(w, err)
		return
	}
	res, err := h.Svc.Toggle(r.Context(), sess, p.Subtotal, p.Selected, p.Code)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.Data(w, http.StatusOK, res)
}

// Apply resolves a typed code or the selected vouchers into a quote.
func (h *Handler) Apply(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var p applyPayload
	if err := common.DecodeJSON(r, &p); err != nil {
		common.WriteError(w, err)
		return
	}
	quote, err := h.Svc.Apply(r.Context(), sess, p.amounts(), p.Selected, p.Code)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.Data(w, http.StatusOK, quote)
}

// Remove drops an applied code and returns the new quote.
func (h *Handler) Remove(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var p removePayload
	if err := common.DecodeJSON(r, &p); err != nil {
		common.WriteError(w, err)
		return
	}
	quote, err := h.Svc.Remove(r.Context(), sess, p.amounts(), p.Applied, p.Code)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.Data(w, http.StatusOK, quote)
}

// Preview recomputes the checkout summary.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var p previewPayload
	if err := common.DecodeJSON(r, &p); err != nil {
		common.WriteError(w, err)
		return
	}
	quote, err := h.Svc.Preview(r.Context(), sess, p.amounts(), p.Applied)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.Data(w, http.StatusOK, quote)
}

// SubmitOrder places the order through the backend.
func (h *Handler) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var p orderPayload
	if err := common.DecodeJSON(r, &p); err != nil {
		common.WriteError(w, err)
		return
	}
	res, err := h.Svc.SubmitOrder(r.Context(), sess, OrderInput{
		CartID:    p.CartID,
		AddressID: p.AddressID,
		Shipping:  p.Shipping,
		Vouchers:  p.Vouchers,
		Notes:     p.Notes,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.Data(w, http.StatusCreated, res)
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (common.Session, bool) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout service not configured", nil)
		return common.Session{}, false
	}
	sess, ok := common.SessionFrom(r.Context())
	if !ok || !sess.Authenticated() {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return common.Session{}, false
	}
	return sess, true
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNoVoucherInput):
		common.JSONError(w, http.StatusUnprocessableEntity, "NO_VOUCHER_INPUT", ErrNoVoucherInput.Error(), nil)
		return
	case errors.Is(err, ErrVoucherNotFound):
		common.JSONError(w, http.StatusNotFound, "VOUCHER_NOT_FOUND", err.Error(), nil)
		return
	case errors.Is(err, ErrOrderInProgress):
		common.JSONError(w, http.StatusConflict, "ORDER_IN_PROGRESS", ErrOrderInProgress.Error(), nil)
		return
	case errors.Is(err, backend.ErrUnavailable):
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("backend_unavailable")
		common.JSONError(w, http.StatusBadGateway, "UPSTREAM", "storefront backend is unavailable, please retry", nil)
		return
	}
	if se, ok := backend.AsServerError(err); ok {
		var details any
		if se.Code != "" {
			details = map[string]string{"backendCode": se.Code}
		}
		status := se.Status
		if status < http.StatusBadRequest {
			status = http.StatusBadGateway
		}
		common.JSONError(w, status, "UPSTREAM", se.Message, details)
		return
	}
	zerolog.Ctx(r.Context()).Error().Err(err).Msg("checkout_failed")
	common.WriteError(w, err)
}
