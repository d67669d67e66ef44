package checkout

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-storefront/internal/backend"
	"github.com/noah-isme/toko-storefront/internal/common"
	"github.com/noah-isme/toko-storefront/internal/lock"
	"github.com/noah-isme/toko-storefront/internal/obs"
	"github.com/noah-isme/toko-storefront/internal/voucher"
)

type fakeBackend struct {
	vouchers   []voucher.Voucher
	cart       backend.Cart
	listErr    error
	submitErr  error
	submitted  []backend.OrderRequest
	invalidate []string
}

func (f *fakeBackend) ListVouchers(context.Context, common.Session) ([]voucher.Voucher, error) {
	return f.vouchers, f.listErr
}

func (f *fakeBackend) GetCart(_ context.Context, _ common.Session, id string) (backend.Cart, error) {
	if id != f.cart.ID {
		return backend.Cart{}, &backend.ServerError{Status: http.StatusNotFound, Message: "cart not found"}
	}
	return f.cart, nil
}

func (f *fakeBackend) SubmitOrder(_ context.Context, _ common.Session, req backend.OrderRequest) (backend.OrderResult, error) {
	f.submitted = append(f.submitted, req)
	if f.submitErr != nil {
		return backend.OrderResult{}, f.submitErr
	}
	return backend.OrderResult{ID: "o-1", Status: "PENDING_PAYMENT"}, nil
}

func (f *fakeBackend) Invalidate(_ context.Context, userID string) error {
	f.invalidate = append(f.invalidate, userID)
	return nil
}

var testSession = common.Session{UserID: "u-1", Token: "tok"}

func newTestService(fb *fakeBackend, metrics *obs.CheckoutMetrics) *Service {
	return &Service{
		Backend:     fb,
		Invalidator: fb,
		Metrics:     metrics,
		MaxSlots:    3,
		Now:         func() time.Time { return checkoutNow },
	}
}

func TestDirectoryAnnotatesEntries(t *testing.T) {
	metrics := obs.NewCheckoutMetrics("test", prometheus.NewRegistry())
	svc := newTestService(&fakeBackend{vouchers: testDirectory()}, metrics)

	entries, err := svc.Directory(context.Background(), testSession, 200_000, []string{"beauty10"})
	require.NoError(t, err)
	require.Len(t, entries, len(testDirectory()))

	byCode := map[string]Entry{}
	for _, e := range entries {
		byCode[e.Code] = e
	}
	require.True(t, byCode["BEAUTY10"].Selected)
	require.True(t, byCode["BEAUTY10"].Selectable)
	require.False(t, byCode["LAMA"].Selectable)
	require.Contains(t, byCode["LAMA"].Reason, "expired")
	require.Equal(t, voucher.ErrNotStackable.Error(), byCode["SOLO"].Reason)
	require.Equal(t, voucher.ErrUsageLimitReached.Error(), byCode["HABIS"].Reason)

	require.Equal(t, 1.0, testutil.ToFloat64(metrics.Ineligible.WithLabelValues("expired")))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.Ineligible.WithLabelValues("not_stackable")))
}

func TestDirectoryLabelsUpcoming(t *testing.T) {
	soon := voucher.Voucher{Code: "SOON", Type: voucher.TypeAmount, Status: voucher.StatusActive, StartAt: "2025-04-01", Stackable: true}
	fb := &fakeBackend{vouchers: []voucher.Voucher{soon}}

	svc := newTestService(fb, nil)
	entries, err := svc.Directory(context.Background(), testSession, 0, nil)
	require.NoError(t, err)
	require.True(t, entries[0].Upcoming)
	require.True(t, entries[0].Selectable)

	svc.BlockUpcoming = true
	entries, err = svc.Directory(context.Background(), testSession, 0, nil)
	require.NoError(t, err)
	require.False(t, entries[0].Selectable)
	require.Equal(t, voucher.ErrNotStarted.Error(), entries[0].Reason)
}

func TestToggleRules(t *testing.T) {
	dir := testDirectory()
	dir = append(dir, voucher.Voucher{ID: "v7", Code: "ONGKIR2", Type: voucher.TypeShippingFree, Status: voucher.StatusActive, Stackable: true})
	svc := newTestService(&fakeBackend{vouchers: dir}, nil)
	ctx := context.Background()

	res, err := svc.Toggle(ctx, testSession, 500_000, nil, "beauty10")
	require.NoError(t, err)
	require.Equal(t, []string{"BEAUTY10"}, res.Selected)
	require.True(t, res.Changed)

	res, err = svc.Toggle(ctx, testSession, 500_000, []string{"BEAUTY10", "FREESHIP"}, "ONGKIR2")
	require.NoError(t, err)
	require.False(t, res.Changed)
	require.Equal(t, []string{"BEAUTY10", "FREESHIP"}, res.Selected)

	res, err = svc.Toggle(ctx, testSession, 500_000, []string{"BEAUTY10"}, "SOLO")
	require.NoError(t, err)
	require.False(t, res.Changed)
	require.Equal(t, voucher.ErrNotStackable.Error(), res.Reason)

	res, err = svc.Toggle(ctx, testSession, 500_000, []string{"BEAUTY10", "FREESHIP"}, "beauty10")
	require.NoError(t, err)
	require.Equal(t, []string{"FREESHIP"}, res.Selected)

	_, err = svc.Toggle(ctx, testSession, 500_000, nil, "GHOST")
	require.ErrorIs(t, err, ErrVoucherNotFound)
}

func TestNonStackableVoucherStaysAlone(t *testing.T) {
	svc := newTestService(&fakeBackend{vouchers: testDirectory()}, nil)
	ctx := context.Background()

	res, err := svc.Toggle(ctx, testSession, 200_000, []string{"SOLO"}, "HEMAT20")
	require.NoError(t, err)
	require.False(t, res.Changed)
	require.Equal(t, []string{"SOLO"}, res.Selected)
	require.Equal(t, voucher.ErrNotStackable.Error(), res.Reason)

	entries, err := svc.Directory(ctx, testSession, 200_000, []string{"SOLO"})
	require.NoError(t, err)
	for _, e := range entries {
		if e.Code == "HEMAT20" {
			require.False(t, e.Selectable)
			require.Equal(t, voucher.ErrNotStackable.Error(), e.Reason)
		}
	}

	q, err := svc.Preview(ctx, testSession, Amounts{Subtotal: 200_000}, []string{"SOLO", "HEMAT20"})
	require.NoError(t, err)
	require.Equal(t, []string{"SOLO"}, q.Applied)
	require.Equal(t, int64(15_000), q.DiscountAmount)
	require.Equal(t, []Dropped{{Code: "HEMAT20", Reason: voucher.ErrNotStackable.Error()}}, q.Dropped)

	q, err = svc.Preview(ctx, testSession, Amounts{Subtotal: 200_000}, []string{"HEMAT20", "SOLO"})
	require.NoError(t, err)
	require.Equal(t, []string{"HEMAT20"}, q.Applied)
	require.Equal(t, int64(20_000), q.DiscountAmount)
}

func TestApplyReadsCartSubtotal(t *testing.T) {
	fb := &fakeBackend{
		vouchers: testDirectory(),
		cart: backend.Cart{ID: "c-1", Items: []backend.CartItem{
			{ProductID: "p1", Qty: 2, UnitPrice: 150_000},
			{ProductID: "p2", Qty: 1, UnitPrice: 200_000},
		}},
	}
	metrics := obs.NewCheckoutMetrics("test", prometheus.NewRegistry())
	svc := newTestService(fb, metrics)

	q, err := svc.Apply(context.Background(), testSession, Amounts{CartID: "c-1", ShippingFee: 30_000}, []string{"BEAUTY10", "FREESHIP"}, "")
	require.NoError(t, err)
	require.Equal(t, int64(500_000), q.Subtotal)
	require.Equal(t, int64(460_000), q.Total)
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.Previews.WithLabelValues("ok")))

	_, err = svc.Apply(context.Background(), testSession, Amounts{Subtotal: 10}, nil, "")
	require.ErrorIs(t, err, ErrNoVoucherInput)
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.Previews.WithLabelValues("rejected")))
}

func TestSubmitOrderSendsCanonicalCodes(t *testing.T) {
	fb := &fakeBackend{}
	metrics := obs.NewCheckoutMetrics("test", prometheus.NewRegistry())
	svc := newTestService(fb, metrics)

	res, err := svc.SubmitOrder(context.Background(), testSession, OrderInput{
		CartID:   " c-1 ",
		Shipping: backend.ShippingOption{Courier: "jne", Service: "REG"},
		Vouchers: []string{"beauty10", "BEAUTY10", "", "freeship"},
	})
	require.NoError(t, err)
	require.Equal(t, "o-1", res.ID)
	require.Equal(t, []string{"BEAUTY10", "FREESHIP"}, fb.submitted[0].VoucherCodes)
	require.Equal(t, "c-1", fb.submitted[0].CartID)
	require.Equal(t, []string{"u-1"}, fb.invalidate)
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.OrderSubmissions.WithLabelValues("created")))
}

func serve(t *testing.T, h *Handler, method, path, body string, sess *common.Session) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	r.Get("/vouchers", h.Vouchers)
	r.Post("/vouchers/toggle", h.Toggle)
	r.Post("/vouchers/apply", h.Apply)
	r.Post("/vouchers/remove", h.Remove)
	r.Post("/preview", h.Preview)
	r.Post("/orders", h.SubmitOrder)

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if sess != nil {
		req = req.WithContext(common.WithSession(req.Context(), *sess))
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

type errorEnvelope struct {
	Error common.ErrorBody `json:"error"`
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) common.ErrorBody {
	t.Helper()
	var env errorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env.Error
}

func TestHandlerRequiresSession(t *testing.T) {
	h := &Handler{Svc: newTestService(&fakeBackend{vouchers: testDirectory()}, nil)}
	rec := serve(t, h, http.MethodGet, "/vouchers", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "UNAUTHORIZED", decodeError(t, rec).Code)
}

func TestHandlerApplyErrors(t *testing.T) {
	h := &Handler{Svc: newTestService(&fakeBackend{vouchers: testDirectory()}, nil)}

	rec := serve(t, h, http.MethodPost, "/vouchers/apply", `{"subtotal":100000}`, &testSession)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Equal(t, "NO_VOUCHER_INPUT", decodeError(t, rec).Code)

	rec = serve(t, h, http.MethodPost, "/vouchers/apply", `{"subtotal":100000,"code":"ghost"}`, &testSession)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "VOUCHER_NOT_FOUND", decodeError(t, rec).Code)

	rec = serve(t, h, http.MethodPost, "/vouchers/apply", `{"subtotal":-1,"code":"BEAUTY10"}`, &testSession)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeError(t, rec)
	require.Equal(t, "VALIDATION", body.Code)
	require.Contains(t, body.Details, "subtotal")
}

func TestHandlerPreviewScenario(t *testing.T) {
	h := &Handler{Svc: newTestService(&fakeBackend{vouchers: testDirectory()}, nil)}
	rec := serve(t, h, http.MethodPost, "/preview", `{"subtotal":500000,"shippingFee":30000,"applied":["beauty10","freeship"]}`, &testSession)
	require.Equal(t, http.StatusOK, rec.Code)

	var out struct {
		Data Quote `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Equal(t, int64(40_000), out.Data.DiscountAmount)
	require.Equal(t, int64(0), out.Data.ShippingFeeFinal)
	require.Equal(t, int64(460_000), out.Data.Total)
	require.True(t, out.Data.Estimate)

	rec = serve(t, h, http.MethodPost, "/vouchers/remove", `{"subtotal":500000,"shippingFee":30000,"applied":["BEAUTY10","FREESHIP"],"code":"freeship"}`, &testSession)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Equal(t, []string{"BEAUTY10"}, out.Data.Applied)
	require.Equal(t, int64(490_000), out.Data.Total)
}

func TestHandlerRelaysBackendRejection(t *testing.T) {
	fb := &fakeBackend{submitErr: &backend.ServerError{Status: http.StatusUnprocessableEntity, Code: "VOUCHER_INVALID", Message: "Voucher BEAUTY10 sudah tidak berlaku"}}
	h := &Handler{Svc: newTestService(fb, nil)}

	rec := serve(t, h, http.MethodPost, "/orders", `{"cartId":"c-1","addressId":"a-1","shipping":{"courier":"jne","service":"REG"},"vouchers":["beauty10"]}`, &testSession)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decodeError(t, rec)
	require.Equal(t, "UPSTREAM", body.Code)
	require.Equal(t, "Voucher BEAUTY10 sudah tidak berlaku", body.Message)
}

func TestHandlerOrderValidation(t *testing.T) {
	h := &Handler{Svc: newTestService(&fakeBackend{}, nil)}
	rec := serve(t, h, http.MethodPost, "/orders", `{"cartId":"c-1","shipping":{"courier":"jne"}}`, &testSession)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeError(t, rec)
	require.Equal(t, "VALIDATION", body.Code)
}

func TestHandlerBackendUnavailable(t *testing.T) {
	fb := &fakeBackend{listErr: backend.ErrUnavailable}
	h := &Handler{Svc: newTestService(fb, nil)}
	rec := serve(t, h, http.MethodGet, "/vouchers?subtotal=1000", "", &testSession)
	require.Equal(t, http.StatusBadGateway, rec.Code)
	require.Equal(t, "UPSTREAM", decodeError(t, rec).Code)
}

func TestSubmitOrderHeldByConcurrentSubmission(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	fb := &fakeBackend{}
	metrics := obs.NewCheckoutMetrics("test", prometheus.NewRegistry())
	svc := newTestService(fb, metrics)
	svc.OrderLock = lock.Locker{R: client, Prefix: "storefront:order:"}

	require.NoError(t, mr.Set("storefront:order:"+common.Sha256Hex(testSession.UserID), "other"))
	h := &Handler{Svc: svc}
	rec := serve(t, h, http.MethodPost, "/orders", `{"cartId":"c-1","addressId":"a-1","shipping":{"courier":"jne","service":"REG"}}`, &testSession)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "ORDER_IN_PROGRESS", decodeError(t, rec).Code)
	require.Empty(t, fb.submitted)
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.OrderSubmissions.WithLabelValues("in_progress")))

	mr.Del("storefront:order:" + common.Sha256Hex(testSession.UserID))
	rec = serve(t, h, http.MethodPost, "/orders", `{"cartId":"c-1","addressId":"a-1","shipping":{"courier":"jne","service":"REG"}}`, &testSession)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, fb.submitted, 1)
	require.False(t, mr.Exists("storefront:order:"+common.Sha256Hex(testSession.UserID)))
}
