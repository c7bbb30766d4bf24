package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"upgrade_checkout_echo/internal/middleware"
	"upgrade_checkout_echo/internal/models"
	"upgrade_checkout_echo/internal/receipt"
	"upgrade_checkout_echo/internal/services"
	"upgrade_checkout_echo/web"
)

type fakeCheckouts struct {
	got  []services.CreateCheckoutRequest
	resp *services.CreateCheckoutResponse
	err  error
}

func (f *fakeCheckouts) CreateCheckoutSession(ctx context.Context, req services.CreateCheckoutRequest) (*services.CreateCheckoutResponse, error) {
	f.got = append(f.got, req)
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

type verifyCall struct {
	SessionID  string
	CheckoutID string
}

type fakeVerifier struct {
	calls []verifyCall
	res   *services.VerificationResult
	err   error
}

func (f *fakeVerifier) VerifyAndReconcile(ctx context.Context, gatewaySessionID, checkoutID string) (*services.VerificationResult, error) {
	f.calls = append(f.calls, verifyCall{gatewaySessionID, checkoutID})
	if f.err != nil {
		return nil, f.err
	}
	return f.res, nil
}

type fakeReceipts struct {
	got []services.SendReceiptRequest
	doc *receipt.Document
	err error
}

func (f *fakeReceipts) SendCustomerReceipt(ctx context.Context, req services.SendReceiptRequest) (*receipt.Document, error) {
	f.got = append(f.got, req)
	if f.err != nil {
		return nil, f.err
	}
	return f.doc, nil
}

type testServer struct {
	e         *echo.Echo
	checkouts *fakeCheckouts
	verifier  *fakeVerifier
	receipts  *fakeReceipts
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	log := logrus.New()
	log.SetOutput(io.Discard)

	renderer, err := web.NewTemplateRenderer(map[string]interface{}{
		"HomeURL":     "https://shop.example.com",
		"CompanyName": "Kenya on a Budget Safaris",
	})
	require.NoError(t, err)

	e := echo.New()
	e.HTTPErrorHandler = middleware.JSONErrorHandler(log)
	e.Renderer = renderer

	s := &testServer{
		e:         e,
		checkouts: &fakeCheckouts{},
		verifier:  &fakeVerifier{},
		receipts:  &fakeReceipts{},
	}

	caps := services.Capabilities{Store: true, Email: true}
	Register(e, Handlers{
		Checkout: NewCheckoutHandler(s.checkouts, log),
		Payment:  NewPaymentHandler(s.verifier, s.receipts, log),
		Pages:    NewPageHandler("https://shop.example.com", caps, "stripe"),
	})
	return s
}

func (s *testServer) do(method, target, body string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestCreateCheckoutSessionHandler(t *testing.T) {
	s := newTestServer(t)
	s.checkouts.resp = &services.CreateCheckoutResponse{
		ID:               "cs_test_1",
		Timestamp:        1709648000000,
		BookingID:        "KOB-ABC123",
		URL:              "https://pay.example.com/session",
		CalculatedAmount: decimal.NewFromInt(100),
	}

	rec := s.do(http.MethodPost, "/create-checkout-session",
		`{"userId":"user_1","checkoutSessionId":"chk_1","items":[{"title":"Game Drive","price":50,"quantity":2}],"discountAmount":0}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp services.CreateCheckoutResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "cs_test_1", resp.ID)
	assert.Equal(t, "KOB-ABC123", resp.BookingID)
	assert.Equal(t, "https://pay.example.com/session", resp.URL)
	assert.True(t, resp.CalculatedAmount.Equal(decimal.NewFromInt(100)))

	require.Len(t, s.checkouts.got, 1)
	got := s.checkouts.got[0]
	assert.Equal(t, "user_1", got.UserID)
	assert.Equal(t, "chk_1", got.CheckoutSessionID)
	require.Len(t, got.Items, 1)
	assert.Equal(t, 2, got.Items[0].Quantity)
	assert.False(t, got.Amount.Valid)
	assert.True(t, got.DiscountAmount.Valid)
}

func TestCreateCheckoutSessionHandlerErrors(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		err      error
		wantCode int
		wantMsg  string
	}{
		{
			name:     "malformed body",
			body:     `{"userId":`,
			wantCode: http.StatusBadRequest,
			wantMsg:  "Invalid request body",
		},
		{
			name:     "validation",
			body:     `{"items":[]}`,
			err:      models.NewValidationError("userId", "Missing userId"),
			wantCode: http.StatusBadRequest,
			wantMsg:  "Missing userId",
		},
		{
			name:     "gateway down",
			body:     `{"userId":"user_1","items":[{"title":"A","price":1,"quantity":1}]}`,
			err:      &models.UpstreamError{Service: "stripe", Op: "create session", Err: errors.New("boom")},
			wantCode: http.StatusBadGateway,
			wantMsg:  "stripe request failed",
		},
		{
			name:     "unexpected",
			body:     `{"userId":"user_1","items":[{"title":"A","price":1,"quantity":1}]}`,
			err:      errors.New("boom"),
			wantCode: http.StatusInternalServerError,
			wantMsg:  "Something went wrong. Please try again later.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			s.checkouts.err = tt.err

			rec := s.do(http.MethodPost, "/create-checkout-session", tt.body)
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantMsg, decodeBody(t, rec)["error"])
		})
	}
}

func TestCreateAndRedirect(t *testing.T) {
	data := url.QueryEscape(`{"userId":"user_1","items":[{"title":"Game Drive","price":50,"quantity":2}]}`)

	t.Run("redirects to gateway", func(t *testing.T) {
		s := newTestServer(t)
		s.checkouts.resp = &services.CreateCheckoutResponse{ID: "cs_test_1", URL: "https://pay.example.com/session"}

		rec := s.do(http.MethodGet, "/create-and-redirect-checkout?data="+data, "")
		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Equal(t, "https://pay.example.com/session", rec.Header().Get(echo.HeaderLocation))
		require.Len(t, s.checkouts.got, 1)
		assert.Equal(t, "user_1", s.checkouts.got[0].UserID)
	})

	tests := []struct {
		name     string
		query    string
		err      error
		wantCode int
		wantBody string
	}{
		{"missing data", "", nil, http.StatusBadRequest, "Missing checkout data"},
		{"invalid json", "?data=" + url.QueryEscape("{nope"), nil, http.StatusBadRequest, "Invalid request data"},
		{"missing items", "?data=" + data, models.NewValidationError("items", "Missing items"), http.StatusBadRequest, "Missing items"},
		{"gateway down", "?data=" + data, &models.UpstreamError{Service: "stripe", Err: errors.New("x")}, http.StatusBadGateway, "stripe request failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			s.checkouts.err = tt.err

			rec := s.do(http.MethodGet, "/create-and-redirect-checkout"+tt.query, "")
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantBody, rec.Body.String())
		})
	}
}

func TestVerifyPayment(t *testing.T) {
	t.Run("paid", func(t *testing.T) {
		s := newTestServer(t)
		s.verifier.res = &services.VerificationResult{
			Paid:           true,
			Status:         "paid",
			FinalAmount:    decimal.NewFromInt(100),
			BookingID:      "KOB-ABC123",
			StoreProcessed: true,
			AdminNotified:  true,
			CheckoutID:     "chk_1",
		}

		rec := s.do(http.MethodPost, "/verify-payment", `{"sessionId":"cs_test_1","checkoutSessionId":"chk_1","checkoutId":"legacy"}`)
		require.Equal(t, http.StatusOK, rec.Code)

		body := decodeBody(t, rec)
		assert.Equal(t, true, body["paid"])
		assert.Equal(t, "KOB-ABC123", body["bookingId"])
		assert.Equal(t, true, body["firebaseProcessed"])
		assert.Equal(t, true, body["adminNotified"])
		assert.NotContains(t, body, "CheckoutID")
		assert.Equal(t, []verifyCall{{"cs_test_1", "chk_1"}}, s.verifier.calls)
	})

	t.Run("legacy checkoutId", func(t *testing.T) {
		s := newTestServer(t)
		s.verifier.res = &services.VerificationResult{Paid: true}

		rec := s.do(http.MethodPost, "/verify-payment", `{"sessionId":"cs_test_1","checkoutId":"chk_2"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []verifyCall{{"cs_test_1", "chk_2"}}, s.verifier.calls)
	})

	t.Run("not paid", func(t *testing.T) {
		s := newTestServer(t)
		s.verifier.res = &services.VerificationResult{
			Paid:     false,
			Status:   "unpaid",
			Metadata: map[string]string{"userId": "user_1"},
		}

		rec := s.do(http.MethodPost, "/verify-payment", `{"sessionId":"cs_test_1"}`)
		require.Equal(t, http.StatusOK, rec.Code)

		body := decodeBody(t, rec)
		assert.Equal(t, false, body["paid"])
		assert.Equal(t, "unpaid", body["status"])
		assert.Equal(t, map[string]interface{}{"userId": "user_1"}, body["metadata"])
		assert.NotContains(t, body, "bookingId")
	})

	t.Run("missing session id", func(t *testing.T) {
		s := newTestServer(t)
		s.verifier.err = models.NewValidationError("sessionId", "Session ID is required")

		rec := s.do(http.MethodPost, "/verify-payment", `{}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Session ID is required", decodeBody(t, rec)["error"])
	})

	t.Run("gateway down", func(t *testing.T) {
		s := newTestServer(t)
		s.verifier.err = &models.UpstreamError{Service: "stripe", Op: "retrieve session", Err: errors.New("timeout")}

		rec := s.do(http.MethodPost, "/verify-payment", `{"sessionId":"cs_test_1"}`)
		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})
}

func TestSendReceiptEmail(t *testing.T) {
	t.Run("sent", func(t *testing.T) {
		s := newTestServer(t)
		s.receipts.doc = &receipt.Document{ReceiptNumber: "KOB-ABC123"}

		rec := s.do(http.MethodPost, "/send-receipt-email",
			`{"email":"jane@example.com","name":"Jane","sessionId":"cs_test_1","checkoutId":"chk_1"}`)
		require.Equal(t, http.StatusOK, rec.Code)

		body := decodeBody(t, rec)
		assert.Equal(t, true, body["success"])
		assert.Equal(t, "KOB-ABC123", body["bookingId"])
		require.Len(t, s.receipts.got, 1)
		assert.Equal(t, services.SendReceiptRequest{
			Email: "jane@example.com", Name: "Jane", SessionID: "cs_test_1", CheckoutID: "chk_1",
		}, s.receipts.got[0])
	})

	tests := []struct {
		name     string
		err      error
		wantCode int
		wantMsg  string
	}{
		{"validation", models.NewValidationError("email", "Email and session ID are required"), http.StatusBadRequest, "Email and session ID are required"},
		{"unpaid", models.NewValidationError("sessionId", "Payment has not been completed"), http.StatusBadRequest, "Payment has not been completed"},
		{"delivery", &models.DeliveryError{Recipients: []string{"jane@example.com"}, Err: errors.New("421")}, http.StatusInternalServerError, receiptFailedMessage},
		{"render", &models.RenderError{Err: errors.New("bad template")}, http.StatusInternalServerError, receiptFailedMessage},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, receiptFailedMessage},
		{"gateway down", &models.UpstreamError{Service: "stripe", Err: errors.New("x")}, http.StatusBadGateway, "stripe request failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			s.receipts.err = tt.err

			rec := s.do(http.MethodPost, "/send-receipt-email", `{"email":"jane@example.com","sessionId":"cs_test_1"}`)
			assert.Equal(t, tt.wantCode, rec.Code)

			body := decodeBody(t, rec)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tt.wantMsg, body["error"])
		})
	}
}

func TestPaymentSuccessPage(t *testing.T) {
	t.Run("stripe redirect", func(t *testing.T) {
		s := newTestServer(t)
		rec := s.do(http.MethodGet, "/payment-success?session_id=cs_test_1&checkout_id=chk_1&userId=user_1", "")
		require.Equal(t, http.StatusOK, rec.Code)

		html := rec.Body.String()
		assert.Contains(t, html, "<title>Payment Successful | Kenya on a Budget Safaris</title>")
		assert.Contains(t, html, `sessionId: "cs_test_1"`)
		assert.Contains(t, html, `checkoutId: "chk_1"`)
		assert.Contains(t, html, `href="https://shop.example.com"`)
		assert.Contains(t, html, "/static/js/payment_success.js")
	})

	t.Run("midtrans redirect", func(t *testing.T) {
		s := newTestServer(t)
		rec := s.do(http.MethodGet, "/payment-success?order_id=KOB-ABC123-1a2b&transaction_status=settlement", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `sessionId: "KOB-ABC123-1a2b"`)
	})

	t.Run("script injection is escaped", func(t *testing.T) {
		s := newTestServer(t)
		rec := s.do(http.MethodGet, "/payment-success?session_id="+url.QueryEscape(`"</script><script>alert(1)//`), "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.NotContains(t, rec.Body.String(), "<script>alert(1)")
	})

	t.Run("missing session", func(t *testing.T) {
		s := newTestServer(t)
		rec := s.do(http.MethodGet, "/payment-success", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Missing session ID", rec.Body.String())
	})
}

func TestPaymentCancelledPage(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(http.MethodGet, "/payment-cancelled?userId=user_1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	html := rec.Body.String()
	assert.Contains(t, html, "Your payment process was cancelled. No charges have been made.")
	assert.Contains(t, html, "Back to Cart")
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "stripe", body["gateway"])
	assert.Equal(t, "connected", body["store"])
	assert.Equal(t, "configured", body["email"])
	assert.Equal(t, "disabled", body["taskQueue"])
}

func TestHome(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(http.MethodGet, "/", "")
	assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	assert.Equal(t, "https://shop.example.com", rec.Header().Get(echo.HeaderLocation))
}

func TestStaticAssets(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(http.MethodGet, "/static/css/app.css", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), ".container")
}

func TestNotFound(t *testing.T) {
	s := newTestServer(t)

	t.Run("json", func(t *testing.T) {
		rec := s.do(http.MethodGet, "/nope", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "Not Found", decodeBody(t, rec)["error"])
	})

	t.Run("browser", func(t *testing.T) {
		rec := s.do(http.MethodGet, "/nope", "", echo.HeaderAccept, "text/html,application/xhtml+xml")
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Body.String(), "<h1 class=\"text-danger\">Page Not Found</h1>")
	})
}
