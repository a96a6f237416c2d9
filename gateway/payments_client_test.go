package gateway_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parktickets/gateway"
)

func TestPaymentsClient_CreateCheckoutSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/sessions", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "purchase", body["type"])
		assert.Equal(t, "MJX-TEST1234", body["merchantReference"])
		assert.Equal(t, float64(4500), body["amount"])

		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": "sess_123",
			"links": []map[string]string{
				{"rel": "self", "href": "https://gw.example.com/v1/sessions/sess_123"},
				{"rel": "hpp", "href": "https://pay.example.com/hpp/sess_123"},
			},
		})
	}))
	defer server.Close()

	client := gateway.NewPaymentsClient(server.URL, "test-key", "secret")

	session, err := client.CreateCheckoutSession(context.Background(), gateway.CheckoutSessionRequest{
		TicketID:    "MJX-TEST1234",
		AmountCents: 4500,
		Currency:    "EUR",
	})
	require.NoError(t, err)
	assert.Equal(t, "sess_123", session.ID)
	assert.Equal(t, "https://pay.example.com/hpp/sess_123", session.PaymentURL)
}

func TestPaymentsClient_CreateCheckoutSession_noPaymentLink(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "sess_123", "links": []map[string]string{}})
	}))
	defer server.Close()

	client := gateway.NewPaymentsClient(server.URL, "test-key", "secret")

	_, err := client.CreateCheckoutSession(context.Background(), gateway.CheckoutSessionRequest{TicketID: "MJX-X"})
	require.Error(t, err)
}

func TestPaymentsClient_GetSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/sessions/sess_123", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":              "sess_123",
			"paymentStatus":   "paid",
			"paymentIntentId": "pi_9",
			"capturedCents":   4500,
		})
	}))
	defer server.Close()

	client := gateway.NewPaymentsClient(server.URL, "test-key", "secret")

	session, err := client.GetSession(context.Background(), "sess_123")
	require.NoError(t, err)
	assert.True(t, session.Paid())
	assert.Equal(t, "pi_9", session.PaymentIntentID)
	assert.Equal(t, int64(4500), session.CapturedCents)
}

func TestPaymentsClient_SignatureValid(t *testing.T) {
	client := gateway.NewPaymentsClient("http://unused", "key", "webhook-secret")

	body := []byte(`{"type":"session.completed","sessionId":"sess_123"}`)

	mac := hmac.New(sha256.New, []byte("webhook-secret"))
	mac.Write(body)
	signature := hex.EncodeToString(mac.Sum(nil))

	assert.True(t, client.SignatureValid(body, signature))
	assert.False(t, client.SignatureValid(body, "deadbeef"))
	assert.False(t, client.SignatureValid([]byte("tampered"), signature))
	assert.False(t, client.SignatureValid(body, ""))
}

func TestPaymentsMock_PayAndRefund(t *testing.T) {
	ctx := context.Background()
	mock := gateway.NewPaymentsMock("secret")

	session, err := mock.CreateCheckoutSession(ctx, gateway.CheckoutSessionRequest{TicketID: "MJX-A", AmountCents: 2000})
	require.NoError(t, err)

	status, err := mock.GetSession(ctx, session.ID)
	require.NoError(t, err)
	require.False(t, status.Paid())

	intentID := mock.MarkSessionPaid(session.ID)
	require.NotEmpty(t, intentID)

	status, err = mock.GetSession(ctx, session.ID)
	require.NoError(t, err)
	require.True(t, status.Paid())
	require.Equal(t, intentID, status.PaymentIntentID)

	refund, err := mock.RefundPayment(ctx, intentID, 1500)
	require.NoError(t, err)
	assert.Equal(t, int64(1500), refund.AmountCents)

	intent, err := mock.GetPaymentIntent(ctx, intentID)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), intent.CapturedCents)
	assert.Equal(t, int64(1500), intent.RefundedCents)
}
