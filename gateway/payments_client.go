package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// CheckoutSessionRequest describes a hosted payment page purchase for one
// ticket. Amounts are integer cents.
type CheckoutSessionRequest struct {
	TicketID        string `json:"merchantReference"`
	AmountCents     int64  `json:"amount"`
	Currency        string `json:"currency"`
	CustomerEmail   string `json:"customerEmail"`
	NotificationURL string `json:"notificationUrl"`
	SuccessURL      string `json:"successUrl"`
	CancelURL       string `json:"cancelUrl"`
}

type CheckoutSession struct {
	ID         string
	PaymentURL string
}

// SessionStatus is the gateway's view of a checkout session.
type SessionStatus struct {
	ID              string `json:"id"`
	PaymentStatus   string `json:"paymentStatus"`
	PaymentIntentID string `json:"paymentIntentId"`
	CapturedCents   int64  `json:"capturedCents"`
}

func (s SessionStatus) Paid() bool {
	return s.PaymentStatus == "paid"
}

// PaymentIntent carries the authoritative captured and refunded amounts.
type PaymentIntent struct {
	ID            string `json:"id"`
	CapturedCents int64  `json:"capturedCents"`
	RefundedCents int64  `json:"refundedCents"`
}

type Refund struct {
	ID            string `json:"id"`
	AmountCents   int64  `json:"amountCents"`
	PaymentIntent string `json:"paymentIntentId"`
}

// PaymentsClient talks to the hosted payment gateway over its JSON API.
type PaymentsClient struct {
	baseURL       string
	apiKey        string
	webhookSecret string
	hc            *http.Client
}

func NewPaymentsClient(baseURL, apiKey, webhookSecret string) *PaymentsClient {
	return &PaymentsClient{
		baseURL:       baseURL,
		apiKey:        apiKey,
		webhookSecret: webhookSecret,
		hc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// CreateCheckoutSession opens a hosted payment page session and returns its
// id together with the URL the customer is redirected to.
func (c *PaymentsClient) CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error) {
	payload := struct {
		Type string `json:"type"`
		CheckoutSessionRequest
	}{Type: "purchase", CheckoutSessionRequest: req}

	var resp struct {
		ID    string `json:"id"`
		Links []struct {
			Rel  string `json:"rel"`
			HREF string `json:"href"`
		} `json:"links"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/sessions", payload, &resp); err != nil {
		return CheckoutSession{}, fmt.Errorf("could not create checkout session: %w", err)
	}

	session := CheckoutSession{ID: resp.ID}
	for _, link := range resp.Links {
		if link.Rel == "hpp" {
			session.PaymentURL = link.HREF
		}
	}
	if session.PaymentURL == "" {
		return CheckoutSession{}, fmt.Errorf("gateway returned no payment page link for session %s", resp.ID)
	}
	return session, nil
}

func (c *PaymentsClient) GetSession(ctx context.Context, sessionID string) (SessionStatus, error) {
	var status SessionStatus
	if err := c.do(ctx, http.MethodGet, "/v1/sessions/"+sessionID, nil, &status); err != nil {
		return SessionStatus{}, fmt.Errorf("could not get session %s: %w", sessionID, err)
	}
	return status, nil
}

func (c *PaymentsClient) GetPaymentIntent(ctx context.Context, paymentIntentID string) (PaymentIntent, error) {
	var intent PaymentIntent
	if err := c.do(ctx, http.MethodGet, "/v1/payment-intents/"+paymentIntentID, nil, &intent); err != nil {
		return PaymentIntent{}, fmt.Errorf("could not get payment intent %s: %w", paymentIntentID, err)
	}
	return intent, nil
}

// RefundPayment sends amountCents back to the customer of the given payment
// intent.
func (c *PaymentsClient) RefundPayment(ctx context.Context, paymentIntentID string, amountCents int64) (Refund, error) {
	payload := struct {
		PaymentIntentID string `json:"paymentIntentId"`
		AmountCents     int64  `json:"amountCents"`
	}{PaymentIntentID: paymentIntentID, AmountCents: amountCents}

	var refund Refund
	if err := c.do(ctx, http.MethodPost, "/v1/refunds", payload, &refund); err != nil {
		return Refund{}, fmt.Errorf("could not refund payment intent %s: %w", paymentIntentID, err)
	}
	return refund, nil
}

// SignatureValid checks the webhook signature: hex-encoded HMAC-SHA256 of
// the raw request body under the shared webhook secret.
func (c *PaymentsClient) SignatureValid(body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(c.webhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

func (c *PaymentsClient) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&reqBody).Encode(body); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
