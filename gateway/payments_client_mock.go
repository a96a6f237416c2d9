package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/lithammer/shortuuid/v3"
)

// PaymentsMock is an in-memory stand-in for the payment gateway, used by
// component tests and local development.
type PaymentsMock struct {
	lock          sync.Mutex
	webhookSecret string

	sessions map[string]SessionStatus
	intents  map[string]PaymentIntent
	refunds  []Refund
}

func NewPaymentsMock(webhookSecret string) *PaymentsMock {
	return &PaymentsMock{
		webhookSecret: webhookSecret,
		sessions:      make(map[string]SessionStatus),
		intents:       make(map[string]PaymentIntent),
	}
}

func (m *PaymentsMock) CreateCheckoutSession(_ context.Context, req CheckoutSessionRequest) (CheckoutSession, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	id := "sess_" + shortuuid.New()
	m.sessions[id] = SessionStatus{
		ID:            id,
		PaymentStatus: "unpaid",
		CapturedCents: req.AmountCents,
	}
	return CheckoutSession{
		ID:         id,
		PaymentURL: "https://pay.example.com/hpp/" + id,
	}, nil
}

func (m *PaymentsMock) GetSession(_ context.Context, sessionID string) (SessionStatus, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	session, ok := m.sessions[sessionID]
	if !ok {
		return SessionStatus{}, fmt.Errorf("session %s not found", sessionID)
	}
	return session, nil
}

func (m *PaymentsMock) GetPaymentIntent(_ context.Context, paymentIntentID string) (PaymentIntent, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	intent, ok := m.intents[paymentIntentID]
	if !ok {
		return PaymentIntent{}, fmt.Errorf("payment intent %s not found", paymentIntentID)
	}
	return intent, nil
}

func (m *PaymentsMock) RefundPayment(_ context.Context, paymentIntentID string, amountCents int64) (Refund, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	intent, ok := m.intents[paymentIntentID]
	if !ok {
		return Refund{}, fmt.Errorf("payment intent %s not found", paymentIntentID)
	}
	intent.RefundedCents += amountCents
	m.intents[paymentIntentID] = intent

	refund := Refund{
		ID:            "re_" + shortuuid.New(),
		AmountCents:   amountCents,
		PaymentIntent: paymentIntentID,
	}
	m.refunds = append(m.refunds, refund)
	return refund, nil
}

func (m *PaymentsMock) SignatureValid(body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(m.webhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// MarkSessionPaid simulates the customer completing the hosted payment page.
func (m *PaymentsMock) MarkSessionPaid(sessionID string) (paymentIntentID string) {
	m.lock.Lock()
	defer m.lock.Unlock()

	session, ok := m.sessions[sessionID]
	if !ok {
		return ""
	}

	paymentIntentID = "pi_" + shortuuid.New()
	session.PaymentStatus = "paid"
	session.PaymentIntentID = paymentIntentID
	m.sessions[sessionID] = session
	m.intents[paymentIntentID] = PaymentIntent{
		ID:            paymentIntentID,
		CapturedCents: session.CapturedCents,
	}
	return paymentIntentID
}

// Sessions returns every checkout session created so far.
func (m *PaymentsMock) Sessions() []SessionStatus {
	m.lock.Lock()
	defer m.lock.Unlock()

	sessions := make([]SessionStatus, 0, len(m.sessions))
	for _, session := range m.sessions {
		sessions = append(sessions, session)
	}
	return sessions
}

func (m *PaymentsMock) Refunds() []Refund {
	m.lock.Lock()
	defer m.lock.Unlock()

	return append([]Refund(nil), m.refunds...)
}
