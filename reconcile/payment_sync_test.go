package reconcile_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parktickets/entity"
	"parktickets/gateway"
	"parktickets/reconcile"
)

type fakeTicketsRepo struct {
	incomplete      []entity.Ticket
	refundRequested []entity.Ticket

	markedPaid      map[string]string
	recordedIntents map[string]string
	refunded        map[string]decimal.Decimal
}

func newFakeTicketsRepo() *fakeTicketsRepo {
	return &fakeTicketsRepo{
		markedPaid:      map[string]string{},
		recordedIntents: map[string]string{},
		refunded:        map[string]decimal.Decimal{},
	}
}

func (f *fakeTicketsRepo) FindIncomplete(context.Context) ([]entity.Ticket, error) {
	return f.incomplete, nil
}

func (f *fakeTicketsRepo) FindRefundRequested(context.Context) ([]entity.Ticket, error) {
	return f.refundRequested, nil
}

func (f *fakeTicketsRepo) MarkPaid(_ context.Context, ticketID, paymentIntentID string) (bool, error) {
	if _, done := f.markedPaid[ticketID]; done {
		return false, nil
	}
	f.markedPaid[ticketID] = paymentIntentID
	return true, nil
}

func (f *fakeTicketsRepo) RecordPaymentIntent(_ context.Context, ticketID, paymentIntentID string) error {
	f.recordedIntents[ticketID] = paymentIntentID
	return nil
}

func (f *fakeTicketsRepo) MarkRefunded(_ context.Context, ticketID, _ string, amount decimal.Decimal, _ time.Time) error {
	f.refunded[ticketID] = amount
	return nil
}

type fakePayments struct {
	sessions map[string]gateway.SessionStatus
	intents  map[string]gateway.PaymentIntent
}

func (f *fakePayments) GetSession(_ context.Context, sessionID string) (gateway.SessionStatus, error) {
	return f.sessions[sessionID], nil
}

func (f *fakePayments) GetPaymentIntent(_ context.Context, paymentIntentID string) (gateway.PaymentIntent, error) {
	return f.intents[paymentIntentID], nil
}

func TestPaymentSync_marksPaidSessions(t *testing.T) {
	tickets := newFakeTicketsRepo()
	tickets.incomplete = []entity.Ticket{
		{TicketID: "MJX-PAID", SessionID: "sess_paid"},
		{TicketID: "MJX-OPEN", SessionID: "sess_open"},
		{TicketID: "MJX-WAIT", SessionID: "sess_wait"},
	}

	payments := &fakePayments{sessions: map[string]gateway.SessionStatus{
		"sess_paid": {ID: "sess_paid", PaymentStatus: "paid", PaymentIntentID: "pi_1"},
		"sess_open": {ID: "sess_open", PaymentStatus: "unpaid", PaymentIntentID: "pi_2"},
		"sess_wait": {ID: "sess_wait", PaymentStatus: "unpaid"},
	}}

	svc := reconcile.NewPaymentSyncService(tickets, payments, time.Minute)
	result := svc.RunSweep(context.Background())

	assert.Equal(t, 3, result.Checked)
	assert.Equal(t, 1, result.MarkedPaid)
	assert.Equal(t, 1, result.IntentsRecorded)
	assert.Equal(t, 0, result.Errors)

	assert.Equal(t, "pi_1", tickets.markedPaid["MJX-PAID"])
	assert.Equal(t, "pi_2", tickets.recordedIntents["MJX-OPEN"])
	assert.NotContains(t, tickets.recordedIntents, "MJX-WAIT")
}

func TestPaymentSync_settlesRequestedRefunds(t *testing.T) {
	tickets := newFakeTicketsRepo()
	tickets.refundRequested = []entity.Ticket{
		{TicketID: "MJX-REF", PaymentIntentID: "pi_ref"},
		{TicketID: "MJX-NOREF", PaymentIntentID: "pi_noref"},
		{TicketID: "MJX-NOINTENT"},
	}

	payments := &fakePayments{intents: map[string]gateway.PaymentIntent{
		"pi_ref":   {ID: "pi_ref", CapturedCents: 5000, RefundedCents: 4500},
		"pi_noref": {ID: "pi_noref", CapturedCents: 5000},
	}}

	svc := reconcile.NewPaymentSyncService(tickets, payments, time.Minute)
	result := svc.RunSweep(context.Background())

	assert.Equal(t, 1, result.RefundsSettled)
	require.Contains(t, tickets.refunded, "MJX-REF")
	assert.True(t, decimal.RequireFromString("45").Equal(tickets.refunded["MJX-REF"]))
	assert.NotContains(t, tickets.refunded, "MJX-NOREF")
	assert.NotContains(t, tickets.refunded, "MJX-NOINTENT")
}

func TestPaymentSync_sweepIsIdempotent(t *testing.T) {
	tickets := newFakeTicketsRepo()
	tickets.incomplete = []entity.Ticket{{TicketID: "MJX-PAID", SessionID: "sess_paid"}}

	payments := &fakePayments{sessions: map[string]gateway.SessionStatus{
		"sess_paid": {ID: "sess_paid", PaymentStatus: "paid", PaymentIntentID: "pi_1"},
	}}

	svc := reconcile.NewPaymentSyncService(tickets, payments, time.Minute)

	first := svc.RunSweep(context.Background())
	second := svc.RunSweep(context.Background())

	assert.Equal(t, 1, first.MarkedPaid)
	// the conditional update reports no transition the second time
	assert.Equal(t, 0, second.MarkedPaid)
}

func TestPaymentSync_statusReflectsControl(t *testing.T) {
	svc := reconcile.NewPaymentSyncService(newFakeTicketsRepo(), &fakePayments{}, time.Minute)

	assert.True(t, svc.Status().Running)
	svc.Stop()
	assert.False(t, svc.Status().Running)
	svc.Start()
	assert.True(t, svc.Status().Running)

	result := svc.RunSweep(context.Background())
	status := svc.Status()
	require.NotNil(t, status.LastRun)
	assert.Equal(t, result.StartedAt, status.LastResult.StartedAt)
}
