package db

import (
	"fmt"

	"github.com/jmoiron/sqlx"
)

const schema = `
CREATE TABLE IF NOT EXISTS tickets (
	ticket_id VARCHAR(36) PRIMARY KEY,
	slot_date TEXT NOT NULL,
	start_time TEXT NOT NULL,
	end_time TEXT NOT NULL,
	admissions INT NOT NULL DEFAULT 0,
	bundle_name TEXT NOT NULL DEFAULT '',
	bundle_admissions INT NOT NULL DEFAULT 0,
	bundle_price NUMERIC(10,2) NOT NULL DEFAULT 0,
	amount NUMERIC(10,2) NOT NULL DEFAULT 0,
	subtotal NUMERIC(10,2) NOT NULL DEFAULT 0,
	customer_name TEXT NOT NULL DEFAULT '',
	customer_surname TEXT NOT NULL DEFAULT '',
	customer_email TEXT NOT NULL DEFAULT '',
	customer_phone TEXT NOT NULL DEFAULT '',
	payment_method TEXT NOT NULL DEFAULT 'card',
	payment_status TEXT NOT NULL DEFAULT 'pending',
	cancelled BOOLEAN NOT NULL DEFAULT false,
	used BOOLEAN NOT NULL DEFAULT false,
	cancellation_enabled BOOLEAN NOT NULL DEFAULT false,
	cancellation_fee NUMERIC(10,2) NOT NULL DEFAULT 0,
	refund_status TEXT NOT NULL DEFAULT 'none',
	refunded_amount NUMERIC(10,2) NOT NULL DEFAULT 0,
	refund_transaction_id TEXT NOT NULL DEFAULT '',
	refund_date TIMESTAMPTZ,
	session_id TEXT NOT NULL DEFAULT '',
	payment_intent_id TEXT NOT NULL DEFAULT '',
	qr_data TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS tickets_slot_idx
	ON tickets (slot_date, start_time, end_time);
CREATE INDEX IF NOT EXISTS tickets_session_idx
	ON tickets (session_id);

CREATE TABLE IF NOT EXISTS time_slots (
	slot_id VARCHAR(36) PRIMARY KEY,
	slot_date TEXT NOT NULL,
	start_time TEXT NOT NULL,
	end_time TEXT NOT NULL,
	max_admissions INT NOT NULL,
	UNIQUE (slot_date, start_time, end_time)
);

CREATE TABLE IF NOT EXISTS pending_bookings (
	session_id TEXT PRIMARY KEY,
	booking_info JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS email_logs (
	log_id VARCHAR(36) PRIMARY KEY,
	email TEXT NOT NULL,
	customer_name TEXT NOT NULL DEFAULT '',
	ticket_id VARCHAR(36) NOT NULL,
	status TEXT NOT NULL DEFAULT 'SENT',
	error_detail TEXT NOT NULL DEFAULT '',
	retry_count INT NOT NULL DEFAULT 0,
	is_retry BOOLEAN NOT NULL DEFAULT false,
	sent_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS email_logs_ticket_idx ON email_logs (ticket_id, status);
-- one FAILED row per ticket; the retry sweep upserts it in place
CREATE UNIQUE INDEX IF NOT EXISTS email_logs_failed_uniq
	ON email_logs (ticket_id) WHERE status = 'FAILED';

CREATE TABLE IF NOT EXISTS discount_vouchers (
	voucher_id VARCHAR(36) PRIMARY KEY,
	code TEXT NOT NULL UNIQUE,
	voucher_name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	discount_type TEXT NOT NULL,
	discount_value NUMERIC(10,2) NOT NULL,
	minimum_amount NUMERIC(10,2) NOT NULL DEFAULT 0,
	maximum_discount NUMERIC(10,2) NOT NULL DEFAULT 0,
	usage_limit INT NOT NULL DEFAULT -1,
	used_count INT NOT NULL DEFAULT 0,
	valid_from TIMESTAMPTZ NOT NULL,
	valid_until TIMESTAMPTZ NOT NULL,
	is_active BOOLEAN NOT NULL DEFAULT true,
	applicable_for TEXT NOT NULL DEFAULT 'all',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS ticket_bundles (
	bundle_id VARCHAR(36) PRIMARY KEY,
	bundle_name TEXT NOT NULL,
	discount_percent NUMERIC(5,2) NOT NULL DEFAULT 0,
	price NUMERIC(10,2) NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	admissions INT NOT NULL
);

CREATE TABLE IF NOT EXISTS settings (
	setting_id VARCHAR(36) PRIMARY KEY,
	location_name TEXT NOT NULL UNIQUE,
	address TEXT NOT NULL DEFAULT '',
	start_date TIMESTAMPTZ NOT NULL,
	end_date TIMESTAMPTZ NOT NULL,
	ticket_price NUMERIC(10,2) NOT NULL,
	socks_price NUMERIC(10,2) NOT NULL,
	cancellation_fee NUMERIC(10,2) NOT NULL
);

CREATE TABLE IF NOT EXISTS cancel_requests (
	request_id VARCHAR(36) PRIMARY KEY,
	ticket_id VARCHAR(36) NOT NULL,
	email TEXT NOT NULL,
	reason TEXT NOT NULL DEFAULT '',
	reviewed BOOLEAN NOT NULL DEFAULT false,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

func InitializeDatabaseSchema(db *sqlx.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("could not initialize database schema: %w", err)
	}
	return nil
}
