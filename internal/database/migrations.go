package database

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

const createExtensionsSQL = `
CREATE EXTENSION IF NOT EXISTS btree_gist;
`

const createListingsTableSQL = `
CREATE TABLE IF NOT EXISTS listings (
    id          BIGINT PRIMARY KEY,
    title       TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    price       NUMERIC(12,2) NOT NULL CHECK (price >= 0),
    rating      NUMERIC(3,2) NOT NULL DEFAULT 0,
    reviews     INTEGER NOT NULL DEFAULT 0,
    location    TEXT NOT NULL DEFAULT '',
    image       TEXT NOT NULL DEFAULT '',
    host_name   TEXT NOT NULL DEFAULT '',
    host_image  TEXT NOT NULL DEFAULT '',
    amenities   TEXT[] NOT NULL DEFAULT '{}',
    images      TEXT[] NOT NULL DEFAULT '{}',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// Ownership is exclusive: a row belongs to a user or to a named guest with a phone.
// Confirmed stays on the same listing cannot overlap under half-open [check_in, check_out).
const createBookingsTableSQL = `
CREATE TABLE IF NOT EXISTS bookings (
    id                  UUID PRIMARY KEY,
    booking_reference   VARCHAR(6),
    user_id             UUID,
    guest_name          TEXT,
    guest_phone         TEXT,
    guest_email         TEXT,
    listing_id          BIGINT NOT NULL REFERENCES listings(id),
    check_in            TIMESTAMPTZ NOT NULL,
    check_out           TIMESTAMPTZ NOT NULL,
    total_price         NUMERIC(12,2) NOT NULL CHECK (total_price > 0),
    status              VARCHAR(16) NOT NULL DEFAULT 'confirmed' CHECK (status IN ('confirmed', 'cancelled')),
    payment_status      VARCHAR(16) NOT NULL DEFAULT 'pending' CHECK (payment_status IN ('pending', 'paid', 'failed')),
    payment_reference   TEXT,
    checkout_session_id TEXT,
    cancelled_at        TIMESTAMPTZ,
    created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT bookings_booking_reference_key UNIQUE (booking_reference),
    CONSTRAINT bookings_payment_reference_key UNIQUE (payment_reference),
    CONSTRAINT bookings_stay_window_check CHECK (check_in < check_out),
    CONSTRAINT bookings_owner_check CHECK (
        (user_id IS NOT NULL AND guest_name IS NULL AND guest_phone IS NULL)
        OR (user_id IS NULL AND guest_name IS NOT NULL AND guest_phone IS NOT NULL)
    ),
    CONSTRAINT bookings_no_overlap EXCLUDE USING gist (
        listing_id WITH =,
        tstzrange(check_in, check_out, '[)') WITH &&
    ) WHERE (status = 'confirmed')
);

CREATE INDEX IF NOT EXISTS idx_bookings_user_id ON bookings (user_id);
CREATE INDEX IF NOT EXISTS idx_bookings_listing_status ON bookings (listing_id, status, check_out);
`

const createCheckoutSessionsTableSQL = `
CREATE TABLE IF NOT EXISTS checkout_sessions (
    id                 UUID PRIMARY KEY,
    gateway_session_id TEXT NOT NULL UNIQUE,
    listing_id         BIGINT NOT NULL REFERENCES listings(id),
    user_id            UUID,
    guest_phone        TEXT,
    check_in           TIMESTAMPTZ NOT NULL,
    check_out          TIMESTAMPTZ NOT NULL,
    total_price        NUMERIC(12,2) NOT NULL,
    status             VARCHAR(16) NOT NULL DEFAULT 'open' CHECK (status IN ('open', 'completed', 'expired', 'refunded')),
    booking_id         UUID REFERENCES bookings(id),
    payment_reference  TEXT,
    expires_at         TIMESTAMPTZ NOT NULL,
    created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_checkout_sessions_open ON checkout_sessions (status, expires_at);
`

const createGuestLookupAttemptsTableSQL = `
CREATE TABLE IF NOT EXISTS guest_lookup_attempts (
    id              BIGSERIAL PRIMARY KEY,
    identifier      TEXT NOT NULL,
    identifier_type VARCHAR(16) NOT NULL,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_guest_lookup_attempts_identifier ON guest_lookup_attempts (identifier, identifier_type, created_at);
`

const createAuditLogsTableSQL = `
CREATE TABLE IF NOT EXISTS audit_logs (
    id          BIGSERIAL PRIMARY KEY,
    user_id     UUID,
    action      VARCHAR(64) NOT NULL,
    entity_type VARCHAR(32) NOT NULL,
    entity_id   TEXT,
    ip_address  TEXT,
    user_agent  TEXT,
    details     JSONB,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_audit_logs_created_at ON audit_logs (created_at);
`

// migrationSteps runs in order; every statement is idempotent.
var migrationSteps = []struct {
	name string
	sql  string
}{
	{"extensions", createExtensionsSQL},
	{"listings", createListingsTableSQL},
	{"bookings", createBookingsTableSQL},
	{"checkout_sessions", createCheckoutSessionsTableSQL},
	{"guest_lookup_attempts", createGuestLookupAttemptsTableSQL},
	{"audit_logs", createAuditLogsTableSQL},
}

// RunMigrations creates the schema if it does not exist yet
func RunMigrations(db DB, logger *logrus.Logger) error {
	for _, step := range migrationSteps {
		if _, err := db.Exec(step.sql); err != nil {
			return fmt.Errorf("migration %q failed: %w", step.name, err)
		}
		logger.WithField("step", step.name).Debug("Migration applied")
	}
	logger.WithField("steps", len(migrationSteps)).Info("Database migrations complete")
	return nil
}
