// Package timeouts defines shared timeout constants used across services.
package timeouts

import "time"

// ReadHeader limits how long an HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long an HTTP server waits for in-flight requests
// during graceful shutdown.
const Shutdown = 5 * time.Second

// Upstream caps a single call to a partner API (Stripe, ShipStation,
// Resend, reCAPTCHA).
const Upstream = 10 * time.Second

// RateQuote caps the whole live shipping-rate lookup before the table
// fallback takes over.
const RateQuote = 4 * time.Second

// BackgroundEmail caps an email sent after its request has answered,
// retries included.
const BackgroundEmail = 30 * time.Second
