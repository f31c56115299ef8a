// Package account owns contractor accounts: signup with license checks,
// magic-link and passkey sign-in, and session tokens.
package account
