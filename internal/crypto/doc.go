// Package crypto provides authenticated encryption for credential payloads
// at rest.
//
// Payloads are JSON-marshalled and sealed with AES-256-GCM into a versioned
// blob (version byte, nonce, ciphertext, tag). Key material is resolved from
// a direct key, a PBKDF2-derived secret, or a session-secret fallback, in
// that order.
package crypto
