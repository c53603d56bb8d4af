// Package domain defines the core credential model and contracts.
//
// This package holds the Credential row, the decrypted Payload, the
// provider and status enums, sentinel errors, and the repository interface
// the token manager depends on. No implementation code - just contracts,
// kept on the consumer side to prevent circular imports.
package domain
