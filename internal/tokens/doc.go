// Package tokens orchestrates the credential lifecycle.
//
// Manager answers "give me a valid token" and "refresh everything", owning
// the retry policy and the status state machine; it is the only writer of
// credential rows outside the authorization flow. Scheduler drives the bulk
// path on a fixed interval with a startup grace period and single-leader
// gating.
package tokens
