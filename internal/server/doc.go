// Package server implements the HTTP server using Echo framework.
//
// Routes: health probes, Prometheus metrics, and the admin credential
// endpoints (status listing plus the is_active toggle). Handlers split by
// domain: handlers_health.go, handlers_admin.go.
package server
