// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file provides SecurityHeaders and NoStore, the hardening middleware
// for the cache API. The API serves JSON only, behind a reverse proxy, to the
// app and to operators.
//
// Design notes:
//   - No Content-Security-Policy: nothing here renders HTML
//   - HSTS is opt-in and sent only over HTTPS (TLS or X-Forwarded-Proto)
//   - NoStore is a separate middleware so admin groups can opt in without
//     affecting cacheable content reads
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const defaultHSTSMaxAge = 180 * 24 * time.Hour

// SecurityOptions configures SecurityHeaders.
//
// EnableHSTS emits Strict-Transport-Security on HTTPS requests only. Enable
// it only when traffic is HTTPS between the proxy and the daemon too.
//
// HSTSMaxAge is the HSTS lifetime; zero or negative selects 180 days.
//
// NoStore adds Cache-Control: no-store (with Pragma and Expires) to every
// response. The router leaves it off globally and mounts NoStore on the admin
// group instead.
//
// EnablePolicy sends Permissions-Policy and X-Permitted-Cross-Domain-Policies.
// Only browsers act on them.
type SecurityOptions struct {
	EnableHSTS   bool          // only when HTTPS end-to-end
	HSTSMaxAge   time.Duration // <= 0 means 180 days
	NoStore      bool          // Cache-Control: no-store on every response
	EnablePolicy bool          // Permissions-Policy and cross-domain policy
}

// SecurityHeaders returns a Gin middleware that hardens every response.
//
// Behavior:
//   - Always sets:
//     X-Content-Type-Options: nosniff
//     X-Frame-Options: DENY
//     Referrer-Policy: no-referrer
//   - When EnablePolicy:
//     Permissions-Policy: geolocation=(), microphone=(), camera=(), payment=()
//     X-Permitted-Cross-Domain-Policies: none
//   - When NoStore:
//     Cache-Control: no-store, Pragma: no-cache, Expires: 0
//   - When EnableHSTS and the request is HTTPS:
//     Strict-Transport-Security: max-age=<seconds>; includeSubDomains; preload
//   - When RequestID already set X-Request-ID, it is appended to
//     Access-Control-Expose-Headers so browser clients can read it.
//
// Headers are set before c.Next, so they are present even when a later
// handler aborts.
func SecurityHeaders(opt SecurityOptions) gin.HandlerFunc {
	maxAge := opt.HSTSMaxAge
	if maxAge <= 0 {
		maxAge = defaultHSTSMaxAge
	}
	hsts := "max-age=" + strconv.Itoa(int(maxAge.Seconds())) + "; includeSubDomains; preload"

	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")

		if opt.EnablePolicy {
			h.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=()")
			h.Set("X-Permitted-Cross-Domain-Policies", "none")
		}
		if opt.NoStore {
			setNoStore(h)
		}
		if opt.EnableHSTS && isHTTPS(c.Request) {
			h.Set("Strict-Transport-Security", hsts)
		}
		if h.Get(requestIDHeader) != "" {
			exposeHeader(h, requestIDHeader)
		}
		c.Next()
	}
}

// NoStore marks responses as uncacheable.
//
// The router mounts it on the admin group: rollout state, health and warming
// statistics change with every call, and an intermediary cache must never
// hand one operator's answer to another.
func NoStore() gin.HandlerFunc {
	return func(c *gin.Context) { setNoStore(c.Writer.Header()) }
}

func setNoStore(h http.Header) {
	h.Set("Cache-Control", "no-store")
	h.Set("Pragma", "no-cache")
	h.Set("Expires", "0")
}

func exposeHeader(h http.Header, name string) {
	const hdr = "Access-Control-Expose-Headers"
	cur := h.Get(hdr)
	switch {
	case cur == "":
		h.Set(hdr, name)
	case !strings.Contains(strings.ToLower(cur), strings.ToLower(name)):
		h.Set(hdr, cur+", "+name)
	}
}

func isHTTPS(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
