package erpnext

import "errors"

var (
	// ErrNotConfigured is returned by NewClient when no base URL is set.
	ErrNotConfigured = errors.New("erpnext: base url not configured")

	// ErrUnexpectedStatus is wrapped with the status code and response body
	// text when ERPNext answers outside 2xx.
	ErrUnexpectedStatus = errors.New("erpnext: unexpected response status")

	// ErrInvalidMode is returned by NewSink for an unknown forwarding mode.
	ErrInvalidMode = errors.New("erpnext: invalid mode")
)
