package proxy

import (
	"fmt"
	"strings"
)

// The proxy dispatches retries on typed errors rather than on upstream
// message text. String matching on engine error bodies is confined to this
// file as a compatibility shim for the specific upstream error formats.

// ConnectionError is a transport-level failure reaching the engine; retried
// with bounded exponential backoff (the engine may be mid-restart).
type ConnectionError struct{ Err error }

func (e *ConnectionError) Error() string { return "engine connection error: " + e.Err.Error() }
func (e *ConnectionError) Unwrap() error { return e.Err }

// UpstreamError is an ordinary HTTP error response from the engine; its
// status code and body pass through to the client unmodified.
type UpstreamError struct {
	Status int
	Body   []byte
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("engine error %d: %s", e.Status, string(e.Body))
}

// LoadFailureError is an upstream response indicating the model could not
// be loaded (commonly memory pressure with multiple resident models);
// recovered once by evicting other models and retrying.
type LoadFailureError struct{ Upstream *UpstreamError }

func (e *LoadFailureError) Error() string { return e.Upstream.Error() }

// TemplateError is an upstream response indicating the chat template
// rejected a message carrying both free-text content and a thinking field;
// recovered once by sanitizing the message list and retrying.
type TemplateError struct{ Upstream *UpstreamError }

func (e *TemplateError) Error() string { return e.Upstream.Error() }

// classifyUpstream turns an engine HTTP error response into a typed error.
func classifyUpstream(status int, body []byte) error {
	up := &UpstreamError{Status: status, Body: body}
	text := strings.ToLower(string(body))
	if isLoadFailureText(text) {
		return &LoadFailureError{Upstream: up}
	}
	if isTemplateErrorText(text) {
		return &TemplateError{Upstream: up}
	}
	return up
}

func isLoadFailureText(text string) bool {
	return strings.Contains(text, "failed to load model") ||
		strings.Contains(text, "unable to load model") ||
		strings.Contains(text, "error loading model")
}

// isTemplateErrorText matches the template engine's complaint about an
// assistant turn carrying both content and thinking, e.g.
// "Cannot specify both content and thinking". Kept deliberately narrow;
// sanitization must never run speculatively.
func isTemplateErrorText(text string) bool {
	if !strings.Contains(text, "content") || !strings.Contains(text, "thinking") {
		return false
	}
	return strings.Contains(text, "both") ||
		strings.Contains(text, "exclusive") ||
		strings.Contains(text, "template")
}

// upstreamOf extracts the passthrough response for any classified error.
func upstreamOf(err error) *UpstreamError {
	switch e := err.(type) {
	case *UpstreamError:
		return e
	case *LoadFailureError:
		return e.Upstream
	case *TemplateError:
		return e.Upstream
	}
	return nil
}
