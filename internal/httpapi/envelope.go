// Package httpapi implements the HTTP Surface: binds the registry,
// health checker, router, authenticator, log bus, pairing manager, and
// sandbox provisioner to an HTTP + SSE API, with a request auth
// pre-hook and a uniform JSON error envelope. Routes are registered
// directly on net/http.ServeMux (createStandardMux/
// createOAuthProtectedMux style) rather than through a router library.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"mcp-gateway/internal/apierr"
	"mcp-gateway/pkg/logging"
)

type errorBody struct {
	Message     string         `json:"message"`
	Code        string         `json:"code"`
	Recoverable bool           `json:"recoverable"`
	Meta        map[string]any `json:"meta,omitempty"`
}

type envelope struct {
	Success bool       `json:"success"`
	Error   *errorBody `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

// writeError converts any error into the §4.9 envelope, promoting
// unrecognized errors to INTERNAL_ERROR rather than leaking detail.
// Registry/router sentinels (ErrTemplateNotFound etc) are plain errors
// callers check with errors.Is rather than *GatewayError, so they are
// recognized here rather than at every call site.
func writeError(w http.ResponseWriter, err error) {
	ge, ok := apierr.As(err)
	if !ok {
		ge = sentinelToGatewayError(err)
	}
	if ge.Status >= 500 {
		logging.Error("HTTPSurface", err, "request failed: %s", ge.Code)
	}
	writeJSON(w, ge.Status, envelope{
		Success: false,
		Error: &errorBody{
			Message:     ge.Message,
			Code:        ge.Code,
			Recoverable: ge.Recoverable,
			Meta:        ge.Meta,
		},
	})
}

func sentinelToGatewayError(err error) *apierr.GatewayError {
	switch {
	case errors.Is(err, apierr.ErrTemplateNotFound):
		return &apierr.GatewayError{Status: 404, Code: "NOT_FOUND", Message: err.Error(), Recoverable: true}
	case errors.Is(err, apierr.ErrInstanceNotFound):
		return &apierr.GatewayError{Status: 404, Code: "NOT_FOUND", Message: err.Error(), Recoverable: true}
	case errors.Is(err, apierr.ErrNoServiceHealthy):
		return apierr.NewDisabled("NO_SERVICE_HEALTHY", err.Error())
	default:
		return apierr.NewInternal("INTERNAL_ERROR", err)
	}
}

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return apierr.NewBadRequest("request body is required")
	}
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apierr.NewBadRequest("malformed JSON body: " + err.Error())
	}
	return nil
}
