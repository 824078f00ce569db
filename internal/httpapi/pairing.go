package httpapi

import (
	"net/http"

	"github.com/google/uuid"

	"mcp-gateway/internal/apierr"
)

func (s *Server) handleLocalProxyCode(w http.ResponseWriter, r *http.Request) {
	code, expiresIn := s.pairing.CurrentCodeDebug()
	writeJSON(w, http.StatusOK, map[string]any{"code": code, "expiresIn": expiresIn})
}

type handshakeInitRequest struct {
	ClientNonce string `json:"clientNonce"`
	CodeProof   string `json:"codeProof"`
}

func (s *Server) handlePairingInit(w http.ResponseWriter, r *http.Request) {
	var req handshakeInitRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	res, err := s.pairing.Init(rc(r), req.ClientNonce, req.CodeProof)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type handshakeApproveRequest struct {
	HandshakeID string `json:"handshakeId"`
	Approve     bool   `json:"approve"`
}

func (s *Server) handlePairingApprove(w http.ResponseWriter, r *http.Request) {
	var req handshakeApproveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.pairing.Approve(req.HandshakeID, req.Approve); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type handshakeConfirmRequest struct {
	HandshakeID string `json:"handshakeId"`
	Response    string `json:"response"`
}

func (s *Server) handlePairingConfirm(w http.ResponseWriter, r *http.Request) {
	var req handshakeConfirmRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	res, err := s.pairing.Confirm(rc(r), req.HandshakeID, req.Response)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleLocalTools lists a single instance's tools over the LocalMCP
// surface (§4.9): a fresh adapter is built, used once, and torn down,
// same discipline as the authenticated proxy path.
func (s *Server) handleLocalTools(w http.ResponseWriter, r *http.Request) {
	serviceID := r.URL.Query().Get("serviceId")
	requestID := uuid.NewString()

	inst, err := s.registry.GetService(serviceID)
	if err != nil {
		writeError(w, err)
		return
	}

	resp, err := s.dispatchProxy(r.Context(), inst, proxyRequestBody{JSONRPC: "2.0", ID: requestID, Method: "tools/list"})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "tools": resp.Result, "requestId": requestID})
}

type localCallRequest struct {
	Tool      string         `json:"tool"`
	Params    map[string]any `json:"params,omitempty"`
	ServiceID string         `json:"serviceId,omitempty"`
}

func (s *Server) handleLocalCall(w http.ResponseWriter, r *http.Request) {
	var req localCallRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Tool == "" {
		writeError(w, apierr.NewBadRequest("tool is required"))
		return
	}
	requestID := uuid.NewString()

	inst, err := s.registry.GetService(req.ServiceID)
	if err != nil {
		writeError(w, err)
		return
	}

	params := map[string]any{"name": req.Tool, "arguments": req.Params}
	resp, err := s.dispatchProxy(r.Context(), inst, proxyRequestBody{JSONRPC: "2.0", ID: requestID, Method: "tools/call", Params: params})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "result": resp.Result, "requestId": requestID})
}
