// Package pairing implements Local Pairing: a rotating numeric
// verification code, a three-step init/approve/confirm handshake, and
// the session tokens that result from it. The token-hash-for-comparison
// idiom and sync.RWMutex-guarded map style are generalized from OAuth
// session tracking into PBKDF2/HMAC challenge-response, since this
// gateway pairs a local browser rather than a remote OAuth client.
package pairing

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/pbkdf2"

	"mcp-gateway/internal/apierr"
)

const (
	codeRotationInterval = 60 * time.Second
	handshakeTTL         = 60 * time.Second
	sessionTTL           = 600 * time.Second
	pbkdf2Iterations     = 200000
	pbkdf2KeyLen         = 32

	rateLimitMax    = 5
	rateLimitWindow = 60 * time.Second
)

// KDFParams describes the PBKDF2 parameters returned from init() so
// the browser can derive the same key.
type KDFParams struct {
	Iterations int    `json:"iterations"`
	Hash       string `json:"hash"`
	Length     int    `json:"length"`
}

var defaultKDFParams = KDFParams{Iterations: pbkdf2Iterations, Hash: "SHA-256", Length: pbkdf2KeyLen}

type handshake struct {
	ID          string
	Origin      string
	ClientNonce string
	ServerNonce []byte
	Approved    bool
	ExpiresAt   time.Time
}

type session struct {
	Origin    string
	ExpiresAt time.Time
}

// Manager owns code rotation, in-flight handshakes, live session
// tokens, and per-origin rate limiting.
type Manager struct {
	mu sync.Mutex

	current, previous string
	codeExpiresAt     time.Time

	handshakes map[string]*handshake
	sessions   map[string]*session
	rate       map[string][]time.Time

	stop chan struct{}
}

// New constructs a Manager with an initial code already rolled, and
// starts its rotation timer.
func New() *Manager {
	m := &Manager{
		handshakes: make(map[string]*handshake),
		sessions:   make(map[string]*session),
		rate:       make(map[string][]time.Time),
		stop:       make(chan struct{}),
	}
	m.current = generateCode()
	m.codeExpiresAt = time.Now().Add(codeRotationInterval)
	go m.rotateLoop()
	return m
}

// Close stops the rotation timer.
func (m *Manager) Close() { close(m.stop) }

func (m *Manager) rotateLoop() {
	ticker := time.NewTicker(codeRotationInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.mu.Lock()
			m.previous = m.current
			m.current = generateCode()
			m.codeExpiresAt = time.Now().Add(codeRotationInterval)
			m.mu.Unlock()
		}
	}
}

func generateCode() string {
	buf := make([]byte, 4)
	_, _ = rand.Read(buf)
	n := uint32(buf[0])<<24 | uint32(buf[1])<<16 | uint32(buf[2])<<8 | uint32(buf[3])
	return fmt.Sprintf("%08d", n%100000000)
}

func codeProof(code, origin, clientNonce string) string {
	h := sha256.Sum256([]byte(code + "|" + origin + "|" + clientNonce))
	return hex.EncodeToString(h[:])
}

// checkRateLimit enforces §4.7's per-origin max 5 per 60s, trimming
// expired timestamps from the ring on every write.
func (m *Manager) checkRateLimit(origin string) error {
	now := time.Now()
	cutoff := now.Add(-rateLimitWindow)
	kept := m.rate[origin][:0]
	for _, t := range m.rate[origin] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= rateLimitMax {
		m.rate[origin] = kept
		return apierr.NewRateLimited("too many pairing attempts from this origin")
	}
	m.rate[origin] = append(kept, now)
	return nil
}

// RequestContext carries the origin/host/fetch-site checks common to
// every handshake step.
type RequestContext struct {
	Host         string
	Origin       string
	SecFetchSite string
}

// isLocalHost requires an exact match against 127.0.0.1 or localhost,
// ignoring a port suffix if present. A prefix check would wrongly admit
// lookalike hosts like "localhost.evil.com" or
// "127.0.0.1.attacker.example".
func isLocalHost(host string) bool {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return host == "127.0.0.1" || host == "localhost"
}

func (rc RequestContext) validate() error {
	if !isLocalHost(rc.Host) {
		return apierr.NewForbidden("HOST_FORBIDDEN", "host must be 127.0.0.1 or localhost")
	}
	if rc.Origin == "" {
		return apierr.NewForbidden("ORIGIN_REQUIRED", "origin header is required")
	}
	if rc.SecFetchSite == "cross-site" {
		return apierr.NewForbidden("FETCH_SITE_FORBIDDEN", "cross-site requests are not allowed")
	}
	return nil
}

// InitResult is returned from Init.
type InitResult struct {
	HandshakeID string    `json:"handshakeId"`
	ServerNonce string    `json:"serverNonce"`
	ExpiresIn   int       `json:"expiresIn"`
	KDF         string    `json:"kdf"`
	KDFParams   KDFParams `json:"kdfParams"`
}

// Init begins a handshake (§4.7 step 1).
func (m *Manager) Init(rc RequestContext, clientNonce, proof string) (*InitResult, error) {
	if err := rc.validate(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkRateLimit(rc.Origin); err != nil {
		return nil, err
	}

	matches := proof == codeProof(m.current, rc.Origin, clientNonce) ||
		(m.previous != "" && proof == codeProof(m.previous, rc.Origin, clientNonce))
	if !matches {
		return nil, apierr.NewForbidden("INVALID_CODE", "code proof did not match current or previous code")
	}

	serverNonce := make([]byte, 16)
	_, _ = rand.Read(serverNonce)

	hs := &handshake{
		ID:          uuid.NewString(),
		Origin:      rc.Origin,
		ClientNonce: clientNonce,
		ServerNonce: serverNonce,
		ExpiresAt:   time.Now().Add(handshakeTTL),
	}
	m.handshakes[hs.ID] = hs

	return &InitResult{
		HandshakeID: hs.ID,
		ServerNonce: base64.StdEncoding.EncodeToString(serverNonce),
		ExpiresIn:   int(handshakeTTL.Seconds()),
		KDF:         "pbkdf2",
		KDFParams:   defaultKDFParams,
	}, nil
}

// Approve flips a handshake's approved flag (§4.7 step 2); UI-driven,
// not subject to origin/host checks since it runs same-process.
func (m *Manager) Approve(handshakeID string, approve bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	hs, ok := m.handshakes[handshakeID]
	if !ok {
		return apierr.NewNotFound("handshake", handshakeID)
	}
	if time.Now().After(hs.ExpiresAt) {
		delete(m.handshakes, handshakeID)
		return apierr.NewConflict("EXPIRED", "handshake has expired")
	}
	hs.Approved = approve
	return nil
}

// ConfirmResult is returned from Confirm.
type ConfirmResult struct {
	SessionToken string `json:"sessionToken"`
	ExpiresIn    int    `json:"expiresIn"`
}

// Confirm completes the handshake (§4.7 step 3): derive a PBKDF2 key
// from the still-valid code and the recorded serverNonce, check the
// caller's HMAC response against it for either current or previous
// code, and on success mint a session token.
func (m *Manager) Confirm(rc RequestContext, handshakeID, response string) (*ConfirmResult, error) {
	if err := rc.validate(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	hs, ok := m.handshakes[handshakeID]
	if !ok {
		return nil, apierr.NewNotFound("handshake", handshakeID)
	}
	if time.Now().After(hs.ExpiresAt) {
		delete(m.handshakes, handshakeID)
		return nil, apierr.NewConflict("EXPIRED", "handshake has expired")
	}
	if !hs.Approved {
		return nil, apierr.NewForbidden("NOT_APPROVED", "handshake has not been approved")
	}
	if hs.Origin != rc.Origin {
		return nil, apierr.NewForbidden("ORIGIN_MISMATCH", "origin does not match the handshake")
	}

	message := hs.Origin + "|" + hs.ClientNonce + "|" + hs.ID
	matched := m.verifyResponse(m.current, hs.ServerNonce, message, response) ||
		(m.previous != "" && m.verifyResponse(m.previous, hs.ServerNonce, message, response))
	if !matched {
		return nil, apierr.NewForbidden("BAD_RESPONSE", "handshake response did not verify")
	}

	tokenBytes := make([]byte, 32)
	_, _ = rand.Read(tokenBytes)
	token := base64.StdEncoding.EncodeToString(tokenBytes)

	m.sessions[token] = &session{Origin: hs.Origin, ExpiresAt: time.Now().Add(sessionTTL)}
	delete(m.handshakes, handshakeID)

	return &ConfirmResult{SessionToken: token, ExpiresIn: int(sessionTTL.Seconds())}, nil
}

func (m *Manager) verifyResponse(code string, serverNonce []byte, message, response string) bool {
	key := pbkdf2.Key([]byte(code), serverNonce, pbkdf2Iterations, pbkdf2KeyLen, sha256.New)
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(message))
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(response))
}

// Authenticate validates an `Authorization: LocalMCP <token>` value
// against the requesting origin, per §4.7's usage contract.
func (m *Manager) Authenticate(token, origin string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[token]
	if !ok {
		return apierr.NewUnauthorized("UNAUTHORIZED")
	}
	if time.Now().After(sess.ExpiresAt) {
		delete(m.sessions, token)
		return apierr.NewUnauthorized("UNAUTHORIZED")
	}
	if sess.Origin != origin {
		return apierr.NewForbidden("FORBIDDEN", "session token origin mismatch")
	}
	return nil
}

// CurrentCodeDebug exposes the active code for local display in the UI
// approve step; the public GET /local-proxy/code route serves it.
func (m *Manager) CurrentCodeDebug() (code string, expiresInSeconds int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current, int(time.Until(m.codeExpiresAt).Seconds())
}
