package yellow

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"sync"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/erc7824/yellow-provider/internal/logger"
	"github.com/erc7824/yellow-provider/internal/metrics"
)

// Signer is the owner wallet's single required capability (§6 "Owner wallet interface"):
// sign an EIP-712-shaped typed-data payload.
type Signer interface {
	SignTypedData(data apitypes.TypedData) ([]byte, error)
	Address() string
}

// Allowance is one entry of the `auth_request` token allowance list (§4.3 step 2).
type Allowance struct {
	Asset  string
	Amount string
}

const authScope = "yellow-provider"

// SessionKeyManager implements C3: it generates an ephemeral signing key, runs the
// challenge/verify handshake against the relay on behalf of the owner wallet, tracks
// expiry, and re-authenticates lazily at the next operation boundary, never mid-operation.
type SessionKeyManager struct {
	transport Transport
	signer    Signer
	log       logger.Logger

	sessionExpiry time.Duration
	allowances    []Allowance

	group singleflight.Group // enforces invariant (c): one in-flight handshake at a time

	mu      sync.Mutex
	current *SessionKey
}

// NewSessionKeyManager constructs a manager bound to transport and signer.
func NewSessionKeyManager(transport Transport, signer Signer, sessionExpiry time.Duration, allowances []Allowance, log logger.Logger) *SessionKeyManager {
	return &SessionKeyManager{
		transport:     transport,
		signer:        signer,
		log:           log,
		sessionExpiry: sessionExpiry,
		allowances:    allowances,
	}
}

// generateKeyPair produces a fresh secp256k1 keypair and its derived Ethereum-style
// address. Each call draws fresh entropy from secp256k1.GeneratePrivateKey(), so
// addresses across calls are distinct by construction.
func generateKeyPair() (*ecdsa.PrivateKey, string, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, "", fmt.Errorf("generate session key: %w", err)
	}
	ecdsaPriv := priv.ToECDSA()
	address := ethcrypto.PubkeyToAddress(ecdsaPriv.PublicKey).Hex()
	return ecdsaPriv, address, nil
}

// Authenticated reports whether the current session key is both marked authenticated and
// unexpired.
func (m *SessionKeyManager) Authenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current != nil && m.current.Authenticated && time.Now().Unix() < m.current.ExpiresAt
}

// Current returns a copy of the active session key, or nil if none.
func (m *SessionKeyManager) Current() *SessionKey {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil
	}
	cp := *m.current
	return &cp
}

// Invalidate clears the current session key (called on disconnect, §4.3).
func (m *SessionKeyManager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = nil
}

// EnsureAuthenticated runs the handshake if the current session key is missing, expired,
// or not yet authenticated. Concurrent callers collapse onto a single in-flight handshake
// via singleflight (invariant (c)).
func (m *SessionKeyManager) EnsureAuthenticated(ctx context.Context) *Fallback {
	if m.Authenticated() {
		return nil
	}

	_, err, _ := m.group.Do("auth", func() (interface{}, error) {
		if m.Authenticated() {
			return nil, nil
		}
		return nil, m.handshake(ctx)
	})
	if err != nil {
		if fb, ok := err.(*Fallback); ok {
			return fb
		}
		return newFallback(ReasonAuthFailed, err.Error(), err)
	}
	return nil
}

// handshake implements the five-step sequence of §4.3.
func (m *SessionKeyManager) handshake(ctx context.Context) error {
	start := time.Now()
	metrics.HandshakesInitiated.Inc()

	priv, address, err := generateKeyPair()
	if err != nil {
		metrics.HandshakesCompleted.WithLabelValues("failure").Inc()
		return newFallback(ReasonAuthFailed, "failed to generate session key", err)
	}
	metrics.SessionKeysGenerated.Inc()

	expiry := time.Now().Add(m.sessionExpiry).Unix()

	allowanceParams := make([]map[string]string, 0, len(m.allowances))
	for _, a := range m.allowances {
		allowanceParams = append(allowanceParams, map[string]string{"asset": a.Asset, "amount": a.Amount})
	}

	authRequest := Message{
		Method: "auth_request",
		Params: map[string]interface{}{
			"session_address": address,
			"allowances":      allowanceParams,
			"expire":          expiry,
			"scope":           authScope,
			"wallet":          m.signer.Address(),
			"request_id":      uuid.NewString(),
		},
	}

	challengeResp, sendErr := m.transport.SendAndWait(ctx, authRequest, 15*time.Second)
	if sendErr != nil {
		metrics.HandshakesCompleted.WithLabelValues("failure").Inc()
		return asAuthFailure(sendErr)
	}

	challengeMessage, _ := challengeResp.Params["challenge_message"].(string)
	if challengeMessage == "" {
		metrics.HandshakesCompleted.WithLabelValues("failure").Inc()
		return newFallback(ReasonAuthFailed, "auth_challenge missing challenge_message", nil)
	}

	typedData := buildChallengeTypedData(challengeMessage, address)
	signature, signErr := m.signer.SignTypedData(typedData)
	if signErr != nil {
		metrics.HandshakesCompleted.WithLabelValues("failure").Inc()
		return newFallback(ReasonAuthFailed, "failed to sign auth challenge", signErr)
	}

	verifyRequest := Message{
		Method: "auth_verify",
		Params: map[string]interface{}{
			"session_address": address,
			"signature":       fmt.Sprintf("0x%x", signature),
			"request_id":      uuid.NewString(),
		},
	}

	if _, err := m.transport.SendAndWait(ctx, verifyRequest, 15*time.Second); err != nil {
		metrics.HandshakesCompleted.WithLabelValues("failure").Inc()
		return asAuthFailure(err)
	}

	m.mu.Lock()
	m.current = &SessionKey{
		keyMaterial:   ethcrypto.FromECDSA(priv),
		Address:       address,
		ExpiresAt:     expiry,
		Authenticated: true,
	}
	m.mu.Unlock()

	metrics.HandshakesCompleted.WithLabelValues("success").Inc()
	elapsed := time.Since(start)
	metrics.HandshakeDuration.Observe(elapsed.Seconds())
	m.log.Info("session authenticated", logger.String("address", address), logger.Duration("elapsed", elapsed))
	return nil
}

func asAuthFailure(err error) error {
	if fb, ok := err.(*Fallback); ok {
		return newFallback(ReasonAuthFailed, fb.Message, fb.Cause)
	}
	return newFallback(ReasonAuthFailed, err.Error(), err)
}

// buildChallengeTypedData composes the EIP-712 payload the owner wallet signs to prove
// control of the session address (§4.3 step 4, §6 "Owner wallet interface").
func buildChallengeTypedData(challengeMessage, sessionAddress string) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": []apitypes.Type{
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
			},
			"Policy": []apitypes.Type{
				{Name: "challenge", Type: "string"},
				{Name: "session", Type: "address"},
			},
		},
		PrimaryType: "Policy",
		Domain: apitypes.TypedDataDomain{
			Name:    "yellow-provider",
			Version: "1",
		},
		Message: apitypes.TypedDataMessage{
			"challenge": challengeMessage,
			"session":   sessionAddress,
		},
	}
}
