package yellow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erc7824/yellow-provider/internal/logger"
)

func TestGenerateKeyPairProducesDistinctAddresses(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		_, address, err := generateKeyPair()
		require.NoError(t, err)
		require.False(t, seen[address], "address %s generated twice", address)
		seen[address] = true
	}
}

func TestHandshakeSendsWellFormedAuthRequest(t *testing.T) {
	ft := newFakeTransport()
	ft.queueResponse("auth_request", Message{Method: "auth_request", Params: map[string]interface{}{"challenge_message": "chal-1"}})
	ft.queueResponse("auth_verify", Message{Method: "auth_verify", Params: map[string]interface{}{"ok": true}})

	signer := newFakeSigner("0xOwner")
	mgr := NewSessionKeyManager(ft, signer, time.Hour, []Allowance{{Asset: "USDC", Amount: "1000"}}, logger.NewDefaultLogger())

	fb := mgr.EnsureAuthenticated(context.Background())
	require.Nil(t, fb)
	assert.True(t, mgr.Authenticated())

	require.Len(t, ft.sent, 2)
	req := ft.sent[0]
	assert.Equal(t, "auth_request", req.Method)
	assert.NotEmpty(t, req.Params["session_address"])
	assert.NotEmpty(t, req.Params["allowances"])
	assert.NotZero(t, req.Params["expire"])
	assert.Equal(t, authScope, req.Params["scope"])
}

func TestEnsureAuthenticatedIsIdempotentWhileValid(t *testing.T) {
	ft := newFakeTransport()
	ft.queueResponse("auth_request", Message{Method: "auth_request", Params: map[string]interface{}{"challenge_message": "chal-1"}})
	ft.queueResponse("auth_verify", Message{Method: "auth_verify", Params: map[string]interface{}{"ok": true}})

	mgr := NewSessionKeyManager(ft, newFakeSigner("0xOwner"), time.Hour, nil, logger.NewDefaultLogger())

	require.Nil(t, mgr.EnsureAuthenticated(context.Background()))
	require.Nil(t, mgr.EnsureAuthenticated(context.Background()))

	// Second call must not re-run the handshake: only one auth_request/auth_verify pair sent.
	assert.Len(t, ft.sent, 2)
}

func TestEnsureAuthenticatedSurfacesChallengeFailureAsAuthFailed(t *testing.T) {
	ft := newFakeTransport()
	ft.setWaitErr("auth_request", newFallback(ReasonUnavailable, "relay unreachable", nil))

	mgr := NewSessionKeyManager(ft, newFakeSigner("0xOwner"), time.Hour, nil, logger.NewDefaultLogger())

	fb := mgr.EnsureAuthenticated(context.Background())
	require.NotNil(t, fb)
	assert.Equal(t, ReasonAuthFailed, fb.Reason)
}

func TestInvalidateClearsSessionKey(t *testing.T) {
	ft := newFakeTransport()
	mgr := NewSessionKeyManager(ft, newFakeSigner("0xOwner"), time.Hour, nil, logger.NewDefaultLogger())
	authenticateForTest(t, ft, mgr)

	require.True(t, mgr.Authenticated())
	mgr.Invalidate()
	assert.False(t, mgr.Authenticated())
	assert.Nil(t, mgr.Current())
}

func TestAuthenticatedReportsFalseOnceExpired(t *testing.T) {
	ft := newFakeTransport()
	ft.queueResponse("auth_request", Message{Method: "auth_request", Params: map[string]interface{}{"challenge_message": "chal-1"}})
	ft.queueResponse("auth_verify", Message{Method: "auth_verify", Params: map[string]interface{}{"ok": true}})

	mgr := NewSessionKeyManager(ft, newFakeSigner("0xOwner"), -1*time.Second, nil, logger.NewDefaultLogger())
	require.Nil(t, mgr.EnsureAuthenticated(context.Background()))

	assert.False(t, mgr.Authenticated())
}
