package yellow

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// fakeTransport is an in-memory stand-in for Transport used across this package's tests,
// since there is no real ClearNode to dial in unit tests.
type fakeTransport struct {
	mu        sync.Mutex
	state     ConnState
	sent      []Message
	responses map[string][]Message
	sendErr   error
	waitErr   map[string]error
	handlers  map[int]func(Message)
	nextID    int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		state:     StateDisconnected,
		responses: make(map[string][]Message),
		waitErr:   make(map[string]error),
		handlers:  make(map[int]func(Message)),
	}
}

func (f *fakeTransport) Connect(ctx context.Context) error {
	f.mu.Lock()
	f.state = StateConnected
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) Disconnect() error {
	f.mu.Lock()
	f.state = StateClosed
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) State() ConnState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeTransport) Send(ctx context.Context, msg Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return f.sendErr
}

func (f *fakeTransport) SendAndWait(ctx context.Context, msg Message, timeout time.Duration) (*Message, error) {
	f.mu.Lock()
	f.sent = append(f.sent, msg)
	err := f.waitErr[msg.Method]
	var resp *Message
	if queue := f.responses[msg.Method]; len(queue) > 0 {
		r := queue[0]
		f.responses[msg.Method] = queue[1:]
		resp = &r
	}
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, newFallback(ReasonTimeout, "fakeTransport: no scripted response for "+msg.Method, nil)
	}
	return resp, nil
}

func (f *fakeTransport) OnMessage(h func(Message)) func() {
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.handlers[id] = h
	f.mu.Unlock()

	return func() {
		f.mu.Lock()
		delete(f.handlers, id)
		f.mu.Unlock()
	}
}

func (f *fakeTransport) deliver(msg Message) {
	f.mu.Lock()
	snapshot := make([]func(Message), 0, len(f.handlers))
	for _, h := range f.handlers {
		snapshot = append(snapshot, h)
	}
	f.mu.Unlock()

	for _, h := range snapshot {
		h(msg)
	}
}

func (f *fakeTransport) queueResponse(method string, msg Message) {
	f.mu.Lock()
	f.responses[method] = append(f.responses[method], msg)
	f.mu.Unlock()
}

func (f *fakeTransport) setWaitErr(method string, err error) {
	f.mu.Lock()
	f.waitErr[method] = err
	f.mu.Unlock()
}

func (f *fakeTransport) sentMethods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	for i, m := range f.sent {
		out[i] = m.Method
	}
	return out
}

// authenticateForTest primes a fakeTransport with the auth_request/auth_verify handshake
// responses and drives a real handshake through mgr, so tests exercising operations past
// Connect don't need to re-derive the full protocol exchange every time.
func authenticateForTest(t interface {
	Fatalf(format string, args ...interface{})
}, ft *fakeTransport, mgr *SessionKeyManager) {
	ft.queueResponse("auth_request", Message{Method: "auth_request", Params: map[string]interface{}{"challenge_message": "test-challenge"}})
	ft.queueResponse("auth_verify", Message{Method: "auth_verify", Params: map[string]interface{}{"ok": true}})
	if fb := mgr.EnsureAuthenticated(context.Background()); fb != nil {
		t.Fatalf("handshake failed: %v", fb)
	}
}

// fakeSigner is a deterministic stand-in for the owner wallet Signer interface.
type fakeSigner struct {
	addr string
	sig  []byte
	err  error
}

func newFakeSigner(addr string) *fakeSigner {
	return &fakeSigner{addr: addr, sig: []byte("signature")}
}

func (s *fakeSigner) Address() string { return s.addr }

func (s *fakeSigner) SignTypedData(data apitypes.TypedData) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.sig, nil
}

// fakeContractClient is a scripted stand-in for ContractClient.
type fakeContractClient struct {
	mu sync.Mutex

	createErr, resizeErr, closeErr, readErr, waitErr, healthErr error
	txHash                                                      string
	receiptSuccess                                              bool
	balances                                                     []Allocation

	createCalls, resizeCalls, closeCalls int
}

func newFakeContractClient() *fakeContractClient {
	return &fakeContractClient{txHash: "0xDEADBEEF", receiptSuccess: true}
}

func (c *fakeContractClient) CreateChannel(ctx context.Context, tx CreateChannelTx) (string, error) {
	c.mu.Lock()
	c.createCalls++
	c.mu.Unlock()
	if c.createErr != nil {
		return "", c.createErr
	}
	return c.txHash, nil
}

func (c *fakeContractClient) ResizeChannel(ctx context.Context, tx ResizeChannelTx) (string, error) {
	c.mu.Lock()
	c.resizeCalls++
	c.mu.Unlock()
	if c.resizeErr != nil {
		return "", c.resizeErr
	}
	return c.txHash, nil
}

func (c *fakeContractClient) CloseChannel(ctx context.Context, tx CloseChannelTx) (string, error) {
	c.mu.Lock()
	c.closeCalls++
	c.mu.Unlock()
	if c.closeErr != nil {
		return "", c.closeErr
	}
	return c.txHash, nil
}

func (c *fakeContractClient) ReadBalances(ctx context.Context, channelId string) ([]Allocation, string, error) {
	if c.readErr != nil {
		return nil, "", c.readErr
	}
	token := ""
	if len(c.balances) > 0 {
		token = c.balances[0].Token
	}
	return c.balances, token, nil
}

func (c *fakeContractClient) WaitForReceipt(ctx context.Context, txHash string) (*ChainReceipt, error) {
	if c.waitErr != nil {
		return nil, c.waitErr
	}
	return &ChainReceipt{TxHash: txHash, Success: c.receiptSuccess}, nil
}

func (c *fakeContractClient) Healthy(ctx context.Context) error {
	return c.healthErr
}
