package yellow

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	"github.com/erc7824/yellow-provider/config"
	"github.com/erc7824/yellow-provider/internal/logger"
	"github.com/erc7824/yellow-provider/internal/metrics"
)

// defaultOperationTimeout bounds every sendAndWait issued by a channel-lifecycle Provider
// operation that has no more specific deadline of its own (§5 "every sendAndWait carries a
// deadline derived from configuration or operation-level override").
const defaultOperationTimeout = 20 * time.Second

// Provider is C5: the user-facing facade. It composes the Event Mapper (C1), the
// ClearNode Connection (C2), the Session Key Manager (C3) and the Channel State Manager
// (C4), owns the on-chain contract client, and exposes connect/disconnect, channel
// lifecycle operations, and executeIntent (§4.5).
type Provider struct {
	cfg config.YellowConfig

	transport  Transport
	session    *SessionKeyManager
	channels   *ChannelStateManager
	contract   ContractClient
	msgFactory MessageFactory
	log        logger.Logger

	emitter *emitter

	mu            sync.Mutex
	unsubscribeMH func()

	intentMu      sync.Mutex
	intentWaiters map[string]chan Message
}

// ProviderOption customizes Provider construction, primarily to inject fakes in tests in
// place of the real WebSocket transport and go-ethereum contract client (§9 "compose
// them; do not inherit").
type ProviderOption func(*providerOptions)

type providerOptions struct {
	transport  Transport
	contract   ContractClient
	msgFactory MessageFactory
	allowances []Allowance
}

// WithTransport overrides the default gorilla/websocket-backed Transport.
func WithTransport(t Transport) ProviderOption {
	return func(o *providerOptions) { o.transport = t }
}

// WithContractClient overrides the default go-ethereum-backed ContractClient.
func WithContractClient(c ContractClient) ProviderOption {
	return func(o *providerOptions) { o.contract = c }
}

// WithMessageFactory overrides the default ClearNode message factory.
func WithMessageFactory(f MessageFactory) ProviderOption {
	return func(o *providerOptions) { o.msgFactory = f }
}

// WithAllowances sets the token allowances carried in the auth_request handshake.
func WithAllowances(allowances []Allowance) ProviderOption {
	return func(o *providerOptions) { o.allowances = allowances }
}

// NewProvider validates cfg and signer, applies documented defaults, and constructs C1–C4
// plus the on-chain contract client. It returns a descriptive error (never a Fallback) on
// programmer-error conditions: invalid configuration, a nil signer, or a contract-client
// dial failure (§4.5 "Constructor ... throws a descriptive error if contract-client
// construction fails").
//
// txKey signs on-chain transactions submitted through the contract client. It is distinct
// from signer, which only ever signs the EIP-712 auth challenge on behalf of the owner
// wallet (§6 "Owner wallet interface"): the session key manager never touches txKey, and
// the contract client never touches the owner wallet's typed-data signature.
func NewProvider(ctx context.Context, cfg config.YellowConfig, signer Signer, txKey *ecdsa.PrivateKey, log logger.Logger, opts ...ProviderOption) (*Provider, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, logger.NewCodedError(logger.ErrConfigInvalid, "invalid yellow provider configuration", err)
	}
	if signer == nil {
		return nil, logger.NewCodedError(logger.ErrSignerRequired, "an owner wallet signer is required", nil)
	}
	if log == nil {
		log = logger.NewDefaultLogger()
	}

	var built providerOptions
	for _, opt := range opts {
		opt(&built)
	}

	p := &Provider{
		cfg:           cfg,
		log:           log,
		emitter:       newEmitter(),
		intentWaiters: make(map[string]chan Message),
	}

	if built.contract != nil {
		p.contract = built.contract
	} else {
		if txKey == nil {
			return nil, logger.NewCodedError(logger.ErrTxKeyRequired, "a transaction signing key is required when no ContractClient override is supplied", nil)
		}
		contract, err := NewEthereumContractClient(ctx, cfg.NodeRPCURL, cfg.CustodyAddress, cfg.AdjudicatorAddress, cfg.ChainID, txKey, log)
		if err != nil {
			return nil, logger.NewCodedError(logger.ErrContractClientFailed, "failed to construct on-chain contract client", err)
		}
		p.contract = contract
	}

	if built.msgFactory != nil {
		p.msgFactory = built.msgFactory
	} else {
		p.msgFactory = NewDefaultMessageFactory()
	}

	if built.transport != nil {
		p.transport = built.transport
	} else {
		p.transport = NewWSTransport(
			cfg.RelayURL,
			cfg.ReconnectInitialDelay,
			cfg.MaxReconnectAttempts,
			log,
			func() { p.emitter.emit(Event{Kind: EventConnected}) },
			func() { p.emitter.emit(Event{Kind: EventDisconnected}) },
		)
	}

	p.session = NewSessionKeyManager(p.transport, signer, time.Duration(cfg.SessionExpirySeconds)*time.Second, built.allowances, log)
	p.channels = NewChannelStateManager(p.contract)

	return p, nil
}

// On registers a handler for every emitted Event. Returns an unsubscribe function.
func (p *Provider) On(h Handler) (unsubscribe func()) {
	return p.emitter.On(h)
}

// Off removes every registered handler (does not close the Events() channel).
func (p *Provider) Off() {
	p.emitter.Off()
}

// Events returns the typed channel stream of emitted events (§9 Design Notes).
func (p *Provider) Events() <-chan Event {
	return p.emitter.Events()
}

// Connect opens the ClearNode connection and runs the session-key handshake (§4.5).
func (p *Provider) Connect(ctx context.Context) *Fallback {
	if err := p.transport.Connect(ctx); err != nil {
		if fb, ok := err.(*Fallback); ok {
			return fb
		}
		return newFallback(ReasonUnavailable, "failed to connect to relay", err)
	}

	p.mu.Lock()
	if p.unsubscribeMH != nil {
		p.unsubscribeMH()
	}
	p.unsubscribeMH = p.transport.OnMessage(p.handleMessage)
	p.mu.Unlock()

	if fb := p.session.EnsureAuthenticated(ctx); fb != nil {
		return fb
	}

	p.emitter.emit(Event{Kind: EventConnected})
	return nil
}

// Disconnect closes the connection and clears C3/C4 (§4.5).
func (p *Provider) Disconnect() *Fallback {
	p.mu.Lock()
	if p.unsubscribeMH != nil {
		p.unsubscribeMH()
		p.unsubscribeMH = nil
	}
	p.mu.Unlock()

	_ = p.transport.Disconnect()
	p.session.Invalidate()
	p.channels.Clear()
	p.emitter.Off()
	return nil
}

// ensureAuthenticated re-authenticates transparently at the start of every public
// operation that talks to the relay: never mid-operation, always at the boundary.
func (p *Provider) ensureAuthenticated(ctx context.Context) *Fallback {
	return p.session.EnsureAuthenticated(ctx)
}

// handleMessage dispatches an inbound relay notification not claimed by a SendAndWait
// waiter: channel-lifecycle events update C4 and emit channelChanged; intent-lifecycle
// events are mapped by C1 and forwarded to any in-flight executeIntent call plus emitted
// as intentStatus (§4.1, §4.5).
func (p *Provider) handleMessage(msg Message) {
	if channelLifecycleEvents[msg.Method] {
		p.handleChannelLifecycle(msg)
		return
	}
	if _, known := relayEventStatus[msg.Method]; known {
		p.handleIntentEvent(msg)
		return
	}
	p.log.Debug("unrecognized relay message", logger.String("method", msg.Method))
}

func lifecycleChannelStatus(event string) ChannelStatus {
	switch event {
	case "created":
		return ChannelInitial
	case "joined", "opened", "resized", "checkpointed":
		return ChannelActive
	case "challenged":
		return ChannelDispute
	case "closed":
		return ChannelFinal
	default:
		return ChannelUnknown
	}
}

func (p *Provider) handleChannelLifecycle(msg Message) {
	channelId, _ := msg.Params["channel_id"].(string)
	if channelId == "" {
		return
	}

	ch, ok := p.channels.Get(channelId)
	if !ok {
		return
	}

	from := ch.Status
	ch.Status = lifecycleChannelStatus(msg.Method)
	if ch.Status == ChannelUnknown {
		ch.Status = from
	}
	if err := p.channels.Update(ch); err != nil {
		p.log.Warn("dropping lifecycle update that would violate channel invariant", logger.String("channelId", channelId), logger.Error(err))
		return
	}

	metrics.ChannelTransitions.WithLabelValues(string(from), string(ch.Status)).Inc()
	cp := ch
	p.emitter.emit(Event{Kind: EventChannelChanged, Channel: &cp, Metadata: map[string]string{"event": msg.Method}})
}

func (p *Provider) handleIntentEvent(msg Message) {
	status, isTerminal := MapExecutionStatus(msg.Method)
	metrics.IntentStatusEvents.WithLabelValues(string(status)).Inc()

	p.emitter.emit(Event{
		Kind:     EventIntentStatus,
		Status:   status,
		Metadata: map[string]string{"event": msg.Method, "terminal": fmt.Sprintf("%t", isTerminal)},
	})

	requestId, _ := msg.Params["request_id"].(string)
	if requestId == "" {
		return
	}

	p.intentMu.Lock()
	ch, ok := p.intentWaiters[requestId]
	p.intentMu.Unlock()
	if ok {
		select {
		case ch <- msg:
		default:
		}
	}
}

func (p *Provider) registerIntentWaiter(requestId string) chan Message {
	ch := make(chan Message, 8)
	p.intentMu.Lock()
	p.intentWaiters[requestId] = ch
	p.intentMu.Unlock()
	return ch
}

func (p *Provider) unregisterIntentWaiter(requestId string) {
	p.intentMu.Lock()
	delete(p.intentWaiters, requestId)
	p.intentMu.Unlock()
}

func parseAmount(field, value string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(value, 10)
	if !ok || amount.Sign() < 0 {
		return nil, logger.NewCodedError(logger.ErrInvalidAmount, fmt.Sprintf("%s must be a non-negative base-10 integer string, got %q", field, value), nil)
	}
	return amount, nil
}

// CreateChannelParams is the input to CreateChannel (§4.5).
type CreateChannelParams struct {
	ChainId           int64
	Token             string
	Counterparty      string
	InitialAllocation string
}

// CreateChannel negotiates a new channel with the relay, then submits the on-chain
// creation transaction and caches the resulting Channel (§4.5). Fails with
// YELLOW_TX_FAILED (with revert reason when known), YELLOW_TIMEOUT, or YELLOW_UNAVAILABLE.
func (p *Provider) CreateChannel(ctx context.Context, params CreateChannelParams) (Channel, *Fallback) {
	if fb := p.ensureAuthenticated(ctx); fb != nil {
		return Channel{}, fb
	}

	amount, err := parseAmount("initialAllocation", params.InitialAllocation)
	if err != nil {
		return Channel{}, newFallback(ReasonMissingParams, err.Error(), err)
	}

	msg := p.msgFactory.CreateChannel(params.ChainId, params.Token, params.Counterparty, params.InitialAllocation)
	resp, sendErr := p.transport.SendAndWait(ctx, msg, defaultOperationTimeout)
	if sendErr != nil {
		return Channel{}, asFallback(sendErr, ReasonUnavailable)
	}

	channelId, _ := resp.Params["channel_id"].(string)
	if channelId == "" {
		return Channel{}, newFallback(ReasonTxFailed, "create_channel response missing channel_id", nil)
	}

	var idBytes [32]byte
	copy(idBytes[:], common.FromHex(channelId))

	metrics.ChannelTxSubmissions.WithLabelValues("create", "attempt").Inc()
	txHash, txErr := p.contract.CreateChannel(ctx, CreateChannelTx{
		ChannelId:         idBytes,
		Token:             common.HexToAddress(params.Token),
		Counterparty:      common.HexToAddress(params.Counterparty),
		Amount:            amount,
		ChallengeDuration: p.cfg.ChallengeDuration(),
	})
	if txErr != nil {
		return Channel{}, asFallback(txErr, ReasonTxFailed)
	}

	receipt, err := p.contract.WaitForReceipt(ctx, txHash)
	if err != nil {
		return Channel{}, asFallback(err, ReasonTxFailed)
	}
	if !receipt.Success {
		return Channel{}, newFallback(ReasonTxFailed, "create_channel transaction reverted", nil)
	}

	channel := Channel{
		Id:     channelId,
		Status: ChannelInitial,
		Allocations: []Allocation{
			{Destination: params.Counterparty, Token: params.Token, Amount: params.InitialAllocation},
		},
		Token:      params.Token,
		ChainId:    params.ChainId,
		LastTxHash: txHash,
	}
	if err := p.channels.Update(channel); err != nil {
		return Channel{}, newFallback(ReasonTxFailed, "created channel failed structural validation", err)
	}

	p.emitter.emit(Event{Kind: EventChannelChanged, Channel: &channel, Metadata: map[string]string{"event": "created"}})
	return channel, nil
}

// ResizeChannelParams is the input to ResizeChannel (§4.5). RelayFirst is an optional
// ordering switch: left nil it means true (relay negotiation precedes the on-chain
// transaction, mirroring CreateChannel's ordering); a caller that needs chain-first
// ordering sets it to false instead of using a second method.
type ResizeChannelParams struct {
	ChannelId  string
	Delta      string // may be negative
	RelayFirst *bool
}

func (p ResizeChannelParams) relayFirst() bool {
	if p.RelayFirst == nil {
		return true
	}
	return *p.RelayFirst
}

// ResizeChannel negotiates a channel resize with the relay and submits the on-chain
// resize transaction, ordered per ResizeChannelParams.RelayFirst (relay first by default,
// mirroring CreateChannel's ordering). Fails with INSUFFICIENT_BALANCE when the request
// exceeds the caller's unified on-chain balance.
func (p *Provider) ResizeChannel(ctx context.Context, params ResizeChannelParams) (Channel, *Fallback) {
	if fb := p.ensureAuthenticated(ctx); fb != nil {
		return Channel{}, fb
	}

	existing, ok := p.channels.Get(params.ChannelId)
	if !ok {
		return Channel{}, newFallback(ReasonUnavailable, fmt.Sprintf("unknown channel %q", params.ChannelId), nil)
	}
	if existing.Status == ChannelDispute {
		return Channel{}, newFallback(ReasonChannelDispute, "channel is in dispute", nil)
	}

	delta, err := parseAmount("delta", strings.TrimPrefix(params.Delta, "-"))
	if err != nil {
		return Channel{}, newFallback(ReasonMissingParams, err.Error(), err)
	}
	if strings.HasPrefix(params.Delta, "-") {
		delta = new(big.Int).Neg(delta)
	}

	onChainAllocations, _, readErr := p.contract.ReadBalances(ctx, params.ChannelId)
	if readErr != nil {
		return Channel{}, asFallback(readErr, ReasonUnavailable)
	}
	unified := big.NewInt(0)
	for _, a := range onChainAllocations {
		amt, _ := new(big.Int).SetString(a.Amount, 10)
		if amt != nil {
			unified.Add(unified, amt)
		}
	}
	if delta.Sign() > 0 && delta.Cmp(unified) > 0 {
		return Channel{}, newFallback(ReasonInsufficientBalance, "resize exceeds unified on-chain balance", nil)
	}

	msg := p.msgFactory.ResizeChannel(params.ChannelId, params.Delta)
	submitRelay := func() *Fallback {
		if _, sendErr := p.transport.SendAndWait(ctx, msg, defaultOperationTimeout); sendErr != nil {
			return asFallback(sendErr, ReasonUnavailable)
		}
		return nil
	}
	submitChain := func() (string, *Fallback) {
		metrics.ChannelTxSubmissions.WithLabelValues("resize", "attempt").Inc()
		var idBytes [32]byte
		copy(idBytes[:], common.FromHex(params.ChannelId))
		txHash, txErr := p.contract.ResizeChannel(ctx, ResizeChannelTx{ChannelId: idBytes, Delta: delta})
		if txErr != nil {
			return "", asFallback(txErr, ReasonTxFailed)
		}
		receipt, err := p.contract.WaitForReceipt(ctx, txHash)
		if err != nil {
			return "", asFallback(err, ReasonTxFailed)
		}
		if !receipt.Success {
			return "", newFallback(ReasonTxFailed, "resize_channel transaction reverted", nil)
		}
		return txHash, nil
	}

	var txHash string
	if params.relayFirst() {
		if fb := submitRelay(); fb != nil {
			return Channel{}, fb
		}
		hash, fb := submitChain()
		if fb != nil {
			return Channel{}, fb
		}
		txHash = hash
	} else {
		hash, fb := submitChain()
		if fb != nil {
			return Channel{}, fb
		}
		txHash = hash
		if fb := submitRelay(); fb != nil {
			return Channel{}, fb
		}
	}

	updated := existing.Clone()
	updated.LastTxHash = txHash
	for i := range updated.Allocations {
		amt, _ := new(big.Int).SetString(updated.Allocations[i].Amount, 10)
		if amt == nil {
			amt = big.NewInt(0)
		}
		amt.Add(amt, delta)
		updated.Allocations[i].Amount = amt.String()
	}
	if err := p.channels.Update(updated); err != nil {
		return Channel{}, newFallback(ReasonTxFailed, "resized channel failed structural validation", err)
	}

	p.emitter.emit(Event{Kind: EventChannelChanged, Channel: &updated, Metadata: map[string]string{"event": "resized"}})
	return updated, nil
}

// CloseChannelParams is the input to CloseChannel (§4.5).
type CloseChannelParams struct {
	ChannelId string
	Withdraw  bool
}

// CloseChannel refuses with YELLOW_CHANNEL_DISPUTE when the channel is in DISPUTE;
// otherwise it negotiates final state, submits the close transaction (optionally with a
// withdrawal leg), and returns the Channel with status FINAL (§4.5).
func (p *Provider) CloseChannel(ctx context.Context, params CloseChannelParams) (Channel, *Fallback) {
	if fb := p.ensureAuthenticated(ctx); fb != nil {
		return Channel{}, fb
	}

	existing, ok := p.channels.Get(params.ChannelId)
	if !ok {
		return Channel{}, newFallback(ReasonUnavailable, fmt.Sprintf("unknown channel %q", params.ChannelId), nil)
	}
	if existing.Status == ChannelDispute {
		return Channel{}, newFallback(ReasonChannelDispute, "cannot close a channel in dispute", nil)
	}

	msg := p.msgFactory.CloseChannel(params.ChannelId, params.Withdraw)
	if _, sendErr := p.transport.SendAndWait(ctx, msg, defaultOperationTimeout); sendErr != nil {
		return Channel{}, asFallback(sendErr, ReasonUnavailable)
	}

	operation := "close"
	if params.Withdraw {
		operation = "withdraw"
	}
	metrics.ChannelTxSubmissions.WithLabelValues(operation, "attempt").Inc()

	var idBytes [32]byte
	copy(idBytes[:], common.FromHex(params.ChannelId))
	txHash, txErr := p.contract.CloseChannel(ctx, CloseChannelTx{ChannelId: idBytes, Withdraw: params.Withdraw})
	if txErr != nil {
		return Channel{}, asFallback(txErr, ReasonTxFailed)
	}
	receipt, err := p.contract.WaitForReceipt(ctx, txHash)
	if err != nil {
		return Channel{}, asFallback(err, ReasonTxFailed)
	}
	if !receipt.Success {
		return Channel{}, newFallback(ReasonTxFailed, "close_channel transaction reverted", nil)
	}

	final := existing.Clone()
	final.Status = ChannelFinal
	final.LastTxHash = txHash
	if err := p.channels.Update(final); err != nil {
		return Channel{}, newFallback(ReasonTxFailed, "closed channel failed structural validation", err)
	}

	p.emitter.emit(Event{Kind: EventChannelChanged, Channel: &final, Metadata: map[string]string{"event": "closed"}})
	return final, nil
}

// TransferParams is the input to Transfer (§4.5).
type TransferParams struct {
	ChannelId string
	To        string
	Amount    string
}

// Transfer signs a transfer message with the session key and forwards it to the relay.
// Refuses with INSUFFICIENT_CHANNEL_BALANCE, without contacting the relay or the chain,
// when amount exceeds the sender's cached allocation (§4.5).
func (p *Provider) Transfer(ctx context.Context, params TransferParams) *Fallback {
	if fb := p.ensureAuthenticated(ctx); fb != nil {
		return fb
	}

	existing, ok := p.channels.Get(params.ChannelId)
	if !ok {
		return newFallback(ReasonUnavailable, fmt.Sprintf("unknown channel %q", params.ChannelId), nil)
	}

	amount, err := parseAmount("amount", params.Amount)
	if err != nil {
		return newFallback(ReasonMissingParams, err.Error(), err)
	}

	senderBalance := big.NewInt(0)
	for _, a := range existing.Allocations {
		amt, _ := new(big.Int).SetString(a.Amount, 10)
		if amt != nil {
			senderBalance.Add(senderBalance, amt)
		}
	}
	if amount.Cmp(senderBalance) > 0 {
		return newFallback(ReasonInsufficientChanBalance, "transfer amount exceeds sender allocation", nil)
	}

	session := p.session.Current()
	if session == nil {
		return newFallback(ReasonAuthFailed, "no authenticated session key", nil)
	}

	signature, signErr := signTransfer(session, params.ChannelId, params.To, params.Amount)
	if signErr != nil {
		return newFallback(ReasonAuthFailed, "failed to sign transfer with session key", signErr)
	}
	msg := p.msgFactory.Transfer(params.ChannelId, params.To, params.Amount, signature)
	if _, sendErr := p.transport.SendAndWait(ctx, msg, defaultOperationTimeout); sendErr != nil {
		return asFallback(sendErr, ReasonUnavailable)
	}

	return nil
}

// signTransfer signs a deterministic transfer digest with the session key's material.
// The session key's authority over transfers was delegated by the owner wallet during
// the auth handshake (§4.3); the signature itself is produced locally, without a further
// relay round-trip, matching the "off-chain signed transfer messages" responsibility of
// §1.
func signTransfer(session *SessionKey, channelId, to, amount string) ([]byte, error) {
	digest := []byte(fmt.Sprintf("%s|%s|%s|%s", channelId, to, amount, session.Address))
	priv, err := ethcrypto.ToECDSA(session.keyMaterial)
	if err != nil {
		return nil, fmt.Errorf("load session key: %w", err)
	}
	return ethcrypto.Sign(ethcrypto.Keccak256(digest), priv)
}

// GetChannels prefers the relay (get_ledger_balances). When the relay is disconnected or
// its answer cannot be used, it returns the channels held in the in-memory cache; it does
// not read on-chain (GetChannelState does).
func (p *Provider) GetChannels(ctx context.Context) ([]Channel, *Fallback) {
	if p.transport.State() == StateConnected {
		if fb := p.ensureAuthenticated(ctx); fb == nil {
			msg := p.msgFactory.GetLedgerBalances()
			resp, err := p.transport.SendAndWait(ctx, msg, defaultOperationTimeout)
			if err == nil {
				if channels, ok := parseLedgerChannels(resp); ok {
					for _, ch := range channels {
						_ = p.channels.Update(ch)
					}
					return channels, nil
				}
			}
		}
	}

	return p.channels.All(), nil
}

func parseLedgerChannels(resp *Message) ([]Channel, bool) {
	raw, ok := resp.Params["channels"].([]interface{})
	if !ok {
		return nil, false
	}
	out := make([]Channel, 0, len(raw))
	for _, entry := range raw {
		m, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}
		id, _ := m["id"].(string)
		token, _ := m["token"].(string)
		statusRaw, _ := m["status"].(string)
		if id == "" || token == "" {
			continue
		}
		out = append(out, Channel{
			Id:          id,
			Status:      MapChannelStatus(statusRaw),
			Token:       token,
			Allocations: []Allocation{{Destination: token, Token: token, Amount: "0"}},
		})
	}
	return out, len(out) > 0
}

// GetChannelState always reads on-chain via C4, regardless of relay connectivity (§4.5).
func (p *Provider) GetChannelState(ctx context.Context, channelId string) (Channel, *Fallback) {
	return p.channels.ReadOnChain(ctx, channelId)
}

// Healthy reports connectivity to the node RPC underlying the contract client, so a
// provider embedded in a long-running process has the same readiness check available.
func (p *Provider) Healthy(ctx context.Context) error {
	return p.contract.Healthy(ctx)
}

func asFallback(err error, fallbackReason ReasonCode) *Fallback {
	if fb, ok := err.(*Fallback); ok {
		return fb
	}
	return newFallback(fallbackReason, err.Error(), err)
}

// validateIntentParams runs the synchronous validation documented in §4.5: missing
// required fields and unsupported chains are rejected before any channel is created.
func validateIntentParams(params IntentParams, cfg config.YellowConfig) *Fallback {
	if params.SourceChain == "" || params.DestinationChain == "" || params.TokenIn == "" ||
		params.TokenOut == "" || params.AmountIn == "" || params.MinAmountOut == "" {
		return newFallback(ReasonMissingParams, "all IntentParams fields are required", nil)
	}
	if _, err := parseAmount("amountIn", params.AmountIn); err != nil {
		return newFallback(ReasonMissingParams, err.Error(), err)
	}
	if _, err := parseAmount("minAmountOut", params.MinAmountOut); err != nil {
		return newFallback(ReasonMissingParams, err.Error(), err)
	}
	if params.Deadline <= time.Now().Unix() {
		return newFallback(ReasonMissingParams, "deadline must be in the future", nil)
	}

	if _, ok := cfg.SupportedChains[params.SourceChain]; !ok {
		return newFallback(ReasonUnsupportedChain, fmt.Sprintf("source chain %q is not configured", params.SourceChain), nil)
	}
	if _, ok := cfg.SupportedChains[params.DestinationChain]; !ok {
		return newFallback(ReasonUnsupportedChain, fmt.Sprintf("destination chain %q is not configured", params.DestinationChain), nil)
	}
	return nil
}

// ExecuteIntent is the top-level operation (§1, §4.5): it finds or creates a channel for
// (tokenIn, sourceChain), routes the intent to a solver over that channel, and returns a
// normalized ClearingResult. Validation runs before any channel is created.
func (p *Provider) ExecuteIntent(ctx context.Context, params IntentParams) (*ClearingResult, *Fallback) {
	if fb := validateIntentParams(params, p.cfg); fb != nil {
		return nil, fb
	}
	if fb := p.ensureAuthenticated(ctx); fb != nil {
		return nil, fb
	}

	sourceChainId := p.cfg.SupportedChains[params.SourceChain]

	channel, ok := p.channels.FindOpen(params.TokenIn, sourceChainId)
	if !ok {
		if p.cfg.RelayCounterparty == "" {
			return nil, newFallback(ReasonMissingParams, "no open channel for tokenIn on sourceChain and no relay_counterparty is configured to auto-create one", nil)
		}
		created, fb := p.CreateChannel(ctx, CreateChannelParams{
			ChainId:           sourceChainId,
			Token:             params.TokenIn,
			Counterparty:      p.cfg.RelayCounterparty,
			InitialAllocation: params.AmountIn,
		})
		if fb != nil {
			return nil, fb
		}
		channel = created
	}

	requestId := uuid.NewString()
	msg := p.msgFactory.SubmitIntent(params)
	msg.Params["request_id"] = requestId
	msg.Params["channel_id"] = channel.Id

	waiterCh := p.registerIntentWaiter(requestId)
	defer p.unregisterIntentWaiter(requestId)

	disputeCh := make(chan struct{}, 1)
	unsubscribeDispute := p.watchChannelDispute(channel.Id, disputeCh)
	defer unsubscribeDispute()

	if err := p.transport.Send(ctx, msg); err != nil {
		return nil, asFallback(err, ReasonUnavailable)
	}
	metrics.IntentsSubmitted.Inc()

	deadline := time.Until(time.Unix(params.Deadline, 0))
	quote, fb := p.awaitQuote(ctx, channel.Id, waiterCh, disputeCh, minDuration(p.cfg.QuoteTimeout, deadline))
	if fb != nil {
		metrics.IntentOutcomes.WithLabelValues(classifyOutcome(fb)).Inc()
		return nil, fb
	}

	result, fb := p.awaitClearing(ctx, channel.Id, quote, waiterCh, disputeCh, deadline)
	metrics.IntentOutcomes.WithLabelValues(classifyOutcome(fb)).Inc()
	return result, fb
}

// watchChannelDispute subscribes to EventChannelChanged and signals disputeCh once if
// channelId transitions to DISPUTE, so awaitQuote/awaitClearing wake up even when the
// relay never sends a further intent-status message for the in-flight request — a
// `challenged` lifecycle notification only reaches handleChannelLifecycle, never
// intentWaiters (§4.5 Edge policies "abort the intent with YELLOW_CHANNEL_DISPUTE").
func (p *Provider) watchChannelDispute(channelId string, disputeCh chan struct{}) (unsubscribe func()) {
	return p.On(func(ev Event) {
		if ev.Kind != EventChannelChanged || ev.Channel == nil || ev.Channel.Id != channelId {
			return
		}
		if ev.Channel.Status != ChannelDispute {
			return
		}
		select {
		case disputeCh <- struct{}{}:
		default:
		}
	})
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

func classifyOutcome(fb *Fallback) string {
	if fb == nil {
		return "settled"
	}
	switch fb.Reason {
	case ReasonNoSolverQuotes:
		return "no_quotes"
	case ReasonChannelDispute:
		return "dispute"
	case ReasonUnavailable:
		return "unavailable"
	case ReasonTimeout:
		return "timeout"
	default:
		return "failed"
	}
}

// awaitQuote waits for the first acceptable solver quote, up to timeout, and aborts with
// YELLOW_CHANNEL_DISPUTE as soon as disputeCh fires, even absent any further intent-status
// message (§4.5 step 2-4).
func (p *Provider) awaitQuote(ctx context.Context, channelId string, waiterCh chan Message, disputeCh chan struct{}, timeout time.Duration) (YellowQuote, *Fallback) {
	start := time.Now()
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		select {
		case <-disputeCh:
			return YellowQuote{}, newFallback(ReasonChannelDispute, "channel entered dispute while awaiting quote", nil)
		case msg := <-waiterCh:
			status, _ := MapExecutionStatus(msg.Method)
			if status != StatusQuoted {
				continue
			}
			metrics.QuoteWaitDuration.Observe(time.Since(start).Seconds())
			return normalizeQuote(channelId, msg), nil
		case <-deadline.C:
			if p.transport.State() != StateConnected {
				return YellowQuote{}, newFallback(ReasonUnavailable, "relay unreachable before the quote timeout", nil)
			}
			return YellowQuote{}, newFallback(ReasonNoSolverQuotes, "no solver responded before the quote timeout", nil)
		case <-ctx.Done():
			return YellowQuote{}, newFallback(ReasonTimeout, ctx.Err().Error(), ctx.Err())
		}
	}
}

func normalizeQuote(channelId string, msg Message) YellowQuote {
	solverId, _ := msg.Params["solver_id"].(string)
	amountIn, _ := msg.Params["amount_in"].(string)
	amountOut, _ := msg.Params["amount_out"].(string)
	estimated := paramInt64(msg.Params, "estimated_time_seconds")
	timestamp := paramInt64(msg.Params, "timestamp")
	if timestamp == 0 {
		timestamp = time.Now().Unix()
	}
	return YellowQuote{
		SolverId:      solverId,
		ChannelId:     channelId,
		AmountIn:      amountIn,
		AmountOut:     amountOut,
		EstimatedTime: estimated,
		Timestamp:     timestamp,
	}
}

func paramInt64(params map[string]interface{}, key string) int64 {
	switch v := params[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return 0
	}
}

// awaitClearing waits for settlement confirmation after a quote has been accepted (the
// EXECUTING -> SETTLING -> SETTLED status events are emitted by handleIntentEvent as the
// relay's messages arrive, not by awaitClearing itself), and aborts the
// intent with YELLOW_CHANNEL_DISPUTE as soon as disputeCh fires — whether or not the relay
// ever sends a further intent-status message for this request (§4.5 step 5-6, Edge
// policies).
func (p *Provider) awaitClearing(ctx context.Context, channelId string, quote YellowQuote, waiterCh chan Message, disputeCh chan struct{}, deadline time.Duration) (*ClearingResult, *Fallback) {
	start := time.Now()
	timer := time.NewTimer(deadline)
	defer timer.Stop()

	for {
		select {
		case <-disputeCh:
			return nil, newFallback(ReasonChannelDispute, "channel entered dispute while awaiting settlement", nil)
		case msg := <-waiterCh:
			status, isTerminal := MapExecutionStatus(msg.Method)
			if status == StatusAborted || status == StatusExpired {
				return nil, newFallback(ReasonNoSolverQuotes, "intent aborted by relay", nil)
			}
			if status == StatusSettled {
				metrics.SettlementDuration.Observe(time.Since(start).Seconds())
				proof := SettlementProof{
					FinalStateHash: stringParam(msg.Params, "final_state_hash"),
					Signatures:     stringSliceParam(msg.Params, "signatures"),
					TxHash:         stringParam(msg.Params, "tx_hash"),
				}
				return &ClearingResult{
					MatchedAmountIn:  quote.AmountIn,
					MatchedAmountOut: quote.AmountOut,
					NetSettlement:    stringParam(msg.Params, "net_settlement"),
					Proof:            proof,
				}, nil
			}
			if isTerminal {
				return nil, newFallback(ReasonNoSolverQuotes, "intent ended without settlement", nil)
			}
		case <-timer.C:
			if p.transport.State() != StateConnected {
				return nil, newFallback(ReasonUnavailable, "relay unreachable before deadline", nil)
			}
			return nil, newFallback(ReasonTimeout, "settlement not confirmed before deadline", nil)
		case <-ctx.Done():
			return nil, newFallback(ReasonTimeout, ctx.Err().Error(), ctx.Err())
		}
	}
}

func stringParam(params map[string]interface{}, key string) string {
	s, _ := params[key].(string)
	return s
}

func stringSliceParam(params map[string]interface{}, key string) []string {
	raw, ok := params[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
