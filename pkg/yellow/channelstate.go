package yellow

import (
	"context"
	"sync"

	"github.com/erc7824/yellow-provider/internal/metrics"
)

// ChannelStateManager is C4: an in-memory cache of channel states keyed by channel id,
// falling back to on-chain reads when the relay is unreachable (§4.4). The cache is
// authoritative for "what the relay has told us"; on-chain reads are authoritative for
// finality.
type ChannelStateManager struct {
	mu       sync.RWMutex
	channels map[string]Channel

	contract ContractClient
}

// NewChannelStateManager constructs an empty cache backed by contract for on-chain
// fallback reads.
func NewChannelStateManager(contract ContractClient) *ChannelStateManager {
	return &ChannelStateManager{
		channels: make(map[string]Channel),
		contract: contract,
	}
}

// Update replaces or inserts a Channel, preserving the structural invariant of §3.
func (m *ChannelStateManager) Update(ch Channel) error {
	if err := ch.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	_, existed := m.channels[ch.Id]
	m.channels[ch.Id] = ch.Clone()
	m.mu.Unlock()

	metrics.ChannelsCached.Set(float64(m.count()))
	if existed {
		metrics.ChannelTransitions.WithLabelValues("*", string(ch.Status)).Inc()
	}
	return nil
}

func (m *ChannelStateManager) count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.channels)
}

// Get returns a copy of the cached Channel for id, or false if absent.
func (m *ChannelStateManager) Get(id string) (Channel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ch, ok := m.channels[id]
	if !ok {
		return Channel{}, false
	}
	return ch.Clone(), true
}

// All returns copies of every cached Channel.
func (m *ChannelStateManager) All() []Channel {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Channel, 0, len(m.channels))
	for _, ch := range m.channels {
		out = append(out, ch.Clone())
	}
	return out
}

// FindOpen returns the first cached Channel matching (token, chainId) whose status is
// ACTIVE, or false if none exists (§4.4).
func (m *ChannelStateManager) FindOpen(token string, chainId int64) (Channel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, ch := range m.channels {
		if ch.Token == token && ch.ChainId == chainId && ch.Status == ChannelActive {
			return ch.Clone(), true
		}
	}
	return Channel{}, false
}

// ReadOnChain reconstructs a minimal Channel by reading balances from the custody
// contract via the node RPC, used as a fallback when the relay is unreachable (§4.4).
func (m *ChannelStateManager) ReadOnChain(ctx context.Context, channelId string) (Channel, *Fallback) {
	allocations, token, err := m.contract.ReadBalances(ctx, channelId)
	if err != nil {
		if fb, ok := err.(*Fallback); ok {
			return Channel{}, fb
		}
		return Channel{}, newFallback(ReasonUnavailable, "on-chain read failed", err)
	}
	if len(allocations) == 0 {
		return Channel{}, newFallback(ReasonUnavailable, "on-chain read returned no allocations", nil)
	}
	if token == "" {
		token = allocations[0].Token
	}

	ch := Channel{
		Id:          channelId,
		Status:      ChannelActive,
		Allocations: allocations,
		Token:       token,
	}
	if err := ch.Validate(); err != nil {
		return Channel{}, newFallback(ReasonUnavailable, "on-chain read produced an invalid channel", err)
	}
	return ch, nil
}

// Clear drops the entire cache (used on disconnect, §4.4).
func (m *ChannelStateManager) Clear() {
	m.mu.Lock()
	m.channels = make(map[string]Channel)
	m.mu.Unlock()
	metrics.ChannelsCached.Set(0)
}
