package yellow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleChannel(id string, status ChannelStatus) Channel {
	return Channel{
		Id:          id,
		Status:      status,
		Allocations: []Allocation{{Destination: "0xBob", Token: "0xUSDC", Amount: "1000000"}},
		Token:       "0xUSDC",
		ChainId:     11155111,
	}
}

func TestChannelStateManagerUpdateRejectsInvalidChannel(t *testing.T) {
	mgr := NewChannelStateManager(newFakeContractClient())
	err := mgr.Update(Channel{Status: ChannelActive})
	assert.Error(t, err)

	_, ok := mgr.Get("")
	assert.False(t, ok)
}

func TestChannelStateManagerUpdateGetAll(t *testing.T) {
	mgr := NewChannelStateManager(newFakeContractClient())
	ch := sampleChannel("0xCH1", ChannelActive)

	require.NoError(t, mgr.Update(ch))

	got, ok := mgr.Get("0xCH1")
	require.True(t, ok)
	assert.Equal(t, ch.Id, got.Id)
	assert.Equal(t, ch.Status, got.Status)

	all := mgr.All()
	require.Len(t, all, 1)
}

func TestChannelStateManagerGetReturnsIndependentCopy(t *testing.T) {
	mgr := NewChannelStateManager(newFakeContractClient())
	require.NoError(t, mgr.Update(sampleChannel("0xCH1", ChannelActive)))

	got, _ := mgr.Get("0xCH1")
	got.Allocations[0].Amount = "999999999"

	again, _ := mgr.Get("0xCH1")
	assert.Equal(t, "1000000", again.Allocations[0].Amount)
}

func TestChannelStateManagerFindOpenOnlyMatchesActive(t *testing.T) {
	mgr := NewChannelStateManager(newFakeContractClient())
	require.NoError(t, mgr.Update(sampleChannel("0xCH1", ChannelInitial)))
	require.NoError(t, mgr.Update(sampleChannel("0xCH2", ChannelActive)))

	_, ok := mgr.FindOpen("0xUSDC", 11155111)
	require.True(t, ok)

	found, _ := mgr.FindOpen("0xUSDC", 11155111)
	assert.Equal(t, "0xCH2", found.Id)

	_, ok = mgr.FindOpen("0xOTHER", 11155111)
	assert.False(t, ok)
}

func TestChannelStateManagerClear(t *testing.T) {
	mgr := NewChannelStateManager(newFakeContractClient())
	require.NoError(t, mgr.Update(sampleChannel("0xCH1", ChannelActive)))

	mgr.Clear()
	assert.Empty(t, mgr.All())
}

func TestChannelStateManagerReadOnChainFallback(t *testing.T) {
	contract := newFakeContractClient()
	contract.balances = []Allocation{{Destination: "0xBob", Token: "0xUSDC", Amount: "500000"}}
	mgr := NewChannelStateManager(contract)

	ch, fb := mgr.ReadOnChain(context.Background(), "0xCH1")
	require.Nil(t, fb)
	assert.Equal(t, "0xCH1", ch.Id)
	assert.Equal(t, ChannelActive, ch.Status)
	assert.Equal(t, "0xUSDC", ch.Token)
}

func TestChannelStateManagerReadOnChainPropagatesFailure(t *testing.T) {
	contract := newFakeContractClient()
	contract.readErr = assert.AnError
	mgr := NewChannelStateManager(contract)

	_, fb := mgr.ReadOnChain(context.Background(), "0xCH1")
	require.NotNil(t, fb)
	assert.Equal(t, ReasonUnavailable, fb.Reason)
}
