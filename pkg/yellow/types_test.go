package yellow

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelValidate(t *testing.T) {
	valid := sampleChannel("0xCH1", ChannelActive)
	assert.NoError(t, valid.Validate())

	missingId := valid
	missingId.Id = ""
	assert.Error(t, missingId.Validate())

	noAllocations := valid
	noAllocations.Allocations = nil
	assert.Error(t, noAllocations.Validate())

	missingToken := valid
	missingToken.Token = ""
	assert.Error(t, missingToken.Validate())

	badStatus := valid
	badStatus.Status = "bogus"
	assert.Error(t, badStatus.Validate())
}

func TestChannelCloneIsDeep(t *testing.T) {
	original := sampleChannel("0xCH1", ChannelActive)
	clone := original.Clone()
	clone.Allocations[0].Amount = "0"

	assert.Equal(t, "1000000", original.Allocations[0].Amount)
}

func TestChannelJSONRoundTrip(t *testing.T) {
	original := sampleChannel("0xCH1", ChannelActive)
	original.LastTxHash = "0xTX1"

	data, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded Channel
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, original, decoded)
}

func TestYellowQuoteJSONRoundTrip(t *testing.T) {
	original := YellowQuote{
		SolverId:      "solver-1",
		ChannelId:     "0xCH1",
		AmountIn:      "1000000",
		AmountOut:     "990000",
		EstimatedTime: 30,
		Timestamp:     1_700_000_000,
	}

	data, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded YellowQuote
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, original, decoded)
}

func TestFallbackErrorAndUnwrap(t *testing.T) {
	cause := errors.New("boom")
	fb := newFallback(ReasonTxFailed, "transaction reverted", cause)

	assert.Contains(t, fb.Error(), "YELLOW_TX_FAILED")
	assert.Contains(t, fb.Error(), "transaction reverted")
	assert.ErrorIs(t, fb, cause)

	noCause := newFallback(ReasonTimeout, "deadline exceeded", nil)
	assert.Nil(t, noCause.Unwrap())
}

func TestExecutionStatusIsTerminal(t *testing.T) {
	assert.True(t, StatusSettled.IsTerminal())
	assert.True(t, StatusAborted.IsTerminal())
	assert.True(t, StatusExpired.IsTerminal())
	assert.False(t, StatusQuoted.IsTerminal())
	assert.False(t, StatusExecuting.IsTerminal())
	assert.False(t, StatusSettling.IsTerminal())
}
