package yellow

import "github.com/google/uuid"

// MessageFactory provides canonical constructors for every outbound ClearNode method
// (§6: "this core only requires that an external message-factory library provide
// canonical constructors and a typed-data signer binding"). Keeping this behind an
// interface means the exact wire shape of each payload is the relay's concern, not the
// provider's — a deployment against a different ClearNode build supplies its own factory.
type MessageFactory interface {
	CreateChannel(chainId int64, token, counterparty, initialAllocation string) Message
	ResizeChannel(channelId, delta string) Message
	CloseChannel(channelId string, withdraw bool) Message
	Transfer(channelId, to, amount string, signature []byte) Message
	SubmitIntent(params IntentParams) Message
	GetLedgerBalances() Message
}

// DefaultMessageFactory builds the payload shapes documented in §6, grounded on the
// other_examples ClearNode client's request envelopes.
type DefaultMessageFactory struct{}

func NewDefaultMessageFactory() DefaultMessageFactory { return DefaultMessageFactory{} }

func (DefaultMessageFactory) CreateChannel(chainId int64, token, counterparty, initialAllocation string) Message {
	return Message{
		Method: "create_channel",
		Params: map[string]interface{}{
			"chain_id":           chainId,
			"token":              token,
			"counterparty":       counterparty,
			"initial_allocation": initialAllocation,
			"request_id":         uuid.NewString(),
		},
	}
}

func (DefaultMessageFactory) ResizeChannel(channelId, delta string) Message {
	return Message{
		Method: "resize_channel",
		Params: map[string]interface{}{
			"channel_id": channelId,
			"delta":      delta,
			"request_id": uuid.NewString(),
		},
	}
}

func (DefaultMessageFactory) CloseChannel(channelId string, withdraw bool) Message {
	return Message{
		Method: "close_channel",
		Params: map[string]interface{}{
			"channel_id": channelId,
			"withdraw":   withdraw,
			"request_id": uuid.NewString(),
		},
	}
}

func (DefaultMessageFactory) Transfer(channelId, to, amount string, signature []byte) Message {
	return Message{
		Method: "transfer",
		Params: map[string]interface{}{
			"channel_id": channelId,
			"to":         to,
			"amount":     amount,
			"signature":  signature,
			"request_id": uuid.NewString(),
		},
	}
}

func (DefaultMessageFactory) SubmitIntent(params IntentParams) Message {
	return Message{
		Method: "submit_intent",
		Params: map[string]interface{}{
			"source_chain":      params.SourceChain,
			"destination_chain": params.DestinationChain,
			"token_in":          params.TokenIn,
			"token_out":         params.TokenOut,
			"amount_in":         params.AmountIn,
			"min_amount_out":    params.MinAmountOut,
			"deadline":          params.Deadline,
			"request_id":        uuid.NewString(),
		},
	}
}

func (DefaultMessageFactory) GetLedgerBalances() Message {
	return Message{
		Method: "get_ledger_balances",
		Params: map[string]interface{}{
			"request_id": uuid.NewString(),
		},
	}
}
