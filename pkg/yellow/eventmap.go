package yellow

// relayEventStatus maps a relay event name to its normalized execution status (§4.1).
var relayEventStatus = map[string]ExecutionStatus{
	"quote_accepted":        StatusQuoted,
	"solver_quoted":         StatusQuoted,
	"execution_started":     StatusExecuting,
	"routing_started":       StatusExecuting,
	"settlement_submitted":  StatusSettling,
	"settled":               StatusSettled,
	"settlement_finalized":  StatusSettled,
	"failed":                StatusAborted,
	"canceled":              StatusAborted,
	"expired":               StatusExpired,
}

// channelLifecycleEvents carries channel metadata rather than intent-execution status;
// these map to EXECUTING as a conservative non-terminal default (they describe channel
// mutation, not intent progress) while still being recognized names.
var channelLifecycleEvents = map[string]bool{
	"created":      true,
	"joined":       true,
	"opened":       true,
	"challenged":   true,
	"checkpointed": true,
	"resized":      true,
	"closed":       true,
}

// rawChannelStatus maps a wire channel status string to the normalized enum.
var rawChannelStatus = map[string]ChannelStatus{
	"void":     ChannelVoid,
	"initial":  ChannelInitial,
	"active":   ChannelActive,
	"dispute":  ChannelDispute,
	"final":    ChannelFinal,
}

// rawStateIntent maps a wire state-intent string to the normalized enum (Glossary).
var rawStateIntent = map[string]StateIntent{
	"initialize": StateInitialize,
	"operate":    StateOperate,
	"resize":     StateResize,
	"finalize":   StateFinalize,
}

// MapExecutionStatus translates a relay event name into a normalized execution status
// with its terminal flag (C1). Pure and side-effect free: unrecognized names map to
// an unknown, non-terminal status — "prefer conservative" per §4.1.
func MapExecutionStatus(eventName string) (status ExecutionStatus, isTerminal bool) {
	if s, ok := relayEventStatus[eventName]; ok {
		return s, s.IsTerminal()
	}
	if channelLifecycleEvents[eventName] {
		return StatusExecuting, false
	}
	return StatusUnknown, false
}

// MapChannelStatus translates a raw relay channel-status string into the normalized
// ChannelStatus enum (C1). Unrecognized strings map to ChannelUnknown.
func MapChannelStatus(raw string) ChannelStatus {
	if s, ok := rawChannelStatus[raw]; ok {
		return s
	}
	return ChannelUnknown
}

// MapStateIntent translates a raw relay state-intent string into the normalized
// StateIntent enum (C1, Glossary). Unrecognized strings default to OPERATE, the most
// conservative non-lifecycle-altering classification.
func MapStateIntent(raw string) StateIntent {
	if s, ok := rawStateIntent[raw]; ok {
		return s
	}
	return StateOperate
}
