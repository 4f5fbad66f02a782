package client

// State is the connection lifecycle of one conversation view.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Input is an event fed to the transition function.
type Input int

const (
	InputDial Input = iota
	InputHandshakeOK
	InputHandshakeFailed
	InputTransportDrop
	InputGiveUp
	InputShutdown
)

// Next is the pure transition function for the connection state machine.
// It has no timers and no side effects, so the reconnect behavior is
// testable without a network.
func Next(state State, in Input) State {
	if in == InputShutdown {
		// View unmount wins from any state.
		return StateDisconnected
	}

	switch state {
	case StateDisconnected:
		if in == InputDial {
			return StateConnecting
		}
	case StateConnecting:
		switch in {
		case InputHandshakeOK:
			return StateConnected
		case InputHandshakeFailed:
			return StateConnecting
		case InputGiveUp:
			return StateFailed
		}
	case StateConnected:
		if in == InputTransportDrop {
			return StateConnecting
		}
	case StateFailed:
		// Failed is terminal until an explicit retry.
		if in == InputDial {
			return StateConnecting
		}
	}
	return state
}
