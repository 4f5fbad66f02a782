package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNextTransitions(t *testing.T) {
	cases := []struct {
		name  string
		state State
		in    Input
		want  State
	}{
		{"dial from disconnected", StateDisconnected, InputDial, StateConnecting},
		{"handshake ok", StateConnecting, InputHandshakeOK, StateConnected},
		{"handshake failure keeps connecting", StateConnecting, InputHandshakeFailed, StateConnecting},
		{"give up", StateConnecting, InputGiveUp, StateFailed},
		{"transport drop", StateConnected, InputTransportDrop, StateConnecting},
		{"retry from failed", StateFailed, InputDial, StateConnecting},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Next(tc.state, tc.in))
		})
	}
}

func TestNextShutdownWinsFromAnyState(t *testing.T) {
	for _, s := range []State{StateDisconnected, StateConnecting, StateConnected, StateFailed} {
		assert.Equal(t, StateDisconnected, Next(s, InputShutdown), s.String())
	}
}

func TestNextFailedIgnoresEverythingButDial(t *testing.T) {
	for _, in := range []Input{InputHandshakeOK, InputHandshakeFailed, InputTransportDrop, InputGiveUp} {
		assert.Equal(t, StateFailed, Next(StateFailed, in))
	}
}

func TestNextIgnoresIrrelevantInputs(t *testing.T) {
	assert.Equal(t, StateDisconnected, Next(StateDisconnected, InputTransportDrop))
	assert.Equal(t, StateConnected, Next(StateConnected, InputHandshakeOK))
}
