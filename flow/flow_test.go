package flow

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xtaci/ntsock"
)

func TestShutdownStateProgressesMonotonically(t *testing.T) {
	s := NewShutdownState()
	require.Equal(t, ShutdownOpen, s.Phase())

	require.NoError(t, s.Initiate(ShutdownOriginLocal))
	require.Equal(t, ShutdownInitiated, s.Phase())
	require.Equal(t, ShutdownOriginLocal, s.Origin())

	require.ErrorIs(t, s.Initiate(ShutdownOriginRemote), ntsock.ErrInProgress)
	require.Equal(t, ShutdownOriginLocal, s.Origin(), "origin must not change once set")

	require.NoError(t, s.CloseSend())
	require.Equal(t, ShutdownSendClosed, s.Phase())

	require.NoError(t, s.CloseReceive())
	require.Equal(t, ShutdownReceiveClosed, s.Phase())
}

func TestShutdownCompleteFiresExactlyOnce(t *testing.T) {
	s := NewShutdownState()
	require.False(t, s.Complete(), "must not complete before both directions close")

	s.CloseSend()
	s.CloseReceive()

	fired := 0
	for i := 0; i < 5; i++ {
		if s.Complete() {
			fired++
		}
	}
	require.Equal(t, 1, fired)
	require.Equal(t, ShutdownComplete, s.Phase())

	select {
	case <-s.Done():
	default:
		t.Fatal("Done channel should be closed after Complete")
	}
}

func TestShutdownCloseAfterCompleteIsRejected(t *testing.T) {
	s := NewShutdownState()
	s.CloseSend()
	s.CloseReceive()
	s.Complete()

	require.ErrorIs(t, s.CloseSend(), ntsock.ErrClosed)
	require.ErrorIs(t, s.CloseReceive(), ntsock.ErrClosed)
}

func TestDetachStateCompletesOnce(t *testing.T) {
	d := NewDetachState()
	require.Equal(t, DetachAttached, d.Phase())
	require.False(t, d.Complete())

	require.NoError(t, d.BeginDetach())
	require.Equal(t, DetachDetaching, d.Phase())
	require.ErrorIs(t, d.BeginDetach(), ntsock.ErrInProgress)

	fired := 0
	for i := 0; i < 3; i++ {
		if d.Complete() {
			fired++
		}
	}
	require.Equal(t, 1, fired)
	require.Equal(t, DetachDetached, d.Phase())
}

func TestFlowControlStateRelaxationIsPerDirection(t *testing.T) {
	f := NewFlowControlState()
	require.False(t, f.SendRelaxed())
	require.False(t, f.ReceiveRelaxed())

	f.RelaxSend()
	require.True(t, f.SendRelaxed())
	require.False(t, f.ReceiveRelaxed())
}

func TestFlowControlStateModeGatesDraining(t *testing.T) {
	f := NewFlowControlState()
	require.True(t, f.ShouldDrainSendQueue(), "gentle is the default mode")

	f.SetMode(ShutdownModeImmediate)
	require.False(t, f.ShouldDrainSendQueue())
	require.False(t, f.ShouldDrainReceiveQueue())
}
