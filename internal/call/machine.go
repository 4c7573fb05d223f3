// Package call implements the per-client call state machine: one side of a
// WebRTC call as driven by relay signaling. Each peer runs its own machine;
// the two are synchronized only by best-effort message passing, so a lost
// signal can leave them disagreeing until a manual hangup.
package call

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle position of the local call leg.
type State int

const (
	// StateIdle means no call is in progress.
	StateIdle State = iota
	// StateRingingOut means we sent an offer and await an answer.
	StateRingingOut
	// StateRingingIn means we received an offer and await a local decision.
	StateRingingIn
	// StateActive means media is flowing.
	StateActive
)

// Reject reason codes carried on call:reject.
const (
	ReasonDeclined    = "declined"
	ReasonUnsupported = "unsupported"
	ReasonTimeout     = "timeout"
)

const (
	// DefaultRingTimeout bounds how long an outgoing call rings.
	DefaultRingTimeout = 30 * time.Second
	// DefaultQualityInterval is the period of quality-metric reports.
	DefaultQualityInterval = 10 * time.Second
)

var (
	// ErrBusy is returned when an operation requires the idle state.
	ErrBusy = errors.New("call already in progress")
	// ErrNoCall is returned when an operation requires an in-progress call.
	ErrNoCall = errors.New("no call in progress")
	// ErrWrongState is returned when the machine cannot take the transition.
	ErrWrongState = errors.New("invalid call state for operation")
)

// SignalType names an outbound signaling message produced by the machine.
type SignalType int

const (
	// SignalOffer carries the initial SDP offer to the callee.
	SignalOffer SignalType = iota
	// SignalAccept carries the SDP answer back to the caller.
	SignalAccept
	// SignalReject carries a rejection with a reason code.
	SignalReject
	// SignalEnd carries a hangup.
	SignalEnd
	// SignalQuality carries periodic quality metrics.
	SignalQuality
)

// Signal is an outbound signaling message for the transport to deliver.
type Signal struct {
	Type    SignalType
	CallID  string
	PeerID  int64
	Kind    string // "audio" or "video"
	Reason  string
	Payload json.RawMessage
}

// Config tunes the machine's timers. Zero values take the defaults;
// tests shrink them.
type Config struct {
	RingTimeout     time.Duration
	QualityInterval time.Duration

	// Metrics gathers a quality report for periodic sending. Nil disables
	// quality reporting.
	Metrics func(callID string) json.RawMessage
}

// Machine is one client's call state. Safe for concurrent use: the
// transport read loop and the local UI both drive it.
type Machine struct {
	cfg  Config
	send func(Signal)

	mu          sync.Mutex
	state       State
	callID      string
	peerID      int64
	kind        string
	ringTimer   *time.Timer
	qualityStop chan struct{}
}

// NewMachine constructs an idle machine. send delivers outbound signals to
// the relay and must not block.
func NewMachine(cfg Config, send func(Signal)) *Machine {
	if cfg.RingTimeout <= 0 {
		cfg.RingTimeout = DefaultRingTimeout
	}
	if cfg.QualityInterval <= 0 {
		cfg.QualityInterval = DefaultQualityInterval
	}
	return &Machine{cfg: cfg, send: send, state: StateIdle}
}

// State returns the current lifecycle state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// CallID returns the id of the in-progress call, or empty when idle.
func (m *Machine) CallID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callID
}

// Start initiates an outgoing call: Idle -> RingingOut. The generated call
// id is returned; if no answer arrives before the ring timeout the machine
// silently returns to idle.
func (m *Machine) Start(peerID int64, kind string, offer json.RawMessage) (string, error) {
	m.mu.Lock()
	if m.state != StateIdle {
		m.mu.Unlock()
		return "", ErrBusy
	}

	callID := uuid.New().String()
	m.state = StateRingingOut
	m.callID = callID
	m.peerID = peerID
	m.kind = kind
	m.ringTimer = time.AfterFunc(m.cfg.RingTimeout, func() { m.ringTimeout(callID) })
	m.mu.Unlock()

	m.send(Signal{Type: SignalOffer, CallID: callID, PeerID: peerID, Kind: kind, Payload: offer})
	return callID, nil
}

// ringTimeout fires when an outgoing call is never answered. The state
// returns to idle with no further signals sent; the callee's own UI stops
// ringing on its side.
func (m *Machine) ringTimeout(callID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateRingingOut || m.callID != callID {
		return
	}
	m.resetLocked()
}

// HandleIncoming surfaces a received offer: Idle -> RingingIn. When a call
// is already in progress the offer is rejected back to the caller with the
// declined reason code.
func (m *Machine) HandleIncoming(callID string, fromID int64, kind string) error {
	m.mu.Lock()
	if m.state != StateIdle {
		m.mu.Unlock()
		m.send(Signal{Type: SignalReject, CallID: callID, PeerID: fromID, Reason: ReasonDeclined})
		return ErrBusy
	}
	m.state = StateRingingIn
	m.callID = callID
	m.peerID = fromID
	m.kind = kind
	m.mu.Unlock()
	return nil
}

// Accept answers an incoming call: RingingIn -> Active.
func (m *Machine) Accept(answer json.RawMessage) error {
	m.mu.Lock()
	if m.state != StateRingingIn {
		m.mu.Unlock()
		return ErrWrongState
	}
	m.state = StateActive
	callID, peerID, kind := m.callID, m.peerID, m.kind
	m.startQualityLocked()
	m.mu.Unlock()

	m.send(Signal{Type: SignalAccept, CallID: callID, PeerID: peerID, Kind: kind, Payload: answer})
	return nil
}

// Decline rejects an incoming call: RingingIn -> Idle.
func (m *Machine) Decline(reason string) error {
	m.mu.Lock()
	if m.state != StateRingingIn {
		m.mu.Unlock()
		return ErrWrongState
	}
	callID, peerID := m.callID, m.peerID
	m.resetLocked()
	m.mu.Unlock()

	if reason == "" {
		reason = ReasonDeclined
	}
	m.send(Signal{Type: SignalReject, CallID: callID, PeerID: peerID, Reason: reason})
	return nil
}

// HandleAccepted reacts to the callee accepting: RingingOut -> Active.
func (m *Machine) HandleAccepted(callID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateRingingOut || m.callID != callID {
		return ErrWrongState
	}
	m.state = StateActive
	m.stopRingTimerLocked()
	m.startQualityLocked()
	return nil
}

// HandleRejected reacts to the callee rejecting: RingingOut -> Idle.
func (m *Machine) HandleRejected(callID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateRingingOut || m.callID != callID {
		return ErrWrongState
	}
	m.resetLocked()
	return nil
}

// HandleEnded reacts to the peer hanging up: any state -> Idle.
func (m *Machine) HandleEnded(callID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.callID != callID {
		return
	}
	m.resetLocked()
}

// Hangup ends the call locally and notifies the peer.
func (m *Machine) Hangup() error {
	m.mu.Lock()
	if m.state == StateIdle {
		m.mu.Unlock()
		return ErrNoCall
	}
	callID, peerID := m.callID, m.peerID
	m.resetLocked()
	m.mu.Unlock()

	m.send(Signal{Type: SignalEnd, CallID: callID, PeerID: peerID})
	return nil
}

// Close releases timers. The machine is unusable afterwards.
func (m *Machine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetLocked()
}

// startQualityLocked begins periodic quality reporting. Caller holds mu.
func (m *Machine) startQualityLocked() {
	if m.cfg.Metrics == nil {
		return
	}
	stop := make(chan struct{})
	m.qualityStop = stop
	callID, peerID := m.callID, m.peerID

	go func() {
		ticker := time.NewTicker(m.cfg.QualityInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.send(Signal{
					Type:    SignalQuality,
					CallID:  callID,
					PeerID:  peerID,
					Payload: m.cfg.Metrics(callID),
				})
			case <-stop:
				return
			}
		}
	}()
}

func (m *Machine) stopRingTimerLocked() {
	if m.ringTimer != nil {
		m.ringTimer.Stop()
		m.ringTimer = nil
	}
}

// resetLocked returns the machine to idle. Caller holds mu.
func (m *Machine) resetLocked() {
	m.stopRingTimerLocked()
	if m.qualityStop != nil {
		close(m.qualityStop)
		m.qualityStop = nil
	}
	m.state = StateIdle
	m.callID = ""
	m.peerID = 0
	m.kind = ""
}
