// Package session implements the stop-and-wait reliable tunnel protocol
// (§3, §4.3): SYN/MSG/FIN/PING framing, sequence/ack bookkeeping, and the
// single-outstanding-packet retransmission policy. A Session never runs on
// more than one goroutine; every method here is called from the reactor
// goroutine via Engine.
package session

import (
	"crypto/rand"
	"encoding/binary"
	"time"

	"duskcat/internal/packet"
	"duskcat/internal/seq"
)

// State is a Session's position in the state machine described in §3/§4.3.
type State int

const (
	StateNew State = iota
	StateEstablished
	StateShutdown
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateEstablished:
		return "ESTABLISHED"
	case StateShutdown:
		return "SHUTDOWN"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// DefaultRetryBudget is the number of retransmissions allowed before a
// session is forcibly closed (§4.3).
const DefaultRetryBudget = 20

// DefaultRTO is the retransmission timeout every session starts with
// (§4.3); the engine does not adjust it from measured round trips.
const DefaultRTO = 1000 * time.Millisecond

// HeartbeatInterval is how often an idle session with nothing in flight
// emits a zero-length MSG to pull down queued server data (§4.3).
const HeartbeatInterval = 1 * time.Second

// Options holds the values fixed at session creation (§3).
type Options struct {
	Name     string
	Download string
	Chunk    int
	// SYNOptions is the raw bit field sent in the SYN packet (name/command
	// bits); it is derived from Name and the command-framing flag.
	SYNOptions uint16
}

// inFlight tracks the single outstanding, unacknowledged packet (§3
// invariant: at most one unacknowledged packet at a time).
type inFlight struct {
	packetID   uint16
	pktType    packet.Type
	seq        uint16
	dataLen    int
	deadline   time.Time
	retryCount int
}

// Session is the reliable byte-stream state owned by the session engine.
type Session struct {
	SessionID uint16
	State     State
	MySeq     uint16
	TheirSeq  uint16

	OutgoingBuffer []byte
	IncomingBuffer []byte

	InFlight *inFlight

	Options Options

	RetryBudget int
	RTO         time.Duration
}

// New creates a NEW session with a random session id and initial sequence
// number, per §3's "Session" and "Lifecycles" description.
func New(opts Options) (*Session, error) {
	sessionID, err := randomUint16()
	if err != nil {
		return nil, err
	}
	initialSeq, err := randomUint16()
	if err != nil {
		return nil, err
	}

	return &Session{
		SessionID:   sessionID,
		State:       StateNew,
		MySeq:       initialSeq,
		Options:     opts,
		RetryBudget: DefaultRetryBudget,
		RTO:         DefaultRTO,
	}, nil
}

func randomUint16() (uint16, error) {
	var b [2]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b[:]), nil
}

// QueueOutgoing appends locally-produced bytes to the unacknowledged send
// buffer (data_out, §3/§4.3).
func (s *Session) QueueOutgoing(data []byte) {
	s.OutgoingBuffer = append(s.OutgoingBuffer, data...)
}

// AcceptSYNReply transitions a NEW session to ESTABLISHED on receipt of the
// server's SYN reply, recording its initial sequence number as TheirSeq.
func (s *Session) AcceptSYNReply(theirInitialSeq uint16) {
	s.TheirSeq = theirInitialSeq
	s.State = StateEstablished
	s.InFlight = nil
}

// ApplyAck releases acknowledged bytes from OutgoingBuffer per §4.3's
// receive policy: "bytes ack - last_my_seq are released ... only a
// non-decreasing ack advances". It returns true if the ack advanced MySeq.
func (s *Session) ApplyAck(ack uint16) bool {
	if !seq.InWindow(s.MySeq, ack) {
		// ack is behind MySeq (stale/duplicate ack) or outside the forward
		// window; ignore it.
		return false
	}
	released := int(seq.Diff(s.MySeq, ack))
	if released == 0 {
		return false
	}
	if released > len(s.OutgoingBuffer) {
		released = len(s.OutgoingBuffer)
	}
	s.OutgoingBuffer = s.OutgoingBuffer[released:]
	s.MySeq = ack
	return true
}

// ReceiveResult describes what a MSG body did to the receive side.
type ReceiveResult struct {
	// Delivered is the contiguous new data to post as data_in, if any.
	Delivered []byte
	// Accepted is true if the segment advanced TheirSeq (even if empty,
	// e.g. a heartbeat at the expected sequence number).
	Accepted bool
	// Duplicate is true if segSeq is behind TheirSeq: bytes already
	// delivered, most likely a retransmit crossing with our own ack.
	// False for a forward gap (segSeq ahead of TheirSeq), which this
	// stop-and-wait protocol never buffers out of order.
	Duplicate bool
}

// ApplyIncoming implements the MSG receive policy of §4.3: in-order data is
// appended and TheirSeq advances; a segment starting behind TheirSeq is a
// duplicate and is ignored whole, even if it runs past TheirSeq (but still
// acknowledged by the caller); a segment starting ahead is a gap,
// acknowledged but not consumed.
func (s *Session) ApplyIncoming(segSeq uint16, data []byte) ReceiveResult {
	n := len(data)

	if segSeq == s.TheirSeq {
		s.IncomingBuffer = append(s.IncomingBuffer, data...)
		s.TheirSeq = seq.Add(s.TheirSeq, n)
		return ReceiveResult{Delivered: data, Accepted: true}
	}

	// Any other placement -- wholly-old duplicate or a forward gap -- is
	// not delivered. The caller still acknowledges with the current
	// TheirSeq either way.
	if seq.GreaterThan(s.TheirSeq, segSeq) {
		return ReceiveResult{Duplicate: true}
	}
	return ReceiveResult{}
}

// BeginShutdown moves the session to SHUTDOWN, stopping further delivery of
// local data, per §3's lifecycle and §4.3's "any state: receipt of FIN".
func (s *Session) BeginShutdown() {
	if s.State != StateClosed {
		s.State = StateShutdown
	}
}

// Close releases the session's resources and moves it to CLOSED.
func (s *Session) Close() {
	s.State = StateClosed
	s.InFlight = nil
}

// Idle reports whether there is nothing queued to send and nothing in
// flight, the condition under which the engine emits a heartbeat (§4.3).
func (s *Session) Idle() bool {
	return len(s.OutgoingBuffer) == 0 && s.InFlight == nil
}
