package session

import (
	"time"

	"github.com/rs/zerolog/log"

	"duskcat/internal/bus"
	"duskcat/internal/packet"
	"duskcat/internal/reactor"
)

// Output is what the session engine needs from the DNS driver: the ability
// to transmit one tunnel packet as a freshly-salted DNS query. Output is
// responsible for picking the carrier record type and query name; Engine
// only hands it wire-ready tunnel packets.
type Output interface {
	Send(pkt *packet.Packet) error
}

// Engine drives exactly one Session, per the base spec's non-goal of no
// multi-session multiplexing inside a client process. It subscribes to the
// bus events named in §4.4 and implements the send/receive policy of §4.3.
// Every method is invoked from the reactor goroutine (directly, or via a
// bus Publish made from a reactor callback), so Session needs no locking.
type Engine struct {
	bus     *bus.Bus
	reactor *reactor.Reactor
	output  Output
	session *Session

	retransmit reactor.TimerHandle
	heartbeat  reactor.TimerHandle
}

// NewEngine wires an Engine to bus and reactor; the session itself is
// created lazily, on EventStart, matching §3's "created on the start bus
// event".
func NewEngine(b *bus.Bus, r *reactor.Reactor, output Output, opts Options) *Engine {
	e := &Engine{bus: b, reactor: r, output: output}

	b.Subscribe(bus.EventStart, func(payload any) { e.start(opts) })
	b.Subscribe(bus.EventDataOut, func(payload any) { e.onDataOut(payload.(bus.Data)) })
	b.Subscribe(bus.EventShutdown, func(payload any) { e.onShutdown() })

	return e
}

// Session returns the current session, or nil before EventStart fires.
func (e *Engine) Session() *Session { return e.session }

func (e *Engine) start(opts Options) {
	sess, err := New(opts)
	if err != nil {
		log.Error().Err(err).Msg("session: failed to create session")
		return
	}
	e.session = sess

	log.Info().Uint16("session", sess.SessionID).Msg("session: created")
	e.bus.Publish(bus.EventSessionCreated, bus.SessionCreated{SessionID: sess.SessionID})

	e.sendSYN()
	e.heartbeat = e.reactor.TickerFunc(HeartbeatInterval, e.onHeartbeatTick)
}

func (e *Engine) sendSYN() {
	sess := e.session
	syn := &packet.SYNBody{InitialSeq: sess.MySeq, Options: sess.Options.SYNOptions}
	if syn.HasName() {
		syn.Name = sess.Options.Name
	}
	log.Debug().Uint16("session", sess.SessionID).Bool("name", syn.HasName()).
		Bool("command", syn.HasCommand()).Msg("session: sending SYN")

	pkt := &packet.Packet{
		Header: packet.Header{PacketID: randomPacketID(), Type: packet.TypeSYN, SessionID: sess.SessionID},
		SYN:    syn,
	}
	e.transmit(pkt)
}

// onDataOut handles data_out: queue the bytes, then run the transmit
// decision point (§4.3, point 3) if nothing is currently in flight.
func (e *Engine) onDataOut(data bus.Data) {
	sess := e.session
	if sess == nil || sess.State == StateClosed {
		return
	}
	sess.QueueOutgoing(data.Bytes)
	e.maybeSendMSG()
}

// maybeSendMSG implements the transmit decision point for non-SYN traffic:
// if a packet is already in flight, nothing happens here -- the next
// transmit opportunity is either the retransmit deadline or the ack that
// discharges the in-flight packet.
func (e *Engine) maybeSendMSG() {
	sess := e.session
	if sess == nil || sess.InFlight != nil {
		return
	}
	if sess.State != StateEstablished && sess.State != StateShutdown {
		return
	}

	chunk := sess.OutgoingBuffer
	if len(chunk) > MaxDataChunk {
		chunk = chunk[:MaxDataChunk]
	}
	if len(chunk) == 0 && sess.State != StateShutdown {
		return
	}

	pkt := &packet.Packet{
		Header: packet.Header{PacketID: randomPacketID(), Type: packet.TypeMSG, SessionID: sess.SessionID},
		MSG:    &packet.MSGBody{Seq: sess.MySeq, Ack: sess.TheirSeq, Data: chunk},
	}
	e.transmit(pkt)
}

// onHeartbeatTick emits a zero-length MSG when idle, per §4.3's heartbeat.
func (e *Engine) onHeartbeatTick() {
	sess := e.session
	if sess == nil || sess.State != StateEstablished || !sess.Idle() {
		return
	}
	pkt := &packet.Packet{
		Header: packet.Header{PacketID: randomPacketID(), Type: packet.TypeMSG, SessionID: sess.SessionID},
		MSG:    &packet.MSGBody{Seq: sess.MySeq, Ack: sess.TheirSeq},
	}
	e.transmit(pkt)
}

// transmit sends pkt, records it as the single in-flight packet, and arms
// the retransmission timer, per §4.3 point 3.
func (e *Engine) transmit(pkt *packet.Packet) {
	sess := e.session
	if err := e.output.Send(pkt); err != nil {
		log.Warn().Err(err).Msg("session: transmit failed, will retry on timer")
	}

	dataLen := 0
	segSeq := sess.MySeq
	if pkt.MSG != nil {
		dataLen = len(pkt.MSG.Data)
		segSeq = pkt.MSG.Seq
	}
	sess.InFlight = &inFlight{
		packetID: pkt.PacketID,
		pktType:  pkt.Type,
		seq:      segSeq,
		dataLen:  dataLen,
	}

	e.retransmit.Cancel()
	e.retransmit = e.reactor.AfterFunc(sess.RTO, e.onRetransmitDeadline)
}

// onRetransmitDeadline implements §4.3 point 2: resend identical payload
// bytes with a fresh packet id (the DNS driver salts a new subdomain), or
// force-close once the retry budget is exhausted.
func (e *Engine) onRetransmitDeadline() {
	sess := e.session
	if sess == nil || sess.InFlight == nil {
		return
	}

	sess.InFlight.retryCount++
	if sess.InFlight.retryCount > sess.RetryBudget {
		log.Error().Uint16("session", sess.SessionID).Msg("session: retry limit exceeded, forcing close")
		e.forceClose("retry limit")
		return
	}

	var pkt *packet.Packet
	switch sess.InFlight.pktType {
	case packet.TypeSYN:
		pkt = &packet.Packet{
			Header: packet.Header{PacketID: randomPacketID(), Type: packet.TypeSYN, SessionID: sess.SessionID},
			SYN:    &packet.SYNBody{InitialSeq: sess.MySeq, Options: sess.Options.SYNOptions, Name: sess.Options.Name},
		}
	case packet.TypeMSG:
		chunk := sess.OutgoingBuffer
		if len(chunk) > sess.InFlight.dataLen {
			chunk = chunk[:sess.InFlight.dataLen]
		}
		pkt = &packet.Packet{
			Header: packet.Header{PacketID: randomPacketID(), Type: packet.TypeMSG, SessionID: sess.SessionID},
			MSG:    &packet.MSGBody{Seq: sess.InFlight.seq, Ack: sess.TheirSeq, Data: chunk},
		}
	case packet.TypeFIN:
		pkt = &packet.Packet{
			Header: packet.Header{PacketID: randomPacketID(), Type: packet.TypeFIN, SessionID: sess.SessionID},
			FIN:    &packet.FINBody{},
		}
	default:
		return
	}

	if err := e.output.Send(pkt); err != nil {
		log.Warn().Err(err).Msg("session: retransmit failed")
	}
	sess.InFlight.packetID = pkt.PacketID
	e.retransmit = e.reactor.AfterFunc(sess.RTO, e.onRetransmitDeadline)
}

// HandleReply is called by the DNS driver with a decoded tunnel packet that
// arrived for this session. It implements the receive policy of §4.3.
func (e *Engine) HandleReply(pkt *packet.Packet) {
	sess := e.session
	if sess == nil || pkt.SessionID != sess.SessionID {
		return
	}

	switch pkt.Type {
	case packet.TypeSYN:
		if sess.State != StateNew {
			// Receipt of SYN while already ESTABLISHED is a protocol
			// error (§9 Open Questions, resolved: close the session).
			log.Warn().Uint16("session", sess.SessionID).Msg("session: unexpected SYN, closing")
			e.forceClose("unexpected SYN")
			return
		}
		sess.AcceptSYNReply(pkt.SYN.InitialSeq)
		e.retransmit.Cancel()
		log.Info().Uint16("session", sess.SessionID).Msg("session: established")
		e.maybeSendMSG()

	case packet.TypeMSG:
		e.handleMSG(pkt)

	case packet.TypeFIN:
		if sess.State == StateShutdown && sess.InFlight != nil && sess.InFlight.pktType == packet.TypeFIN {
			// Our own FIN was discharged by the peer's FIN: teardown
			// complete, move to CLOSED (§3 Lifecycles).
			e.retransmit.Cancel()
			sess.Close()
			e.bus.Publish(bus.EventSessionClosed, bus.SessionClosed{SessionID: sess.SessionID, Reason: "closed"})
			return
		}
		e.handleFIN()

	default:
		log.Debug().Str("type", pkt.Type.String()).Msg("session: ignoring reply of unexpected type")
	}
}

func (e *Engine) handleMSG(pkt *packet.Packet) {
	sess := e.session
	body := pkt.MSG

	if sess.InFlight != nil && sess.InFlight.pktType != packet.TypeSYN {
		sess.ApplyAck(body.Ack)
		// The exchange is complete once the paired reply arrives, identified
		// by its echoed packet id (§3) -- not by whether the ack happened to
		// advance MySeq. A heartbeat's ack never advances MySeq (it has no
		// data), so keying discharge on ApplyAck alone would never clear an
		// idle heartbeat's in-flight slot and eventually force-close the
		// session on a spurious retry-limit.
		if pkt.PacketID == sess.InFlight.packetID {
			sess.InFlight = nil
			e.retransmit.Cancel()
		}
	}

	result := sess.ApplyIncoming(body.Seq, body.Data)
	if result.Accepted && len(result.Delivered) > 0 {
		e.bus.Publish(bus.EventDataIn, bus.Data{SessionID: sess.SessionID, Bytes: result.Delivered})
	} else if result.Duplicate {
		log.Debug().Uint16("session", sess.SessionID).Msg("session: dropping duplicate retransmit")
	}

	if sess.InFlight == nil {
		e.maybeSendMSG()
	}
}

func (e *Engine) handleFIN() {
	sess := e.session
	e.bus.Publish(bus.EventDataIn, bus.Data{SessionID: sess.SessionID, EOF: true})
	sess.BeginShutdown()

	pkt := &packet.Packet{
		Header: packet.Header{PacketID: randomPacketID(), Type: packet.TypeFIN, SessionID: sess.SessionID},
		FIN:    &packet.FINBody{},
	}
	e.retransmit.Cancel()
	sess.InFlight = nil
	e.transmit(pkt)
}

// onShutdown handles the local-close path (console EOF, etc.): send FIN and
// drain until the outgoing buffer empties or the retry budget is spent.
func (e *Engine) onShutdown() {
	sess := e.session
	if sess == nil || sess.State == StateClosed {
		return
	}
	sess.BeginShutdown()

	pkt := &packet.Packet{
		Header: packet.Header{PacketID: randomPacketID(), Type: packet.TypeFIN, SessionID: sess.SessionID},
		FIN:    &packet.FINBody{},
	}
	e.retransmit.Cancel()
	sess.InFlight = nil
	e.transmit(pkt)
}

func (e *Engine) forceClose(reason string) {
	sess := e.session
	e.retransmit.Cancel()
	e.heartbeat.Cancel()
	sess.Close()
	e.bus.Publish(bus.EventSessionClosed, bus.SessionClosed{SessionID: sess.SessionID, Reason: reason})
}

// MaxDataChunk bounds how many bytes of OutgoingBuffer a single MSG packet
// carries, chosen so the codec's uplink QNAME encoding stays within the
// 255-byte wire limit for typical tunnel domains (§4.1/§4.3).
const MaxDataChunk = 100

func randomPacketID() uint16 {
	id, err := randomUint16()
	if err != nil {
		return 0
	}
	return id
}
