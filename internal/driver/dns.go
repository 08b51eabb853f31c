package driver

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"net"

	"github.com/miekg/dns"
	"github.com/rs/zerolog/log"

	"duskcat/internal/codec"
	"duskcat/internal/packet"
	"duskcat/internal/reactor"
)

// DefaultRecordTypes is the record-type rotation used when none is
// configured (§4.5: "round-robin among the configured set, default TXT").
var DefaultRecordTypes = []uint16{dns.TypeTXT}

// DNS is the sole output driver (§4.5). It converts tunnel packets to DNS
// queries and DNS responses back to tunnel packets by delegating to the
// codec package, rotating record types, and owning the UDP socket the
// reactor multiplexes alongside timers and the other drivers' I/O.
//
// The socket is connect()-ed to the resolver (§4.2), not left wild: this
// makes ICMP port-unreachables surface as read errors on conn, and the
// kernel filters out any datagram not actually from the resolver instead of
// handing it to readLoop.
type DNS struct {
	conn   *net.UDPConn
	domain string

	recordTypes []uint16
	rrIndex     int

	handler func(*packet.Packet)
}

// NewDNS resolves resolverAddr and opens a UDP socket connected to it, used
// for every outgoing tunnel query.
func NewDNS(resolverAddr, domain string, recordTypes []uint16) (*DNS, error) {
	raddr, err := net.ResolveUDPAddr("udp", resolverAddr)
	if err != nil {
		return nil, fmt.Errorf("dns: resolve resolver address: %w", err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("dns: connect to resolver: %w", err)
	}
	if len(recordTypes) == 0 {
		recordTypes = DefaultRecordTypes
	}
	return &DNS{conn: conn, domain: domain, recordTypes: recordTypes}, nil
}

// SetHandler installs the callback invoked, on the reactor goroutine, with
// every tunnel packet extracted from a reply. The session engine's
// HandleReply is the normal handler; the Ping driver installs its own while
// it owns the process (§4.5: drivers are mutually exclusive).
func (d *DNS) SetHandler(h func(*packet.Packet)) { d.handler = h }

// Register starts the UDP read loop. Reads happen on their own goroutine
// (the only concurrency the reactor model allows, per §5) and are handed to
// the reactor via Post so the handler still runs single-threaded.
func (d *DNS) Register(r *reactor.Reactor) {
	go d.readLoop(r)
}

func (d *DNS) readLoop(r *reactor.Reactor) {
	buf := make([]byte, 65535)
	for {
		n, err := d.conn.Read(buf)
		if err != nil {
			return
		}
		raw := append([]byte(nil), buf[:n]...)
		r.Post(func() { d.handleResponse(raw) })
	}
}

func (d *DNS) handleResponse(raw []byte) {
	msg, err := codec.Decode(raw)
	if err != nil {
		log.Debug().Err(err).Msg("dns: failed to decode response")
		return
	}
	if len(msg.Answer) == 0 {
		return
	}
	rtype := msg.Answer[0].Header().Rrtype
	payload, err := codec.DecodeCarrier(rtype, msg.Answer)
	if err != nil {
		log.Debug().Err(err).Msg("dns: failed to decode carrier")
		return
	}
	pkt, err := packet.Decode(payload)
	if err != nil {
		log.Debug().Err(err).Msg("dns: failed to decode tunnel packet")
		return
	}
	if d.handler != nil {
		d.handler(pkt)
	}
}

// Send implements session.Output: encode pkt, wrap it in a query under the
// next record type in the rotation, and write it to the resolver.
func (d *DNS) Send(pkt *packet.Packet) error {
	payload, err := packet.Encode(pkt)
	if err != nil {
		return fmt.Errorf("dns: encode tunnel packet: %w", err)
	}

	rtype := d.nextRecordType()
	qname, err := codec.EncodeQueryName(payload, pkt.SessionID, d.domain)
	if err != nil {
		return fmt.Errorf("dns: encode query name: %w", err)
	}

	id, err := randomDNSID()
	if err != nil {
		return fmt.Errorf("dns: generate query id: %w", err)
	}
	query, err := codec.EncodeQuery(id, qname, rtype)
	if err != nil {
		return fmt.Errorf("dns: encode query: %w", err)
	}

	if _, err := d.conn.Write(query); err != nil {
		return fmt.Errorf("dns: write to resolver: %w", err)
	}
	return nil
}

func (d *DNS) nextRecordType() uint16 {
	rtype := d.recordTypes[d.rrIndex%len(d.recordTypes)]
	d.rrIndex++
	return rtype
}

func (d *DNS) Close() error {
	return d.conn.Close()
}

func randomDNSID() (uint16, error) {
	var b [2]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b[:]), nil
}
