package driver

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"duskcat/internal/bus"
	"duskcat/internal/packet"
	"duskcat/internal/reactor"
)

// pingTimeout bounds how long Ping waits for a matching reply before giving
// up and shutting down (dnscat.c's ping driver has no session and no retry
// budget to fall back on, so a plain timeout stands in for one).
const pingTimeout = 5 * time.Second

// Ping has no session (§4.5): it sends a single SYN-less PING packet via the
// DNS driver and waits for the matching reply, logging round-trip time, then
// shuts the process down either way.
type Ping struct {
	dns *DNS

	pingID string
	sentAt time.Time
}

// NewPing builds a Ping driver that will send its probe through dns once
// registered.
func NewPing(dns *DNS) *Ping {
	return &Ping{dns: dns}
}

func (p *Ping) Register(r *reactor.Reactor, b *bus.Bus) {
	id, err := randomPingID()
	if err != nil {
		log.Error().Err(err).Msg("ping: failed to generate ping id")
		r.Post(func() { b.Publish(bus.EventShutdown, nil) })
		return
	}
	p.pingID = id

	p.dns.SetHandler(func(pkt *packet.Packet) {
		r.Post(func() { p.handleReply(pkt, b) })
	})

	pkt := &packet.Packet{
		Header: packet.Header{Type: packet.TypePING},
		PING:   &packet.PINGBody{PingID: p.pingID},
	}
	p.sentAt = time.Now()
	if err := p.dns.Send(pkt); err != nil {
		log.Error().Err(err).Msg("ping: failed to send probe")
		r.Post(func() { b.Publish(bus.EventShutdown, nil) })
		return
	}
	log.Info().Str("ping_id", p.pingID).Msg("ping: probe sent")

	r.AfterFunc(pingTimeout, func() {
		log.Warn().Str("ping_id", p.pingID).Msg("ping: timed out waiting for reply")
		b.Publish(bus.EventShutdown, nil)
	})
}

func (p *Ping) handleReply(pkt *packet.Packet, b *bus.Bus) {
	if pkt.Type != packet.TypePING || pkt.PING == nil || pkt.PING.PingID != p.pingID {
		return
	}
	rtt := time.Since(p.sentAt)
	log.Info().Str("ping_id", p.pingID).Dur("rtt", rtt).Msg("ping: reply received")
	b.Publish(bus.EventShutdown, nil)
}

func (p *Ping) Close() error { return nil }

func randomPingID() (string, error) {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("ping: generate id: %w", err)
	}
	return hex.EncodeToString(b), nil
}
