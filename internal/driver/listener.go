package driver

import (
	"io"
	"net"
	"sync"

	"github.com/rs/zerolog/log"

	"duskcat/internal/bus"
	"duskcat/internal/reactor"
)

// Listener opens a TCP listening socket; the first connection attaches,
// further connections are refused while a session is live, since the
// protocol has no multiplexing (§4.5).
type Listener struct {
	addr string
	ln   net.Listener

	mu   sync.Mutex
	conn net.Conn
}

// NewListener builds a Listener driver bound to addr (e.g. "0.0.0.0:4444").
func NewListener(addr string) *Listener {
	return &Listener{addr: addr}
}

func (l *Listener) Register(r *reactor.Reactor, b *bus.Bus) {
	ln, err := net.Listen("tcp", l.addr)
	if err != nil {
		log.Error().Err(err).Str("addr", l.addr).Msg("listener: failed to bind")
		r.Post(func() { b.Publish(bus.EventShutdown, nil) })
		return
	}
	l.ln = ln
	log.Info().Str("addr", l.addr).Msg("listener: waiting for connection")

	b.Subscribe(bus.EventDataIn, func(payload any) {
		data := payload.(bus.Data)
		l.mu.Lock()
		conn := l.conn
		l.mu.Unlock()
		if conn == nil {
			return
		}
		if len(data.Bytes) > 0 {
			if _, err := conn.Write(data.Bytes); err != nil {
				log.Warn().Err(err).Msg("listener: write failed")
			}
		}
		if data.EOF {
			conn.Close()
		}
	})

	go l.acceptLoop(r, b)
}

func (l *Listener) acceptLoop(r *reactor.Reactor, b *bus.Bus) {
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			return
		}

		l.mu.Lock()
		if l.conn != nil {
			l.mu.Unlock()
			log.Warn().Str("remote", conn.RemoteAddr().String()).Msg("listener: refusing second connection")
			conn.Close()
			continue
		}
		l.conn = conn
		l.mu.Unlock()

		log.Info().Str("remote", conn.RemoteAddr().String()).Msg("listener: connection attached")
		go l.readLoop(r, b, conn)
	}
}

func (l *Listener) readLoop(r *reactor.Reactor, b *bus.Bus, conn net.Conn) {
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			r.Post(func() { b.Publish(bus.EventDataOut, bus.Data{Bytes: chunk}) })
		}
		if err != nil {
			if err != io.EOF {
				log.Debug().Err(err).Msg("listener: connection read failed")
			}
			r.Post(func() { b.Publish(bus.EventShutdown, nil) })
			return
		}
	}
}

func (l *Listener) Close() error {
	l.mu.Lock()
	conn := l.conn
	l.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
	if l.ln != nil {
		return l.ln.Close()
	}
	return nil
}
