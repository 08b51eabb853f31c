package driver

import (
	"io"
	"os"

	"github.com/rs/zerolog/log"

	"duskcat/internal/bus"
	"duskcat/internal/reactor"
)

// Console is the default input driver (§4.5): stdin bytes become data_out,
// data_in bytes are written to stdout.
type Console struct {
	in  io.Reader
	out io.Writer

	bus *bus.Bus
}

// NewConsole returns a Console driver reading os.Stdin and writing
// os.Stdout; tests substitute in/out with pipes.
func NewConsole() *Console {
	return &Console{in: os.Stdin, out: os.Stdout}
}

func (c *Console) Register(r *reactor.Reactor, b *bus.Bus) {
	c.bus = b
	b.Subscribe(bus.EventDataIn, func(payload any) {
		data := payload.(bus.Data)
		if len(data.Bytes) > 0 {
			if _, err := c.out.Write(data.Bytes); err != nil {
				log.Warn().Err(err).Msg("console: write failed")
			}
		}
		if data.EOF {
			r.Post(func() { b.Publish(bus.EventShutdown, nil) })
		}
	})

	go c.readLoop(r, b)
}

func (c *Console) readLoop(r *reactor.Reactor, b *bus.Bus) {
	buf := make([]byte, 4096)
	for {
		n, err := c.in.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			r.Post(func() { b.Publish(bus.EventDataOut, bus.Data{Bytes: chunk}) })
		}
		if err != nil {
			if err != io.EOF {
				log.Warn().Err(err).Msg("console: stdin read failed")
			}
			r.Post(func() { b.Publish(bus.EventShutdown, nil) })
			return
		}
	}
}

func (c *Console) Close() error { return nil }
