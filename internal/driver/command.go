package driver

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	cache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"

	"duskcat/internal/bus"
	"duskcat/internal/packet"
	"duskcat/internal/reactor"
)

// pendingTTL bounds how long a Command request waits for its matching
// response before it is considered lost.
const pendingTTL = 30 * time.Second

// pendingRequest is the value stored per in-flight request id.
type pendingRequest struct {
	line string
}

// Command is the experimental framed-request input driver (§4.5). The wire
// framing of requests/responses is out of scope for this spec ("framing is
// specified elsewhere"); this driver only guarantees the SYN option bit the
// spec requires and a request/response correlation table shaped the way the
// teacher's session store is: a TTL-keyed cache so an answer that never
// arrives is forgotten instead of leaking memory.
type Command struct {
	in  io.Reader
	out io.Writer

	nextID  uint64
	pending *cache.Cache
}

// NewCommand returns a Command driver reading newline-delimited requests
// from os.Stdin.
func NewCommand() *Command {
	c := &Command{
		in:      os.Stdin,
		out:     os.Stdout,
		pending: cache.New(pendingTTL, pendingTTL/2),
	}
	c.pending.OnEvicted(func(id string, item any) {
		req := item.(pendingRequest)
		log.Warn().Str("request_id", id).Str("line", req.line).Msg("command: request timed out waiting for a reply")
	})
	return c
}

// SYNOptions is the SYN option bit field this driver requires (§4.5: "this
// spec only requires the driver to set SYN option bit 5").
func (c *Command) SYNOptions() uint16 { return packet.OptCommand }

func (c *Command) Register(r *reactor.Reactor, b *bus.Bus) {
	b.Subscribe(bus.EventDataIn, func(payload any) {
		data := payload.(bus.Data)
		if len(data.Bytes) == 0 {
			return
		}
		id, req, ok := c.oldestPending()
		if !ok {
			log.Warn().Msg("command: reply received with no pending request")
			return
		}
		c.pending.Delete(id)
		fmt.Fprintf(c.out, "[%s] %s -> %s\n", id, req.line, data.Bytes)
	})

	go c.readLoop(r, b)
}

// oldestPending scans the cache for the lowest numeric request id still
// waiting on a reply. The cache has no ordered iteration, so this relies on
// Items() plus string comparison of zero-padded ids.
func (c *Command) oldestPending() (string, pendingRequest, bool) {
	items := c.pending.Items()
	var bestID string
	var bestReq pendingRequest
	found := false
	for id, entry := range items {
		if !found || id < bestID {
			bestID = id
			bestReq = entry.Object.(pendingRequest)
			found = true
		}
	}
	return bestID, bestReq, found
}

func (c *Command) readLoop(r *reactor.Reactor, b *bus.Bus) {
	scanner := bufio.NewScanner(c.in)
	for scanner.Scan() {
		line := scanner.Text()
		id := fmt.Sprintf("%020d", atomic.AddUint64(&c.nextID, 1))
		c.pending.Set(id, pendingRequest{line: line}, cache.DefaultExpiration)

		chunk := append([]byte(line), '\n')
		r.Post(func() { b.Publish(bus.EventDataOut, bus.Data{Bytes: chunk}) })
	}
	r.Post(func() { b.Publish(bus.EventShutdown, nil) })
}

func (c *Command) Close() error {
	c.pending.Flush()
	return nil
}
