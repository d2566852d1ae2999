// Package xmpp implements the XEP-0114 component stream the focus
// speaks through: a TCP connection to the XMPP server's component port,
// authenticated with the SHA-1 stream handshake, carrying the focus's
// stanza traffic in both directions. The connection is supervised; on
// stream failure it reconnects with exponential backoff and re-runs the
// ready hooks.
package xmpp

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net"
	"time"

	"github.com/mucfocus/mucfocus/internal/ns"
	"github.com/mucfocus/mucfocus/internal/stanza"
)

// DefaultQueueSize bounds the outbound stanza queue when the config
// does not say otherwise.
const DefaultQueueSize = 512

// FlushTimeout bounds how long a closing stream waits for queued
// stanzas to be written before the connection is torn down.
const FlushTimeout = 2 * time.Second

// Config carries the component connection settings.
type Config struct {
	// Addr is the component port of the XMPP server, host:port.
	Addr string
	// Domain is the domain this component serves.
	Domain string
	// Secret authenticates the stream handshake.
	Secret string
	// QueueSize bounds the outbound queue; sends beyond it are dropped.
	QueueSize int
}

// Stanza handlers return true when they consumed the stanza. Handlers
// run on the stream's read goroutine, one stanza at a time.
type (
	IQHandler       func(iq *stanza.IQ) bool
	MessageHandler  func(m *stanza.Message) bool
	PresenceHandler func(p *stanza.Presence) bool
)

// Component is the supervised component connection. Register handlers
// before calling Run; registration is not safe afterwards.
type Component struct {
	cfg Config
	log *slog.Logger

	iqHandlers       []IQHandler
	messageHandlers  []MessageHandler
	presenceHandlers []PresenceHandler
	readyHooks       []func()

	out chan any
}

func New(cfg Config) *Component {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	return &Component{
		cfg: cfg,
		log: slog.Default().With("component", "xmpp"),
		out: make(chan any, cfg.QueueSize),
	}
}

// OnIQ registers an IQ handler. Handlers run in registration order
// until one consumes the stanza.
func (c *Component) OnIQ(h IQHandler) {
	c.iqHandlers = append(c.iqHandlers, h)
}

func (c *Component) OnMessage(h MessageHandler) {
	c.messageHandlers = append(c.messageHandlers, h)
}

func (c *Component) OnPresence(h PresenceHandler) {
	c.presenceHandlers = append(c.presenceHandlers, h)
}

// OnReady registers a hook that runs after every successful handshake,
// including reconnects.
func (c *Component) OnReady(f func()) {
	c.readyHooks = append(c.readyHooks, f)
}

// Send enqueues a stanza for writing without blocking. When the queue
// is full the stanza is dropped with a warning; a stalled server must
// not stall the focus.
func (c *Component) Send(v any) {
	select {
	case c.out <- v:
	default:
		c.log.Warn("outbound queue full, stanza dropped")
	}
}

// flushMarker rides the outbound queue behind the stanzas it covers;
// the writer acknowledges it instead of encoding it.
type flushMarker struct {
	done chan struct{}
}

// Flush blocks until every stanza queued before the call has been
// written to the stream, or the timeout lapses. It reports whether the
// queue drained. Shutdown flushes after queueing its teardown stanzas
// so they reach the server before the process exits.
func (c *Component) Flush(timeout time.Duration) bool {
	m := flushMarker{done: make(chan struct{})}
	select {
	case c.out <- m:
	default:
		return false
	}
	select {
	case <-m.done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Run connects and serves the stream until ctx is cancelled,
// reconnecting with backoff on failure.
func (c *Component) Run(ctx context.Context) error {
	bo := newBackoff()
	for {
		authed, err := c.serve(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if authed {
			bo.reset()
		}
		delay := bo.next()
		c.log.Error("component stream failed",
			"error", err,
			"attempt", bo.attempt,
			"retry_in", delay.String())
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// serve runs one connection to completion. It reports whether the
// handshake succeeded so the caller can reset its backoff.
func (c *Component) serve(ctx context.Context) (bool, error) {
	dialer := net.Dialer{Timeout: 10 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", c.cfg.Addr)
	if err != nil {
		return false, fmt.Errorf("dialing %s: %w", c.cfg.Addr, err)
	}
	defer conn.Close()

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	handshakeDone := make(chan struct{})
	go func() {
		// Unblocks the handshake reads on cancellation. Once the stream
		// is up, closing moves to the writer's watcher so queued stanzas
		// can drain first.
		select {
		case <-connCtx.Done():
			conn.Close()
		case <-handshakeDone:
		}
	}()

	if _, err := fmt.Fprintf(conn,
		`<stream:stream xmlns=%q xmlns:stream=%q to=%q>`,
		ns.Component, ns.Stream, c.cfg.Domain); err != nil {
		return false, fmt.Errorf("writing stream header: %w", err)
	}

	dec := xml.NewDecoder(conn)
	streamID, err := awaitStreamHeader(dec)
	if err != nil {
		return false, err
	}
	if err := writeHandshake(conn, streamID, c.cfg.Secret); err != nil {
		return false, err
	}
	if err := awaitHandshakeAck(dec); err != nil {
		return false, err
	}
	c.log.Info("component authenticated", "domain", c.cfg.Domain, "addr", c.cfg.Addr)
	close(handshakeDone)

	writeErr := make(chan error, 1)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writeLoop(connCtx, conn, writeErr)
	}()
	go func() {
		// On cancellation the writer drains the queue before exiting;
		// close the connection afterwards to unblock the decoder. The
		// timeout covers a writer stuck on a stalled peer.
		<-connCtx.Done()
		select {
		case <-writerDone:
		case <-time.After(FlushTimeout):
		}
		conn.Close()
	}()

	for _, hook := range c.readyHooks {
		hook()
	}

	readErr := c.readLoop(dec)
	cancel()
	select {
	case <-writerDone:
	case <-time.After(FlushTimeout):
	}
	select {
	case werr := <-writeErr:
		if readErr == nil {
			readErr = werr
		}
	default:
	}
	return true, readErr
}

func (c *Component) readLoop(dec *xml.Decoder) error {
	for {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("reading stream: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch start.Name.Local {
		case "iq":
			var iq stanza.IQ
			if err := dec.DecodeElement(&iq, &start); err != nil {
				c.log.Warn("malformed iq dropped", "error", err)
				continue
			}
			c.dispatchIQ(&iq)
		case "message":
			var m stanza.Message
			if err := dec.DecodeElement(&m, &start); err != nil {
				c.log.Warn("malformed message dropped", "error", err)
				continue
			}
			c.dispatchMessage(&m)
		case "presence":
			var p stanza.Presence
			if err := dec.DecodeElement(&p, &start); err != nil {
				c.log.Warn("malformed presence dropped", "error", err)
				continue
			}
			c.dispatchPresence(&p)
		case "error":
			_ = dec.Skip()
			return errors.New("stream error from server")
		default:
			if err := dec.Skip(); err != nil {
				return fmt.Errorf("reading stream: %w", err)
			}
		}
	}
}

func (c *Component) dispatchIQ(iq *stanza.IQ) {
	for _, h := range c.iqHandlers {
		if h(iq) {
			return
		}
	}
	switch iq.Type {
	case stanza.TypeGet, stanza.TypeSet:
		c.log.Debug("unhandled iq", "from", iq.From.String(), "id", iq.ID)
		c.Send(iq.ErrorReply("cancel", "service-unavailable"))
	default:
		// Unmatched replies carry no obligation.
	}
}

func (c *Component) dispatchMessage(m *stanza.Message) {
	for _, h := range c.messageHandlers {
		if h(m) {
			return
		}
	}
}

func (c *Component) dispatchPresence(p *stanza.Presence) {
	for _, h := range c.presenceHandlers {
		if h(p) {
			return
		}
	}
}

func (c *Component) writeLoop(ctx context.Context, conn net.Conn, errc chan<- error) {
	enc := xml.NewEncoder(conn)
	for {
		select {
		case <-ctx.Done():
			c.drainQueue(enc, conn)
			errc <- ctx.Err()
			return
		case v := <-c.out:
			if err := c.writeOne(enc, v); err != nil {
				errc <- err
				return
			}
		}
	}
}

// writeOne writes a queued entry to the stream. Flush markers are
// acknowledged instead of encoded.
func (c *Component) writeOne(enc *xml.Encoder, v any) error {
	if m, ok := v.(flushMarker); ok {
		close(m.done)
		return nil
	}
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("writing stanza: %w", err)
	}
	return nil
}

// drainQueue writes whatever is already queued before the stream goes
// away, so teardown stanzas enqueued during shutdown still reach the
// server. The write deadline bounds the drain against a stalled peer.
func (c *Component) drainQueue(enc *xml.Encoder, conn net.Conn) {
	_ = conn.SetWriteDeadline(time.Now().Add(FlushTimeout))
	for {
		select {
		case v := <-c.out:
			if err := c.writeOne(enc, v); err != nil {
				c.log.Warn("drain failed, queued stanzas dropped", "error", err)
				return
			}
		default:
			return
		}
	}
}

func awaitStreamHeader(dec *xml.Decoder) (string, error) {
	for {
		tok, err := dec.Token()
		if err != nil {
			return "", fmt.Errorf("reading stream header: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if start.Name.Local != "stream" {
			return "", fmt.Errorf("unexpected element %q before stream header", start.Name.Local)
		}
		for _, attr := range start.Attr {
			if attr.Name.Local == "id" {
				return attr.Value, nil
			}
		}
		return "", errors.New("stream header carries no id")
	}
}

// writeHandshake sends hex(sha1(streamID + secret)) per XEP-0114.
func writeHandshake(w io.Writer, streamID, secret string) error {
	sum := sha1.Sum([]byte(streamID + secret))
	if _, err := fmt.Fprintf(w, "<handshake>%s</handshake>", hex.EncodeToString(sum[:])); err != nil {
		return fmt.Errorf("writing handshake: %w", err)
	}
	return nil
}

func awaitHandshakeAck(dec *xml.Decoder) error {
	for {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("reading handshake reply: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch start.Name.Local {
		case "handshake":
			return dec.Skip()
		case "error":
			_ = dec.Skip()
			return errors.New("handshake rejected, check the shared secret")
		default:
			return fmt.Errorf("unexpected element %q during handshake", start.Name.Local)
		}
	}
}

// backoff implements exponential backoff with jitter for reconnect
// attempts. Jitter spreads the retries of components restarting
// together.
type backoff struct {
	attempt   int
	baseDelay time.Duration
	maxDelay  time.Duration
}

func newBackoff() *backoff {
	return &backoff{
		baseDelay: 2 * time.Second,
		maxDelay:  time.Minute,
	}
}

func (b *backoff) next() time.Duration {
	d := b.current()
	b.attempt++
	return d
}

func (b *backoff) current() time.Duration {
	d := b.baseDelay
	for i := 0; i < b.attempt; i++ {
		d *= 2
		if d > b.maxDelay {
			d = b.maxDelay
			break
		}
	}
	jitter := float64(d) * 0.2 * (2*rand.Float64() - 1)
	d += time.Duration(jitter)
	if d < 0 {
		d = b.baseDelay
	}
	return d
}

func (b *backoff) reset() {
	b.attempt = 0
}
