package xmpp

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"mellium.im/xmpp/jid"

	"github.com/mucfocus/mucfocus/internal/stanza"
)

// readElement accumulates reads until the buffer contains marker, so
// multi-token elements can be collected from the raw stream.
func readElement(t *testing.T, r *bufio.Reader, marker string) string {
	t.Helper()
	var acc strings.Builder
	for {
		chunk, err := r.ReadString('>')
		if err != nil {
			t.Fatalf("reading element up to %q: %v (got %q)", marker, err, acc.String())
		}
		acc.WriteString(chunk)
		if strings.Contains(acc.String(), marker) {
			return acc.String()
		}
	}
}

func TestComponentHandshakeAndDispatch(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	comp := New(Config{
		Addr:   ln.Addr().String(),
		Domain: "chat.example.com",
		Secret: "s3cr3t",
	})
	seen := make(chan string, 1)
	comp.OnIQ(func(iq *stanza.IQ) bool {
		seen <- iq.ID
		return false
	})
	ready := make(chan struct{}, 1)
	comp.OnReady(func() { ready <- struct{}{} })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go comp.Run(ctx)

	conn, err := ln.Accept()
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second))
	server := bufio.NewReader(conn)

	header := readElement(t, server, ">")
	if !strings.Contains(header, `to="chat.example.com"`) {
		t.Fatalf("stream header = %q, want to attribute for our domain", header)
	}
	if !strings.Contains(header, "jabber:component:accept") {
		t.Fatalf("stream header = %q, want component namespace", header)
	}

	fmt.Fprint(conn, `<stream:stream xmlns="jabber:component:accept" xmlns:stream="http://etherx.jabber.org/streams" from="chat.example.com" id="abc123">`)

	hs := readElement(t, server, "</handshake>")
	sum := sha1.Sum([]byte("abc123s3cr3t"))
	if want := "<handshake>" + hex.EncodeToString(sum[:]) + "</handshake>"; hs != want {
		t.Fatalf("handshake = %q, want %q", hs, want)
	}
	fmt.Fprint(conn, "<handshake/>")

	select {
	case <-ready:
	case <-time.After(3 * time.Second):
		t.Fatal("ready hook never fired after handshake")
	}

	// An IQ no handler consumes must come back as service-unavailable.
	fmt.Fprint(conn, `<iq type="get" id="x1" from="alice@example.com/web" to="chat.example.com"><query xmlns="http://jabber.org/protocol/disco#items"/></iq>`)

	select {
	case id := <-seen:
		if id != "x1" {
			t.Fatalf("handler saw iq id %q, want x1", id)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("iq never reached the registered handler")
	}

	reply := readElement(t, server, "</iq>")
	if !strings.Contains(reply, `type="error"`) {
		t.Errorf("reply = %q, want an error iq", reply)
	}
	if !strings.Contains(reply, "service-unavailable") {
		t.Errorf("reply = %q, want service-unavailable condition", reply)
	}
	if !strings.Contains(reply, `to="alice@example.com/web"`) {
		t.Errorf("reply = %q, want it addressed back to the sender", reply)
	}
}

func TestComponentRoutesToConsumingHandler(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	comp := New(Config{
		Addr:   ln.Addr().String(),
		Domain: "chat.example.com",
		Secret: "pw",
	})
	order := make(chan string, 4)
	comp.OnMessage(func(m *stanza.Message) bool {
		order <- "first"
		return true
	})
	comp.OnMessage(func(m *stanza.Message) bool {
		order <- "second"
		return true
	})
	presences := make(chan string, 1)
	comp.OnPresence(func(p *stanza.Presence) bool {
		presences <- p.From.String()
		return true
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go comp.Run(ctx)

	conn, err := ln.Accept()
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second))
	server := bufio.NewReader(conn)

	readElement(t, server, ">")
	fmt.Fprint(conn, `<stream:stream xmlns="jabber:component:accept" xmlns:stream="http://etherx.jabber.org/streams" id="id9">`)
	readElement(t, server, "</handshake>")
	fmt.Fprint(conn, "<handshake/>")

	fmt.Fprint(conn, `<message type="groupchat" from="alice@example.com/web" to="garden@chat.example.com"><body>hi</body></message>`)
	fmt.Fprint(conn, `<presence from="bob@example.com/web" to="garden@chat.example.com/bob"/>`)

	select {
	case got := <-order:
		if got != "first" {
			t.Fatalf("message handled by %q, want first registered handler", got)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("message never dispatched")
	}
	select {
	case got := <-order:
		t.Fatalf("second handler ran (%q) after the first consumed the message", got)
	case <-time.After(100 * time.Millisecond):
	}
	select {
	case from := <-presences:
		if from != "bob@example.com/web" {
			t.Fatalf("presence from = %q, want bob@example.com/web", from)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("presence never dispatched")
	}
}

func TestComponentReconnectsAfterStreamLoss(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	comp := New(Config{
		Addr:   ln.Addr().String(),
		Domain: "chat.example.com",
		Secret: "pw",
	})
	ready := make(chan struct{}, 2)
	comp.OnReady(func() { ready <- struct{}{} })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go comp.Run(ctx)

	serveOnce := func() net.Conn {
		conn, err := ln.Accept()
		if err != nil {
			t.Fatal(err)
		}
		conn.SetDeadline(time.Now().Add(10 * time.Second))
		server := bufio.NewReader(conn)
		readElement(t, server, ">")
		fmt.Fprint(conn, `<stream:stream xmlns="jabber:component:accept" xmlns:stream="http://etherx.jabber.org/streams" id="r1">`)
		readElement(t, server, "</handshake>")
		fmt.Fprint(conn, "<handshake/>")
		return conn
	}

	first := serveOnce()
	select {
	case <-ready:
	case <-time.After(3 * time.Second):
		t.Fatal("first session never became ready")
	}

	// Drop the stream; the component must dial again and redo the
	// handshake. Reconnect backoff starts at two seconds.
	first.Close()
	second := serveOnce()
	defer second.Close()
	select {
	case <-ready:
	case <-time.After(10 * time.Second):
		t.Fatal("component never reconnected after stream loss")
	}
}

func TestFlushDeliversQueuedStanzasBeforeShutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	comp := New(Config{
		Addr:   ln.Addr().String(),
		Domain: "chat.example.com",
		Secret: "pw",
	})
	ready := make(chan struct{}, 1)
	comp.OnReady(func() { ready <- struct{}{} })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go comp.Run(ctx)

	conn, err := ln.Accept()
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second))
	server := bufio.NewReader(conn)

	readElement(t, server, ">")
	fmt.Fprint(conn, `<stream:stream xmlns="jabber:component:accept" xmlns:stream="http://etherx.jabber.org/streams" id="fl1">`)
	readElement(t, server, "</handshake>")
	fmt.Fprint(conn, "<handshake/>")
	select {
	case <-ready:
	case <-time.After(3 * time.Second):
		t.Fatal("session never became ready")
	}

	// Queue teardown traffic without the server reading any of it, then
	// flush. Success means both stanzas were written to the stream.
	comp.Send(&stanza.IQ{Type: stanza.TypeSet, ID: "t1", To: jid.MustParse("bridge1.example.com"), From: jid.MustParse("chat.example.com")})
	comp.Send(&stanza.IQ{Type: stanza.TypeSet, ID: "t2", To: jid.MustParse("alice@example.com/web"), From: jid.MustParse("garden@chat.example.com/focus")})
	if !comp.Flush(3 * time.Second) {
		t.Fatal("flush timed out with a live writer")
	}

	out := readElement(t, server, `id="t2"`)
	if !strings.Contains(out, `id="t1"`) {
		t.Errorf("stream = %q, want t1 written before t2", out)
	}
	readElement(t, server, "</iq>")

	// Cancellation after the flush still tears the connection down.
	cancel()
	if _, err := server.ReadString('>'); err == nil {
		t.Error("connection still open after shutdown")
	}
}

func TestFlushFailsWithoutWriter(t *testing.T) {
	comp := New(Config{QueueSize: 1})

	if comp.Flush(20 * time.Millisecond) {
		t.Error("flush reported success with no writer draining the queue")
	}

	// The marker from the failed flush still occupies the queue; flush
	// on a full queue fails fast instead of waiting out the timeout.
	start := time.Now()
	if comp.Flush(5 * time.Second) {
		t.Error("flush reported success on a full queue")
	}
	if time.Since(start) > time.Second {
		t.Error("full-queue flush waited instead of failing fast")
	}
}

func TestSendDropsWhenQueueFull(t *testing.T) {
	comp := New(Config{QueueSize: 2})
	comp.Send("a")
	comp.Send("b")
	done := make(chan struct{})
	go func() {
		comp.Send("c")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Send blocked on a full queue")
	}
	if got := len(comp.out); got != 2 {
		t.Errorf("queued stanzas = %d, want 2", got)
	}
}

func TestWriteHandshakeDigest(t *testing.T) {
	var buf bytes.Buffer
	if err := writeHandshake(&buf, "1234", "secret"); err != nil {
		t.Fatal(err)
	}
	sum := sha1.Sum([]byte("1234secret"))
	want := "<handshake>" + hex.EncodeToString(sum[:]) + "</handshake>"
	if buf.String() != want {
		t.Errorf("handshake = %q, want %q", buf.String(), want)
	}
}

func TestBackoffGrowsAndResets(t *testing.T) {
	b := newBackoff()
	first := b.next()
	if first < 1600*time.Millisecond || first > 2400*time.Millisecond {
		t.Errorf("first delay = %v, want 2s within jitter", first)
	}
	second := b.next()
	if second < 3200*time.Millisecond || second > 4800*time.Millisecond {
		t.Errorf("second delay = %v, want 4s within jitter", second)
	}
	for i := 0; i < 10; i++ {
		b.next()
	}
	if capped := b.current(); capped > 72*time.Second {
		t.Errorf("capped delay = %v, want at most the max plus jitter", capped)
	}
	b.reset()
	if again := b.current(); again > 2400*time.Millisecond {
		t.Errorf("delay after reset = %v, want back at the base", again)
	}
}
