package listener

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/smazurov/framelink/internal/control"
	"github.com/smazurov/framelink/internal/events"
	"github.com/smazurov/framelink/internal/transport"
	"github.com/smazurov/framelink/pkg/wire"
)

func startListener(t *testing.T, bus *events.Bus) (*Listener, int) {
	t.Helper()
	if bus == nil {
		bus = events.New()
	}
	l := New(Config{Host: "127.0.0.1", ReadTimeout: 2 * time.Second}, bus)
	if err := l.Listen(); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Serve: %v", err)
		}
	})
	return l, l.Addr().(*net.TCPAddr).Port
}

func testMetadata() wire.Metadata {
	return wire.Metadata{
		CameraID:       "0",
		CameraFacing:   wire.FacingRear,
		Resolution:     "640x480",
		Quality:        80,
		ConnectionType: wire.ConnectionWiFi,
	}
}

func produce(t *testing.T, port int) *transport.Conn {
	t.Helper()
	c, err := transport.Dial(context.Background(), "127.0.0.1", port, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close() })
	if err := c.SendMetadata(testMetadata()); err != nil {
		t.Fatal(err)
	}
	return c
}

// rawProduce connects without the framing helpers so tests can send
// arbitrary length prefixes.
func rawProduce(t *testing.T, port int) net.Conn {
	t.Helper()
	c, err := net.Dial("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func writeHeader(t *testing.T, c net.Conn, n uint32) {
	t.Helper()
	var hdr [wire.HeaderSize]byte
	binary.BigEndian.PutUint32(hdr[:], n)
	if _, err := c.Write(hdr[:]); err != nil {
		t.Fatal(err)
	}
}

func next(t *testing.T, l *Listener) *Frame {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	f, err := l.Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	return f
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestMetadataThenFrames(t *testing.T) {
	l, port := startListener(t, nil)
	c := produce(t, port)

	if err := c.SendFrame([]byte("frame-1")); err != nil {
		t.Fatal(err)
	}
	f := next(t, l)
	if string(f.Data) != "frame-1" || f.Seq != 1 {
		t.Errorf("got %q seq %d, want frame-1 seq 1", f.Data, f.Seq)
	}

	st := l.Stats()
	if !st.Connected || st.Frames != 1 {
		t.Errorf("stats = %+v", st)
	}
	if st.Metadata == nil || *st.Metadata != testMetadata() {
		t.Errorf("metadata = %+v, want %+v", st.Metadata, testMetadata())
	}
}

func TestSkipsInvalidLengths(t *testing.T) {
	l, port := startListener(t, nil)
	c := rawProduce(t, port)

	md, _ := testMetadata().Encode()
	writeHeader(t, c, uint32(len(md)))
	_, _ = c.Write(md)

	writeHeader(t, c, 0)
	writeHeader(t, c, wire.MaxFrameSize+1)
	if _, err := c.Write(make([]byte, wire.MaxFrameSize+1)); err != nil {
		t.Fatal(err)
	}
	writeHeader(t, c, 3)
	_, _ = c.Write([]byte("jpg"))

	f := next(t, l)
	if string(f.Data) != "jpg" {
		t.Errorf("got %q, want jpg", f.Data)
	}
	if st := l.Stats(); st.Skipped != 2 || st.Frames != 1 {
		t.Errorf("skipped %d frames %d, want 2 and 1", st.Skipped, st.Frames)
	}
}

func TestLargeFirstMessageIsAFrame(t *testing.T) {
	l, port := startListener(t, nil)
	c := rawProduce(t, port)

	payload := bytes.Repeat([]byte{0xff}, wire.MaxMetadataSize)
	writeHeader(t, c, uint32(len(payload)))
	_, _ = c.Write(payload)

	f := next(t, l)
	if len(f.Data) != len(payload) {
		t.Errorf("got %d bytes, want %d", len(f.Data), len(payload))
	}
	if l.Stats().Metadata != nil {
		t.Error("oversized first message should not be taken as metadata")
	}
}

func TestMalformedMetadataIsIgnored(t *testing.T) {
	l, port := startListener(t, nil)
	c := rawProduce(t, port)

	writeHeader(t, c, 5)
	_, _ = c.Write([]byte("nope!"))
	writeHeader(t, c, 3)
	_, _ = c.Write([]byte("jpg"))

	if f := next(t, l); string(f.Data) != "jpg" {
		t.Errorf("got %q, want jpg", f.Data)
	}
	if l.Stats().Metadata != nil {
		t.Error("malformed metadata was recorded")
	}
}

func TestNextKeepsNewest(t *testing.T) {
	l, port := startListener(t, nil)
	c := produce(t, port)

	for i := range 3 {
		if err := c.SendFrame([]byte{byte(i)}); err != nil {
			t.Fatal(err)
		}
	}
	waitFor(t, "three frames", func() bool { return l.Stats().Frames == 3 })

	if f := next(t, l); f.Seq != 3 {
		t.Errorf("got seq %d, want 3", f.Seq)
	}
	if d := l.Stats().Dropped; d != 2 {
		t.Errorf("dropped = %d, want 2", d)
	}
}

func TestSendControlAndReset(t *testing.T) {
	l, port := startListener(t, nil)
	c := produce(t, port)
	waitFor(t, "producer", func() bool { return l.Stats().Connected })

	if err := l.SendControl(control.Command{Kind: control.KindZoom, Value: 2.5}); err != nil {
		t.Fatal(err)
	}
	if err := l.Reset(); err != nil {
		t.Fatal(err)
	}

	want := []string{"ZOOM:2.50"}
	for _, cmd := range control.DefaultParameters().Commands() {
		want = append(want, cmd.String())
	}
	for _, w := range want {
		got, err := c.ReadControlLine()
		if err != nil {
			t.Fatal(err)
		}
		if got != w {
			t.Errorf("got %q, want %q", got, w)
		}
	}
}

func TestSendControlWithoutProducer(t *testing.T) {
	l, _ := startListener(t, nil)
	if err := l.SendControlLine("FLASH:ON"); !errors.Is(err, ErrNoProducer) {
		t.Errorf("got %v, want ErrNoProducer", err)
	}
}

func TestProducerEvents(t *testing.T) {
	bus := events.New()
	ch := make(chan any, 4)
	defer events.SubscribeToChannel[events.ProducerConnectedEvent](bus, ch)()
	defer events.SubscribeToChannel[events.ProducerDisconnectedEvent](bus, ch)()

	l, port := startListener(t, bus)
	c := produce(t, port)
	if err := c.SendFrame([]byte("x")); err != nil {
		t.Fatal(err)
	}
	next(t, l)
	_ = c.Close()

	var got []any
	timeout := time.After(2 * time.Second)
	for len(got) < 2 {
		select {
		case e := <-ch:
			got = append(got, e)
		case <-timeout:
			t.Fatalf("got %d events, want 2", len(got))
		}
	}

	connected, ok := got[0].(events.ProducerConnectedEvent)
	if !ok || connected.CameraID != "0" || connected.Resolution != "640x480" {
		t.Errorf("first event = %+v", got[0])
	}
	disconnected, ok := got[1].(events.ProducerDisconnectedEvent)
	if !ok || disconnected.Frames != 1 || disconnected.Reason != "closed" {
		t.Errorf("second event = %+v", got[1])
	}
	waitFor(t, "disconnect", func() bool { return !l.Stats().Connected })
}

func TestProducersServedInTurn(t *testing.T) {
	l, port := startListener(t, nil)

	first := produce(t, port)
	_ = first.SendFrame([]byte("a"))
	next(t, l)
	_ = first.Close()

	second := produce(t, port)
	_ = second.SendFrame([]byte("b"))
	if f := next(t, l); string(f.Data) != "b" || f.Seq != 1 {
		t.Errorf("got %q seq %d, want b seq 1", f.Data, f.Seq)
	}
}

func TestNextAfterClose(t *testing.T) {
	l := New(Config{Host: "127.0.0.1"}, events.New())
	if err := l.Listen(); err != nil {
		t.Fatal(err)
	}
	l.Close()
	l.Close()

	if _, err := l.Next(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("got %v, want ErrClosed", err)
	}
}

func TestPreviewBroadcast(t *testing.T) {
	l, port := startListener(t, nil)
	srv := httptest.NewServer(l.Preview())
	defer srv.Close()

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer ws.Close()
	waitFor(t, "viewer", func() bool { return l.Preview().Count() == 1 })

	c := produce(t, port)
	if err := c.SendFrame([]byte("preview")); err != nil {
		t.Fatal(err)
	}

	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	typ, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	if typ != websocket.BinaryMessage || string(data) != "preview" {
		t.Errorf("got type %d %q, want binary preview", typ, data)
	}

	_ = ws.Close()
	waitFor(t, "viewer removal", func() bool { return l.Preview().Count() == 0 })
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestDisconnectReason(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{io.EOF, "closed"},
		{io.ErrUnexpectedEOF, "closed"},
		{&net.OpError{Op: "read", Err: timeoutError{}}, "timeout"},
		{net.ErrClosed, "shutdown"},
		{io.ErrClosedPipe, "shutdown"},
		{errors.New("connection reset by peer"), "connection reset by peer"},
	}
	for _, tt := range tests {
		if got := disconnectReason(tt.err); got != tt.want {
			t.Errorf("disconnectReason(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
