package gateway

import (
	"context"
	"errors"
	"io"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ESDN83/enocean-mqtt-core/internal/enocean"
)

// sampleTelegram is a 4BS temperature report from 0xFFBD7480.
func sampleTelegram() enocean.Telegram {
	return enocean.Telegram{
		RORG:     0xA5,
		Payload:  []byte{0x00, 0x64, 0x00, 0x08},
		SenderID: 0xFFBD7480,
	}
}

// sampleFrameBytes encodes the sample telegram as a received ERP1
// packet with a signal strength of -45 dBm.
func sampleFrameBytes() []byte {
	f := enocean.Frame{
		Type:     enocean.PacketTypeRadioERP1,
		Data:     []byte{0xA5, 0x00, 0x64, 0x00, 0x08, 0xFF, 0xBD, 0x74, 0x80, 0x00},
		Optional: []byte{0x01, 0xFF, 0xFF, 0xFF, 0xFF, 0x2D, 0x00},
	}
	return f.Encode()
}

// pipeDialer hands out the client ends of pre-made pipes, one per
// dial, failing once the pipes run out.
type pipeDialer struct {
	clients []io.ReadWriteCloser
	calls   atomic.Int32
}

func (d *pipeDialer) dial(_ context.Context, _ Config) (io.ReadWriteCloser, error) {
	n := int(d.calls.Add(1)) - 1
	if n >= len(d.clients) {
		return nil, errors.New("no transport available")
	}
	return d.clients[n], nil
}

func openTestClient(t *testing.T, servers int) (*Client, []net.Conn) {
	t.Helper()

	dialer := &pipeDialer{}
	serverEnds := make([]net.Conn, 0, servers)
	for i := 0; i < servers; i++ {
		client, server := net.Pipe()
		dialer.clients = append(dialer.clients, client)
		serverEnds = append(serverEnds, server)
	}

	c, err := open(context.Background(), Config{
		Address:           "test",
		ReconnectInterval: 10 * time.Millisecond,
	}, dialer.dial)
	if err != nil {
		t.Fatalf("open() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })

	return c, serverEnds
}

func receiveTelegram(t *testing.T, c *Client) enocean.Telegram {
	t.Helper()
	select {
	case tg := <-c.Telegrams():
		return tg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for telegram")
		return enocean.Telegram{}
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// ─── Receive Tests ───────────────────────────────────────────────────────────

func TestClient_ReceivesTelegram(t *testing.T) {
	c, servers := openTestClient(t, 1)

	go servers[0].Write(sampleFrameBytes())

	tg := receiveTelegram(t, c)
	if tg.SenderID != 0xFFBD7480 {
		t.Errorf("SenderID = %#x, want 0xFFBD7480", tg.SenderID)
	}
	if tg.RORG != 0xA5 {
		t.Errorf("RORG = %#x, want 0xA5", tg.RORG)
	}
	if tg.DBm != -45 {
		t.Errorf("DBm = %d, want -45", tg.DBm)
	}
	if got := c.Stats().TelegramsRx; got != 1 {
		t.Errorf("TelegramsRx = %d, want 1", got)
	}
}

func TestClient_SkipsNonRadioPackets(t *testing.T) {
	c, servers := openTestClient(t, 1)

	response := enocean.Frame{Type: enocean.PacketTypeResponse, Data: []byte{0x00}}
	go func() {
		servers[0].Write(response.Encode())
		servers[0].Write(sampleFrameBytes())
	}()

	tg := receiveTelegram(t, c)
	if tg.RORG != 0xA5 {
		t.Errorf("RORG = %#x, want 0xA5", tg.RORG)
	}
	if got := c.Stats().FramesSkipped; got != 1 {
		t.Errorf("FramesSkipped = %d, want 1", got)
	}
	if got := c.Stats().TelegramsRx; got != 1 {
		t.Errorf("TelegramsRx = %d, want 1", got)
	}
}

// ─── Send Tests ──────────────────────────────────────────────────────────────

func TestClient_Send(t *testing.T) {
	c, servers := openTestClient(t, 1)

	tg := sampleTelegram()
	want := tg.Frame().Encode()

	errCh := make(chan error, 1)
	go func() {
		errCh <- c.Send(context.Background(), tg)
	}()

	got := make([]byte, len(want))
	if _, err := io.ReadFull(servers[0], got); err != nil {
		t.Fatalf("reading sent frame: %v", err)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	frame, err := enocean.ParseFrame(got)
	if err != nil {
		t.Fatalf("ParseFrame() error = %v", err)
	}
	sent, err := frame.Telegram()
	if err != nil {
		t.Fatalf("Telegram() error = %v", err)
	}
	if sent.SenderID != tg.SenderID {
		t.Errorf("sent SenderID = %#x, want %#x", sent.SenderID, tg.SenderID)
	}
	if got := c.Stats().TelegramsTx; got != 1 {
		t.Errorf("TelegramsTx = %d, want 1", got)
	}
}

func TestClient_SendWhileDisconnected(t *testing.T) {
	c, servers := openTestClient(t, 1)

	// Dropping the transport leaves the client reconnecting against a
	// dialer with no transports left.
	servers[0].Close()
	waitFor(t, "disconnect", func() bool { return !c.IsConnected() })

	if err := c.Send(context.Background(), sampleTelegram()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send() error = %v, want ErrNotConnected", err)
	}
}

// ─── Reconnection Tests ──────────────────────────────────────────────────────

func TestClient_ReconnectsAfterTransportLoss(t *testing.T) {
	c, servers := openTestClient(t, 2)

	servers[0].Close()
	waitFor(t, "reconnect", func() bool { return c.Stats().ReconnectsTotal == 1 })
	waitFor(t, "connected", c.IsConnected)

	// The replacement transport carries telegrams as before
	go servers[1].Write(sampleFrameBytes())
	tg := receiveTelegram(t, c)
	if tg.SenderID != 0xFFBD7480 {
		t.Errorf("SenderID = %#x, want 0xFFBD7480", tg.SenderID)
	}
}

// ─── Lifecycle Tests ─────────────────────────────────────────────────────────

func TestOpen_RequiresAddress(t *testing.T) {
	if _, err := open(context.Background(), Config{}, (&pipeDialer{}).dial); !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("open() error = %v, want ErrConnectionFailed", err)
	}
}

func TestOpen_DialFailure(t *testing.T) {
	if _, err := open(context.Background(), Config{Address: "test"}, (&pipeDialer{}).dial); !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("open() error = %v, want ErrConnectionFailed", err)
	}
}

func TestClient_CloseIsIdempotent(t *testing.T) {
	c, _ := openTestClient(t, 1)

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if c.IsConnected() {
		t.Error("IsConnected() = true after Close")
	}
}
