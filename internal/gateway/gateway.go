package gateway

import (
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goburrow/serial"

	"github.com/ESDN83/enocean-mqtt-core/internal/enocean"
)

// Defaults for transceiver communication.
const (
	// defaultBaudRate is the ESP3 serial line rate (8N1).
	defaultBaudRate = 57600

	// defaultConnectTimeout is the maximum time to wait for the
	// transport to open.
	defaultConnectTimeout = 10 * time.Second

	// defaultReconnectInterval is the initial delay between
	// reconnection attempts.
	defaultReconnectInterval = 5 * time.Second

	// maxReconnectInterval caps the reconnection backoff.
	maxReconnectInterval = 2 * time.Minute

	// defaultWriteTimeout bounds frame writes on TCP transports.
	defaultWriteTimeout = 5 * time.Second

	// telegramQueueSize is the buffer of the received telegram channel.
	telegramQueueSize = 100
)

// Config holds transceiver connection configuration.
type Config struct {
	// Address is the transceiver location. A plain path opens a serial
	// port ("/dev/ttyUSB0"); a "tcp://host:port" address dials TCP.
	Address string

	// BaudRate for serial transports. Default: 57600.
	BaudRate int

	// ConnectTimeout is the maximum time to wait for the transport.
	// Default: 10 seconds.
	ConnectTimeout time.Duration

	// ReconnectInterval is the initial delay between reconnection
	// attempts. Default: 5 seconds.
	ReconnectInterval time.Duration
}

// Stats holds operational statistics.
type Stats struct {
	TelegramsRx      uint64
	TelegramsTx      uint64
	TelegramsDropped uint64 // dropped because the telegram channel was full
	FramesSkipped    uint64 // non-radio packets and CRC resyncs
	ErrorsTotal      uint64
	ReconnectsTotal  uint64
	LastActivity     time.Time
	Connected        bool
	Reconnecting     bool
}

// Logger defines the logging interface used by the client.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// closeOnce wraps a channel with sync.Once to prevent double-close panics.
type closeOnce struct {
	ch   chan struct{}
	once sync.Once
}

func newCloseOnce() *closeOnce {
	return &closeOnce{ch: make(chan struct{})}
}

func (c *closeOnce) Close() {
	c.once.Do(func() { close(c.ch) })
}

func (c *closeOnce) Done() <-chan struct{} {
	return c.ch
}

// dialFunc opens the transport. Injectable for tests.
type dialFunc func(ctx context.Context, cfg Config) (io.ReadWriteCloser, error)

// Transceiver is the slice of the gateway the pipeline needs.
type Transceiver interface {
	Telegrams() <-chan enocean.Telegram
	Send(ctx context.Context, t enocean.Telegram) error
	IsConnected() bool
	Stats() Stats
	Close() error
}

// Ensure Client implements Transceiver.
var _ Transceiver = (*Client)(nil)

// Client connects to an ESP3 transceiver.
//
// Thread Safety: all methods are safe for concurrent use. Received
// telegrams are delivered on a single buffered channel; telegrams are
// dropped when the consumer falls behind.
type Client struct {
	cfg  Config
	dial dialFunc

	connMu    sync.RWMutex
	conn      io.ReadWriteCloser
	reader    *enocean.FrameReader
	connected bool

	writeMu sync.Mutex

	reconnecting atomic.Bool

	telegrams chan enocean.Telegram

	done *closeOnce
	wg   sync.WaitGroup

	logger   Logger
	loggerMu sync.RWMutex

	telegramsRx      atomic.Uint64
	telegramsTx      atomic.Uint64
	telegramsDropped atomic.Uint64
	framesSkipped    atomic.Uint64
	errorsTotal      atomic.Uint64
	reconnectsTotal  atomic.Uint64
	lastActivity     atomic.Int64 // Unix timestamp
}

// Open connects to the transceiver and starts the receive loop.
func Open(ctx context.Context, cfg Config) (*Client, error) {
	return open(ctx, cfg, openTransport)
}

// open is the injectable constructor used by Open and by tests.
func open(ctx context.Context, cfg Config, dial dialFunc) (*Client, error) {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = defaultBaudRate
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.ReconnectInterval == 0 {
		cfg.ReconnectInterval = defaultReconnectInterval
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("%w: no address configured", ErrConnectionFailed)
	}

	if ctx == nil {
		ctx = context.Background()
	}
	dialCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	conn, err := dial(dialCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	c := &Client{
		cfg:       cfg,
		dial:      dial,
		conn:      conn,
		reader:    enocean.NewFrameReader(conn),
		connected: true,
		telegrams: make(chan enocean.Telegram, telegramQueueSize),
		done:      newCloseOnce(),
		logger:    noopLogger{},
	}
	c.lastActivity.Store(time.Now().Unix())

	c.wg.Add(1)
	go c.receiveLoop()

	return c, nil
}

// openTransport opens the configured transport. A "tcp://" address
// dials TCP; anything else is treated as a serial port path.
func openTransport(ctx context.Context, cfg Config) (io.ReadWriteCloser, error) {
	if addr, ok := strings.CutPrefix(cfg.Address, "tcp://"); ok {
		var dialer net.Dialer
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", cfg.Address, err)
		}
		return conn, nil
	}

	port, err := serial.Open(&serial.Config{
		Address:  cfg.Address,
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		StopBits: 1,
		Parity:   "N",
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Address, err)
	}
	return port, nil
}

// SetLogger sets the logger for this client.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	defer c.loggerMu.Unlock()
	if logger != nil {
		c.logger = logger
	}
}

// Telegrams returns the channel of received radio telegrams.
func (c *Client) Telegrams() <-chan enocean.Telegram {
	return c.telegrams
}

// receiveLoop reads frames until shutdown, reconnecting on transport
// failure.
func (c *Client) receiveLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.done.Done():
			return
		default:
		}

		c.connMu.RLock()
		reader := c.reader
		c.connMu.RUnlock()

		frame, err := reader.Read()
		if err != nil {
			if c.isClosed() {
				return
			}
			c.errorsTotal.Add(1)
			c.logError("transport read failed", err)
			c.handleDisconnect()
			if !c.reconnect() {
				return
			}
			continue
		}

		if frame.Type != enocean.PacketTypeRadioERP1 {
			// Command responses and events from the module
			c.framesSkipped.Add(1)
			c.logDebug("skipping non-radio packet", "type", fmt.Sprintf("%02X", frame.Type))
			continue
		}

		telegram, err := frame.Telegram()
		if err != nil {
			c.errorsTotal.Add(1)
			c.logError("malformed radio packet", err)
			continue
		}

		c.telegramsRx.Add(1)
		c.lastActivity.Store(time.Now().Unix())

		select {
		case c.telegrams <- telegram:
		default:
			// Consumer fell behind; dropping is better than blocking
			// the serial read.
			c.telegramsDropped.Add(1)
			c.logWarn("telegram channel full, dropping",
				"sender", enocean.FormatAddress(telegram.SenderID))
		}
	}
}

// handleDisconnect marks the connection as lost.
func (c *Client) handleDisconnect() {
	c.connMu.Lock()
	wasConnected := c.connected
	c.connected = false
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()

	if wasConnected {
		c.logInfo("transceiver connection lost, will attempt reconnection")
	}
}

// reconnect re-establishes the transport with exponential backoff.
// Returns false if shutdown was signalled.
func (c *Client) reconnect() bool {
	c.reconnecting.Store(true)
	defer c.reconnecting.Store(false)

	backoff := c.cfg.ReconnectInterval

	for attempt := 1; ; attempt++ {
		select {
		case <-c.done.Done():
			return false
		case <-time.After(backoff):
		}

		c.logInfo("attempting reconnection", "attempt", attempt, "backoff", backoff.String())

		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ConnectTimeout)
		conn, err := c.dial(ctx, c.cfg)
		cancel()
		if err != nil {
			c.errorsTotal.Add(1)
			c.logError("reconnect failed", err)

			backoff = time.Duration(float64(backoff) * 1.5)
			if backoff > maxReconnectInterval {
				backoff = maxReconnectInterval
			}
			continue
		}

		c.connMu.Lock()
		// Resyncs on the old stream are folded into the skip counter
		// here, where no other goroutine touches the reader.
		c.framesSkipped.Add(uint64(c.reader.Dropped())) //nolint:gosec // counter is non-negative
		c.conn = conn
		c.reader = enocean.NewFrameReader(conn)
		c.connected = true
		c.connMu.Unlock()

		c.reconnectsTotal.Add(1)
		c.lastActivity.Store(time.Now().Unix())
		c.logInfo("reconnection successful", "total_reconnects", c.reconnectsTotal.Load())
		return true
	}
}

// Send transmits a radio telegram through the transceiver.
func (c *Client) Send(ctx context.Context, t enocean.Telegram) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrSendFailed, ctx.Err())
	default:
	}

	c.connMu.RLock()
	conn := c.conn
	connected := c.connected
	c.connMu.RUnlock()

	if !connected || conn == nil {
		return ErrNotConnected
	}

	raw := t.Frame().Encode()

	// TCP transports honour write deadlines; serial writes are
	// effectively immediate at 57600 baud.
	if nc, ok := conn.(net.Conn); ok {
		deadline := time.Now().Add(defaultWriteTimeout)
		if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
			deadline = d
		}
		if err := nc.SetWriteDeadline(deadline); err != nil {
			return fmt.Errorf("%w: set deadline: %w", ErrSendFailed, err)
		}
	}

	c.writeMu.Lock()
	_, err := conn.Write(raw)
	c.writeMu.Unlock()
	if err != nil {
		c.errorsTotal.Add(1)
		return fmt.Errorf("%w: write: %w", ErrSendFailed, err)
	}

	c.telegramsTx.Add(1)
	c.lastActivity.Store(time.Now().Unix())
	c.logDebug("telegram sent",
		"rorg", fmt.Sprintf("%02X", t.RORG),
		"sender", enocean.FormatAddress(t.SenderID),
	)
	return nil
}

// IsConnected reports whether the transport is up.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected
}

// Stats returns current operational statistics. FramesSkipped lags by
// the current stream's resyncs, which are folded in on reconnect.
func (c *Client) Stats() Stats {
	return Stats{
		TelegramsRx:      c.telegramsRx.Load(),
		TelegramsTx:      c.telegramsTx.Load(),
		TelegramsDropped: c.telegramsDropped.Load(),
		FramesSkipped:    c.framesSkipped.Load(),
		ErrorsTotal:      c.errorsTotal.Load(),
		ReconnectsTotal:  c.reconnectsTotal.Load(),
		LastActivity:     time.Unix(c.lastActivity.Load(), 0),
		Connected:        c.IsConnected(),
		Reconnecting:     c.reconnecting.Load(),
	}
}

// Close shuts down the client and closes the transport. Safe to call
// multiple times.
func (c *Client) Close() error {
	c.done.Close()

	c.connMu.Lock()
	c.connected = false
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()

	c.wg.Wait()
	c.logInfo("transceiver connection closed")
	return nil
}

// isClosed reports whether shutdown has been signalled.
func (c *Client) isClosed() bool {
	select {
	case <-c.done.Done():
		return true
	default:
		return false
	}
}

func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

func (c *Client) logDebug(msg string, args ...any) { c.getLogger().Debug(msg, args...) }
func (c *Client) logInfo(msg string, args ...any)  { c.getLogger().Info(msg, args...) }
func (c *Client) logWarn(msg string, args ...any)  { c.getLogger().Warn(msg, args...) }
func (c *Client) logError(msg string, err error)   { c.getLogger().Error(msg, "error", err) }
