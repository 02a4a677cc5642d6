package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ESDN83/enocean-mqtt-core/internal/device"
	"github.com/ESDN83/enocean-mqtt-core/internal/eep"
	"github.com/ESDN83/enocean-mqtt-core/internal/enocean"
	"github.com/ESDN83/enocean-mqtt-core/internal/infrastructure/mqtt"
	"github.com/ESDN83/enocean-mqtt-core/internal/teachin"
)

// defaultTeachInWindow bounds teach-in listening when the activate
// command carries no window.
const defaultTeachInWindow = 60 * time.Second

// commandTimeout bounds registry writes triggered from MQTT handlers.
const commandTimeout = 5 * time.Second

// dirtyFlushInterval is how often the processor retries failed device
// state writes.
const dirtyFlushInterval = 30 * time.Second

// Gateway is the slice of the transceiver client the bridge needs.
// Nil when the core runs without hardware.
type Gateway interface {
	Telegrams() <-chan enocean.Telegram
	Send(ctx context.Context, t enocean.Telegram) error
}

// Broker is the slice of the MQTT client the bridge needs.
type Broker interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// History records decoded values for trending. Nil disables recording.
type History interface {
	WriteFieldValue(device, field, unit string, number float64, raw uint32)
	WriteSignal(device string, dbm int)
}

// Logger defines the logging interface used by the bridge.
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

// Config assembles the bridge's collaborators.
type Config struct {
	Gateway  Gateway // optional
	Registry *device.Registry
	Engine   *eep.Engine
	Machine  *teachin.Machine
	Buffer   *enocean.Buffer
	Broker   Broker
	History  History // optional
	QoS      byte

	// TeachInWindow is the default listening window for activate
	// commands without an explicit one.
	TeachInWindow time.Duration
}

// Bridge runs the telegram pipeline and the MQTT command surface.
//
// Thread Safety: all telegram processing happens on one goroutine, so
// decode, state merge and publish for a given telegram are serialized.
// MQTT command handlers run on the broker client's goroutines and only
// touch the thread-safe collaborators.
type Bridge struct {
	gw       Gateway
	registry *device.Registry
	engine   *eep.Engine
	machine  *teachin.Machine
	buffer   *enocean.Buffer
	broker   Broker
	history  History
	topics   mqtt.Topics
	qos      byte
	window   time.Duration
	flushInt time.Duration

	logger Logger
	wg     sync.WaitGroup
}

// New assembles a bridge. Gateway and History may be nil; everything
// else is required.
func New(cfg Config) (*Bridge, error) {
	if cfg.Registry == nil || cfg.Engine == nil || cfg.Machine == nil ||
		cfg.Buffer == nil || cfg.Broker == nil {
		return nil, errors.New("bridge: registry, engine, machine, buffer and broker are required")
	}
	if cfg.TeachInWindow <= 0 {
		cfg.TeachInWindow = defaultTeachInWindow
	}

	return &Bridge{
		gw:       cfg.Gateway,
		registry: cfg.Registry,
		engine:   cfg.Engine,
		machine:  cfg.Machine,
		buffer:   cfg.Buffer,
		broker:   cfg.Broker,
		history:  cfg.History,
		qos:      cfg.QoS,
		window:   cfg.TeachInWindow,
		flushInt: dirtyFlushInterval,
		logger:   noopLogger{},
	}, nil
}

// SetLogger sets the logger for the bridge.
func (b *Bridge) SetLogger(logger Logger) {
	if logger != nil {
		b.logger = logger
	}
}

// Start subscribes the command topics and launches the processor.
// The processor stops when ctx is cancelled; call Close to wait for it.
func (b *Bridge) Start(ctx context.Context) error {
	b.machine.SetNotifier(b.publishTeachInStatus)

	if err := b.broker.Subscribe(b.topics.TeachInSet(), b.qos, b.handleTeachInCommand); err != nil {
		return fmt.Errorf("subscribing teach-in commands: %w", err)
	}
	if err := b.broker.Subscribe(b.topics.AllDeviceSets(), b.qos, b.handleDeviceCommand); err != nil {
		return fmt.Errorf("subscribing device commands: %w", err)
	}

	var telegrams <-chan enocean.Telegram
	if b.gw != nil {
		telegrams = b.gw.Telegrams()
	}

	b.wg.Add(1)
	go b.processLoop(ctx, telegrams)

	b.logger.Info("bridge started", "gateway", b.gw != nil, "history", b.history != nil)
	return nil
}

// Close waits for the processor to drain. Cancel the Start context
// first.
func (b *Bridge) Close() {
	b.wg.Wait()
}

// processLoop is the single serialized telegram processor. A nil
// channel blocks forever, which is exactly right for a core running
// without hardware.
func (b *Bridge) processLoop(ctx context.Context, telegrams <-chan enocean.Telegram) {
	defer b.wg.Done()

	flush := time.NewTicker(b.flushInt)
	defer flush.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-flush.C:
			b.registry.FlushDirty(ctx)
		case t, ok := <-telegrams:
			if !ok {
				return
			}
			b.process(ctx, t)
		}
	}
}

// process handles one received telegram end to end.
func (b *Bridge) process(ctx context.Context, t enocean.Telegram) {
	entry := enocean.Entry{Telegram: t}

	if t.IsTeachIn() {
		entry.TeachIn = true
		if dev, err := b.registry.Get(t.SenderID); err == nil {
			entry.Device = dev.Name
			entry.Profile = dev.Profile
		}
		if session, matched := b.machine.Observe(t); matched {
			b.logger.Info("teach-in candidate observed",
				"session", session.ID,
				"address", enocean.FormatAddress(t.SenderID),
			)
		}
		b.buffer.Push(entry)
		return
	}

	dev, err := b.registry.Get(t.SenderID)
	if err != nil {
		// Unknown sender; keep the raw telegram for later inspection
		b.logger.Debug("telegram from unknown sender",
			"address", enocean.FormatAddress(t.SenderID),
			"rorg", fmt.Sprintf("%02X", t.RORG),
		)
		b.buffer.Push(entry)
		return
	}
	entry.Device = dev.Name
	entry.Profile = dev.Profile

	profile, err := b.engine.Effective(dev.Profile)
	if err != nil {
		b.logger.Error("no effective profile for device",
			"device", dev.Name, "profile", dev.Profile.String(), "error", err)
		b.buffer.Push(entry)
		return
	}

	result, err := enocean.Decode(profile, t.Payload)
	if err != nil {
		b.logger.Warn("telegram decode failed",
			"device", dev.Name, "profile", profile.ID.String(), "error", err)
		b.buffer.Push(entry)
		return
	}
	entry.Values = result.Values
	entry.Degraded = result.Degraded

	for field, fieldErr := range result.FieldErrors {
		b.logger.Warn("field decode failed",
			"device", dev.Name, "field", field, "error", fieldErr)
	}

	updated, err := b.registry.ApplyDecoded(ctx, t.SenderID, toFieldStates(result.Values, t.ReceivedAt))
	if err != nil {
		b.logger.Error("state merge failed", "device", dev.Name, "error", err)
		b.buffer.Push(entry)
		return
	}

	b.publishState(updated, t, result)
	b.record(dev.Name, t, result)
	b.buffer.Push(entry)
}

// toFieldStates converts decoded values into registry state entries.
func toFieldStates(values map[string]enocean.Value, at time.Time) map[string]device.FieldState {
	fields := make(map[string]device.FieldState, len(values))
	for shortcut, v := range values {
		fields[shortcut] = device.FieldState{
			Raw:       v.Raw,
			Number:    v.Number,
			Label:     v.Label,
			Unit:      v.Unit,
			UpdatedAt: at,
		}
	}
	return fields
}

// statePayload is the retained JSON published per decoded telegram.
type statePayload struct {
	Device     string                  `json:"device"`
	Address    string                  `json:"address"`
	Profile    string                  `json:"profile"`
	ReceivedAt time.Time               `json:"received_at"`
	DBm        int                     `json:"dbm,omitempty"`
	Degraded   bool                    `json:"degraded,omitempty"`
	Fields     map[string]fieldPayload `json:"fields"`
}

type fieldPayload struct {
	Raw   uint32   `json:"raw"`
	Value *float64 `json:"value,omitempty"`
	Label string   `json:"label,omitempty"`
	Unit  string   `json:"unit,omitempty"`
}

// publishState publishes the decoded state to the device's state topic.
func (b *Bridge) publishState(dev *device.Device, t enocean.Telegram, result enocean.Result) {
	payload := statePayload{
		Device:     dev.Name,
		Address:    dev.AddressString(),
		Profile:    dev.Profile.String(),
		ReceivedAt: t.ReceivedAt,
		DBm:        t.DBm,
		Degraded:   result.Degraded,
		Fields:     make(map[string]fieldPayload, len(result.Values)),
	}

	for shortcut, v := range result.Values {
		fp := fieldPayload{Raw: v.Raw, Unit: v.Unit}
		if v.Kind == enocean.KindNumber {
			number := v.Number
			fp.Value = &number
		} else {
			fp.Label = v.Label
		}
		payload.Fields[shortcut] = fp
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		b.logger.Error("state payload marshal failed", "device", dev.Name, "error", err)
		return
	}

	topic := b.topics.DeviceState(dev.Name)
	if err := b.broker.Publish(topic, raw, b.qos, true); err != nil {
		b.logger.Error("state publish failed", "device", dev.Name, "topic", topic, "error", err)
	}
}

// record writes decoded numbers and link quality to the history sink.
func (b *Bridge) record(name string, t enocean.Telegram, result enocean.Result) {
	if b.history == nil {
		return
	}

	for shortcut, v := range result.Values {
		if v.Kind == enocean.KindNumber {
			b.history.WriteFieldValue(name, shortcut, v.Unit, v.Number, v.Raw)
		}
	}
	if t.DBm != 0 {
		b.history.WriteSignal(name, t.DBm)
	}
}
