package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ESDN83/enocean-mqtt-core/internal/enocean"
	"github.com/ESDN83/enocean-mqtt-core/internal/infrastructure/mqtt"
	"github.com/ESDN83/enocean-mqtt-core/internal/teachin"
)

// teachInCommand is the payload accepted on enocean/teachin/set.
type teachInCommand struct {
	Action  string `json:"action"`
	WindowS int    `json:"window_s,omitempty"`
	Name    string `json:"name,omitempty"`
}

// teachInStatus is the retained snapshot published on every session
// transition.
type teachInStatus struct {
	ID        string           `json:"id,omitempty"`
	State     string           `json:"state"`
	StartedAt *time.Time       `json:"started_at,omitempty"`
	Deadline  *time.Time       `json:"deadline,omitempty"`
	Candidate *candidateStatus `json:"candidate,omitempty"`
}

type candidateStatus struct {
	Address string    `json:"address"`
	Profile string    `json:"profile"`
	SeenAt  time.Time `json:"seen_at"`
}

// handleTeachInCommand drives the pairing machine from MQTT.
func (b *Bridge) handleTeachInCommand(_ string, payload []byte) error {
	var cmd teachInCommand
	if err := json.Unmarshal(payload, &cmd); err != nil {
		b.logger.Warn("malformed teach-in command", "error", err)
		return fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}

	switch cmd.Action {
	case "activate":
		window := b.window
		if cmd.WindowS > 0 {
			window = time.Duration(cmd.WindowS) * time.Second
		}
		session, err := b.machine.Activate(window)
		if err != nil {
			b.logger.Warn("teach-in activate rejected", "error", err)
			return err
		}
		b.logger.Info("teach-in activated", "session", session.ID, "window", window.String())
		return nil

	case "confirm":
		if cmd.Name == "" {
			b.logger.Warn("teach-in confirm without a name")
			return fmt.Errorf("%w: confirm requires a name", ErrInvalidCommand)
		}
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		session, err := b.machine.Confirm(ctx, cmd.Name)
		if err != nil {
			b.logger.Warn("teach-in confirm rejected", "name", cmd.Name, "error", err)
			return err
		}
		b.logger.Info("teach-in confirmed", "session", session.ID, "name", cmd.Name)
		return nil

	case "cancel":
		if _, err := b.machine.Cancel(); err != nil {
			b.logger.Warn("teach-in cancel rejected", "error", err)
			return err
		}
		return nil

	default:
		b.logger.Warn("unknown teach-in action", "action", cmd.Action)
		return fmt.Errorf("%w: action %q", ErrInvalidCommand, cmd.Action)
	}
}

// publishTeachInStatus is the machine's transition notifier.
func (b *Bridge) publishTeachInStatus(session teachin.Session) {
	status := teachInStatus{State: string(session.State)}
	if session.ID != "" {
		status.ID = session.ID
		startedAt, deadline := session.StartedAt, session.Deadline
		status.StartedAt = &startedAt
		status.Deadline = &deadline
	}
	if session.Candidate != nil {
		status.Candidate = &candidateStatus{
			Address: enocean.FormatAddress(session.Candidate.Address),
			Profile: session.Candidate.Profile.String(),
			SeenAt:  session.Candidate.SeenAt,
		}
	}

	raw, err := json.Marshal(status)
	if err != nil {
		b.logger.Error("teach-in status marshal failed", "error", err)
		return
	}
	if err := b.broker.Publish(b.topics.TeachInStatus(), raw, b.qos, true); err != nil {
		b.logger.Error("teach-in status publish failed", "error", err)
	}
}

// handleDeviceCommand encodes typed values from enocean/{device}/set
// and transmits them through the gateway.
func (b *Bridge) handleDeviceCommand(topic string, payload []byte) error {
	name, ok := deviceNameFromSetTopic(topic)
	if !ok {
		// The wildcard also matches the teach-in and system branches
		return nil
	}

	dev, err := b.registry.GetByName(name)
	if err != nil {
		b.logger.Warn("command for unknown device", "device", name)
		return fmt.Errorf("device %q: %w", name, err)
	}

	if b.gw == nil {
		b.logger.Warn("device command without gateway", "device", name)
		return ErrGatewayUnavailable
	}
	if dev.Sender == nil {
		b.logger.Warn("device command without sender address", "device", name)
		return fmt.Errorf("%w: %s", ErrNoSenderID, name)
	}

	var values map[string]any
	if err := json.Unmarshal(payload, &values); err != nil {
		b.logger.Warn("malformed device command", "device", name, "error", err)
		return fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}

	profile, err := b.engine.Effective(dev.Profile)
	if err != nil {
		return fmt.Errorf("device %q: %w", name, err)
	}

	encoded, err := enocean.Encode(profile, values)
	if err != nil {
		b.logger.Warn("device command encode failed", "device", name, "error", err)
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	t := enocean.Telegram{
		RORG:     profile.ID.RORG,
		Payload:  encoded,
		SenderID: *dev.Sender,
	}
	if err := b.gw.Send(ctx, t); err != nil {
		b.logger.Error("device command send failed", "device", name, "error", err)
		return err
	}

	b.logger.Info("device command sent", "device", name, "profile", profile.ID.String())
	return nil
}

// deviceNameFromSetTopic extracts the device segment of a set topic,
// rejecting the reserved branches the wildcard also matches.
func deviceNameFromSetTopic(topic string) (string, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[0] != mqtt.TopicPrefix || parts[2] != "set" {
		return "", false
	}
	name := parts[1]
	if name == "teachin" || name == "system" {
		return "", false
	}
	return name, true
}
