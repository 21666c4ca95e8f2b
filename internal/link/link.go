// Package link owns one bidirectional MAVLink v2 transport: a UDP, TCP, or
// serial endpoint wrapped in a gomavlib node, the GCS-side handshake, and
// the component inventory observed on that transport before any Vehicle
// exists.
package link

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bluenviron/gomavlib/v3"
	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/bluenviron/gomavlib/v3/pkg/message"

	"github.com/mavgcs/gcs-core/internal/logging"
	"github.com/mavgcs/gcs-core/internal/profile"
)

const (
	gcsSystemID    = 255
	gcsComponentID = 0
	handshakeTimeout = 10 * time.Second
	autopilotComponentID = 1
)

// Config describes how to open one Link.
type Config struct {
	ID        string
	Transport string // "udpin:host:port", "udpout:host:port", "tcp:host:port", "serial:path:baud"
}

// Link is one open MAVLink transport shared by every Vehicle discovered on
// it.
type Link struct {
	ID      string
	node    *gomavlib.Node
	log     *logging.Logger
	opened  time.Time
	pending []*gomavlib.EventFrame
}

// ParseEndpoint turns a transport string (§6) into a gomavlib endpoint
// configuration.
func ParseEndpoint(transport string) (gomavlib.EndpointConf, error) {
	parts := strings.SplitN(transport, ":", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("malformed transport string: %q", transport)
	}
	kind, rest := parts[0], parts[1]

	switch kind {
	case "udpin":
		return gomavlib.EndpointUDPServer{Address: rest}, nil
	case "udpout":
		return gomavlib.EndpointUDPClient{Address: rest}, nil
	case "tcp":
		return gomavlib.EndpointTCPServer{Address: rest}, nil
	case "serial":
		devBaud := strings.SplitN(rest, ":", 2)
		device := devBaud[0]
		baud := 57600
		if len(devBaud) == 2 {
			if b, err := strconv.Atoi(devBaud[1]); err == nil {
				baud = b
			}
		}
		return gomavlib.EndpointSerial{Device: device, Baud: baud}, nil
	default:
		return nil, fmt.Errorf("unknown transport kind: %q", kind)
	}
}

// Open builds the gomavlib node and blocks until either a HEARTBEAT from
// component 1 with a recognized vehicle MAV_TYPE is observed (success) or
// the handshake window elapses (failure). Every frame received during the
// window, peripheral heartbeats included, is kept for the caller to
// retrieve with Drain.
func Open(ctx context.Context, cfg Config, log *logging.Logger) (*Link, error) {
	endpoint, err := ParseEndpoint(cfg.Transport)
	if err != nil {
		return nil, err
	}

	node, err := gomavlib.NewNode(gomavlib.NodeConf{
		Endpoints:   []gomavlib.EndpointConf{endpoint},
		Dialect:     common.Dialect,
		OutVersion:  gomavlib.V2,
		OutSystemID: gcsSystemID,
	})
	if err != nil {
		return nil, fmt.Errorf("open link %s: %w", cfg.ID, err)
	}

	l := &Link{ID: cfg.ID, node: node, log: log, opened: time.Now()}

	if err := l.awaitHandshake(ctx); err != nil {
		node.Close()
		return nil, err
	}

	return l, nil
}

// awaitHandshake drains events for up to handshakeTimeout looking for an
// autopilot heartbeat. Frames are not classified here: gomavlib does not
// buffer past events, so every frame observed during the window, including
// the heartbeat that completes the handshake, is appended to the pending
// buffer returned by Drain, and the Router processes them once the Link is
// handed off to it.
func (l *Link) awaitHandshake(ctx context.Context) error {
	deadline := time.Now().Add(handshakeTimeout)
	hctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	for {
		select {
		case <-hctx.Done():
			return fmt.Errorf("link %s: no autopilot heartbeat within %s", l.ID, handshakeTimeout)
		case evt, ok := <-l.node.Events():
			if !ok {
				return fmt.Errorf("link %s: node closed during handshake", l.ID)
			}
			frm, ok := evt.(*gomavlib.EventFrame)
			if !ok {
				continue
			}
			l.pending = append(l.pending, frm)
			if hb, ok := frm.Message().(*common.MessageHeartbeat); ok {
				if frm.ComponentID() == autopilotComponentID && profile.VehicleTypes[uint8(hb.Type)] {
					l.log.Infof("link %s: autopilot heartbeat from system %d (mav_type=%d)", l.ID, frm.SystemID(), hb.Type)
					return nil
				}
			}
		}
	}
}

// Drain returns and clears any frames buffered during the handshake
// window, so the Router processes them exactly once.
func (l *Link) Drain() []*gomavlib.EventFrame {
	p := l.pending
	l.pending = nil
	return p
}

// Events exposes the node's event channel for the worker loop.
func (l *Link) Events() chan gomavlib.Event {
	return l.node.Events()
}

// WriteTo sends a message to every channel on this link (gomavlib does not
// expose fine-grained per-target routing below the message's own
// target_system/target_component fields).
func (l *Link) WriteTo(msg message.Message) error {
	return l.node.WriteMessageAll(msg)
}

// Close tears down the transport. Idempotent.
func (l *Link) Close() {
	l.node.Close()
}
