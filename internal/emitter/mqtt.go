// Package emitter publishes crossings, visits, alerts and counter
// snapshots to an MQTT broker.
package emitter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/banshee-data/occupancy.report/internal/monitoring"
	"github.com/banshee-data/occupancy.report/internal/occupancy"
)

const (
	connectTimeout = 5 * time.Second
	publishTimeout = 2 * time.Second
	queueSize      = 128
)

// ErrNotConnected is returned when publishing before Connect succeeded.
var ErrNotConnected = errors.New("mqtt not connected")

// Publisher is the part of mqtt.Client the emitter uses.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Options configures an MQTTEmitter.
type Options struct {
	Broker      string // host:port
	ClientID    string
	TopicPrefix string
}

// Stats counts publish outcomes.
type Stats struct {
	Published uint64 `json:"published"`
	Failed    uint64 `json:"failed"`
	Dropped   uint64 `json:"dropped"`
}

type message struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// MQTTEmitter is an occupancy.Sink and occupancy.AlertSink. Messages are
// queued without blocking and published from a single goroutine.
type MQTTEmitter struct {
	opts      Options
	newClient func(*mqtt.ClientOptions) mqtt.Client

	mu        sync.RWMutex
	pub       Publisher
	connected bool
	closed    bool

	queue chan message
	done  chan struct{}
	start sync.Once

	published, failed, dropped atomic.Uint64
}

// New returns an emitter that is not yet connected.
func New(opts Options) *MQTTEmitter {
	if opts.TopicPrefix == "" {
		opts.TopicPrefix = "occupancy"
	}
	opts.TopicPrefix = strings.TrimSuffix(opts.TopicPrefix, "/")
	return &MQTTEmitter{
		opts:      opts,
		newClient: mqtt.NewClient,
		queue:     make(chan message, queueSize),
		done:      make(chan struct{}),
	}
}

// NewWithPublisher returns a started emitter that publishes through pub.
func NewWithPublisher(opts Options, pub Publisher) *MQTTEmitter {
	e := New(opts)
	e.pub = pub
	e.connected = true
	e.run()
	return e
}

// Connect dials the broker and starts the publish goroutine. The client
// reconnects on its own after a lost connection.
func (e *MQTTEmitter) Connect(ctx context.Context) error {
	co := mqtt.NewClientOptions()
	co.AddBroker(fmt.Sprintf("tcp://%s", e.opts.Broker))
	co.SetClientID(e.opts.ClientID)
	co.SetAutoReconnect(true)
	co.SetMaxReconnectInterval(30 * time.Second)
	co.OnConnect = func(mqtt.Client) {
		e.setConnected(true)
		monitoring.Opsf("[mqtt] connected to %s as %s", e.opts.Broker, e.opts.ClientID)
	}
	co.OnConnectionLost = func(_ mqtt.Client, err error) {
		e.setConnected(false)
		monitoring.Opsf("[mqtt] connection to %s lost: %v", e.opts.Broker, err)
	}

	client := e.newClient(co)
	token := client.Connect()
	// An attempt still in flight is cancelled so it cannot complete
	// behind the caller's back.
	select {
	case <-token.Done():
	case <-ctx.Done():
		client.Disconnect(0)
		return ctx.Err()
	case <-time.After(connectTimeout):
		client.Disconnect(0)
		return fmt.Errorf("mqtt connect to %s: timeout", e.opts.Broker)
	}
	if err := token.Error(); err != nil {
		client.Disconnect(0)
		return fmt.Errorf("mqtt connect to %s: %w", e.opts.Broker, err)
	}

	e.mu.Lock()
	e.pub = client
	e.connected = true
	e.mu.Unlock()
	e.run()
	return nil
}

func (e *MQTTEmitter) setConnected(v bool) {
	e.mu.Lock()
	e.connected = v
	e.mu.Unlock()
}

func (e *MQTTEmitter) run() {
	e.start.Do(func() {
		go func() {
			defer close(e.done)
			for m := range e.queue {
				if err := e.publish(m); err != nil {
					e.failed.Add(1)
					monitoring.Diagf("[mqtt] publish %s: %v", m.topic, err)
					continue
				}
				e.published.Add(1)
			}
		}()
	})
}

func (e *MQTTEmitter) publish(m message) error {
	e.mu.RLock()
	pub, connected := e.pub, e.connected
	e.mu.RUnlock()
	if pub == nil || !connected {
		return ErrNotConnected
	}
	token := pub.Publish(m.topic, m.qos, m.retained, m.payload)
	if !token.WaitTimeout(publishTimeout) {
		return errors.New("publish timeout")
	}
	return token.Error()
}

// Close stops accepting messages and waits for the queue to drain.
func (e *MQTTEmitter) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	close(e.queue)
	pub := e.pub
	e.mu.Unlock()

	e.run()
	<-e.done
	if c, ok := pub.(mqtt.Client); ok {
		c.Disconnect(250)
	}
}

// Stats returns publish counters.
func (e *MQTTEmitter) Stats() Stats {
	return Stats{
		Published: e.published.Load(),
		Failed:    e.failed.Load(),
		Dropped:   e.dropped.Load(),
	}
}

func (e *MQTTEmitter) topic(parts ...string) string {
	return e.opts.TopicPrefix + "/" + strings.Join(parts, "/")
}

func (e *MQTTEmitter) enqueue(topic string, qos byte, retained bool, v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		monitoring.Diagf("[mqtt] encode %s: %v", topic, err)
		return
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		e.dropped.Add(1)
		return
	}
	select {
	case e.queue <- message{topic: topic, qos: qos, retained: retained, payload: payload}:
	default:
		e.dropped.Add(1)
	}
}

// RecordEvent publishes to <prefix>/events/<entry|exit>.
func (e *MQTTEmitter) RecordEvent(ev occupancy.CrossingEvent) {
	e.enqueue(e.topic("events", strings.ToLower(string(ev.Kind))), 1, false, ev)
}

// RecordVisit publishes to <prefix>/visits.
func (e *MQTTEmitter) RecordVisit(v occupancy.CompletedVisit) {
	e.enqueue(e.topic("visits"), 1, false, v)
}

// RecordAlert publishes to <prefix>/alerts/<severity>.
func (e *MQTTEmitter) RecordAlert(a occupancy.Alert) {
	e.enqueue(e.topic("alerts", string(a.Type)), 1, false, a)
}

// PublishSnapshot publishes the live counters as a retained message on
// <prefix>/stats so late subscribers see the current state.
func (e *MQTTEmitter) PublishSnapshot(s occupancy.Snapshot) {
	e.enqueue(e.topic("stats"), 0, true, s)
}

// Forward publishes every snapshot received on ch until ch closes or ctx
// is done.
func (e *MQTTEmitter) Forward(ctx context.Context, ch <-chan occupancy.Snapshot) {
	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-ch:
			if !ok {
				return
			}
			e.PublishSnapshot(s)
		}
	}
}
