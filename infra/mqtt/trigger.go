package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/kilianp07/freightmatch/core/monitoring"
	"github.com/kilianp07/freightmatch/infra/logger"
)

// Retrainer rebuilds the price model from historical records.
type Retrainer interface {
	Retrain(ctx context.Context) (int, error)
}

// Command is the optional payload of a retrain request.
type Command struct {
	RequestID string `json:"request_id"`
}

// Status is published on the status topic once a request is handled.
type Status struct {
	RequestID string `json:"request_id"`
	Samples   int    `json:"samples"`
	Skipped   bool   `json:"skipped,omitempty"`
	Error     string `json:"error,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// Trigger listens for retrain commands on an MQTT topic. Only one retrain
// runs at a time; commands arriving meanwhile are answered as skipped.
type Trigger struct {
	cli       pahoClient
	cfg       Config
	retrainer Retrainer
	log       logger.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	running atomic.Bool
	wg      sync.WaitGroup
}

// NewTrigger connects to the broker and subscribes to the command topic on
// every (re)connect.
func NewTrigger(cfg Config, r Retrainer, log logger.Logger) (*Trigger, error) {
	if r == nil {
		return nil, errors.New("mqtt: nil retrainer")
	}
	cfg.SetDefaults()
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.New("mqtt_trigger")
	}
	ctx, cancel := context.WithCancel(context.Background())
	t := &Trigger{cfg: cfg, retrainer: r, log: log, ctx: ctx, cancel: cancel}

	opts.OnConnect = func(c paho.Client) {
		t.log.Infof("MQTT connected, listening on %s", t.cfg.CommandTopic)
		if token := c.Subscribe(t.cfg.CommandTopic, t.cfg.qos("command"), t.onCommand); token.Wait() && token.Error() != nil {
			t.log.Errorf("subscribe error: %v", token.Error())
		}
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		t.log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		t.log.Warnf("reconnecting to MQTT broker")
	}
	c := newMQTTClient(opts)
	t.cli = c
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		cancel()
		return nil, token.Error()
	}
	return t, nil
}

// onCommand hands the request to a goroutine so paho's delivery loop is not
// blocked for the length of a retrain.
func (t *Trigger) onCommand(_ paho.Client, msg paho.Message) {
	payload := msg.Payload()
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer monitoring.Recover()
		t.handle(payload)
	}()
}

func (t *Trigger) handle(payload []byte) {
	cmd, err := decodeCommand(payload)
	if err != nil {
		t.log.Errorf("failed to decode retrain command: %v", err)
		return
	}
	st := Status{RequestID: cmd.RequestID}
	if !t.running.CompareAndSwap(false, true) {
		t.log.Warnf("retrain %s skipped: another run in progress", cmd.RequestID)
		st.Skipped = true
		t.publishStatus(st)
		return
	}
	ctx, cancel := context.WithTimeout(t.ctx, time.Duration(t.cfg.TimeoutSec)*time.Second)
	n, err := t.retrainer.Retrain(ctx)
	cancel()
	t.running.Store(false)

	st.Samples = n
	if err != nil {
		st.Error = err.Error()
		t.log.Errorf("retrain %s failed: %v", cmd.RequestID, err)
	} else {
		t.log.Infof("retrain %s finished with %d samples", cmd.RequestID, n)
	}
	t.publishStatus(st)
}

func decodeCommand(payload []byte) (Command, error) {
	var cmd Command
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &cmd); err != nil {
			return cmd, err
		}
	}
	if cmd.RequestID == "" {
		cmd.RequestID = uuid.NewString()
	}
	return cmd, nil
}

func (t *Trigger) publishStatus(st Status) {
	st.Timestamp = time.Now().UnixMilli()
	payload, err := json.Marshal(st)
	if err != nil {
		t.log.Errorf("encode status: %v", err)
		return
	}
	topic := t.cfg.StatusTopic
	var publishErr error
	for attempt := 0; attempt <= t.cfg.MaxRetries; attempt++ {
		token := t.cli.Publish(topic, t.cfg.qos("status"), false, payload)
		token.Wait()
		publishErr = token.Error()
		if publishErr == nil {
			return
		}
		t.log.Errorf("publish attempt %d failed: %v", attempt+1, publishErr)
		if attempt < t.cfg.MaxRetries {
			time.Sleep(t.cfg.backoff() * time.Duration(1<<attempt))
		}
	}
	monitoring.CaptureException(fmt.Errorf("publish retrain status: %w", publishErr), map[string]string{
		"module":     "mqtt",
		"request_id": st.RequestID,
	})
}

// Run blocks until ctx is done, then disconnects.
func (t *Trigger) Run(ctx context.Context) error {
	<-ctx.Done()
	t.Disconnect()
	return nil
}

// Disconnect cancels running retrains, waits for handlers and closes the
// MQTT connection.
func (t *Trigger) Disconnect() {
	t.cancel()
	t.wg.Wait()
	if t.cli != nil && t.cli.IsConnected() {
		t.cli.Disconnect(250)
	}
}
