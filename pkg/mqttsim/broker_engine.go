package mqttsim

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	mqttclient "github.com/eclipse/paho.mqtt.golang"
	mqtt "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"

	"github.com/protosim/simulatord/internal/id"
	"github.com/protosim/simulatord/pkg/monitor"
	"github.com/protosim/simulatord/pkg/mqttsim/rules"
)

// brokerProbeWindow bounds how long Start waits to detect an immediate
// listener failure (e.g. port already in use), per spec.md §4.4.
const brokerProbeWindow = 500 * time.Millisecond

// BrokerEngine embeds a mochi-mqtt broker and taps every PUBLISH through an
// internal monitor client, matching it against the simulator's rule engine
// (spec.md §4.4, ported from getmockd-mockd's pkg/mqtt/broker.go).
type BrokerEngine struct {
	wrapper *Wrapper
	log     *slog.Logger

	server  *mqtt.Server
	monitor mqttclient.Client
	errCh   chan error
}

// NewBrokerEngine builds a broker engine for wrapper's declared config.
func NewBrokerEngine(w *Wrapper, log *slog.Logger) *BrokerEngine {
	if log == nil {
		log = slog.Default()
	}
	return &BrokerEngine{wrapper: w, log: log}
}

func (e *BrokerEngine) Start() error {
	info := e.wrapper.Info()

	server := mqtt.New(&mqtt.Options{InlineClient: true})
	if err := server.AddHook(new(auth.AllowHook), nil); err != nil {
		return fmt.Errorf("mqtt broker: add allow hook: %w", err)
	}

	hasV311, hasV5 := false, false
	for _, v := range info.MqttVersions {
		if v == VersionV311 {
			hasV311 = true
		}
		if v == VersionV5 {
			hasV5 = true
		}
	}
	if !hasV311 && !hasV5 {
		hasV311 = true
	}

	primaryPort := info.Port
	if hasV311 {
		if err := addListener(server, "v311", info.BindAddr, info.Port); err != nil {
			return err
		}
	}
	if hasV5 {
		port := info.Port
		if hasV311 {
			port = info.Port + 1
		}
		if err := addListener(server, "v5", info.BindAddr, port); err != nil {
			return err
		}
		if !hasV311 {
			primaryPort = port
		}
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.Serve(); err != nil {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("mqtt broker: serve: %w", err)
	case <-time.After(brokerProbeWindow):
	}

	e.server = server
	e.errCh = errCh

	client, err := connectMonitorClient(primaryPort, e.handlePublish)
	if err != nil {
		_ = server.Close()
		return fmt.Errorf("mqtt broker: monitor client: %w", err)
	}
	e.monitor = client

	return nil
}

func addListener(server *mqtt.Server, idSuffix, bindAddr string, port int) error {
	ln := listeners.NewTCP(listeners.Config{
		ID:      fmt.Sprintf("mqttsim-%s-%d", idSuffix, port),
		Address: fmt.Sprintf("%s:%d", bindAddr, port),
	})
	if err := server.AddListener(ln); err != nil {
		return fmt.Errorf("mqtt broker: add listener %d: %w", port, err)
	}
	return nil
}

func connectMonitorClient(port int, onMessage mqttclient.MessageHandler) (mqttclient.Client, error) {
	opts := mqttclient.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://127.0.0.1:%d", port))
	opts.SetClientID(fmt.Sprintf("broker_monitor_%s", id.New()))
	opts.SetKeepAlive(30 * time.Second)
	opts.SetAutoReconnect(false)
	opts.SetDefaultPublishHandler(onMessage)

	client := mqttclient.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(brokerProbeWindow * 4) {
		return nil, errors.New("monitor client connect timeout")
	}
	if err := token.Error(); err != nil {
		return nil, err
	}

	subToken := client.Subscribe("#", 1, nil)
	subToken.Wait()
	if err := subToken.Error(); err != nil {
		return nil, err
	}
	return client, nil
}

// handlePublish is invoked by the paho client on every PUBLISH the monitor
// client sees (spec.md §4.4 steps 1-3).
func (e *BrokerEngine) handlePublish(client mqttclient.Client, msg mqttclient.Message) {
	topic := msg.Topic()
	payload := msg.Payload()

	e.wrapper.Monitor().RecordMQTT(monitor.DirReceived, "broker", topic, payload, byte(msg.Qos()))
	e.wrapper.mutateState(func(s *State) {
		s.Stats.MessagesReceived++
		s.Stats.BytesReceived += uint64(len(payload))
		s.Stats.LastActivity = time.Now()
	})

	matches := e.wrapper.Rules().FindMatching(topic, payload)
	for _, r := range matches {
		e.runAction(r, payload)
	}
}

// runAction executes one matched rule's action. originalPayload is the
// triggering PUBLISH's payload, needed by Forward to republish it verbatim
// (spec.md §4.4: "Forward: publish original payload to target_topic").
func (e *BrokerEngine) runAction(r *rules.Rule, originalPayload []byte) {
	switch r.Action.Kind {
	case rules.ActionLog:
		e.log.Info("mqtt rule matched", "rule", r.Name, "message", r.Action.Message)
	case rules.ActionRespond:
		e.publish(r.Action.Topic, r.Action.Payload)
	case rules.ActionForward:
		e.publish(r.Action.TargetTopic, string(originalPayload))
	case rules.ActionSilence:
		// informational only: the broker still delivered to real subscribers.
	case rules.ActionTransform:
		e.publish(r.Action.OutputTopic, r.Action.OutputPayload)
	}
}

func (e *BrokerEngine) publish(topic, payload string) {
	if e.monitor == nil || topic == "" {
		return
	}
	token := e.monitor.Publish(topic, 1, false, payload)
	token.Wait()
	e.wrapper.Monitor().RecordMQTT(monitor.DirSent, "broker", topic, []byte(payload), 1)
	e.wrapper.mutateState(func(s *State) {
		s.Stats.MessagesSent++
		s.Stats.BytesSent += uint64(len(payload))
	})
}

// Stop aborts the monitor client and detaches the broker's listener thread,
// which is not joined (spec.md §4.4/§9's documented wart: the embedded
// broker cannot be gracefully stopped, so its goroutine runs until process
// exit once Close is called on it in the background).
func (e *BrokerEngine) Stop() {
	if e.monitor != nil {
		e.monitor.Disconnect(0)
	}
	if e.server != nil {
		go func() { _ = e.server.Close() }()
	}
}
