package mqttsim

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	mqttclient "github.com/eclipse/paho.mqtt.golang"

	"github.com/protosim/simulatord/internal/id"
	"github.com/protosim/simulatord/pkg/monitor"
	"github.com/protosim/simulatord/pkg/mqttsim/rules"
)

// proxyReconnectBackoff is the retry interval of the initial upstream
// connect and the cap on the delay between automatic reconnects after a
// connection loss. The client library starts those reconnect delays
// shorter and grows them up to this cap; there is no fixed wait before
// each reconnect attempt.
const proxyReconnectBackoff = 5 * time.Second

// ProxyEngine connects to an upstream broker as a client, taps every
// message it sees, and executes matched rule actions back against the same
// upstream connection (spec.md §4.5).
type ProxyEngine struct {
	wrapper *Wrapper
	log     *slog.Logger

	client   mqttclient.Client
	stopped  atomic.Bool
}

// NewProxyEngine builds a proxy engine for wrapper's declared proxy_config.
func NewProxyEngine(w *Wrapper, log *slog.Logger) *ProxyEngine {
	if log == nil {
		log = slog.Default()
	}
	return &ProxyEngine{wrapper: w, log: log}
}

func (e *ProxyEngine) Start() error {
	info := e.wrapper.Info()
	cfg := info.ProxyConfig
	if cfg == nil {
		return errors.New("mqtt proxy: missing proxy_config")
	}

	prefix := cfg.ClientIDPrefix
	if prefix == "" {
		prefix = "mqttsim_proxy_"
	}

	opts := mqttclient.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.UpstreamHost, cfg.UpstreamPort))
	opts.SetClientID(prefix + id.New())
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(proxyReconnectBackoff)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(proxyReconnectBackoff)
	opts.SetDefaultPublishHandler(e.handlePublish)
	opts.SetConnectionLostHandler(func(c mqttclient.Client, err error) {
		e.log.Warn("mqtt proxy: upstream connection lost, will reconnect", "error", err)
	})

	client := mqttclient.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return errors.New("mqtt proxy: upstream connect timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt proxy: connect: %w", err)
	}

	subToken := client.Subscribe("#", 1, nil)
	subToken.Wait()
	if err := subToken.Error(); err != nil {
		_ = client.Disconnect(0)
		return fmt.Errorf("mqtt proxy: subscribe: %w", err)
	}

	e.client = client
	return nil
}

func (e *ProxyEngine) handlePublish(client mqttclient.Client, msg mqttclient.Message) {
	if e.stopped.Load() {
		return
	}

	topic := msg.Topic()
	payload := msg.Payload()

	e.wrapper.Monitor().RecordMQTT(monitor.DirForwarded, "upstream", topic, payload, byte(msg.Qos()))
	e.wrapper.mutateState(func(s *State) {
		s.Stats.MessagesReceived++
		s.Stats.BytesReceived += uint64(len(payload))
		s.Stats.LastActivity = time.Now()
	})

	for _, r := range e.wrapper.Rules().FindMatching(topic, payload) {
		e.runAction(r, payload)
	}
}

// runAction executes one matched rule's action. originalPayload is the
// triggering PUBLISH's payload, needed by Forward to republish it verbatim
// (spec.md §4.5: "Forward: publish original payload to target_topic").
func (e *ProxyEngine) runAction(r *rules.Rule, originalPayload []byte) {
	switch r.Action.Kind {
	case rules.ActionLog:
		e.log.Info("mqtt proxy rule matched", "rule", r.Name, "message", r.Action.Message)
	case rules.ActionRespond:
		e.publish(r.Action.Topic, r.Action.Payload)
	case rules.ActionForward:
		e.publish(r.Action.TargetTopic, string(originalPayload))
	case rules.ActionSilence:
	case rules.ActionTransform:
		e.publish(r.Action.OutputTopic, r.Action.OutputPayload)
	}
}

func (e *ProxyEngine) publish(topic, payload string) {
	if e.client == nil || topic == "" {
		return
	}
	token := e.client.Publish(topic, 1, false, payload)
	token.Wait()
	e.wrapper.Monitor().RecordMQTT(monitor.DirSent, "upstream", topic, []byte(payload), 1)
	e.wrapper.mutateState(func(s *State) {
		s.Stats.MessagesSent++
		s.Stats.BytesSent += uint64(len(payload))
	})
}

// Stop aborts the upstream connection immediately (spec.md §5: "immediate
// (abort) for the MQTT monitor client and proxy client").
func (e *ProxyEngine) Stop() {
	e.stopped.Store(true)
	if e.client != nil {
		e.client.Disconnect(0)
	}
}
