package mqttsim

import (
	"fmt"
	"net"
	"testing"
	"time"

	mqttclient "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/require"

	"github.com/protosim/simulatord/pkg/mqttsim/rules"
	"github.com/protosim/simulatord/pkg/persist"
)

func freeMQTTPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func dialMQTT(t *testing.T, port int, clientID string) mqttclient.Client {
	t.Helper()
	opts := mqttclient.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://127.0.0.1:%d", port))
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(false)
	opts.SetConnectTimeout(5 * time.Second)

	client := mqttclient.NewClient(opts)
	token := client.Connect()
	require.True(t, token.WaitTimeout(5*time.Second))
	require.NoError(t, token.Error())
	t.Cleanup(func() { client.Disconnect(250) })
	return client
}

// TestMQTTRuleRespondScenario exercises spec scenario 5 end to end: a
// broker simulator with a topic_pattern="sensor/+/temp" Respond rule,
// published to externally, must answer on "ack/temp".
func TestMQTTRuleRespondScenario(t *testing.T) {
	store := persist.New(t.TempDir(), nil)
	m := New(store, nil)

	port := freeMQTTPort(t)
	info, err := m.Create(CreateRequest{
		Name:     "ack-broker",
		BindAddr: "127.0.0.1",
		Port:     port,
		Rules: []*rules.Rule{
			{
				ID: "ack", Enabled: true, TopicPattern: "sensor/+/temp", Priority: 1,
				Action: rules.Action{Kind: rules.ActionRespond, Topic: "ack/temp", Payload: "ok"},
			},
		},
	})
	require.NoError(t, err)

	require.NoError(t, m.Start(info.ID))
	defer m.Stop(info.ID)

	time.Sleep(150 * time.Millisecond)

	sub := dialMQTT(t, port, "subscriber")
	received := make(chan string, 1)
	subToken := sub.Subscribe("ack/temp", 1, func(c mqttclient.Client, msg mqttclient.Message) {
		received <- string(msg.Payload())
	})
	require.True(t, subToken.WaitTimeout(5*time.Second))
	require.NoError(t, subToken.Error())

	pub := dialMQTT(t, port, "publisher")
	pubToken := pub.Publish("sensor/room1/temp", 1, false, "25")
	require.True(t, pubToken.WaitTimeout(5*time.Second))
	require.NoError(t, pubToken.Error())

	select {
	case payload := <-received:
		require.Equal(t, "ok", payload)
	case <-time.After(2 * time.Second):
		t.Fatal("did not receive ack/temp response within 2s")
	}

	time.Sleep(150 * time.Millisecond)
	snap, err := m.Get(info.ID)
	require.NoError(t, err)
	found := false
	for _, p := range snap.Packets {
		if p.Topic == "sensor/room1/temp" {
			found = true
		}
	}
	require.True(t, found, "expected a received packet recorded for sensor/room1/temp")
}

// TestMQTTRuleForwardRepublishesOriginalPayload exercises the Forward action:
// it must republish the triggering message's own payload to target_topic,
// not an empty or substituted one (spec.md §4.4).
func TestMQTTRuleForwardRepublishesOriginalPayload(t *testing.T) {
	store := persist.New(t.TempDir(), nil)
	m := New(store, nil)

	port := freeMQTTPort(t)
	info, err := m.Create(CreateRequest{
		Name:     "forward-broker",
		BindAddr: "127.0.0.1",
		Port:     port,
		Rules: []*rules.Rule{
			{
				ID: "fwd", Enabled: true, TopicPattern: "in/+", Priority: 1,
				Action: rules.Action{Kind: rules.ActionForward, TargetTopic: "out/forwarded"},
			},
		},
	})
	require.NoError(t, err)

	require.NoError(t, m.Start(info.ID))
	defer m.Stop(info.ID)

	time.Sleep(150 * time.Millisecond)

	sub := dialMQTT(t, port, "forward-subscriber")
	received := make(chan string, 1)
	subToken := sub.Subscribe("out/forwarded", 1, func(c mqttclient.Client, msg mqttclient.Message) {
		received <- string(msg.Payload())
	})
	require.True(t, subToken.WaitTimeout(5*time.Second))
	require.NoError(t, subToken.Error())

	pub := dialMQTT(t, port, "forward-publisher")
	pubToken := pub.Publish("in/reading", 1, false, "payload-123")
	require.True(t, pubToken.WaitTimeout(5*time.Second))
	require.NoError(t, pubToken.Error())

	select {
	case payload := <-received:
		require.Equal(t, "payload-123", payload)
	case <-time.After(2 * time.Second):
		t.Fatal("did not receive out/forwarded forward within 2s")
	}
}
