package mqttsim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/protosim/simulatord/pkg/mqttsim/rules"
	"github.com/protosim/simulatord/pkg/persist"
	"github.com/protosim/simulatord/pkg/protocol"
)

func newTestMQTTManager(t *testing.T) *Manager {
	t.Helper()
	store := persist.New(t.TempDir(), nil)
	return New(store, nil)
}

func TestCreateRejectsMissingName(t *testing.T) {
	m := newTestMQTTManager(t)
	_, err := m.Create(CreateRequest{Port: 1883})
	assert.ErrorIs(t, err, protocol.ErrValidation)
}

func TestCreateDefaultsModeAndVersion(t *testing.T) {
	m := newTestMQTTManager(t)
	info, err := m.Create(CreateRequest{Name: "broker-1", Port: 18830})
	require.NoError(t, err)
	assert.Equal(t, ModeBroker, info.Mode)
	assert.Equal(t, []Version{VersionV311}, info.MqttVersions)
	assert.Equal(t, "0.0.0.0", info.BindAddr)
}

func TestCreateRejectsPortConflict(t *testing.T) {
	m := newTestMQTTManager(t)
	_, err := m.Create(CreateRequest{Name: "a", Port: 18831})
	require.NoError(t, err)
	_, err = m.Create(CreateRequest{Name: "b", Port: 18831})
	assert.ErrorIs(t, err, protocol.ErrConflict)
}

func TestCreateProxyRequiresProxyConfig(t *testing.T) {
	m := newTestMQTTManager(t)
	_, err := m.Create(CreateRequest{Name: "proxy-1", Port: 18832, Mode: ModeProxy})
	assert.ErrorIs(t, err, protocol.ErrValidation)
}

func TestAddAndRemoveRulePersists(t *testing.T) {
	m := newTestMQTTManager(t)
	info, err := m.Create(CreateRequest{Name: "broker-2", Port: 18833})
	require.NoError(t, err)

	require.NoError(t, m.AddRule(info.ID, &rules.Rule{ID: "r1", Enabled: true, TopicPattern: "x", Priority: 1}))
	snap, err := m.Get(info.ID)
	require.NoError(t, err)
	require.Len(t, snap.Info.Rules, 1)

	require.NoError(t, m.RemoveRule(info.ID, "r1"))
	snap, err = m.Get(info.ID)
	require.NoError(t, err)
	assert.Empty(t, snap.Info.Rules)
}

func TestDeleteRemovesSimulator(t *testing.T) {
	m := newTestMQTTManager(t)
	info, err := m.Create(CreateRequest{Name: "broker-3", Port: 18834})
	require.NoError(t, err)

	require.NoError(t, m.Delete(info.ID))
	_, err = m.Get(info.ID)
	assert.ErrorIs(t, err, protocol.ErrNotFound)
}

func TestPersistenceRoundTripPreservesRules(t *testing.T) {
	dir := t.TempDir()
	store := persist.New(dir, nil)
	m := New(store, nil)

	info, err := m.Create(CreateRequest{
		Name: "broker-4",
		Port: 18835,
		Rules: []*rules.Rule{
			{ID: "ack", Enabled: true, TopicPattern: "sensor/+/temp", Priority: 1,
				Action: rules.Action{Kind: rules.ActionRespond, Topic: "ack/temp", Payload: "ok"}},
		},
	})
	require.NoError(t, err)

	m2 := New(store, nil)
	m2.Load()

	snap, err := m2.Get(info.ID)
	require.NoError(t, err)
	require.Len(t, snap.Info.Rules, 1)
	assert.Equal(t, "ack/temp", snap.Info.Rules[0].Action.Topic)
}
