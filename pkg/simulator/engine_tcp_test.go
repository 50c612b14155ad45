package simulator

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/protosim/simulatord/pkg/persist"
	"github.com/protosim/simulatord/pkg/simulator/protohandler"
)

func freeTCPPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	store := persist.New(t.TempDir(), nil)
	return New(store, nil)
}

func TestSceneLoaderHappyPathOverTCP(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	port := freeTCPPort(t)
	info, err := mgr.Create(ctx, CreateRequest{
		Name:     "scene-1",
		Protocol: protohandler.KindSceneLoader,
		BindAddr: "127.0.0.1",
		Port:     port,
	})
	require.NoError(t, err)

	require.NoError(t, mgr.Start(ctx, info.ID))
	defer mgr.Stop(ctx, info.ID)

	conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", port), 2*time.Second)
	require.NoError(t, err)
	defer conn.Close()

	req := []byte{
		0x55, 0xAA, 0x00, 0x00, 0xFE, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x01, 0x00, 0x00, 0x01, 0x51, 0x13, 0x01, 0x00, 0x00, 0xBA, 0x56,
	}
	_, err = conn.Write(req)
	require.NoError(t, err)

	resp := make([]byte, 20)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err = readFull(conn, resp)
	require.NoError(t, err)

	expected := []byte{
		0xAA, 0x55, 0x00, 0x00, 0x00, 0xFE, 0x00, 0x00, 0x00, 0x00,
		0x01, 0x00, 0x00, 0x01, 0x51, 0x13, 0x00, 0x00, 0xB9, 0x56,
	}
	require.Equal(t, expected, resp)

	time.Sleep(100 * time.Millisecond)
	snap, err := mgr.Get(info.ID)
	require.NoError(t, err)
	require.Equal(t, 1, snap.State.Values["current_scene"])
}

func TestOfflineGateSuppressesResponseButStillRecords(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	port := freeTCPPort(t)
	info, err := mgr.Create(ctx, CreateRequest{
		Name:     "scene-2",
		Protocol: protohandler.KindSceneLoader,
		BindAddr: "127.0.0.1",
		Port:     port,
	})
	require.NoError(t, err)
	require.NoError(t, mgr.Start(ctx, info.ID))
	defer mgr.Stop(ctx, info.ID)

	require.NoError(t, mgr.SetOnline(info.ID, false))

	conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", port), 2*time.Second)
	require.NoError(t, err)
	defer conn.Close()

	req := []byte{
		0x55, 0xAA, 0x00, 0x00, 0xFE, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x01, 0x00, 0x00, 0x01, 0x51, 0x13, 0x01, 0x00, 0x00, 0xBA, 0x56,
	}
	_, err = conn.Write(req)
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	buf := make([]byte, 1)
	n, _ := conn.Read(buf)
	require.Equal(t, 0, n, "no response bytes expected while offline")

	time.Sleep(100 * time.Millisecond)
	snap, err := mgr.Get(info.ID)
	require.NoError(t, err)
	require.Len(t, snap.Packets, 1)
	require.Equal(t, "received", string(snap.Packets[0].Direction))
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
