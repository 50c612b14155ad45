package simulator

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/protosim/simulatord/pkg/monitor"
	"github.com/protosim/simulatord/pkg/simulator/protohandler"
	"golang.org/x/sync/errgroup"
)

// UDPEngine implements the byte-stream UDP listener engine (spec.md §4.2).
// It shares the TCP engine's framing contract but has no accept loop or
// real disconnect: each distinct peer address is a synthetic client id.
type UDPEngine struct {
	wrapper *Wrapper
	handler protohandler.Handler
	log     *slog.Logger

	conn     *net.UDPConn
	shutdown chan struct{}
	eg       *errgroup.Group
}

func NewUDPEngine(w *Wrapper, handler protohandler.Handler, log *slog.Logger) *UDPEngine {
	if log == nil {
		log = slog.Default()
	}
	return &UDPEngine{wrapper: w, handler: handler, log: log}
}

func (e *UDPEngine) Start(ctx context.Context) error {
	info := e.wrapper.Info()
	addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", info.BindAddr, info.Port))
	if err != nil {
		return fmt.Errorf("udp: resolve %s:%d: %w", info.BindAddr, info.Port, err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("udp: bind %s:%d: %w", info.BindAddr, info.Port, err)
	}

	e.conn = conn
	e.shutdown = make(chan struct{})
	e.eg = &errgroup.Group{}

	e.eg.Go(func() error {
		e.readLoop()
		return nil
	})

	return nil
}

func (e *UDPEngine) readLoop() {
	buf := make([]byte, defaultReadBufSize)
	seen := map[string]bool{}

	for {
		select {
		case <-e.shutdown:
			return
		default:
		}

		_ = e.conn.SetReadDeadline(time.Now().Add(time.Second))
		n, peerAddr, err := e.conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			select {
			case <-e.shutdown:
				return
			default:
				continue
			}
		}

		peer := peerAddr.String()
		datagram := append([]byte(nil), buf[:n]...)

		if !seen[peer] {
			seen[peer] = true
			e.registerPeer(peer)
		}

		e.eg.Go(func() error {
			e.handleDatagram(peer, peerAddr, datagram)
			return nil
		})
	}
}

func (e *UDPEngine) registerPeer(peer string) {
	now := time.Now()
	e.wrapper.mutateState(func(s *State) {
		s.Clients[peer] = &ClientConnection{
			ClientID:     peer,
			PeerAddr:     peer,
			ConnectedAt:  now,
			LastActivity: now,
		}
		s.Stats.TotalConnections++
		s.Stats.ActiveConnections++
	})
}

func (e *UDPEngine) handleDatagram(peer string, peerAddr *net.UDPAddr, data []byte) {
	e.wrapper.Monitor().Record(monitor.DirReceived, peer, data, nil)
	e.wrapper.mutateState(func(s *State) {
		s.Stats.BytesReceived += uint64(len(data))
		s.Stats.LastActivity = time.Now()
		if c, ok := s.Clients[peer]; ok {
			c.BytesReceived += uint64(len(data))
			c.LastActivity = time.Now()
		}
	})

	snapshot := e.wrapper.State()
	if !protohandler.Gate(snapshot.Online, snapshot.Fault) {
		return
	}

	var result protohandler.Result
	e.wrapper.mutateState(func(s *State) {
		st := &protohandler.State{Values: s.Values}
		result = e.handler.Handle(data, st)
	})

	if result.Outcome != protohandler.OutcomeResponse {
		return
	}

	if _, err := e.conn.WriteToUDP(result.Response, peerAddr); err != nil {
		e.log.Warn("udp: write error", "peer", peer, "error", err)
		return
	}
	e.wrapper.Monitor().Record(monitor.DirSent, peer, result.Response, nil)
	e.wrapper.mutateState(func(s *State) {
		s.Stats.BytesSent += uint64(len(result.Response))
		s.Stats.MessagesSent++
		if c, ok := s.Clients[peer]; ok {
			c.BytesSent += uint64(len(result.Response))
		}
	})
}

func (e *UDPEngine) Stop(ctx context.Context) error {
	if e.shutdown != nil {
		select {
		case <-e.shutdown:
		default:
			close(e.shutdown)
		}
	}
	if e.conn != nil {
		_ = e.conn.Close()
	}
	if e.eg == nil {
		return nil
	}

	done := make(chan struct{})
	go func() {
		_ = e.eg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(connectionDrainGrace):
		e.log.Warn("udp: datagram tasks did not drain within grace period")
	}
	return nil
}
