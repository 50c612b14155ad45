package simulator

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/protosim/simulatord/internal/id"
	"github.com/protosim/simulatord/pkg/monitor"
	"github.com/protosim/simulatord/pkg/simulator/protohandler"
	"golang.org/x/sync/errgroup"
)

// defaultReadBufSize is the per-read chunk size of each TCP connection's
// read loop (and the datagram buffer of the UDP engine); accumulated bytes
// beyond this grow the connection's buffer as needed.
const defaultReadBufSize = 4096

// connectionDrainGrace bounds how long Stop waits for in-flight connections
// to finish before abandoning them (spec.md §4.2/§5).
const connectionDrainGrace = 500 * time.Millisecond

// TCPEngine implements the byte-stream TCP listener engine (spec.md §4.2).
type TCPEngine struct {
	wrapper *Wrapper
	handler protohandler.Handler
	log     *slog.Logger

	listener net.Listener
	shutdown chan struct{}
	eg       *errgroup.Group
}

// NewTCPEngine builds a TCP engine bound to wrapper's declared bind_addr:port.
func NewTCPEngine(w *Wrapper, handler protohandler.Handler, log *slog.Logger) *TCPEngine {
	if log == nil {
		log = slog.Default()
	}
	return &TCPEngine{wrapper: w, handler: handler, log: log}
}

func (e *TCPEngine) Start(ctx context.Context) error {
	info := e.wrapper.Info()
	addr := fmt.Sprintf("%s:%d", info.BindAddr, info.Port)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("tcp: bind %s: %w", addr, err)
	}

	e.listener = ln
	e.shutdown = make(chan struct{})
	e.eg = &errgroup.Group{}

	e.eg.Go(func() error {
		e.acceptLoop()
		return nil
	})

	return nil
}

func (e *TCPEngine) acceptLoop() {
	for {
		conn, err := e.listener.Accept()
		if err != nil {
			select {
			case <-e.shutdown:
				return
			default:
				e.log.Warn("tcp: accept error", "error", err)
				continue
			}
		}

		e.eg.Go(func() error {
			e.handleConnection(conn)
			return nil
		})
	}
}

func (e *TCPEngine) handleConnection(conn net.Conn) {
	defer conn.Close()

	clientID := id.New()
	peer := conn.RemoteAddr().String()
	now := time.Now()

	e.wrapper.mutateState(func(s *State) {
		s.Clients[clientID] = &ClientConnection{
			ClientID:     clientID,
			PeerAddr:     peer,
			ConnectedAt:  now,
			LastActivity: now,
		}
		s.Stats.TotalConnections++
		s.Stats.ActiveConnections++
	})

	defer func() {
		e.wrapper.mutateState(func(s *State) {
			if s.Stats.ActiveConnections > 0 {
				s.Stats.ActiveConnections--
			}
			delete(s.Clients, clientID)
		})
		e.runHandlerLocked(func(h protohandler.Handler, st *protohandler.State) {
			h.OnDisconnect(st)
		})
	}()

	if greeting := e.runHandlerLockedReturning(func(h protohandler.Handler, st *protohandler.State) []byte {
		return h.OnConnect(st)
	}); len(greeting) > 0 {
		if _, err := conn.Write(greeting); err != nil {
			return
		}
		e.recordSent(clientID, peer, greeting)
	}

	var buf []byte
	readBuf := make([]byte, defaultReadBufSize)

	for {
		select {
		case <-e.shutdown:
			return
		default:
		}

		_ = conn.SetReadDeadline(time.Now().Add(time.Second))
		n, err := conn.Read(readBuf)
		if n == 0 && err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return
		}
		if n == 0 {
			return
		}

		chunk := append([]byte(nil), readBuf[:n]...)
		buf = append(buf, chunk...)

		e.recordReceived(clientID, peer, chunk)
		e.wrapper.mutateState(func(s *State) {
			s.Stats.BytesReceived += uint64(n)
			s.Stats.LastActivity = time.Now()
			if c, ok := s.Clients[clientID]; ok {
				c.BytesReceived += uint64(n)
				c.LastActivity = time.Now()
			}
		})

		if !e.gateOpen() {
			// online=false or fault set: suppress handler invocation but
			// keep recording, per spec.md §4.2 step 3.
			continue
		}

		result := e.runHandlerResult(buf)
		switch result.Outcome {
		case protohandler.OutcomeResponse:
			if _, err := conn.Write(result.Response); err != nil {
				return
			}
			e.recordSent(clientID, peer, result.Response)
			e.wrapper.mutateState(func(s *State) {
				s.Stats.BytesSent += uint64(len(result.Response))
				s.Stats.MessagesSent++
				if c, ok := s.Clients[clientID]; ok {
					c.BytesSent += uint64(len(result.Response))
				}
			})
			buf = consumePrefix(buf, result.Consumed)

		case protohandler.OutcomeNeedMore:
			// leave buf intact, keep reading

		case protohandler.OutcomeNoResponse:
			buf = consumePrefix(buf, result.Consumed)

		case protohandler.OutcomeError:
			e.log.Warn("tcp: handler error, closing connection", "client", clientID, "error", result.Err)
			return
		}
	}
}

func consumePrefix(buf []byte, n int) []byte {
	if n <= 0 || n > len(buf) {
		return buf
	}
	return append([]byte(nil), buf[n:]...)
}

func (e *TCPEngine) gateOpen() bool {
	s := e.wrapper.State()
	return protohandler.Gate(s.Online, s.Fault)
}

func (e *TCPEngine) runHandlerResult(buf []byte) protohandler.Result {
	var result protohandler.Result
	e.wrapper.mutateState(func(s *State) {
		st := &protohandler.State{Values: s.Values}
		result = e.handler.Handle(buf, st)
	})
	return result
}

func (e *TCPEngine) runHandlerLocked(fn func(protohandler.Handler, *protohandler.State)) {
	e.wrapper.mutateState(func(s *State) {
		fn(e.handler, &protohandler.State{Values: s.Values})
	})
}

func (e *TCPEngine) runHandlerLockedReturning(fn func(protohandler.Handler, *protohandler.State) []byte) []byte {
	var out []byte
	e.wrapper.mutateState(func(s *State) {
		out = fn(e.handler, &protohandler.State{Values: s.Values})
	})
	return out
}

func (e *TCPEngine) recordReceived(clientID, peer string, data []byte) {
	e.wrapper.Monitor().Record(monitor.DirReceived, peer, data, nil)
}

func (e *TCPEngine) recordSent(clientID, peer string, data []byte) {
	e.wrapper.Monitor().Record(monitor.DirSent, peer, data, nil)
}

func (e *TCPEngine) Stop(ctx context.Context) error {
	if e.shutdown != nil {
		select {
		case <-e.shutdown:
		default:
			close(e.shutdown)
		}
	}
	if e.listener != nil {
		_ = e.listener.Close()
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
		e.log.Warn("tcp: connections did not drain within grace period")
	}
	return nil
}
