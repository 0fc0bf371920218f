// Package server exposes a simulated card to terminals.
//
// Terminals connect over TCP and exchange one hex encoded APDU per line. The
// commands "reset" and "status" are answered by the simulator itself. An HTTP
// admin API offers the same operations plus the Prometheus metrics.
package server

import (
	"bufio"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/google/logger"
	"github.com/google/uuid"

	"github.com/gregLibert/eid-sim/pkg/card"
	"github.com/gregLibert/eid-sim/pkg/metrics"
)

const (
	// DefaultPort is the TCP port terminals connect to.
	DefaultPort = 9876

	TransportTCP  = "tcp"
	TransportHTTP = "http"

	// maxLine bounds one request line: an extended APDU in hex plus slack.
	maxLine = 2*(7+65535+3) + 16
)

// Line commands handled by the simulator.
const (
	CmdReset  = "reset"
	CmdStatus = "status"
)

// Server serves one card.
type Server struct {
	proc *card.Processor

	// slot admits one terminal session at a time.
	slot chan struct{}

	mu    sync.Mutex
	conns map[string]net.Conn
	wg    sync.WaitGroup
}

// New creates a server for proc.
func New(proc *card.Processor) *Server {
	return &Server{
		proc:  proc,
		slot:  make(chan struct{}, 1),
		conns: make(map[string]net.Conn),
	}
}

// Processor returns the served card.
func (s *Server) Processor() *card.Processor {
	return s.proc
}

// Execute answers one request line: a hex APDU or a line command.
func (s *Server) Execute(line string) (string, error) {
	line = strings.TrimSpace(line)
	switch strings.ToLower(line) {
	case "":
		return "", errors.New("empty request")
	case CmdReset:
		s.proc.Reset()
		return "OK", nil
	case CmdStatus:
		return s.proc.SecurityStatus(), nil
	}

	resp, err := s.Transmit(line)
	if err != nil {
		return "", err
	}
	return strings.ToUpper(hex.EncodeToString(resp)), nil
}

// Transmit sends a hex APDU to the card.
func (s *Server) Transmit(apdu string) ([]byte, error) {
	raw, err := hex.DecodeString(strings.Join(strings.Fields(apdu), ""))
	if err != nil {
		return nil, fmt.Errorf("invalid APDU: %w", err)
	}
	return s.proc.Transmit(raw)
}

// ServeTerminals accepts terminal connections on ln until ctx is done or
// the listener fails. Open connections are closed on return.
//
// The card talks to one terminal at a time: a connection arriving while
// another session is open waits for it to end, then starts on a reset card.
func (s *Server) ServeTerminals(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	logger.Infof("server: accepting terminals on %s", ln.Addr())
	defer s.closeAll()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept failed: %w", err)
		}

		id := uuid.NewString()
		s.track(id, conn)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(id)
			if !s.acquire(ctx, id) {
				return
			}
			defer s.release()
			s.session(id, conn)
		}()
	}
}

func (s *Server) acquire(ctx context.Context, id string) bool {
	select {
	case s.slot <- struct{}{}:
	default:
		logger.V(1).Infof("server: session %s waits for the card", id)
		select {
		case s.slot <- struct{}{}:
		case <-ctx.Done():
			return false
		}
	}
	s.proc.Reset()
	return true
}

func (s *Server) release() {
	<-s.slot
}

func (s *Server) session(id string, conn net.Conn) {
	metrics.IncrementActiveSessions(TransportTCP)
	defer metrics.DecrementActiveSessions(TransportTCP)
	logger.V(1).Infof("server: session %s opened by %s", id, conn.RemoteAddr())

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), maxLine)
	w := bufio.NewWriter(conn)

	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) == "" {
			continue
		}
		out, err := s.Execute(scanner.Text())
		if err != nil {
			out = "ERROR " + err.Error()
			logger.Warningf("server: session %s: %v", id, err)
		}
		if _, err := fmt.Fprintln(w, out); err != nil {
			break
		}
		if err := w.Flush(); err != nil {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Warningf("server: session %s: %v", id, err)
	}
	logger.V(1).Infof("server: session %s closed", id)
}

func (s *Server) track(id string, conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[id] = conn
}

func (s *Server) untrack(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conn, ok := s.conns[id]; ok {
		conn.Close()
		delete(s.conns, id)
	}
}

// Sessions returns the number of connected terminals.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *Server) closeAll() {
	s.mu.Lock()
	for _, conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}
