package catalog

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"catalogd.dev/jx"
)

// listenUDP starts the fast-path update listener: each datagram is one
// complete update (spec.md §4.8's "(a) UDP for single-datagram
// updates").
func (s *Server) listenUDP(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Interface, s.cfg.Port)
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return fmt.Errorf("catalog: udp listen: %w", err)
	}
	go func() {
		<-ctx.Done()
		conn.Close()
	}()
	go func() {
		buf := make([]byte, 65536)
		for {
			n, raddr, err := conn.ReadFrom(buf)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.log.WithError(err).Warn("catalog: udp read error")
				continue
			}
			payload := make([]byte, n)
			copy(payload, buf[:n])
			host, _, _ := net.SplitHostPort(raddr.String())
			s.handleUpdate("udp", host, payload)
		}
	}()
	return nil
}

// listenTCPUpdates starts the slow-path update listener for updates
// too large for a single UDP datagram (spec.md §4.8's "(b) TCP for
// larger updates"). It listens on cfg.Port+1, distinct from the HTTP
// query surface on cfg.Port, so neither protocol needs to sniff the
// other's framing off the wire.
func (s *Server) listenTCPUpdates(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Interface, s.cfg.Port+1)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("catalog: tcp update listen: %w", err)
	}
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				continue
			}
			go s.handleTCPUpdate(conn)
		}
	}()
	return nil
}

// handleTCPUpdate reads one bounded update body from conn, per
// spec.md §5's "blocking read ... with a short deadline (default 5s)
// so a slow producer cannot stall the server."
func (s *Server) handleTCPUpdate(conn net.Conn) {
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	limit := int64(maxDecompressed)
	data, err := io.ReadAll(io.LimitReader(conn, limit))
	if err != nil {
		s.log.WithError(err).Debug("catalog: tcp update read failed, dropping")
		return
	}
	host, _, _ := net.SplitHostPort(conn.RemoteAddr().String())
	s.handleUpdate("tcp", host, data)
}

// handleUpdate normalizes a raw update payload and, on success,
// canonicalizes its name and derives its table key before handing it
// to the table-owning event loop.
func (s *Server) handleUpdate(transport, addr string, raw []byte) {
	if s.limiter != nil && !s.limiter.Allow() {
		s.log.WithField("transport", transport).Debug("catalog: dropping update, rate limit exceeded")
		if s.metrics != nil {
			s.metrics.UpdateErrors.WithLabelValues("rate_limited").Inc()
		}
		return
	}

	obj, err := NormalizeUpdate(raw, addr, time.Now(), s.cfg.MaxServerSize)
	if err != nil {
		s.log.WithError(err).WithField("transport", transport).Debug("catalog: dropping malformed update")
		if s.metrics != nil {
			s.metrics.UpdateErrors.WithLabelValues("parse").Inc()
		}
		return
	}

	producerName := ""
	if v, ok := obj.Get("name"); ok && v.Kind == jx.KindString {
		producerName = v.Str
	}
	name := CanonicalizeName(addr, producerName)
	obj.Set("name", jx.String(name))

	port := 0
	if v, ok := obj.Get("port"); ok && v.Kind == jx.KindInt {
		port = int(v.Int)
	}
	uuidSuffix := ""
	if v, ok := obj.Get("uuid"); ok && v.Kind == jx.KindString {
		uuidSuffix = v.Str
	}
	key := DeriveKey(addr, port, name, uuidSuffix, maxKeyLen)

	if s.metrics != nil {
		s.metrics.UpdatesTotal.WithLabelValues(transport).Inc()
	}

	select {
	case s.events <- tableOp{key: key, obj: obj}:
	case <-time.After(s.cfg.ChildProcsTimeout):
		s.log.WithField("key", key).Warn("catalog: event loop congested, dropping update")
		if s.metrics != nil {
			s.metrics.UpdateErrors.WithLabelValues("congested").Inc()
		}
	}
}
