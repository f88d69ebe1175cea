package singleinstance

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"net"
	"strconv"
	"time"
)

const (
	residentHost  = "127.0.0.1"
	pingRequest   = "PING\n"
	pongResponse  = "PONG\n"
	selectRequest = "SELECT\n"
	ackResponse   = "OK\n"
	nackResponse  = "ERROR\n"
)

// tcpServer implements Server over TCP loopback.
type tcpServer struct {
	lis      net.Listener
	incoming chan *tcpConn
	port     int
}

func newTCPServer() Server { return &tcpServer{incoming: make(chan *tcpConn, 8)} }

// Start binds ONLY the start port of the configured range. If occupied, fail.
func (s *tcpServer) Start(ctx context.Context) error {
	if s.lis != nil {
		return nil
	}
	start, _ := getPortRange()
	addr := fmt.Sprintf("%s:%d", residentHost, start)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		log.Printf("singleinstance: failed to bind %s: %v", addr, err)
		return err
	}
	s.lis = lis
	s.port = start
	log.Printf("singleinstance: listening on %s", addr)
	go s.acceptLoop(ctx)
	return nil
}

func (s *tcpServer) Port() int { return s.port }

func (s *tcpServer) acceptLoop(ctx context.Context) {
	for {
		c, err := s.lis.Accept()
		if err != nil {
			return
		}
		remote := c.RemoteAddr().String()
		_ = c.SetDeadline(time.Now().Add(3 * time.Second))
		br := bufio.NewReader(c)
		line, _ := br.ReadString('\n')
		bw := bufio.NewWriter(c)
		switch line {
		case pingRequest:
			log.Printf("singleinstance: PING from %s -> PONG", remote)
			_, _ = bw.WriteString(pongResponse)
			_ = bw.Flush()
			_ = c.Close()
		case selectRequest:
			log.Printf("singleinstance: SELECT from %s", remote)
			_ = c.SetDeadline(time.Time{})
			select {
			case s.incoming <- &tcpConn{c: c, w: bw}:
			case <-ctx.Done():
				_ = c.Close()
				return
			}
		default:
			log.Printf("singleinstance: unknown request %q from %s", line, remote)
			_, _ = bw.WriteString(nackResponse + "unknown request")
			_ = bw.Flush()
			_ = c.Close()
		}
	}
}

func (s *tcpServer) Next(ctx context.Context) (Conn, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case tc := <-s.incoming:
		return tc, nil
	}
}

func (s *tcpServer) Close() error {
	if s.lis != nil {
		_ = s.lis.Close()
		s.lis = nil
	}
	// incoming stays open; the accept loop may still be draining a
	// connection and Next unblocks via ctx.
	return nil
}

type tcpConn struct {
	c net.Conn
	w *bufio.Writer
}

func (tc *tcpConn) Ack() error {
	if _, err := tc.w.WriteString(ackResponse); err != nil {
		return err
	}
	return tc.w.Flush()
}

func (tc *tcpConn) Nack(msg string) error {
	if _, err := tc.w.WriteString(nackResponse + msg); err != nil {
		return err
	}
	return tc.w.Flush()
}

func (tc *tcpConn) Close() error { return tc.c.Close() }

type tcpClient struct{}

func newTCPClient() Client { return &tcpClient{} }

func (c *tcpClient) TrySelect(ctx context.Context) (bool, error) {
	deadline := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if d := time.Until(dl); d > 0 {
			deadline = d
		}
	}
	start, end := getPortRange()
	for port := start; port <= end; port++ {
		addr := net.JoinHostPort(residentHost, strconv.Itoa(port))
		if !ping(addr, deadline) {
			continue
		}
		conn, err := net.DialTimeout("tcp", addr, deadline)
		if err != nil {
			continue
		}
		w := bufio.NewWriter(conn)
		if _, err := w.WriteString(selectRequest); err != nil {
			conn.Close()
			return true, err
		}
		if err := w.Flush(); err != nil {
			conn.Close()
			return true, err
		}
		br := bufio.NewReader(conn)
		status, err := br.ReadString('\n')
		conn.Close()
		if err != nil {
			return true, err
		}
		if status == ackResponse {
			return true, nil
		}
		return true, fmt.Errorf("resident refused selection request")
	}
	return false, nil
}

// DetectResidentPort scans the port range and returns (port, true) if a
// resident responds to PING.
func DetectResidentPort(ctx context.Context) (int, bool) {
	deadline := 300 * time.Millisecond
	if dl, ok := ctx.Deadline(); ok {
		if d := time.Until(dl); d > 0 {
			deadline = d
		}
	}
	start, end := getPortRange()
	for port := start; port <= end; port++ {
		addr := net.JoinHostPort(residentHost, strconv.Itoa(port))
		if ping(addr, deadline) {
			return port, true
		}
	}
	return 0, false
}

func ping(addr string, timeout time.Duration) bool {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return false
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(timeout))
	w := bufio.NewWriter(conn)
	if _, err := w.WriteString(pingRequest); err != nil {
		return false
	}
	if err := w.Flush(); err != nil {
		return false
	}
	br := bufio.NewReader(conn)
	resp, err := br.ReadString('\n')
	return err == nil && resp == pongResponse
}
