// Package tcp implements a line oriented tcp server for the remote location operations.
// Each request is a single line, responses end with a newline. Multi line responses start with a line holding the count of lines that follow.
package tcp

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/ryansann/waypoint"
	"github.com/ryansann/waypoint/storage"
	"github.com/sirupsen/logrus"
)

// ServerOption overrides a default option
type ServerOption func(*options)

type options struct {
	port            string
	readTimeout     time.Duration
	shutdownTimeout time.Duration
	onFatal         func(error)
}

// Port overrides the default port ":8080"
func Port(p string) ServerOption {
	return func(opts *options) {
		opts.port = p
	}
}

// ReadTimeout overrides the default read timeout to the duration passed in
// If overriding ShutdownTimeout as well, ReadTimeout should be greater than ShutdownTimeout
func ReadTimeout(t time.Duration) ServerOption {
	return func(opts *options) {
		opts.readTimeout = t
	}
}

// ShutdownTimeout overrides the default value for how long the server will wait for connections
// to finish being handled before forcefully shutting down (Server.Serve exits).
func ShutdownTimeout(t time.Duration) ServerOption {
	return func(opts *options) {
		opts.shutdownTimeout = t
	}
}

// OnFatal sets the func called, at most once, with the first storage fault a command returns.
// The default logs the fault and exits the process.
func OnFatal(fn func(error)) ServerOption {
	return func(opts *options) {
		opts.onFatal = fn
	}
}

// Server is a tcp server that receives commands and interacts
// with a Locator
type Server struct {
	mtx             sync.Mutex
	port            string
	log             *logrus.Logger
	locator         waypoint.Locator
	ln              net.Listener
	handlers        sync.WaitGroup
	readTimeout     time.Duration
	shutdownTimeout time.Duration
	onFatal         func(error)
	fatalOnce       sync.Once
	ready           chan struct{}
	close           chan struct{}
	exited          chan struct{}
}

const (
	defaultReadTimeout     = 60 * time.Second
	defaultShutdownTimeout = 5 * time.Second

	// maxLineSize bounds a request line, including its newline
	maxLineSize = 4 << 8
)

// NewServer returns a configured Server instance ready to start serving
func NewServer(log *logrus.Logger, locator waypoint.Locator, opts ...ServerOption) *Server {
	cfg := &options{
		port:            ":8080",
		readTimeout:     defaultReadTimeout,
		shutdownTimeout: defaultShutdownTimeout,
		onFatal: func(err error) {
			log.Fatalf("storage fault: %v", err)
		},
	}

	for _, opt := range opts {
		opt(cfg)
	}

	return &Server{
		port:            cfg.port,
		log:             log,
		locator:         locator,
		readTimeout:     cfg.readTimeout,
		shutdownTimeout: cfg.shutdownTimeout,
		onFatal:         cfg.onFatal,
		ready:           make(chan struct{}),
		close:           make(chan struct{}),
		exited:          make(chan struct{}),
	}
}

// Serve starts the server, it blocks until the server is closed.
// It returns an error if the server can't listen on its port.
func (s *Server) Serve() error {
	ln, err := net.Listen("tcp", s.port)
	if err != nil {
		close(s.exited)
		return errors.Wrapf(err, "could not listen on port %s", s.port)
	}

	defer func() {
		if ok := s.wait(); ok {
			s.log.Info("connection handlers exited normally")
		} else {
			s.log.Error("timed out waiting for connection handlers to exit")
		}
		close(s.exited)
	}()

	s.mtx.Lock()
	s.ln = ln
	s.mtx.Unlock()
	close(s.ready)

	s.log.Infof("accepting connections on %s", ln.Addr())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for {
		// ln.Accept returns an error when we close the listener
		c, err := ln.Accept()
		if err != nil {
			select {
			case <-s.close:
				s.log.Info("closing")
				return nil
			default:
			}

			s.log.Infof("error accepting connection: %v", err)
			continue
		}

		cn := newConn(s.log, c)
		cn.log.Info("accepted new connection")
		s.handlers.Add(1)
		go s.handle(ctx, cn)
	}
}

// Addr returns the address the server listens on, it blocks until Serve is listening.
func (s *Server) Addr() net.Addr {
	<-s.ready

	s.mtx.Lock()
	defer s.mtx.Unlock()

	return s.ln.Addr()
}

// Close triggers the server to stop accepting connections and waits for Serve to exit.
func (s *Server) Close() error {
	s.mtx.Lock()

	// close the close channel to tell server to shutdown
	close(s.close)

	if s.ln != nil {
		err := s.ln.Close()
		if err != nil {
			s.log.Errorf("error closing listener: %v", err)
		}
	}

	s.mtx.Unlock()

	// wait for server to exit (wait for handlers to finish)
	<-s.exited

	return nil
}

type conn struct {
	net.Conn
	log   *logrus.Entry
	close chan struct{}
}

func newConn(log *logrus.Logger, c net.Conn) *conn {
	return &conn{
		Conn: c,
		log: log.WithFields(logrus.Fields{
			"conn":   uuid.New().String(),
			"remote": c.RemoteAddr().String(),
		}),
		close: make(chan struct{}),
	}
}

func (s *Server) handle(ctx context.Context, c *conn) {
	defer func() {
		c.log.Info("closing connection")

		err := c.Close()
		if err != nil {
			c.log.Errorf("error closing connection: %v", err)
		}

		s.handlers.Done()
	}()

	// closing the connection unblocks a pending read when the server shuts down
	go func() {
		select {
		case <-ctx.Done():
			c.SetReadDeadline(time.Now())
		case <-s.close:
			c.SetReadDeadline(time.Now())
		case <-c.close:
		}
	}()

	reader := bufio.NewReaderSize(c, maxLineSize)
	for {
		select {
		case <-s.close:
			c.log.Info("server closing connection")
			c.Write([]byte("CLOSING\n"))
			return
		case <-c.close:
			c.log.Info("client closed connection")
			c.Write([]byte("QUITTING\n"))
			return
		default:
			c.SetReadDeadline(time.Now().Add(s.readTimeout))

			l, tooLong, err := readLine(reader)
			if err != nil {
				if strings.Contains(err.Error(), "i/o timeout") {
					select {
					case <-s.close:
						continue
					default:
					}
					c.log.Error("read timeout")
				}
				close(c.close)
				return
			}

			if tooLong {
				c.log.Errorf("request line exceeds %d bytes", maxLineSize)
				c.Write([]byte("PARSE FAILED: line too long\n"))
				continue
			}

			if len(strings.TrimSpace(l)) == 0 {
				continue
			}

			cmd, err := parseCommand(l)
			if err != nil {
				c.log.Errorf("failed to parse command: %v", err)
				c.Write([]byte(fmt.Sprintf("PARSE FAILED: %v\n", err)))
				continue
			}

			res, err := cmd.execute(c.close, s.locator)
			if err == errQuit {
				continue
			}
			if err != nil {
				c.log.Errorf("failed to execute command: %s: %v", cmd, err)
				c.Write([]byte(fmt.Sprintf("EXECUTION FAILED: %v\n", err)))

				if storage.IsFatal(err) {
					s.fatal(err)
				}
				continue
			}

			c.log.Debugf("executed command: %s", cmd)

			c.Write([]byte(res + "\n"))
		}
	}
}

// readLine reads a single request line. A line that doesn't fit in the reader's buffer is consumed
// up to and including its newline and reported as too long.
func readLine(r *bufio.Reader) (string, bool, error) {
	l, isPrefix, err := r.ReadLine()
	if err != nil {
		return "", false, err
	}

	if !isPrefix {
		return string(l), false, nil
	}

	for isPrefix {
		_, isPrefix, err = r.ReadLine()
		if err != nil {
			return "", true, err
		}
	}

	return "", true, nil
}

// fatal reports a storage fault to the supervisor once.
func (s *Server) fatal(err error) {
	s.fatalOnce.Do(func() {
		go s.onFatal(err)
	})
}

// wait waits for the connection handlers. If waiting finishes before timeout, it returns true, otherwise it returns false.
func (s *Server) wait() bool {
	c := make(chan struct{})

	go func() {
		defer close(c)
		s.handlers.Wait()
	}()

	select {
	case <-c:
		return true // completed normally
	case <-time.After(s.shutdownTimeout):
		return false // timed out
	}
}
