// Package server runs the portal's control loop: one receive cycle at a time
// on the access point, each message dispatched by link id to the DNS
// responder or the web server.
package server

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/treemana/atportal/dnsserver"
	"github.com/treemana/atportal/log"
	"github.com/treemana/atportal/model"
	"github.com/treemana/atportal/web"
)

const defaultReceiveTimeout = 5 * time.Second

var ErrNotStarted = errors.New("server not started")

// Receiver yields the next framed message from the modem.
type Receiver interface {
	Receive(timeout time.Duration) (model.Message, error)
}

type Config struct {
	HTTPPort       int
	DNSPort        int
	ReceiveTimeout time.Duration
}

type Server struct {
	rx   Receiver
	dns  *dnsserver.Server
	web  *web.Server
	conf Config

	status atomic.Bool   // running status
	serial atomic.Uint64 // last message serial number
}

func New(rx Receiver, dns *dnsserver.Server, w *web.Server, conf Config) (*Server, error) {
	if conf.HTTPPort <= 0 || conf.DNSPort <= 0 {
		return nil, errors.Errorf("invalid port http=%d, dns=%d", conf.HTTPPort, conf.DNSPort)
	}

	if conf.ReceiveTimeout <= 0 {
		conf.ReceiveTimeout = defaultReceiveTimeout
	}

	return &Server{rx: rx, dns: dns, web: w, conf: conf}, nil
}

// Start opens the TCP server and the UDP listener.
func (s *Server) Start() error {
	if err := s.web.Listen(s.conf.HTTPPort); err != nil {
		return errors.Wrap(err, "web listen")
	}

	if err := s.dns.Listen(s.conf.DNSPort); err != nil {
		return multierr.Append(errors.Wrap(err, "dns listen"), s.web.Close())
	}

	s.status.Store(true)
	log.Sugar.Info("server running ...")
	return nil
}

// Serve runs receive cycles until ctx is done or Stop is called. Errors of a
// single cycle are logged and never end the loop.
func (s *Server) Serve(ctx context.Context) error {
	if !s.status.Load() {
		return ErrNotStarted
	}

	for s.status.Load() {
		select {
		case <-ctx.Done():
			log.Sugar.Infof("server loop stop, serial=%d", s.serial.Load())
			return nil
		default:
		}

		s.cycle()
	}

	log.Sugar.Infof("server loop stopped, serial=%d", s.serial.Load())
	return nil
}

// Stop closes both listeners. It must be called from the goroutine running
// Serve or after Serve has returned.
func (s *Server) Stop() error {
	if !s.status.Swap(false) {
		return nil
	}

	log.Sugar.Info("server stopping")
	err := multierr.Combine(s.dns.Close(), s.web.Close())
	if err != nil {
		log.Sugar.Errorf("server stop error=[%+v]", err)
		return err
	}

	log.Sugar.Info("server stopped")
	return nil
}

// Serial returns the number of messages dispatched so far.
func (s *Server) Serial() uint64 {
	return s.serial.Load()
}

func (s *Server) cycle() {
	msg, err := s.rx.Receive(s.conf.ReceiveTimeout)
	if err != nil {
		log.Sugar.Warnf("server receive error=[%+v]", err)
		return
	}

	if !msg.Valid() {
		return
	}

	msg.SN = s.serial.Add(1)
	log.Logger.Debug("server message", log.SN(msg.SN), log.Link(msg.Link))

	if msg.Link == s.dns.Link() {
		err = s.dns.HandleMessage(msg)
	} else {
		err = s.web.HandleMessage(msg)
	}

	if err != nil {
		log.Sugar.Errorf("sn=%d, link=%d, handle error=[%+v]", msg.SN, msg.Link, err)
	}
}
