// Package web is a small HTTP/1 engine for the modem's TCP links: request
// parsing, a first-match router with middleware, and static files.
package web

import (
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/treemana/atportal/log"
	"github.com/treemana/atportal/model"
)

const defaultSendTimeout = time.Second

// Socket is the part of the access point the web server drives.
type Socket interface {
	Receive(timeout time.Duration) (model.Message, error)
	Send(link int, payload []byte, timeout time.Duration) error
	Disconnect(link int) error
	StartListen(port int) error
	StopListen() error
}

type Server struct {
	*Router

	sock      Socket
	listening bool

	SendTimeout time.Duration
}

func New(sock Socket) *Server {
	return &Server{
		Router:      NewRouter(),
		sock:        sock,
		SendTimeout: defaultSendTimeout,
	}
}

// Listen starts the TCP server on port, stopping a previous one first.
func (s *Server) Listen(port int) error {
	if err := s.Close(); err != nil {
		return err
	}

	if err := s.sock.StartListen(port); err != nil {
		return err
	}

	s.listening = true
	log.Sugar.Infof("web server listening port=%d", port)
	return nil
}

func (s *Server) Close() error {
	if !s.listening {
		return nil
	}

	if err := s.sock.StopListen(); err != nil {
		return err
	}

	s.listening = false
	log.Sugar.Info("web server closed")
	return nil
}

// ReceiveCycle waits for one request and answers it.
func (s *Server) ReceiveCycle(timeout time.Duration) error {
	msg, err := s.sock.Receive(timeout)
	if err != nil {
		return err
	}
	return s.HandleMessage(msg)
}

// HandleMessage answers the request carried by msg and closes its link. An
// unparseable request closes the link without a reply and returns the parse
// error. A message without a link is ignored.
func (s *Server) HandleMessage(msg model.Message) error {
	if !msg.Valid() {
		return nil
	}

	req, err := ParseRequest(msg.Payload)
	if err != nil {
		log.Sugar.Warnf("sn=%d, link=%d, http parse error=[%+v]", msg.SN, msg.Link, err)
		return multierr.Append(err, s.sock.Disconnect(msg.Link))
	}

	res := s.Serve(req)
	log.Sugar.Infof("sn=%d, link=%d, %s %s %d %d", msg.SN, msg.Link, req.Method, req.Route, res.Code, len(res.Body))

	if err = s.sock.Send(msg.Link, res.Bytes(req.Protocol), s.SendTimeout); err != nil {
		err = errors.Wrapf(err, "sn=%d, http reply", msg.SN)
	}

	return multierr.Append(err, s.sock.Disconnect(msg.Link))
}
