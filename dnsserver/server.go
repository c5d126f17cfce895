package dnsserver

import (
	"net"
	"time"

	"github.com/pkg/errors"

	"github.com/treemana/atportal/log"
	"github.com/treemana/atportal/model"
	"github.com/treemana/atportal/util"
)

const (
	// TTL of every answer, in seconds.
	TTL uint32 = 300

	// minQueryLen is a header plus the shortest question (root name, type, class).
	minQueryLen = HeaderLen + 5

	defaultSendTimeout = time.Second
)

// Socket is the part of the access point the responder drives.
type Socket interface {
	Receive(timeout time.Duration) (model.Message, error)
	Send(link int, payload []byte, timeout time.Duration) error
	UDPLink() int
	UDPListen(port int) error
	UDPClose() error
}

type Server struct {
	sock    Socket
	address net.IP

	SendTimeout time.Duration
}

// New returns a responder answering every A query with address.
func New(sock Socket, address net.IP) (*Server, error) {
	ip := address.To4()
	if ip == nil {
		return nil, errors.Errorf("responder address [%s] is not ipv4", address)
	}

	return &Server{
		sock:        sock,
		address:     ip,
		SendTimeout: defaultSendTimeout,
	}, nil
}

// Link returns the link id queries arrive on.
func (s *Server) Link() int {
	return s.sock.UDPLink()
}

func (s *Server) Listen(port int) error {
	if err := s.sock.UDPListen(port); err != nil {
		return err
	}
	log.Sugar.Infof("dns server listening port=%d, link=%d, address=%s", port, s.Link(), s.address)
	return nil
}

func (s *Server) Close() error {
	if err := s.sock.UDPClose(); err != nil {
		return err
	}
	log.Sugar.Info("dns server closed")
	return nil
}

// ReceiveCycle waits for one message and answers it.
func (s *Server) ReceiveCycle(timeout time.Duration) error {
	msg, err := s.sock.Receive(timeout)
	if err != nil {
		return err
	}
	return s.HandleMessage(msg)
}

// HandleMessage answers msg when it is a query on the DNS link. Messages on
// other links and messages too short to hold a question are ignored.
func (s *Server) HandleMessage(msg model.Message) error {
	if msg.Link != s.Link() || len(msg.Payload) < minQueryLen {
		return nil
	}

	reply, err := s.Reply(msg.Payload)
	if err != nil {
		log.Sugar.Warnf("sn=%d, link=%d, dns query dropped error=[%+v]", msg.SN, msg.Link, err)
		return err
	}

	log.Sugar.Debugf("sn=%d, link=%d, dns query [%s]", msg.SN, msg.Link, util.DNSSummary(msg.Payload))
	log.Sugar.Debugf("sn=%d, link=%d, dns reply [%s]", msg.SN, msg.Link, util.DNSSummary(reply))

	if err = s.sock.Send(msg.Link, reply, s.SendTimeout); err != nil {
		return errors.Wrapf(err, "sn=%d, dns reply", msg.SN)
	}
	return nil
}

// Reply builds the response to query: header, the echoed question and one
// answer pointing back at the question name. The answer echoes the question's
// type and class and always carries the configured address.
func (s *Server) Reply(query []byte) ([]byte, error) {
	header, err := ParseHeader(query)
	if err != nil {
		return nil, err
	}

	question, _, err := ParseQuestion(query[HeaderLen:])
	if err != nil {
		return nil, errors.Wrapf(err, "id=%d question", header.ID)
	}

	header.Response = true
	header.RecursionAvailable = true
	header.QuestionCount = 1
	header.AnswerCount = 1
	header.AuthorityCount = 0
	header.AdditionalCount = 0

	answer := Answer{
		Type:  question.Type,
		Class: question.Class,
		TTL:   TTL,
		Data:  s.address,
	}
	answer.SetNameOffset(HeaderLen)

	if name, err := question.DomainName(); err == nil {
		log.Sugar.Infof("dns id=%d, %s %s -> %s", header.ID, util.DNSTypeString(question.Type), name, s.address)
	}

	reply := header.Serialize()
	reply = append(reply, question.Serialize()...)
	reply = append(reply, answer.Serialize()...)
	return reply, nil
}
