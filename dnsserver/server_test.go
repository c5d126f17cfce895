package dnsserver

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/miekg/dns"
	"golang.org/x/net/dns/dnsmessage"

	"github.com/treemana/atportal/model"
)

type sent struct {
	link    int
	payload []byte
}

type fakeSocket struct {
	link    int
	inbox   []model.Message
	sent    []sent
	sendErr error
	ports   []int
	closed  bool
}

func (f *fakeSocket) Receive(timeout time.Duration) (model.Message, error) {
	if len(f.inbox) == 0 {
		return model.Message{Link: -1}, nil
	}
	m := f.inbox[0]
	f.inbox = f.inbox[1:]
	return m, nil
}

func (f *fakeSocket) Send(link int, payload []byte, timeout time.Duration) error {
	f.sent = append(f.sent, sent{link: link, payload: payload})
	return f.sendErr
}

func (f *fakeSocket) UDPLink() int { return f.link }

func (f *fakeSocket) UDPListen(port int) error {
	f.ports = append(f.ports, port)
	return nil
}

func (f *fakeSocket) UDPClose() error {
	f.closed = true
	return nil
}

func query(t *testing.T, name string, qtype uint16) []byte {
	t.Helper()
	var m = new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), qtype)
	m.Id = 0x4242
	packet, err := m.Pack()
	if err != nil {
		t.Fatalf("Pack() error = %v", err)
	}
	return packet
}

func newServer(t *testing.T, sock Socket) *Server {
	t.Helper()
	s, err := New(sock, net.ParseIP("192.168.4.1"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func TestHandleMessageAnswersA(t *testing.T) {
	sock := &fakeSocket{link: 4}
	s := newServer(t, sock)

	err := s.HandleMessage(model.Message{SN: 1, Link: 4, Payload: query(t, "example.com", dns.TypeA)})
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if len(sock.sent) != 1 || sock.sent[0].link != 4 {
		t.Fatalf("sent = %+v, want one reply on link 4", sock.sent)
	}

	var resp = new(dns.Msg)
	if err = resp.Unpack(sock.sent[0].payload); err != nil {
		t.Fatalf("Unpack() error = %v", err)
	}
	if resp.Id != 0x4242 || !resp.Response || !resp.RecursionAvailable || len(resp.Answer) != 1 {
		t.Fatalf("reply header = %+v, want response, ra, one answer", resp.MsgHdr)
	}

	a, ok := resp.Answer[0].(*dns.A)
	if !ok {
		t.Fatalf("answer = %T, want *dns.A", resp.Answer[0])
	}
	if !a.A.Equal(net.IPv4(192, 168, 4, 1)) || a.Hdr.Name != "example.com." || a.Hdr.Ttl != TTL || a.Hdr.Class != dns.ClassINET {
		t.Errorf("answer = %s", a)
	}
}

func TestReplyWithDNSMessage(t *testing.T) {
	s := newServer(t, &fakeSocket{link: 4})

	reply, err := s.Reply(query(t, "portal", dns.TypeA))
	if err != nil {
		t.Fatalf("Reply() error = %v", err)
	}

	var p dnsmessage.Parser
	h, err := p.Start(reply)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !h.Response || !h.RecursionAvailable {
		t.Errorf("header = %+v", h)
	}
	if err = p.SkipAllQuestions(); err != nil {
		t.Fatalf("SkipAllQuestions() error = %v", err)
	}
	ah, err := p.AnswerHeader()
	if err != nil {
		t.Fatalf("AnswerHeader() error = %v", err)
	}
	if ah.Name.String() != "portal." || ah.Type != dnsmessage.TypeA {
		t.Errorf("answer header = %+v", ah)
	}
	ar, err := p.AResource()
	if err != nil {
		t.Fatalf("AResource() error = %v", err)
	}
	if ar.A != [4]byte{192, 168, 4, 1} {
		t.Errorf("A = %v, want 192.168.4.1", ar.A)
	}

	// the same reply through this package's codec
	header, _ := ParseHeader(reply)
	if !header.Response || !header.RecursionAvailable || header.AnswerCount != 1 {
		t.Errorf("ParseHeader() = %s", header)
	}
	_, n, err := ParseQuestion(reply[HeaderLen:])
	if err != nil {
		t.Fatalf("ParseQuestion() error = %v", err)
	}
	answer, _, err := ParseAnswer(reply[HeaderLen+n:])
	if err != nil {
		t.Fatalf("ParseAnswer() error = %v", err)
	}
	if answer.Address() != "192.168.4.1" {
		t.Errorf("Address() = %s, want 192.168.4.1", answer.Address())
	}
}

func TestReplyDropsAdditionalRecords(t *testing.T) {
	var m = new(dns.Msg)
	m.SetQuestion("example.com.", dns.TypeA)
	m.SetEdns0(1232, false)
	packet, err := m.Pack()
	if err != nil {
		t.Fatalf("Pack() error = %v", err)
	}

	reply, err := newServer(t, &fakeSocket{link: 4}).Reply(packet)
	if err != nil {
		t.Fatalf("Reply() error = %v", err)
	}

	var resp = new(dns.Msg)
	if err = resp.Unpack(reply); err != nil {
		t.Fatalf("Unpack() error = %v", err)
	}
	if len(resp.Extra) != 0 || len(resp.Answer) != 1 {
		t.Errorf("reply extra = %d, answer = %d, want 0 and 1", len(resp.Extra), len(resp.Answer))
	}
}

func TestReplyEchoesQuestion(t *testing.T) {
	tests := []struct {
		name     string
		qtype    uint16
		response bool
	}{
		{name: "aaaa", qtype: dns.TypeAAAA},
		{name: "txt", qtype: dns.TypeTXT},
		{name: "qr already set", qtype: dns.TypeA, response: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			packet := query(t, "example.com", tt.qtype)
			if tt.response {
				packet[2] |= 0x80
			}

			reply, err := newServer(t, &fakeSocket{link: 4}).Reply(packet)
			if err != nil {
				t.Fatalf("Reply() error = %v", err)
			}

			header, err := ParseHeader(reply)
			if err != nil {
				t.Fatalf("ParseHeader() error = %v", err)
			}
			if !header.Response || header.QuestionCount != 1 || header.AnswerCount != 1 {
				t.Errorf("ParseHeader() = %s, want response with one question and one answer", header)
			}

			question, n, err := ParseQuestion(reply[HeaderLen:])
			if err != nil {
				t.Fatalf("ParseQuestion() error = %v", err)
			}
			answer, _, err := ParseAnswer(reply[HeaderLen+n:])
			if err != nil {
				t.Fatalf("ParseAnswer() error = %v", err)
			}

			if answer.Type != question.Type || answer.Type != tt.qtype || answer.Class != question.Class {
				t.Errorf("answer type/class = %d/%d, want %d/%d", answer.Type, answer.Class, tt.qtype, question.Class)
			}
			if off, ok := answer.NameOffset(); !ok || off != HeaderLen {
				t.Errorf("NameOffset() = (%d, %t), want (%d, true)", off, ok, HeaderLen)
			}
			if answer.TTL != TTL || answer.Address() != "192.168.4.1" {
				t.Errorf("answer ttl/address = %d/%s", answer.TTL, answer.Address())
			}
		})
	}
}

func TestHandleMessageIgnores(t *testing.T) {
	valid := query(t, "example.com", dns.TypeA)

	tests := []struct {
		name    string
		msg     model.Message
		wantErr error
	}{
		{name: "other link", msg: model.Message{Link: 0, Payload: valid}},
		{name: "no link", msg: model.Message{Link: -1}},
		{name: "short", msg: model.Message{Link: 4, Payload: valid[:16]}},
		{name: "bad question", msg: model.Message{Link: 4, Payload: append(append([]byte(nil), valid[:HeaderLen]...), 0x3f, 'a', 'b', 'c', 'd', 'e')}, wantErr: ErrMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sock := &fakeSocket{link: 4}
			err := newServer(t, sock).HandleMessage(tt.msg)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("HandleMessage() error = %v, want %v", err, tt.wantErr)
			}
			if len(sock.sent) != 0 {
				t.Errorf("sent = %d replies, want none", len(sock.sent))
			}
		})
	}
}

func TestListenCloseReceiveCycle(t *testing.T) {
	sock := &fakeSocket{link: 2}
	s := newServer(t, sock)

	if err := s.Listen(53); err != nil || len(sock.ports) != 1 || sock.ports[0] != 53 {
		t.Fatalf("Listen() = %v, ports %v", err, sock.ports)
	}

	sock.inbox = []model.Message{{Link: 2, Payload: query(t, "captive.apple.com", dns.TypeA)}}
	if err := s.ReceiveCycle(time.Second); err != nil {
		t.Fatalf("ReceiveCycle() error = %v", err)
	}
	if len(sock.sent) != 1 {
		t.Errorf("sent = %d replies, want 1", len(sock.sent))
	}

	sock.sendErr = errors.New("link is not valid")
	sock.inbox = []model.Message{{Link: 2, Payload: query(t, "captive.apple.com", dns.TypeA)}}
	if err := s.ReceiveCycle(time.Second); !errors.Is(err, sock.sendErr) {
		t.Errorf("ReceiveCycle() error = %v, want %v", err, sock.sendErr)
	}

	if err := s.Close(); err != nil || !sock.closed {
		t.Errorf("Close() = %v, closed %t", err, sock.closed)
	}
}

func TestNewRejectsIPv6(t *testing.T) {
	if _, err := New(&fakeSocket{}, net.ParseIP("fe80::1")); err == nil {
		t.Errorf("New(ipv6) error = nil")
	}
}
