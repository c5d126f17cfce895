package dnsserver

import (
	"encoding/binary"
	"net"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const (
	TypeA   uint16 = 1
	ClassIN uint16 = 1
)

// Question keeps the name in wire form so a reply echoes it byte for byte.
type Question struct {
	Name  []byte
	Type  uint16
	Class uint16
}

// ParseQuestion reads one question from the start of b and returns the
// number of bytes it occupies.
func ParseQuestion(b []byte) (Question, int, error) {
	_, n, err := DecodeName(b)
	if err != nil {
		return Question{}, 0, err
	}

	if n+4 > len(b) {
		return Question{}, 0, errors.Wrap(ErrMalformed, "question type and class truncated")
	}

	return Question{
		Name:  append([]byte(nil), b[:n]...),
		Type:  binary.BigEndian.Uint16(b[n : n+2]),
		Class: binary.BigEndian.Uint16(b[n+2 : n+4]),
	}, n + 4, nil
}

func (q Question) Serialize() []byte {
	b := make([]byte, 0, len(q.Name)+4)
	b = append(b, q.Name...)
	b = binary.BigEndian.AppendUint16(b, q.Type)
	b = binary.BigEndian.AppendUint16(b, q.Class)
	return b
}

// DomainName decodes Name into dotted form.
func (q Question) DomainName() (string, error) {
	name, _, err := DecodeName(q.Name)
	return name, err
}

func (q *Question) SetDomainName(name string) error {
	b, err := EncodeName(name)
	if err != nil {
		return err
	}
	q.Name = b
	return nil
}

type Answer struct {
	Name  []byte // labels or a 2-byte compression pointer
	Type  uint16
	Class uint16
	TTL   uint32
	Data  []byte
}

// ParseAnswer reads one resource record from the start of b and returns the
// number of bytes it occupies.
func ParseAnswer(b []byte) (Answer, int, error) {
	n, err := nameLen(b)
	if err != nil {
		return Answer{}, 0, err
	}

	if n+10 > len(b) {
		return Answer{}, 0, errors.Wrap(ErrMalformed, "answer fixed fields truncated")
	}

	a := Answer{
		Name:  append([]byte(nil), b[:n]...),
		Type:  binary.BigEndian.Uint16(b[n : n+2]),
		Class: binary.BigEndian.Uint16(b[n+2 : n+4]),
		TTL:   binary.BigEndian.Uint32(b[n+4 : n+8]),
	}

	size := int(binary.BigEndian.Uint16(b[n+8 : n+10]))
	end := n + 10 + size
	if end > len(b) {
		return Answer{}, 0, errors.Wrapf(ErrMalformed, "answer data of %d bytes truncated", size)
	}
	a.Data = append([]byte(nil), b[n+10:end]...)

	return a, end, nil
}

func (a Answer) Serialize() []byte {
	b := make([]byte, 0, len(a.Name)+10+len(a.Data))
	b = append(b, a.Name...)
	b = binary.BigEndian.AppendUint16(b, a.Type)
	b = binary.BigEndian.AppendUint16(b, a.Class)
	b = binary.BigEndian.AppendUint32(b, a.TTL)
	b = binary.BigEndian.AppendUint16(b, uint16(len(a.Data)))
	b = append(b, a.Data...)
	return b
}

// SetNameOffset replaces Name by a pointer to offset within the message.
func (a *Answer) SetNameOffset(offset uint16) {
	p := pointerTag<<8 | offset&pointerMask
	a.Name = []byte{byte(p >> 8), byte(p)}
}

// NameOffset returns the pointer target when Name is a compression pointer.
func (a Answer) NameOffset() (uint16, bool) {
	if len(a.Name) != 2 || a.Name[0]&pointerTag != pointerTag {
		return 0, false
	}
	return binary.BigEndian.Uint16(a.Name) & pointerMask, true
}

// SetAddress stores a dotted-quad IPv4 address as A record data.
func (a *Answer) SetAddress(s string) error {
	ip := net.ParseIP(s).To4()
	if ip == nil {
		return errors.Errorf("invalid ipv4 address [%s]", s)
	}
	a.Data = []byte(ip)
	return nil
}

// Address renders Data as dot-separated decimal octets.
func (a Answer) Address() string {
	parts := make([]string, len(a.Data))
	for i, o := range a.Data {
		parts[i] = strconv.Itoa(int(o))
	}
	return strings.Join(parts, ".")
}
