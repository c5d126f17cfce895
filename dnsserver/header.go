// Package dnsserver answers every DNS query it receives with one fixed IPv4
// address, the usual trick that turns an access point into a captive portal.
// It carries its own codec for the three records it needs: header, question
// and a single A answer.
package dnsserver

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// HeaderLen is the size of the fixed DNS header; the question always starts
// right after it.
const HeaderLen = 12

var ErrMalformed = errors.New("malformed dns message")

const (
	bitQR     = 1 << 7 // flags byte 0
	bitAA     = 1 << 2
	bitTC     = 1 << 1
	bitRD     = 1 << 0
	bitRA     = 1 << 7 // flags byte 1
	maskOp    = 0x0f
	shiftOp   = 3
	maskRcode = 0x0f
)

type Header struct {
	ID uint16

	Response           bool  // QR
	Opcode             uint8 // 4 bits
	Authoritative      bool  // AA
	Truncated          bool  // TC
	RecursionDesired   bool  // RD
	RecursionAvailable bool  // RA
	Rcode              uint8 // 4 bits

	QuestionCount   uint16
	AnswerCount     uint16
	AuthorityCount  uint16
	AdditionalCount uint16
}

func ParseHeader(b []byte) (Header, error) {
	if len(b) < HeaderLen {
		return Header{}, errors.Wrapf(ErrMalformed, "header needs %d bytes, got %d", HeaderLen, len(b))
	}

	f0, f1 := b[2], b[3]
	return Header{
		ID:                 binary.BigEndian.Uint16(b[0:2]),
		Response:           f0&bitQR != 0,
		Opcode:             (f0 >> shiftOp) & maskOp,
		Authoritative:      f0&bitAA != 0,
		Truncated:          f0&bitTC != 0,
		RecursionDesired:   f0&bitRD != 0,
		RecursionAvailable: f1&bitRA != 0,
		Rcode:              f1 & maskRcode,
		QuestionCount:      binary.BigEndian.Uint16(b[4:6]),
		AnswerCount:        binary.BigEndian.Uint16(b[6:8]),
		AuthorityCount:     binary.BigEndian.Uint16(b[8:10]),
		AdditionalCount:    binary.BigEndian.Uint16(b[10:12]),
	}, nil
}

// Serialize packs h into its 12-byte wire form. Opcode and Rcode are
// truncated to 4 bits.
func (h Header) Serialize() []byte {
	var f0, f1 byte
	f0 |= (h.Opcode & maskOp) << shiftOp
	if h.Response {
		f0 |= bitQR
	}
	if h.Authoritative {
		f0 |= bitAA
	}
	if h.Truncated {
		f0 |= bitTC
	}
	if h.RecursionDesired {
		f0 |= bitRD
	}
	if h.RecursionAvailable {
		f1 |= bitRA
	}
	f1 |= h.Rcode & maskRcode

	b := make([]byte, HeaderLen)
	binary.BigEndian.PutUint16(b[0:2], h.ID)
	b[2], b[3] = f0, f1
	binary.BigEndian.PutUint16(b[4:6], h.QuestionCount)
	binary.BigEndian.PutUint16(b[6:8], h.AnswerCount)
	binary.BigEndian.PutUint16(b[8:10], h.AuthorityCount)
	binary.BigEndian.PutUint16(b[10:12], h.AdditionalCount)
	return b
}

func (h Header) String() string {
	var flags []string
	for _, f := range []struct {
		set  bool
		name string
	}{
		{h.Response, "qr"}, {h.Authoritative, "aa"}, {h.Truncated, "tc"},
		{h.RecursionDesired, "rd"}, {h.RecursionAvailable, "ra"},
	} {
		if f.set {
			flags = append(flags, f.name)
		}
	}

	return fmt.Sprintf("id=%d, opcode=%d, flags=[%s], rcode=%d, qd=%d, an=%d, ns=%d, ar=%d",
		h.ID, h.Opcode, strings.Join(flags, " "), h.Rcode,
		h.QuestionCount, h.AnswerCount, h.AuthorityCount, h.AdditionalCount)
}
