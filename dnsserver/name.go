package dnsserver

import (
	"strings"

	"github.com/pkg/errors"
)

const (
	maxLabelLen = 63
	maxNameLen  = 255

	pointerTag  = 0xc0
	pointerMask = 0x3fff
)

// EncodeName converts "example.com" into length-prefixed labels terminated by
// a zero byte. A single trailing dot is accepted; "" and "." encode the root.
func EncodeName(name string) ([]byte, error) {
	name = strings.TrimSuffix(name, ".")
	if len(name) == 0 {
		return []byte{0}, nil
	}

	b := make([]byte, 0, len(name)+2)
	for _, label := range strings.Split(name, ".") {
		if len(label) == 0 || len(label) > maxLabelLen {
			return nil, errors.Wrapf(ErrMalformed, "label [%s] of [%s]", label, name)
		}
		b = append(b, byte(len(label)))
		b = append(b, label...)
	}
	b = append(b, 0)

	if len(b) > maxNameLen {
		return nil, errors.Wrapf(ErrMalformed, "name [%s] encodes to %d bytes", name, len(b))
	}
	return b, nil
}

// DecodeName walks labels from the start of b until the zero terminator and
// returns the dotted name and the number of bytes consumed. Compression
// pointers are rejected: question names arrive uncompressed.
func DecodeName(b []byte) (string, int, error) {
	var (
		labels []string
		ptr    int
	)

	for {
		if ptr >= len(b) {
			return "", 0, errors.Wrap(ErrMalformed, "name not terminated")
		}

		l := int(b[ptr])
		if l == 0 {
			ptr++
			break
		}
		if l&pointerTag != 0 {
			return "", 0, errors.Wrapf(ErrMalformed, "unexpected label type 0x%02x at %d", l, ptr)
		}
		if ptr+1+l > len(b) {
			return "", 0, errors.Wrapf(ErrMalformed, "label at %d overruns message", ptr)
		}

		labels = append(labels, string(b[ptr+1:ptr+1+l]))
		ptr += l + 1

		if ptr > maxNameLen {
			return "", 0, errors.Wrap(ErrMalformed, "name too long")
		}
	}

	return strings.Join(labels, "."), ptr, nil
}

// nameLen returns the encoded length of the name at the start of b, either a
// label sequence or a 2-byte compression pointer.
func nameLen(b []byte) (int, error) {
	if len(b) > 0 && b[0]&pointerTag == pointerTag {
		if len(b) < 2 {
			return 0, errors.Wrap(ErrMalformed, "truncated pointer")
		}
		return 2, nil
	}

	_, n, err := DecodeName(b)
	return n, err
}
