package util

import (
	"net"
	"regexp"

	"github.com/pkg/errors"
)

var (
	cifsrAPIP  = regexp.MustCompile(`\+CIFSR:APIP,"([0-9.]+)"`)
	cifsrSTAIP = regexp.MustCompile(`\+CIFSR:STAIP,"([0-9.]+)"`)
	dottedQuad = regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)
)

// ParseCIFSR extracts the soft-AP address from an AT+CIFSR response.
// The station address and then any bare dotted quad are accepted as fallbacks,
// so older firmware printing only the address still works.
// The returned address is always 4 bytes long.
func ParseCIFSR(raw []byte) (net.IP, error) {
	var text []byte
	if m := cifsrAPIP.FindSubmatch(raw); m != nil {
		text = m[1]
	} else if m = cifsrSTAIP.FindSubmatch(raw); m != nil {
		text = m[1]
	} else {
		text = dottedQuad.Find(raw)
	}

	if len(text) == 0 {
		return nil, errors.Errorf("no address in cifsr response [%q]", raw)
	}

	return ParseIPv4(string(text))
}

// ParseIPv4 parses a dotted quad into its 4-byte form.
func ParseIPv4(s string) (net.IP, error) {
	ip := net.ParseIP(s).To4()
	if ip == nil {
		return nil, errors.Errorf("invalid ipv4 address [%s]", s)
	}
	return ip, nil
}
