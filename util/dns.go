package util

import (
	"fmt"
	"strings"

	"github.com/miekg/dns"
)

// DNSSummary renders a packed DNS message as a single log line.
// Packets miekg/dns refuses to unpack are summarised by the error instead.
func DNSSummary(packet []byte) string {
	var m = new(dns.Msg)
	if err := m.Unpack(packet); err != nil {
		return fmt.Sprintf("unpack error=[%+v], len=%d", err, len(packet))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "id=%d, qr=%t, ra=%t, rcode=%s", m.Id, m.Response, m.RecursionAvailable, dns.RcodeToString[m.Rcode])
	for _, q := range m.Question {
		fmt.Fprintf(&b, ", question=[%s %s %s]", q.Name, dns.ClassToString[q.Qclass], dns.TypeToString[q.Qtype])
	}
	for _, rr := range m.Answer {
		fmt.Fprintf(&b, ", answer=[%s]", strings.ReplaceAll(rr.String(), "\t", " "))
	}

	return b.String()
}

// DNSTypeString names a DNS type code, falling back to the numeric form.
func DNSTypeString(t uint16) string {
	if s, ok := dns.TypeToString[t]; ok {
		return s
	}
	return fmt.Sprintf("TYPE%d", t)
}
