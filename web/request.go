package web

import (
	"bytes"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/net/http/httpguts"
)

var ErrMalformedRequest = errors.New("malformed http request")

var crlf = []byte("\r\n")

type Request struct {
	Method   string
	Route    string // request target as sent, query included
	Path     string // Route without the query string
	Protocol string
	Headers  []string // raw "Name: value" lines in arrival order
	Body     []byte

	Query  map[string]string
	Params map[string]string // filled by the router from ":name" segments
}

// Header returns the value of the first header line named name, compared
// case-insensitively.
func (r *Request) Header(name string) (string, bool) {
	for _, line := range r.Headers {
		k, v, ok := strings.Cut(line, ":")
		if ok && strings.EqualFold(strings.TrimSpace(k), name) {
			return strings.TrimSpace(v), true
		}
	}
	return "", false
}

// ParseRequest splits a raw request on CRLF. The request line must hold
// exactly three space separated tokens; header lines follow up to the first
// empty line and everything after it, rejoined with CRLF, is the body.
func ParseRequest(data []byte) (*Request, error) {
	lines := bytes.Split(data, crlf)

	tokens := strings.Split(string(lines[0]), " ")
	if len(tokens) != 3 {
		return nil, errors.Wrapf(ErrMalformedRequest, "request line [%q]", lines[0])
	}
	for _, token := range tokens {
		if len(token) == 0 {
			return nil, errors.Wrapf(ErrMalformedRequest, "request line [%q]", lines[0])
		}
	}
	if !isToken(tokens[0]) {
		return nil, errors.Wrapf(ErrMalformedRequest, "method [%q]", tokens[0])
	}

	req := &Request{
		Method:   tokens[0],
		Route:    tokens[1],
		Protocol: tokens[2],
		Params:   map[string]string{},
	}

	req.Path = req.Route
	if path, query, ok := strings.Cut(req.Route, "?"); ok {
		req.Path = path
		req.Query = ParseQuery(query)
	} else {
		req.Query = map[string]string{}
	}

	for i := 1; i < len(lines); i++ {
		if len(lines[i]) == 0 {
			req.Body = bytes.Join(lines[i+1:], crlf)
			break
		}
		req.Headers = append(req.Headers, string(lines[i]))
	}

	return req, nil
}

func isToken(s string) bool {
	for _, r := range s {
		if !httpguts.IsTokenRune(r) {
			return false
		}
	}
	return len(s) > 0
}

// ParseQuery reads "a=1&b=2" into a map. The last duplicate key wins, a pair
// without '=' maps to "", empty pairs are skipped and nothing is unescaped.
func ParseQuery(query string) map[string]string {
	values := map[string]string{}
	for _, pair := range strings.Split(query, "&") {
		if len(pair) == 0 {
			continue
		}
		k, v, _ := strings.Cut(pair, "=")
		values[k] = v
	}
	return values
}
