package web

import (
	"bytes"
	"strconv"
)

// statusText is read-only after init.
var statusText = map[int]string{
	200: "OK",
	301: "Moved Permanently",
	302: "Found",
	303: "See Other",
	304: "Not Modified",
	307: "Temporary Redirect",
	308: "Permanent Redirect",
	400: "Bad Request",
	401: "Unauthorized",
	403: "Forbidden",
	404: "Not Found",
	500: "Internal Server Error",
}

// StatusText returns the reason phrase for code, "Unknown" when there is none.
func StatusText(code int) string {
	if s, ok := statusText[code]; ok {
		return s
	}
	return "Unknown"
}

// Response is written by every middleware and then the handler, in order.
// Each stage may replace whatever an earlier one wrote. The reason phrase is
// looked up from Code when the response is rendered.
type Response struct {
	Code    int
	Headers []string
	Body    []byte
}

func NewResponse(code int, headers []string, body []byte) Response {
	return Response{
		Code:    code,
		Headers: headers,
		Body:    body,
	}
}

// Set overwrites the whole response.
func (r *Response) Set(code int, headers []string, body []byte) {
	*r = NewResponse(code, headers, body)
}

// Bytes renders the response for a request made with protocol.
func (r *Response) Bytes(protocol string) []byte {
	var b bytes.Buffer
	b.Grow(len(protocol) + 32 + len(r.Body))

	b.WriteString(protocol)
	b.WriteByte(' ')
	b.WriteString(strconv.Itoa(r.Code))
	b.WriteByte(' ')
	b.WriteString(StatusText(r.Code))
	b.Write(crlf)

	for _, h := range r.Headers {
		b.WriteString(h)
		b.Write(crlf)
	}

	b.Write(crlf)
	b.Write(r.Body)
	return b.Bytes()
}
