package web

import (
	"strings"
)

// Handler fills res for req.
type Handler func(req *Request, res *Response)

// Middleware runs before the handler. Returning false stops the chain and
// skips the handler; res is still sent.
type Middleware func(req *Request, res *Response) bool

type route struct {
	pattern  string
	segments []string
	handler  Handler
}

type middleware struct {
	name string
	fn   Middleware
}

// Router maps a method and a path pattern to a handler. Patterns are
// '/'-separated; a segment is a literal, "*" (any one segment), ":name" (any
// one segment, bound into Request.Params) or a final "**" (everything left).
// Routes are tried in registration order and the first match wins.
type Router struct {
	routes      map[string][]route
	middlewares []middleware
}

func NewRouter() *Router {
	return &Router{routes: map[string][]route{}}
}

// Handle registers h. Registering a pattern again replaces its handler and
// keeps its position.
func (r *Router) Handle(method, pattern string, h Handler) {
	for i, rt := range r.routes[method] {
		if rt.pattern == pattern {
			r.routes[method][i].handler = h
			return
		}
	}

	r.routes[method] = append(r.routes[method], route{
		pattern:  pattern,
		segments: strings.Split(pattern, "/"),
		handler:  h,
	})
}

// Remove drops the route registered for method and pattern.
func (r *Router) Remove(method, pattern string) bool {
	routes := r.routes[method]
	for i, rt := range routes {
		if rt.pattern == pattern {
			r.routes[method] = append(routes[:i:i], routes[i+1:]...)
			return true
		}
	}
	return false
}

// Use appends a named middleware. Using a name again replaces it in place.
func (r *Router) Use(name string, fn Middleware) {
	for i, mw := range r.middlewares {
		if mw.name == name {
			r.middlewares[i].fn = fn
			return
		}
	}
	r.middlewares = append(r.middlewares, middleware{name: name, fn: fn})
}

func (r *Router) Unuse(name string) bool {
	for i, mw := range r.middlewares {
		if mw.name == name {
			r.middlewares = append(r.middlewares[:i:i], r.middlewares[i+1:]...)
			return true
		}
	}
	return false
}

// Match returns the first handler whose pattern matches req.Path and stores
// the bound parameters in req.Params.
func (r *Router) Match(req *Request) (Handler, bool) {
	segments := strings.Split(req.Path, "/")
	for _, rt := range r.routes[req.Method] {
		if params, ok := match(rt.segments, segments); ok {
			req.Params = params
			return rt.handler, true
		}
	}
	return nil, false
}

func match(pattern, path []string) (map[string]string, bool) {
	if len(pattern) > len(path) {
		return nil, false
	}

	params := map[string]string{}
	for i, seg := range pattern {
		switch {
		case seg == "**":
			return params, true
		case seg == "*":
		case strings.HasPrefix(seg, ":"):
			params[seg[1:]] = path[i]
		case seg != path[i]:
			return nil, false
		}
	}

	if len(path) > len(pattern) {
		return nil, false
	}
	return params, true
}

// Serve runs the pipeline for req: route lookup, middleware chain, handler.
// An unmatched request gets a 404 naming the method and route.
func (r *Router) Serve(req *Request) Response {
	h, ok := r.Match(req)
	if !ok {
		return NewResponse(404, nil, []byte("Cannot "+req.Method+" "+req.Route))
	}

	res := NewResponse(200, nil, nil)
	for _, mw := range r.middlewares {
		if !mw.fn(req, &res) {
			return res
		}
	}

	h(req, &res)
	return res
}
