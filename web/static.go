package web

import (
	"io/fs"
	"mime"
	"path"
	"strings"

	"github.com/treemana/atportal/cache"
	"github.com/treemana/atportal/log"
)

const (
	staticIndex = "index.html"
	defaultType = "text/html"
)

func staticPattern(prefix string) string {
	if strings.HasSuffix(prefix, "/") {
		return prefix + "**"
	}
	return prefix + "/**"
}

// Static serves files from fsys under prefix. The request path minus the
// prefix names the file; an empty remainder or one ending in '/' serves
// index.html. Paths containing ".." get a 403 without touching fsys, and any
// read failure is a 404. files may be nil.
func (r *Router) Static(prefix string, fsys fs.FS, files *cache.Files) {
	r.Handle("GET", staticPattern(prefix), func(req *Request, res *Response) {
		name := strings.TrimPrefix(strings.TrimPrefix(req.Path, prefix), "/")
		if len(name) == 0 || strings.HasSuffix(name, "/") {
			name += staticIndex
		}

		if strings.Contains(name, "..") {
			res.Set(403, []string{"Content-Type: " + defaultType}, []byte("Invalid file path!"))
			return
		}

		content, err := files.Read(fsys, name)
		if err != nil {
			log.Sugar.Debugf("static [%s] read error=[%+v]", name, err)
			res.Set(404, []string{"Content-Type: " + defaultType}, []byte("File not found!"))
			return
		}

		res.Set(200, []string{"Content-Type: " + contentType(name)}, content)
	})
}

// Unstatic removes the handler registered by Static for prefix.
func (r *Router) Unstatic(prefix string) bool {
	return r.Remove("GET", staticPattern(prefix))
}

func contentType(name string) string {
	if t := mime.TypeByExtension(path.Ext(name)); len(t) > 0 {
		return t
	}
	return defaultType
}
