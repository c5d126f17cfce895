package cache

/*

Static files live on slow storage (flash or an SD card behind the board), so
the web server keeps the most recently served ones in memory.

Files is not safe for concurrent use; the control loop serialises every
request.

*/

import (
	"io/fs"

	"github.com/hashicorp/golang-lru/simplelru"
	"github.com/pkg/errors"

	"github.com/treemana/atportal/log"
)

// MaxEntry is the largest file kept in memory, in bytes.
const MaxEntry = 64 << 10

type Files struct {
	lru *simplelru.LRU
}

// New returns a cache holding up to size files. size <= 0 disables caching.
func New(size int) (*Files, error) {
	if size <= 0 {
		return &Files{}, nil
	}

	l, err := simplelru.NewLRU(size, func(key interface{}, _ interface{}) {
		log.Sugar.Debugf("cache evict [%s]", key)
	})
	if err != nil {
		return nil, errors.Wrapf(err, "new lru size=%d", size)
	}

	return &Files{lru: l}, nil
}

// Read returns the content of name in fsys, from memory when possible.
// Read errors are returned as they are and never cached.
func (f *Files) Read(fsys fs.FS, name string) ([]byte, error) {
	if f == nil || f.lru == nil {
		return fs.ReadFile(fsys, name)
	}

	if v, ok := f.lru.Get(name); ok {
		log.Sugar.Debugf("cache hit [%s]", name)
		return v.([]byte), nil
	}

	content, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, err
	}

	if len(content) <= MaxEntry {
		f.lru.Add(name, content)
	}
	return content, nil
}

func (f *Files) Len() int {
	if f == nil || f.lru == nil {
		return 0
	}
	return f.lru.Len()
}

func (f *Files) Purge() {
	if f == nil || f.lru == nil {
		return
	}
	f.lru.Purge()
}
