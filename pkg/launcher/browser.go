package launcher

import (
	"sync"
)

// BrowserResult reports what happened when the browser was asked to open.
type BrowserResult struct {
	Attempted bool
	Opened    bool
	Err       error
}

// browserOnce opens the browser at most once per supervisor run.
type browserOnce struct {
	open   func(url string) error
	once   sync.Once
	result BrowserResult
}

func (b *browserOnce) Open(url string) BrowserResult {
	b.once.Do(func() {
		err := b.open(url)
		b.result = BrowserResult{Attempted: true, Opened: err == nil, Err: err}
	})
	return b.result
}
