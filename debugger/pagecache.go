package debugger

import (
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

var errAddressWrap = errors.New("read past the end of the address space")

// pageCache reads target memory through fixed-size pages, keeping the most
// recently used pages. Reads spanning pages are split transparently.
type pageCache struct {
	read     func(addr uint64, buf []byte) error
	pageSize uint64
	pages    *lru.Cache[uint64, []byte] // nil when caching is disabled
	metrics  *metrics
}

func newPageCache(read func(uint64, []byte) error, pageSize, maxPages int, m *metrics) (*pageCache, error) {
	c := &pageCache{
		read:     read,
		pageSize: uint64(pageSize),
		metrics:  m,
	}
	if maxPages > 0 {
		pages, err := lru.New[uint64, []byte](maxPages)
		if err != nil {
			return nil, err
		}
		c.pages = pages
	}
	return c, nil
}

// ReadAt fills p with target memory starting at addr.
func (c *pageCache) ReadAt(p []byte, addr uint64) (n int, err error) {
	for len(p) > 0 {
		pageAddr := addr &^ (c.pageSize - 1)
		pageOff := addr - pageAddr

		page, err := c.page(pageAddr)
		if err != nil {
			return n, fmt.Errorf("reading target memory at %#x: %w", addr, err)
		}

		copied := copy(p, page[pageOff:])
		n += copied
		p = p[copied:]
		addr += uint64(copied)
		if addr == 0 && len(p) > 0 {
			return n, errAddressWrap
		}
	}
	return n, nil
}

func (c *pageCache) page(addr uint64) ([]byte, error) {
	if c.pages != nil {
		if page, ok := c.pages.Get(addr); ok {
			c.metrics.pageHits.Inc()
			return page, nil
		}
	}
	c.metrics.pageMisses.Inc()

	page := make([]byte, c.pageSize)
	if err := c.read(addr, page); err != nil {
		return nil, err
	}
	if c.pages != nil {
		c.pages.Add(addr, page)
	}
	return page, nil
}

// Len returns the number of cached pages.
func (c *pageCache) Len() int {
	if c.pages == nil {
		return 0
	}
	return c.pages.Len()
}

// Purge drops every cached page.
func (c *pageCache) Purge() {
	if c.pages != nil {
		c.pages.Purge()
	}
}
