package cache

import (
	"errors"
	"sync"

	"github.com/peeteer1245/placetel-recording-downloader/internal/models"
	"github.com/sirupsen/logrus"
)

var ErrDrained = errors.New("page cache is drained")

// PageCache holds every page fetched during one run. Pages are only ever
// appended, and once drained the cache never grows again. Cursors built on
// the same cache share its history.
type PageCache struct {
	mu      sync.Mutex
	pages   []models.Page
	drained bool
	log     *logrus.Entry
}

func NewPageCache(logger *logrus.Logger) *PageCache {
	return &PageCache{
		log: logger.WithField("component", "page_cache"),
	}
}

func (c *PageCache) Page(i int) (models.Page, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if i < 0 || i >= len(c.pages) {
		return nil, false
	}
	return c.pages[i], true
}

func (c *PageCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pages)
}

// NextPageIndex is the 1-based remote page that follows the cached ones.
func (c *PageCache) NextPageIndex() int {
	return c.Len() + 1
}

func (c *PageCache) Append(page models.Page) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.drained {
		return ErrDrained
	}
	c.pages = append(c.pages, page)
	c.log.WithFields(logrus.Fields{
		"page":       len(c.pages),
		"recordings": len(page),
	}).Debug("Cached page")
	return nil
}

func (c *PageCache) MarkDrained() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.drained {
		return
	}
	c.drained = true
	c.log.WithField("pages", len(c.pages)).Info("Recording history fully fetched")
}

func (c *PageCache) Drained() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.drained
}

func (c *PageCache) RecordingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, p := range c.pages {
		n += len(p)
	}
	return n
}
