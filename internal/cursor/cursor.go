// Package cursor walks the remote recording history page by page.
//
// A Cursor starts in the draining state: every Advance past the end of the
// shared page cache fetches the next remote page, keeps the recordings that
// precede the cutoff (the start of the local day at construction), caches
// the result and returns it. The first page that filters down to nothing
// drains the cache. From then on no cursor built on that cache fetches
// again; Advance only replays cached pages in fetch order.
package cursor

import (
	"context"
	"time"

	"github.com/peeteer1245/placetel-recording-downloader/internal/cache"
	"github.com/peeteer1245/placetel-recording-downloader/internal/models"
	"github.com/sirupsen/logrus"
)

type PageSource interface {
	ListPage(ctx context.Context, page int) ([]models.Recording, error)
}

type State int

const (
	Draining State = iota
	Drained
)

func (s State) String() string {
	switch s {
	case Draining:
		return "draining"
	case Drained:
		return "drained"
	default:
		return "unknown"
	}
}

type Cursor struct {
	source PageSource
	cache  *cache.PageCache
	cutoff time.Time
	pos    int
	state  State
	log    *logrus.Entry
}

type Option func(*cursorOptions)

type cursorOptions struct {
	now func() time.Time
}

func WithClock(now func() time.Time) Option {
	return func(o *cursorOptions) {
		o.now = now
	}
}

func New(logger *logrus.Logger, source PageSource, pages *cache.PageCache, opts ...Option) *Cursor {
	o := cursorOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	state := Draining
	if pages.Drained() {
		state = Drained
	}

	cutoff := StartOfDay(o.now())
	return &Cursor{
		source: source,
		cache:  pages,
		cutoff: cutoff,
		state:  state,
		log: logger.WithFields(logrus.Fields{
			"component": "cursor",
			"cutoff":    cutoff.Format(time.RFC3339),
		}),
	}
}

func (c *Cursor) Cutoff() time.Time {
	return c.cutoff
}

func (c *Cursor) State() State {
	return c.state
}

// Advance returns the next page. ok is false once the history is exhausted;
// a transport error is returned unchanged and leaves the cache untouched.
func (c *Cursor) Advance(ctx context.Context) (page models.Page, ok bool, err error) {
	if page, ok := c.cache.Page(c.pos); ok {
		c.pos++
		return page, true, nil
	}

	if c.state == Drained || c.cache.Drained() {
		c.state = Drained
		return nil, false, nil
	}

	index := c.cache.NextPageIndex()
	raw, err := c.source.ListPage(ctx, index)
	if err != nil {
		return nil, false, err
	}

	page = FilterBefore(raw, c.cutoff)
	if len(page) == 0 {
		c.cache.MarkDrained()
		c.state = Drained
		c.log.WithFields(logrus.Fields{
			"page":    index,
			"fetched": len(raw),
		}).Debug("Reached end of past recordings")
		return nil, false, nil
	}

	if err := c.cache.Append(page); err != nil {
		return nil, false, err
	}
	c.pos++
	return page, true, nil
}

// FilterBefore returns the leading recordings whose time precedes cutoff.
// Scanning stops at the first recording on or after the cutoff. The remote
// list is requested in ascending order and that ordering is trusted: an
// earlier recording behind a later one is dropped.
func FilterBefore(recordings []models.Recording, cutoff time.Time) models.Page {
	n := 0
	for _, rec := range recordings {
		if !rec.Time.Before(cutoff) {
			break
		}
		n++
	}
	if n == 0 {
		return nil
	}
	page := make(models.Page, n)
	copy(page, recordings[:n])
	return page
}

func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Each calls fn for every recording of every page, in order.
func Each(ctx context.Context, c *Cursor, fn func(models.Recording) error) error {
	for {
		page, ok, err := c.Advance(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		for _, rec := range page {
			if err := fn(rec); err != nil {
				return err
			}
		}
	}
}
