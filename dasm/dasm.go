// Package dasm is a concurrent, evicting disassembly cache. Lookups
// are keyed by (content hash, decode params); misses enqueue work for a
// background worker pool and return immediately, so callers poll by
// looking up again. A background evictor reclaims cold entries and
// re-enqueues entries whose debug-info inputs changed on disk.
package dasm

import (
	"log"
	"runtime"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"

	"github.com/lunixbochs/dasmcache/di"
	"github.com/lunixbochs/dasmcache/hs"
	"github.com/lunixbochs/dasmcache/models"
	"github.com/lunixbochs/dasmcache/ring"
	"github.com/lunixbochs/dasmcache/txt"
)

// ChangeGener supplies a monotonic counter that advances whenever a
// relevant file-system mutation is observed.
type ChangeGener interface {
	ChangeGen() uint64
}

type nopChange struct{}

func (nopChange) ChangeGen() uint64 { return 0 }

type Config struct {
	Store   *hs.Store
	DbgInfo *di.Cache
	Text    *txt.Cache
	Change  ChangeGener

	SlotsCount   int // default 1024
	StripesCount int // default min(SlotsCount, NumCPU)
	RingSize     int // default 64 KiB
	WorkerCount  int // default 1

	// eviction and re-decode thresholds; both the wall-clock and the
	// user-clock axis must agree before the evictor acts
	EvictThreshold          time.Duration // default 10s
	EvictUserClockThreshold uint64        // default 10
	RetryThreshold          time.Duration // default 1s
	RetryUserClockThreshold uint64        // default 10
	EvictorPeriod           time.Duration // default 100ms

	// how long a worker waits for the text service to produce a
	// source file's content before degrading to no line text
	TextWaitBudget time.Duration // default 2ms

	Clock clock.Clock // defaults to the real clock
	Log   *log.Logger // nil disables cache logging
}

func (c *Config) fill() error {
	if c.Store == nil {
		return errors.New("dasm: hash store required")
	}
	if c.DbgInfo == nil {
		c.DbgInfo = di.NewCache()
	}
	if c.Text == nil {
		c.Text = txt.NewCache(c.Store)
	}
	if c.Change == nil {
		c.Change = nopChange{}
	}
	if c.SlotsCount <= 0 {
		c.SlotsCount = 1024
	}
	if c.StripesCount <= 0 {
		c.StripesCount = runtime.NumCPU()
	}
	if c.StripesCount > c.SlotsCount {
		c.StripesCount = c.SlotsCount
	}
	if c.RingSize <= 0 {
		c.RingSize = 64 * 1024
	}
	if c.WorkerCount <= 0 {
		c.WorkerCount = 1
	}
	if c.EvictThreshold <= 0 {
		c.EvictThreshold = 10 * time.Second
	}
	if c.EvictUserClockThreshold == 0 {
		c.EvictUserClockThreshold = 10
	}
	if c.RetryThreshold <= 0 {
		c.RetryThreshold = time.Second
	}
	if c.RetryUserClockThreshold == 0 {
		c.RetryUserClockThreshold = 10
	}
	if c.EvictorPeriod <= 0 {
		c.EvictorPeriod = 100 * time.Millisecond
	}
	if c.TextWaitBudget <= 0 {
		c.TextWaitBudget = 2 * time.Millisecond
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	return nil
}

type Cache struct {
	cfg   Config
	clk   clock.Clock
	epoch time.Time

	slots   []slot
	stripes []stripe
	u2p     *ring.Ring

	userClock userClock
	scopePool sync.Pool

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New builds and starts a cache: worker threads plus the
// evictor/detector begin running before New returns.
func New(cfg Config) (*Cache, error) {
	if err := cfg.fill(); err != nil {
		return nil, err
	}
	c := &Cache{
		cfg:     cfg,
		clk:     cfg.Clock,
		slots:   make([]slot, cfg.SlotsCount),
		stripes: make([]stripe, cfg.StripesCount),
		u2p:     ring.New(cfg.RingSize),
		stop:    make(chan struct{}),
	}
	c.epoch = c.clk.Now()
	c.scopePool.New = func() interface{} { return &Scope{} }
	for i := 0; i < cfg.WorkerCount; i++ {
		c.wg.Add(1)
		go c.runWorker(i)
	}
	c.wg.Add(1)
	go c.runEvictor()
	return c, nil
}

// Stop halts the worker pool and evictor. Cached data stays readable;
// no further decodes or evictions run.
func (c *Cache) Stop() {
	c.stopOnce.Do(func() {
		close(c.stop)
		c.u2p.Close()
	})
	c.wg.Wait()
}

// nowUS is microseconds since the cache started; stamps and thresholds
// all share this axis.
func (c *Cache) nowUS() uint64 {
	return uint64(c.clk.Now().Sub(c.epoch) / time.Microsecond)
}

func (c *Cache) slotStripe(hash models.Hash) (*slot, *stripe) {
	slotIdx := hash.Hi % uint64(len(c.slots))
	stripeIdx := slotIdx % uint64(len(c.stripes))
	return &c.slots[slotIdx], &c.stripes[stripeIdx]
}

func (c *Cache) logf(format string, args ...interface{}) {
	if c.cfg.Log != nil {
		c.cfg.Log.Printf(format, args...)
	}
}

var (
	sharedMu sync.Mutex
	shared   *Cache
)

// Init creates the process-wide cache. Idempotent: the first call wins
// and later calls return the existing instance.
func Init(cfg Config) (*Cache, error) {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if shared != nil {
		return shared, nil
	}
	c, err := New(cfg)
	if err != nil {
		return nil, err
	}
	shared = c
	return c, nil
}

// Shared returns the cache built by Init, or nil before Init.
func Shared() *Cache {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	return shared
}
