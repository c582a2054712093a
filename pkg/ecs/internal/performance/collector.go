package performance

import (
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultMaxSpansPerRun = 256
	subscriberChanBuf     = 4
)

// RunSpan is one system execution within a run of the system manager.
type RunSpan struct {
	Run       uint64
	Hook      uint8
	System    string
	StartTime time.Time
	EndTime   time.Time
}

// Duration returns how long the system ran.
func (s RunSpan) Duration() time.Duration {
	return s.EndTime.Sub(s.StartTime)
}

// RunTimeline groups the spans of one run.
type RunTimeline struct {
	Run      uint64
	RunStart time.Time
	Spans    []RunSpan
}

// Batch is a batch of completed run timelines pushed to subscribers.
type Batch struct {
	Runs           []RunTimeline
	DroppedSpans   uint64 // Spans dropped during these runs
	DroppedBatches uint64 // Subscriber sends that failed since the last delivered batch
}

// SystemStats aggregates the execution times of one system.
type SystemStats struct {
	Count  uint64
	Last   time.Duration
	Total  time.Duration
	Max    time.Duration
	Window []time.Duration // Most recent durations, oldest first
}

// Mean returns the average duration over the window.
func (s SystemStats) Mean() time.Duration {
	if len(s.Window) == 0 {
		return 0
	}
	var sum time.Duration
	for _, d := range s.Window {
		sum += d
	}
	return sum / time.Duration(len(s.Window))
}

type systemTotals struct {
	count  uint64
	last   time.Duration
	total  time.Duration
	max    time.Duration
	recent *DurationRing
}

// Collector accumulates per-run span data, keeps running totals per system and broadcasts completed
// runs in batches to subscribers. RecordSpan may be called from the goroutines systems run on.
type Collector struct {
	mu           sync.Mutex
	currentSpans []RunSpan
	pending      []RunTimeline
	subscribers  []chan Batch
	batchSize    int
	windowSize   int
	runActive    bool
	droppedSpans uint64 // guarded by mu
	totals       map[string]*systemTotals

	// Incremented outside mu during broadcast.
	droppedBatches atomic.Uint64
}

// NewCollector creates a Collector that flushes every batchSize runs and keeps the last windowSize
// durations of every system.
func NewCollector(batchSize, windowSize int) *Collector {
	if batchSize <= 0 {
		batchSize = 1
	}
	if windowSize <= 0 {
		windowSize = 1
	}
	return &Collector{
		currentSpans: make([]RunSpan, 0, defaultMaxSpansPerRun),
		pending:      make([]RunTimeline, 0, batchSize),
		batchSize:    batchSize,
		windowSize:   windowSize,
		totals:       make(map[string]*systemTotals),
	}
}

// StartRun begins span collection for a new run.
func (c *Collector) StartRun() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.currentSpans = c.currentSpans[:0]
	c.runActive = true
}

// RecordSpan adds a span to the current run and to the system's totals. Totals are kept even when
// no run is active, e.g. for init systems. The span itself is dropped past the per-run limit.
func (c *Collector) RecordSpan(span RunSpan) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.accumulate(span)

	if !c.runActive {
		return
	}
	if len(c.currentSpans) >= defaultMaxSpansPerRun {
		c.droppedSpans++
		return
	}
	c.currentSpans = append(c.currentSpans, span)
}

func (c *Collector) accumulate(span RunSpan) {
	t, ok := c.totals[span.System]
	if !ok {
		t = &systemTotals{recent: NewDurationRing(c.windowSize)}
		c.totals[span.System] = t
	}
	d := span.Duration()
	t.count++
	t.last = d
	t.total += d
	t.max = max(t.max, d)
	t.recent.Push(d)
}

// RecordRun finalizes the current run. When the pending batch reaches batchSize it is sent to every
// subscriber without blocking; a full subscriber misses the batch.
func (c *Collector) RecordRun(run uint64, runStart time.Time) {
	c.mu.Lock()

	if !c.runActive {
		c.mu.Unlock()
		return
	}
	c.runActive = false

	spans := make([]RunSpan, len(c.currentSpans))
	copy(spans, c.currentSpans)
	c.pending = append(c.pending, RunTimeline{Run: run, RunStart: runStart, Spans: spans})

	var batch Batch
	var subs []chan Batch
	if len(c.pending) >= c.batchSize {
		batch = Batch{
			Runs:           c.pending,
			DroppedSpans:   c.droppedSpans,
			DroppedBatches: c.droppedBatches.Swap(0),
		}
		c.pending = make([]RunTimeline, 0, c.batchSize)
		c.droppedSpans = 0

		subs = make([]chan Batch, len(c.subscribers))
		copy(subs, c.subscribers)
	}

	c.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub <- batch:
		default:
			c.droppedBatches.Add(1)
		}
	}
}

// Stats returns the totals of a system. ok is false when the system never ran.
func (c *Collector) Stats(system string) (SystemStats, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.totals[system]
	if !ok {
		return SystemStats{}, false
	}
	return SystemStats{
		Count:  t.count,
		Last:   t.last,
		Total:  t.total,
		Max:    t.max,
		Window: t.recent.Snapshot(),
	}, true
}

// Reset clears all buffered data and totals.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.currentSpans = c.currentSpans[:0]
	c.pending = c.pending[:0]
	c.runActive = false
	c.droppedSpans = 0
	c.droppedBatches.Store(0)
	clear(c.totals)
}

// Subscribe returns a channel that receives a Batch on every flush. Callers must Unsubscribe.
func (c *Collector) Subscribe() <-chan Batch {
	ch := make(chan Batch, subscriberChanBuf)
	c.mu.Lock()
	c.subscribers = append(c.subscribers, ch)
	c.mu.Unlock()
	return ch
}

// Unsubscribe removes the channel from the subscriber list. The channel is not closed.
func (c *Collector) Unsubscribe(ch <-chan Batch) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, sub := range c.subscribers {
		if sub == ch {
			c.subscribers = append(c.subscribers[:i], c.subscribers[i+1:]...)
			return
		}
	}
}

// DroppedSpans returns the number of spans dropped since the last flush.
func (c *Collector) DroppedSpans() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.droppedSpans
}
