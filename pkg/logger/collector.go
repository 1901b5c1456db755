package logger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"
)

// Publisher ships an aggregated batch. kafka.Producer satisfies it.
type Publisher interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
}

type CollectionConfig struct {
	TimeInterval   time.Duration // flush interval
	CountThreshold int           // unique entries that force an early flush
	Topic          string
	Source         string // instance name stamped on each batch
	IncludeWarn    bool   // collect warn entries as well as errors
	PublishTimeout time.Duration
	Publisher      Publisher
}

type AggregatedLogEntry struct {
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	Caller    string                 `json:"caller"`
	Count     int                    `json:"count"`
	FirstSeen time.Time              `json:"first_seen"`
	LastSeen  time.Time              `json:"last_seen"`
}

// LogBatch is the payload published on every flush.
type LogBatch struct {
	Source    string               `json:"source,omitempty"`
	FlushedAt time.Time            `json:"flushed_at"`
	Entries   []AggregatedLogEntry `json:"entries"`
}

// LogCollector deduplicates warn/error entries by level, message, fields and
// caller, and publishes them in batches.
type LogCollector struct {
	config *CollectionConfig
	logMap map[string]*AggregatedLogEntry
	mutex  sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewLogCollector(config *CollectionConfig) *LogCollector {
	if config.TimeInterval <= 0 {
		config.TimeInterval = 30 * time.Second
	}
	if config.CountThreshold <= 0 {
		config.CountThreshold = 100
	}
	if config.PublishTimeout <= 0 {
		config.PublishTimeout = 10 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &LogCollector{
		config: config,
		logMap: make(map[string]*AggregatedLogEntry),
		ctx:    ctx,
		cancel: cancel,
	}

	c.wg.Add(1)
	go c.periodicFlush()
	return c
}

// Accepts reports whether entries of the given level are collected.
func (c *LogCollector) Accepts(level string) bool {
	return level == "error" || (level == "warn" && c.config.IncludeWarn)
}

func (c *LogCollector) AddLog(level, message string, fields map[string]interface{}, caller string) {
	if !c.Accepts(level) {
		return
	}
	now := time.Now().UTC()
	key := entryKey(level, message, fields, caller)

	c.mutex.Lock()
	defer c.mutex.Unlock()

	if entry, ok := c.logMap[key]; ok {
		entry.Count++
		entry.LastSeen = now
	} else {
		c.logMap[key] = &AggregatedLogEntry{
			Level:     level,
			Message:   message,
			Fields:    fields,
			Caller:    caller,
			Count:     1,
			FirstSeen: now,
			LastSeen:  now,
		}
	}

	if len(c.logMap) >= c.config.CountThreshold {
		c.flushLocked()
	}
}

func entryKey(level, message string, fields map[string]interface{}, caller string) string {
	// encoding/json sorts map keys, so equal field sets hash equally
	b, _ := json.Marshal(struct {
		L string                 `json:"l"`
		M string                 `json:"m"`
		F map[string]interface{} `json:"f"`
		C string                 `json:"c"`
	}{level, message, fields, caller})
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func (c *LogCollector) periodicFlush() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.TimeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mutex.Lock()
			c.flushLocked()
			c.mutex.Unlock()
		case <-c.ctx.Done():
			c.mutex.Lock()
			c.flushLocked()
			c.mutex.Unlock()
			return
		}
	}
}

// flushLocked must be called with the mutex held. Publishing happens off the
// lock so logging never waits on the broker.
func (c *LogCollector) flushLocked() {
	if len(c.logMap) == 0 {
		return
	}

	batch := LogBatch{
		Source:    c.config.Source,
		FlushedAt: time.Now().UTC(),
		Entries:   make([]AggregatedLogEntry, 0, len(c.logMap)),
	}
	for _, e := range c.logMap {
		batch.Entries = append(batch.Entries, *e)
	}
	sort.Slice(batch.Entries, func(i, j int) bool {
		return batch.Entries[i].FirstSeen.Before(batch.Entries[j].FirstSeen)
	})
	c.logMap = make(map[string]*AggregatedLogEntry)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.config.PublishTimeout)
		defer cancel()

		if err := c.config.Publisher.Publish(ctx, c.config.Topic, []byte(c.config.Source), batch); err != nil {
			// the logger itself may be what failed, so report straight to stderr
			fmt.Fprintf(os.Stderr, "log collector: publish %d entries to %s: %v\n", len(batch.Entries), c.config.Topic, err)
		}
	}()
}

// Close flushes what is pending and waits for in-flight publishes.
func (c *LogCollector) Close() {
	c.cancel()
	c.wg.Wait()
}
