package main

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	hkafka "catalog-harvester/internal/kafka"
	"catalog-harvester/internal/metrics"
)

// commitCoordinator commits finished job messages in per-partition offset
// order, so a slow session never lets a later offset commit past it.
type commitCoordinator struct {
	reader     hkafka.MessageReader
	commitCh   <-chan kafka.Message
	nextOffset map[int]int64                   // per partition: next offset to commit
	pending    map[int]map[int64]kafka.Message // per partition: finished messages by offset
	mu         sync.Mutex
	logger     zerolog.Logger
}

func newCommitCoordinator(reader hkafka.MessageReader, commitCh <-chan kafka.Message, logger zerolog.Logger) *commitCoordinator {
	return &commitCoordinator{
		reader:     reader,
		commitCh:   commitCh,
		nextOffset: make(map[int]int64),
		pending:    make(map[int]map[int64]kafka.Message),
		logger:     logger,
	}
}

// run drains commitCh until it is closed or ctx ends, then flushes what is
// still committable. Calls wg.Done() when finished.
func (c *commitCoordinator) run(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	for {
		select {
		case <-ctx.Done():
			c.flush(ctx)
			return
		case msg, ok := <-c.commitCh:
			if !ok {
				c.flush(ctx)
				return
			}
			c.enqueue(msg)
			c.drain(ctx, msg.Partition)
		}
	}
}

func (c *commitCoordinator) enqueue(msg kafka.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := msg.Partition
	if c.pending[p] == nil {
		c.pending[p] = make(map[int64]kafka.Message)
	}
	c.pending[p][msg.Offset] = msg
	metrics.WorkerCommitPending.Inc()
	if _, exists := c.nextOffset[p]; !exists {
		c.nextOffset[p] = msg.Offset
	}
}

// commitNext commits the next contiguous message of partition. Caller holds
// c.mu; it is released around CommitMessages. A failed commit is re-queued
// and nextOffset stays put.
func (c *commitCoordinator) commitNext(ctx context.Context, partition int) bool {
	next := c.nextOffset[partition]
	m, ok := c.pending[partition][next]
	if !ok {
		return false
	}
	delete(c.pending[partition], next)
	metrics.WorkerCommitPending.Dec()
	c.mu.Unlock()
	start := time.Now()
	err := c.reader.CommitMessages(ctx, m)
	metrics.WorkerCommitDuration.Observe(time.Since(start).Seconds())
	c.mu.Lock()
	if err != nil {
		metrics.WorkerCommitErrorsTotal.Inc()
		c.logger.Error().Err(err).Int("partition", partition).Int64("offset", next).Msg("commit failed")
		c.pending[partition][next] = m
		metrics.WorkerCommitPending.Inc()
		return false
	}
	c.nextOffset[partition] = next + 1
	return true
}

func (c *commitCoordinator) drain(ctx context.Context, partition int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.commitNext(ctx, partition) {
	}
}

func (c *commitCoordinator) flush(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for p := range c.pending {
		for c.commitNext(ctx, p) {
		}
	}
}
