// Package streamutil provides consumer-side helpers for an IR chat stream
// (<-chan ir.StreamChunk): collecting it into a single response, running
// callbacks over it, reducing it to text or lines, coalescing bursty
// content deltas, and fanning it out to multiple consumers. It generalizes
// the SSE line-buffering idiom to IR chunks rather than raw bytes.
package streamutil

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/corebridge/llmgateway/pkg/ir"
)

// CollectResult is the terminal state Collect assembles from a stream.
type CollectResult struct {
	Message      ir.Message
	FinishReason ir.FinishReason
	Usage        *ir.Usage
	Warnings     []ir.Warning
}

// Collect drains stream into a single CollectResult, concatenating content
// deltas into the accumulated message text. It returns as soon as an error
// chunk arrives, or when stream closes after a done chunk, or when ctx is
// cancelled.
func Collect(ctx context.Context, stream <-chan ir.StreamChunk) (CollectResult, error) {
	var text strings.Builder
	var result CollectResult
	var sawDone bool

	for {
		select {
		case <-ctx.Done():
			return result, &ir.CancelledError{Message: ctx.Err().Error()}
		case chunk, ok := <-stream:
			if !ok {
				if !sawDone {
					result.Message = ir.NewTextMessage(ir.RoleAssistant, text.String())
				}
				return result, nil
			}
			switch chunk.Type {
			case ir.ChunkContent:
				text.WriteString(chunk.Delta)
			case ir.ChunkDone:
				sawDone = true
				result.FinishReason = chunk.FinishReason
				result.Usage = chunk.Usage
				result.Warnings = chunk.Warnings
				if chunk.Message != nil {
					result.Message = *chunk.Message
				} else {
					result.Message = ir.NewTextMessage(ir.RoleAssistant, text.String())
				}
			case ir.ChunkError:
				return result, &ir.StreamError{Message: chunk.ErrorText}
			}
		}
	}
}

// Callbacks are invoked by Process as matching chunks arrive. A nil
// callback is skipped.
type Callbacks struct {
	OnStart   func(meta *ir.Metadata)
	OnContent func(delta, accumulated string)
	OnToolCall func(chunk ir.StreamChunk)
	OnDone    func(result CollectResult)
	OnError   func(err error)
}

// Process drains stream like Collect but invokes Callbacks as each chunk
// type is seen, in addition to returning the final CollectResult.
func Process(ctx context.Context, stream <-chan ir.StreamChunk, cb Callbacks) (CollectResult, error) {
	var text strings.Builder
	var result CollectResult

	for {
		select {
		case <-ctx.Done():
			err := &ir.CancelledError{Message: ctx.Err().Error()}
			if cb.OnError != nil {
				cb.OnError(err)
			}
			return result, err
		case chunk, ok := <-stream:
			if !ok {
				result.Message = ir.NewTextMessage(ir.RoleAssistant, text.String())
				if cb.OnDone != nil {
					cb.OnDone(result)
				}
				return result, nil
			}
			switch chunk.Type {
			case ir.ChunkStart:
				if cb.OnStart != nil {
					cb.OnStart(chunk.Metadata)
				}
			case ir.ChunkContent:
				text.WriteString(chunk.Delta)
				if cb.OnContent != nil {
					cb.OnContent(chunk.Delta, text.String())
				}
			case ir.ChunkToolCallDelta:
				if cb.OnToolCall != nil {
					cb.OnToolCall(chunk)
				}
			case ir.ChunkDone:
				result.FinishReason = chunk.FinishReason
				result.Usage = chunk.Usage
				result.Warnings = chunk.Warnings
				if chunk.Message != nil {
					result.Message = *chunk.Message
				} else {
					result.Message = ir.NewTextMessage(ir.RoleAssistant, text.String())
				}
				if cb.OnDone != nil {
					cb.OnDone(result)
				}
				return result, nil
			case ir.ChunkError:
				err := &ir.StreamError{Message: chunk.ErrorText}
				if cb.OnError != nil {
					cb.OnError(err)
				}
				return result, err
			}
		}
	}
}

// ToText reduces stream to its content deltas only, closing the returned
// channel when stream closes or a terminal chunk arrives.
func ToText(stream <-chan ir.StreamChunk) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		for chunk := range stream {
			switch chunk.Type {
			case ir.ChunkContent:
				out <- chunk.Delta
			case ir.ChunkDone, ir.ChunkError:
				return
			}
		}
	}()
	return out
}

// ToLines buffers content deltas across chunks and yields complete lines as
// they become available, plus any trailing partial line when the stream
// ends.
func ToLines(stream <-chan ir.StreamChunk) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		var buf strings.Builder

		flushLines := func(s string) {
			buf.WriteString(s)
			for {
				full := buf.String()
				idx := strings.IndexByte(full, '\n')
				if idx < 0 {
					break
				}
				out <- full[:idx]
				buf.Reset()
				buf.WriteString(full[idx+1:])
			}
		}

		for chunk := range stream {
			switch chunk.Type {
			case ir.ChunkContent:
				flushLines(chunk.Delta)
			case ir.ChunkDone, ir.ChunkError:
				if buf.Len() > 0 {
					out <- buf.String()
				}
				return
			}
		}
		if buf.Len() > 0 {
			out <- buf.String()
		}
	}()
	return out
}

// Throttle coalesces content deltas arriving within interval into a single
// merged content chunk, passing start/done/error chunks through
// immediately. Any pending merged chunk is flushed the moment a terminal
// (done or error) chunk arrives, so no content is ever dropped. Because
// coalescing collapses N source chunks into fewer, every outbound chunk is
// re-sequenced so the emitted stream is a gap-free monotonic run from 0.
func Throttle(stream <-chan ir.StreamChunk, interval time.Duration) <-chan ir.StreamChunk {
	out := make(chan ir.StreamChunk)

	go func() {
		defer close(out)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		var pending strings.Builder
		var accumulated strings.Builder
		var sequencer ir.Sequencer
		hasPending := false

		send := func(c ir.StreamChunk) {
			c.Sequence = sequencer.Next()
			out <- c
		}

		flush := func() {
			if !hasPending {
				return
			}
			send(ir.StreamChunk{
				Type:        ir.ChunkContent,
				Delta:       pending.String(),
				Accumulated: accumulated.String(),
			})
			pending.Reset()
			hasPending = false
		}

		for {
			select {
			case chunk, ok := <-stream:
				if !ok {
					flush()
					return
				}
				switch chunk.Type {
				case ir.ChunkContent:
					pending.WriteString(chunk.Delta)
					accumulated.WriteString(chunk.Delta)
					hasPending = true
				case ir.ChunkDone, ir.ChunkError:
					flush()
					send(chunk)
					return
				default:
					flush()
					send(chunk)
				}
			case <-ticker.C:
				flush()
			}
		}
	}()

	return out
}

// Tee returns n independent consumer channels, each receiving every chunk
// from stream. Backpressure is per-consumer: each consumer drains its own
// unbounded queue through a dedicated forwarder goroutine, so a slow
// consumer grows only its own queue's memory and never blocks the producer
// or its siblings. The unbounded queue is a documented trade-off; callers
// that need bounds pair Tee with Throttle or their own bounded bridge.
func Tee(stream <-chan ir.StreamChunk, n int) []<-chan ir.StreamChunk {
	queues := make([]*teeQueue, n)
	result := make([]<-chan ir.StreamChunk, n)
	for i := range queues {
		q := newTeeQueue()
		queues[i] = q
		result[i] = q.out
		go q.forward()
	}

	go func() {
		for chunk := range stream {
			for _, q := range queues {
				q.push(chunk)
			}
		}
		for _, q := range queues {
			q.close()
		}
	}()

	return result
}

// teeQueue is one consumer's unbounded buffer between the Tee producer and
// that consumer's output channel.
type teeQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    []ir.StreamChunk
	closed bool
	out    chan ir.StreamChunk
}

func newTeeQueue() *teeQueue {
	q := &teeQueue{out: make(chan ir.StreamChunk)}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *teeQueue) push(c ir.StreamChunk) {
	q.mu.Lock()
	q.buf = append(q.buf, c)
	q.mu.Unlock()
	q.cond.Signal()
}

func (q *teeQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Signal()
}

// forward drains the queue into the consumer's channel, blocking only on
// that consumer's receive.
func (q *teeQueue) forward() {
	defer close(q.out)
	for {
		q.mu.Lock()
		for len(q.buf) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.buf) == 0 {
			q.mu.Unlock()
			return
		}
		c := q.buf[0]
		q.buf = q.buf[1:]
		q.mu.Unlock()
		q.out <- c
	}
}
