package llmprovider

import (
	"context"
	"iter"
	"strings"
	"sync"
	"sync/atomic"
)

// streamBuffer is the channel capacity between producer and consumer.
const streamBuffer = 16

// StreamSummary is what a producer reports once its stream completes.
type StreamSummary struct {
	Usage      Usage
	StopReason StopReason

	// Model overrides the model the stream was opened with (vendor aliasing)
	Model string
}

// ProduceFunc drives a vendor stream. It calls emit for every chunk and returns
// the summary when the vendor signals completion. emit returns an error once the
// consumer has gone away; producers must stop when it does.
//
// Producers never emit the terminal chunk themselves: a nil error return becomes
// the single Done chunk.
type ProduceFunc func(ctx context.Context, emit func(StreamChunk) error) (StreamSummary, error)

type streamItem struct {
	chunk   StreamChunk
	summary *StreamSummary
	err     error
}

// ChatStream is a pull-based stream of StreamChunks.
//
// A successful stream yields its chunks followed by exactly one chunk with Done
// set. A failed stream stops yielding and reports the failure through Err. Next,
// Current, Err and Usage must be called from one goroutine; Close may be called
// from any goroutine.
type ChatStream struct {
	provider ProviderID
	model    string

	ctx    context.Context
	items  <-chan streamItem
	cancel context.CancelFunc
	first  *streamItem

	current    StreamChunk
	err        error
	finished   bool
	delivered  int
	usage      Usage
	usageReady bool

	closed    atomic.Bool
	closeOnce sync.Once
}

// OpenStream starts produce in a goroutine and waits for its first item.
//
// If the producer fails before emitting anything, OpenStream returns that error
// and no stream: the request can still be retried or sent elsewhere. Once it
// returns a stream, at least one chunk is guaranteed to be delivered.
func OpenStream(ctx context.Context, provider ProviderID, model string, produce ProduceFunc) (*ChatStream, error) {
	ctx, cancel := context.WithCancel(ctx)
	items := make(chan streamItem, streamBuffer)

	go func() {
		defer close(items)

		emit := func(chunk StreamChunk) error {
			chunk.Done = false
			chunk.StopReason = ""
			select {
			case items <- streamItem{chunk: chunk}:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		summary, err := produce(ctx, emit)

		final := streamItem{err: err}
		if err == nil {
			final = streamItem{
				chunk:   StreamChunk{Done: true, StopReason: summary.StopReason},
				summary: &summary,
			}
		}

		select {
		case items <- final:
		case <-ctx.Done():
		}
	}()

	select {
	case item, ok := <-items:
		if !ok {
			cancel()
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, ErrStreamClosed
		}
		if item.err != nil {
			cancel()
			return nil, item.err
		}
		return &ChatStream{
			provider: provider,
			model:    model,
			ctx:      ctx,
			items:    items,
			cancel:   cancel,
			first:    &item,
		}, nil
	case <-ctx.Done():
		cancel()
		return nil, ctx.Err()
	}
}

// Next advances to the next chunk. It returns false when the stream is
// finished, failed or closed.
func (s *ChatStream) Next() bool {
	if s.finished {
		return false
	}
	if s.closed.Load() {
		s.finished = true
		return false
	}

	var item streamItem
	if s.first != nil {
		item = *s.first
		s.first = nil
	} else {
		next, ok := <-s.items
		if !ok {
			s.finished = true
			if s.err == nil && !s.closed.Load() {
				s.err = ErrStreamClosed
				if err := s.ctx.Err(); err != nil {
					s.err = err
				}
			}
			return false
		}
		item = next
	}

	if item.err != nil {
		s.err = item.err
		s.finished = true
		s.cancel()
		return false
	}

	s.current = item.chunk
	s.delivered++

	if item.chunk.Done {
		s.finished = true
		if item.summary != nil {
			s.usage = item.summary.Usage
			s.usageReady = true
			if item.summary.Model != "" {
				s.model = item.summary.Model
			}
		}
		s.cancel()
	}
	return true
}

// Current returns the chunk produced by the last successful Next.
func (s *ChatStream) Current() StreamChunk {
	return s.current
}

// Err returns the error that ended the stream, or nil.
func (s *ChatStream) Err() error {
	return s.err
}

// Usage returns token usage. It is only available after the terminal chunk.
func (s *ChatStream) Usage() (Usage, error) {
	if !s.usageReady {
		return Usage{}, ErrUsageUnavailable
	}
	return s.usage, nil
}

// Provider returns the provider serving the stream.
func (s *ChatStream) Provider() ProviderID {
	return s.provider
}

// Model returns the model serving the stream.
func (s *ChatStream) Model() string {
	return s.model
}

// Delivered returns the number of chunks handed to the consumer so far.
func (s *ChatStream) Delivered() int {
	return s.delivered
}

// Close stops the producer and releases the vendor connection. It is safe to
// call more than once and after completion.
func (s *ChatStream) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.cancel()
	})
	return nil
}

// Chunks adapts the stream to a range-over-func iterator. Iteration ends after
// the terminal chunk or with a final (zero chunk, error) pair on failure.
func (s *ChatStream) Chunks() iter.Seq2[StreamChunk, error] {
	return func(yield func(StreamChunk, error) bool) {
		for s.Next() {
			if !yield(s.Current(), nil) {
				return
			}
		}
		if err := s.Err(); err != nil {
			yield(StreamChunk{}, err)
		}
	}
}

// Collect drains the stream into a ChatResult and closes it.
func (s *ChatStream) Collect() (*ChatResult, error) {
	defer s.Close()

	var text strings.Builder
	result := &ChatResult{Provider: s.provider}
	for s.Next() {
		chunk := s.Current()
		text.WriteString(chunk.Text)
		if chunk.ToolUse != nil {
			result.ToolCalls = append(result.ToolCalls, *chunk.ToolUse)
		}
		if chunk.Done {
			result.StopReason = chunk.StopReason
		}
	}
	result.Text = text.String()
	result.Model = s.model

	if err := s.Err(); err != nil {
		return result, err
	}

	usage, err := s.Usage()
	if err != nil {
		return result, err
	}
	result.InputTokens = usage.InputTokens
	result.OutputTokens = usage.OutputTokens
	return result, nil
}
