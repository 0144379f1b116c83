package runner

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"github.com/omarluq/tapline/internal/ratelimit"
	"github.com/omarluq/tapline/internal/singer"
	"github.com/omarluq/tapline/internal/statestore"
)

// maxLineSize bounds one line of loader output. State can be large.
var maxLineSize = 64 << 20

// stateSink tracks the newest state a loader emits and persists it at a bounded rate.
type stateSink struct {
	backend statestore.Backend
	limiter *ratelimit.Limiter
	id      string
	latest  []byte
	flushed []byte
	flushes int
	mu      sync.Mutex
}

func newStateSink(backend statestore.Backend, id string, limiter *ratelimit.Limiter) *stateSink {
	return &stateSink{backend: backend, id: id, limiter: limiter}
}

// Consume reads loader output until EOF. Intermediate write failures are
// logged; the final Flush reports them. A line over maxLineSize fails the
// read, and the rest of r is discarded so the loader can exit.
func (s *stateSink) Consume(ctx context.Context, r io.Reader) error {
	logger := zerolog.Ctx(ctx)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, min(64*1024, maxLineSize)), maxLineSize)

	for scanner.Scan() {
		state, ok := singer.State(scanner.Bytes())
		if !ok {
			logger.Debug().Str("line", scanner.Text()).Msg("ignoring loader output")
			continue
		}
		s.observe(state)

		if s.limiter.Allow() {
			if err := s.Flush(ctx); err != nil {
				logger.Warn().Err(err).Msg("failed to persist intermediate state")
			}
		}
	}
	if err := scanner.Err(); err != nil {
		_, _ = io.Copy(io.Discard, r)
		return fmt.Errorf("failed to read loader output: %w", err)
	}
	return nil
}

func (s *stateSink) observe(state []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = append([]byte(nil), state...)
}

// Flush persists the latest state unless it was already persisted.
func (s *stateSink) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.backend == nil || s.latest == nil || string(s.latest) == string(s.flushed) {
		return nil
	}
	if err := s.backend.Set(ctx, s.id, s.latest); err != nil {
		return err
	}
	s.flushed = s.latest
	s.flushes++
	zerolog.Ctx(ctx).Debug().Strs("bookmarks", singer.Bookmarks(s.latest)).Msg("state persisted")
	return nil
}

// Latest returns the newest state seen.
func (s *stateSink) Latest() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest
}

// Flushes returns how many times state was written.
func (s *stateSink) Flushes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushes
}
