// Package session implements the per-connection server-side session:
// the Connected/Open/Closed state machine, the three client-to-server
// handlers (request-chunks, unload-chunks, save-changes), and the
// broadcast fan-out that follows a legitimate save-changes.
package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/Garmelon/wot/internal/grid"
	"github.com/Garmelon/wot/internal/observability"
	"github.com/Garmelon/wot/internal/ratelimit"
	"github.com/Garmelon/wot/internal/serverpool"
	"github.com/Garmelon/wot/internal/wire"
	"github.com/Garmelon/wot/internal/wstransport"
)

// State is a session's position in its Connected/Open/Closed lifecycle.
type State int

const (
	Connected State = iota
	Open
	Closed
)

// Session represents one accepted WebSocket connection and its
// subscription to a set of chunk positions.
type Session struct {
	id      string
	conn    wstransport.Conn
	pool    *serverpool.Pool
	reg     *Registry
	log     *observability.Logger
	metrics *observability.Metrics
	limiter *ratelimit.TokenBucket

	slot        int
	state       State
	loaded      map[grid.ChunkPos]struct{}
	closeReason string
}

// New registers a fresh session in reg and returns it in the Connected
// state.
func New(id string, conn wstransport.Conn, p *serverpool.Pool, reg *Registry, log *observability.Logger, metrics *observability.Metrics, limiter *ratelimit.TokenBucket) *Session {
	s := &Session{
		id:      id,
		conn:    conn,
		pool:    p,
		reg:     reg,
		log:     log,
		metrics: metrics,
		limiter: limiter,
		state:   Connected,
		loaded:  make(map[grid.ChunkPos]struct{}),
	}
	s.slot = reg.Insert(s)
	s.state = Open
	log.SessionConnected(id, conn.RemoteAddr(), s.slot)
	if metrics != nil {
		metrics.SessionsActive.Inc()
	}
	return s
}

// Serve reads envelopes until the connection closes or errors, and
// dispatches each to the matching handler. It returns the reason the
// loop ended (wstransport.ErrClosed for a clean close).
func (s *Session) Serve() error {
	defer s.close()
	for {
		env, err := s.conn.ReadMessage()
		if err != nil {
			if errors.Is(err, wstransport.ErrMalformedFrame) {
				s.log.Warn("discarding malformed frame from " + s.conn.RemoteAddr())
				continue
			}
			s.closeReason = closeReason(err)
			return err
		}
		if err := s.dispatch(env); err != nil {
			s.closeReason = closeReason(err)
			return err
		}
	}
}

// closeReason classifies a Serve exit error for the sessions_total
// metric's "result" label.
func closeReason(err error) string {
	if errors.Is(err, wstransport.ErrClosed) {
		return "closed"
	}
	return "error"
}

func (s *Session) dispatch(env wire.Envelope) error {
	switch env.Type {
	case wire.TypeRequestChunks:
		return s.handleRequestChunks(env.Data)
	case wire.TypeUnloadChunks:
		return s.handleUnloadChunks(env.Data)
	case wire.TypeSaveChanges:
		return s.handleSaveChanges(env.Data)
	default:
		return nil // unknown types are ignored, not an error
	}
}

func (s *Session) close() {
	if s.state == Closed {
		return
	}
	s.state = Closed
	s.reg.Remove(s.slot)
	s.conn.Close()
	s.log.SessionClosed(s.id, nil)
	if s.metrics != nil {
		s.metrics.SessionsActive.Dec()
		reason := s.closeReason
		if reason == "" {
			reason = "closed"
		}
		s.metrics.SessionsTotal.WithLabelValues(reason).Inc()
	}
}

// handleRequestChunks loads the requested positions (fetching from the
// store as needed), subscribes this session to them, and replies with
// the current committed state for each.
func (s *Session) handleRequestChunks(data []byte) error {
	positions, err := wire.DecodePositions(data)
	if err != nil {
		return nil // malformed frame; ignore rather than drop the session
	}

	s.pool.Lock()
	loadErr := s.pool.LoadList(positions)
	var diffs map[grid.ChunkPos]grid.ChunkDiff
	if loadErr == nil {
		diffs = make(map[grid.ChunkPos]grid.ChunkDiff, len(positions))
		for _, pos := range positions {
			if c := s.pool.Get(pos); c != nil {
				diffs[pos] = c.AsDiff()
			}
		}
	}
	s.pool.Unlock()

	if loadErr != nil {
		// Store I/O failure during request-chunks propagates: the
		// session terminates so the client can reconnect.
		s.log.StoreError("request-chunks", loadErr, true)
		return loadErr
	}

	for _, pos := range positions {
		s.loaded[pos] = struct{}{}
	}
	s.log.ChunksRequested(s.id, len(positions))

	env, err := wire.EncodeDiffs(wire.TypeApplyChanges, diffs)
	if err != nil {
		return fmt.Errorf("encode apply-changes: %w", err)
	}
	return s.conn.WriteMessage(env)
}

// handleUnloadChunks removes positions from this session's
// subscription. It has no effect on pool residency and produces no
// reply.
func (s *Session) handleUnloadChunks(data []byte) error {
	positions, err := wire.DecodePositions(data)
	if err != nil {
		return nil
	}
	for _, pos := range positions {
		delete(s.loaded, pos)
	}
	return nil
}

// handleSaveChanges partitions the submission into legitimate and
// illegitimate entries, applies and broadcasts the legitimate portion,
// and replies to this session alone with a compensating diff for the
// illegitimate portion.
func (s *Session) handleSaveChanges(data []byte) error {
	_, span := observability.Tracer.Start(context.Background(), "save-changes")
	defer span.End()

	if s.limiter != nil && !s.limiter.Allow(1) {
		return nil // drop the frame silently rather than penalize the session further
	}

	diffs, err := wire.DecodeDiffs(data)
	if err != nil {
		return nil
	}

	legit, illegit := partition(diffs)

	if len(legit) > 0 {
		s.pool.Lock()
		keys := make([]grid.ChunkPos, 0, len(legit))
		for pos := range legit {
			keys = append(keys, pos)
		}
		loadErr := s.pool.LoadList(keys)
		if loadErr == nil {
			s.pool.ApplyDiffs(legit)
		}
		s.pool.Unlock()

		if loadErr != nil {
			s.log.StoreError("save-changes", loadErr, true)
			return loadErr
		}

		fanout := 0
		s.reg.Each(func(recipient *Session) {
			if recipient.sendChanges(legit) {
				fanout++
			}
		})
		s.log.ChangesApplied(s.id, len(legit), fanout)
		if s.metrics != nil {
			s.metrics.ChangesAppliedTotal.Add(float64(len(legit)))
			s.metrics.BroadcastFanout.Observe(float64(fanout))
		}
	}

	if len(illegit) > 0 {
		reverse, err := s.reverseDiff(illegit)
		if err != nil {
			s.log.StoreError("save-changes", err, true)
			return err
		}
		s.log.ChangesRejected(s.id, cellCount(illegit))
		if s.metrics != nil {
			s.metrics.ChangesRejectedTotal.Add(float64(cellCount(illegit)))
		}
		env, err := wire.EncodeDiffs(wire.TypeApplyChanges, reverse)
		if err != nil {
			return fmt.Errorf("encode apply-changes: %w", err)
		}
		return s.conn.WriteMessage(env)
	}
	return nil
}

// reverseDiff computes, for every (pos, d) in submitted, a
// compensating diff carrying the currently-authoritative character at
// every index d touches.
func (s *Session) reverseDiff(submitted map[grid.ChunkPos]grid.ChunkDiff) (map[grid.ChunkPos]grid.ChunkDiff, error) {
	s.pool.Lock()
	defer s.pool.Unlock()

	keys := make([]grid.ChunkPos, 0, len(submitted))
	for pos := range submitted {
		keys = append(keys, pos)
	}
	if err := s.pool.LoadList(keys); err != nil {
		return nil, err
	}

	out := make(map[grid.ChunkPos]grid.ChunkDiff, len(submitted))
	for pos, d := range submitted {
		c := s.pool.Get(pos)
		out[pos] = d.Diff(c.AsDiff())
	}
	return out, nil
}

// sendChanges filters diffs to the positions this session has loaded
// and, if any remain, frames and sends them. It reports whether
// anything was sent, for fan-out metrics.
func (s *Session) sendChanges(diffs map[grid.ChunkPos]grid.ChunkDiff) bool {
	filtered := make(map[grid.ChunkPos]grid.ChunkDiff)
	for pos, d := range diffs {
		if _, ok := s.loaded[pos]; ok {
			filtered[pos] = d
		}
	}
	if len(filtered) == 0 {
		return false
	}
	env, err := wire.EncodeDiffs(wire.TypeApplyChanges, filtered)
	if err != nil {
		return false
	}
	if err := s.conn.WriteMessage(env); err != nil {
		return false
	}
	return true
}

// partition splits a position->diff mapping into legitimate and
// illegitimate sub-diffs per grid.ChunkDiff.Partition, dropping any
// position whose resulting sub-diff is empty.
func partition(diffs map[grid.ChunkPos]grid.ChunkDiff) (legit, illegit map[grid.ChunkPos]grid.ChunkDiff) {
	legit = make(map[grid.ChunkPos]grid.ChunkDiff)
	illegit = make(map[grid.ChunkPos]grid.ChunkDiff)
	for pos, d := range diffs {
		l, i := d.Partition()
		if !l.Empty() {
			legit[pos] = l
		}
		if !i.Empty() {
			illegit[pos] = i
		}
	}
	return legit, illegit
}

func cellCount(diffs map[grid.ChunkPos]grid.ChunkDiff) int {
	n := 0
	for _, d := range diffs {
		n += len(d.ToMap())
	}
	return n
}
