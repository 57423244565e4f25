package clientside

import (
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/Garmelon/wot/internal/clientpool"
	"github.com/Garmelon/wot/internal/grid"
	"github.com/Garmelon/wot/internal/observability"
	"github.com/Garmelon/wot/internal/wire"
	"github.com/Garmelon/wot/internal/wstransport"
)

type readResult struct {
	env wire.Envelope
	err error
}

// sequencedConn replays a fixed script of ReadMessage results and
// records every WriteMessage call.
type sequencedConn struct {
	reads []readResult
	pos   int
	sent  []wire.Envelope
}

func (f *sequencedConn) ReadMessage() (wire.Envelope, error) {
	if f.pos >= len(f.reads) {
		return wire.Envelope{}, wstransport.ErrClosed
	}
	r := f.reads[f.pos]
	f.pos++
	return r.env, r.err
}
func (f *sequencedConn) WriteMessage(env wire.Envelope) error {
	f.sent = append(f.sent, env)
	return nil
}
func (f *sequencedConn) RemoteAddr() string { return "test" }
func (f *sequencedConn) Close() error       { return nil }

func TestRunSkipsMalformedFrameAndKeepsGoing(t *testing.T) {
	pos := grid.ChunkPos{X: 0, Y: 0}
	d := grid.NewChunkDiff()
	d.Set(0, 0, 'a')
	applyEnv, err := wire.EncodeDiffs(wire.TypeApplyChanges, map[grid.ChunkPos]grid.ChunkDiff{pos: d})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	conn := &sequencedConn{reads: []readResult{
		{err: wstransport.ErrMalformedFrame},
		{env: applyEnv},
	}}
	log := observability.NewLogger("test", "0", io.Discard)
	r := New(conn, log)
	p := clientpool.New(noopRequester{}, func() {}, time.Minute)
	r.Attach(p)

	if err := r.Run(); err != wstransport.ErrClosed {
		t.Fatalf("expected Run to end on clean close, got %v", err)
	}

	p.Lock()
	c := p.Get(pos)
	p.Unlock()
	if c == nil || c.AsDiff().Get(0, ' ') != 'a' {
		t.Fatalf("apply-changes frame after the malformed one should still have been committed")
	}
}

func TestRunIgnoresUndecodableApplyChanges(t *testing.T) {
	conn := &sequencedConn{reads: []readResult{
		{env: wire.Envelope{Type: wire.TypeApplyChanges, Data: json.RawMessage(`not json`)}},
	}}
	log := observability.NewLogger("test", "0", io.Discard)
	r := New(conn, log)
	p := clientpool.New(noopRequester{}, func() {}, time.Minute)
	r.Attach(p)

	if err := r.Run(); err != wstransport.ErrClosed {
		t.Fatalf("expected Run to end on clean close, got %v", err)
	}
}

type noopRequester struct{}

func (noopRequester) RequestChunks([]grid.ChunkPos)                       {}
func (noopRequester) SendChanges(map[grid.ChunkPos]grid.ChunkDiff)        {}
func (noopRequester) UnloadChunks([]grid.ChunkPos)                        {}
