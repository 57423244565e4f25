// Package clientside wires the client pool to a wstransport.Conn: it
// implements clientpool.Requester by writing wire envelopes, and runs
// the read loop that dispatches incoming apply-changes frames back
// into the pool.
package clientside

import (
	"errors"

	"github.com/Garmelon/wot/internal/clientpool"
	"github.com/Garmelon/wot/internal/grid"
	"github.com/Garmelon/wot/internal/observability"
	"github.com/Garmelon/wot/internal/wire"
	"github.com/Garmelon/wot/internal/wstransport"
)

// Reconciler bridges a clientpool.Pool to the server over a
// connection: it sends the pool's requests out, and feeds the pool
// whatever comes back in.
type Reconciler struct {
	conn wstransport.Conn
	pool *clientpool.Pool
	log  *observability.Logger
}

// New returns a Reconciler. Callers construct the Pool with this
// Reconciler as its Requester, i.e. they are mutually referential:
// build the Reconciler first with a nil pool, then Attach once the
// pool exists.
func New(conn wstransport.Conn, log *observability.Logger) *Reconciler {
	return &Reconciler{conn: conn, log: log}
}

// Attach binds the pool this reconciler drives. Must be called before
// Run or RequestChunks/SendChanges/UnloadChunks.
func (r *Reconciler) Attach(p *clientpool.Pool) {
	r.pool = p
}

// RequestChunks implements clientpool.Requester.
func (r *Reconciler) RequestChunks(positions []grid.ChunkPos) {
	env, err := wire.EncodePositions(wire.TypeRequestChunks, positions)
	if err != nil {
		return
	}
	_ = r.conn.WriteMessage(env)
}

// SendChanges implements clientpool.Requester.
func (r *Reconciler) SendChanges(diffs map[grid.ChunkPos]grid.ChunkDiff) {
	env, err := wire.EncodeDiffs(wire.TypeSaveChanges, diffs)
	if err != nil {
		return
	}
	_ = r.conn.WriteMessage(env)
}

// UnloadChunks implements clientpool.Requester.
func (r *Reconciler) UnloadChunks(positions []grid.ChunkPos) {
	env, err := wire.EncodePositions(wire.TypeUnloadChunks, positions)
	if err != nil {
		return
	}
	_ = r.conn.WriteMessage(env)
}

// Run reads envelopes until the connection closes or errors. Frames
// other than apply-changes are ignored, matching the client's
// accept-only-apply-changes contract.
func (r *Reconciler) Run() error {
	for {
		env, err := r.conn.ReadMessage()
		if err != nil {
			if errors.Is(err, wstransport.ErrMalformedFrame) {
				if r.log != nil {
					r.log.Warn("discarding malformed frame from server")
				}
				continue
			}
			return err
		}
		if env.Type != wire.TypeApplyChanges {
			continue
		}
		diffs, err := wire.DecodeDiffs(env.Data)
		if err != nil {
			if r.log != nil {
				r.log.Warn("discarding malformed apply-changes frame")
			}
			continue
		}
		r.pool.Lock()
		r.pool.CommitDiffs(diffs)
		r.pool.Unlock()
	}
}
