// Package wire defines the JSON frames exchanged between client and
// server: a typed envelope plus the position/diff payload encodings
// described in spec.md's wire protocol table.
package wire

import (
	"encoding/json"
	"fmt"

	"github.com/Garmelon/wot/internal/grid"
)

// Message types. The server accepts only the client-to-server three;
// the client accepts only apply-changes. Unknown types are ignored by
// both sides, not treated as errors.
const (
	TypeRequestChunks = "request-chunks"
	TypeUnloadChunks  = "unload-chunks"
	TypeSaveChanges   = "save-changes"
	TypeApplyChanges  = "apply-changes"
)

// Envelope is the outer frame: {"type": ..., "data": ...}.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// EncodePositions encodes a position list as an envelope whose data is
// an array of [x, y] integer pairs.
func EncodePositions(msgType string, positions []grid.ChunkPos) (Envelope, error) {
	pairs := make([][2]int, len(positions))
	for i, p := range positions {
		pairs[i] = [2]int{p.X, p.Y}
	}
	data, err := json.Marshal(pairs)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s: %w", msgType, err)
	}
	return Envelope{Type: msgType, Data: data}, nil
}

// DecodePositions decodes an envelope's data as an array of [x, y]
// integer pairs.
func DecodePositions(data json.RawMessage) ([]grid.ChunkPos, error) {
	var pairs [][2]int
	if err := json.Unmarshal(data, &pairs); err != nil {
		return nil, fmt.Errorf("decode positions: %w", err)
	}
	out := make([]grid.ChunkPos, len(pairs))
	for i, pair := range pairs {
		out[i] = grid.ChunkPos{X: pair[0], Y: pair[1]}
	}
	return out, nil
}

// diffEntry is a single (position, diff) pair as it appears on the
// wire: [[x, y], {idx: char, ...}].
type diffEntry struct {
	Pos  [2]int
	Diff grid.ChunkDiff
}

func (e diffEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{e.Pos, e.Diff})
}

func (e *diffEntry) UnmarshalJSON(data []byte) error {
	var raw [2]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode diff entry: %w", err)
	}
	if err := json.Unmarshal(raw[0], &e.Pos); err != nil {
		return fmt.Errorf("decode diff entry position: %w", err)
	}
	if err := json.Unmarshal(raw[1], &e.Diff); err != nil {
		return fmt.Errorf("decode diff entry diff: %w", err)
	}
	return nil
}

// EncodeDiffs encodes a position->diff mapping as an envelope whose
// data is an array of [[x, y], {idx: char}] entries.
func EncodeDiffs(msgType string, diffs map[grid.ChunkPos]grid.ChunkDiff) (Envelope, error) {
	entries := make([]diffEntry, 0, len(diffs))
	for pos, d := range diffs {
		entries = append(entries, diffEntry{Pos: [2]int{pos.X, pos.Y}, Diff: d})
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s: %w", msgType, err)
	}
	return Envelope{Type: msgType, Data: data}, nil
}

// DecodeDiffs decodes an envelope's data as an array of [[x, y],
// {idx: char}] entries into a position->diff mapping.
func DecodeDiffs(data json.RawMessage) (map[grid.ChunkPos]grid.ChunkDiff, error) {
	var entries []diffEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode diffs: %w", err)
	}
	out := make(map[grid.ChunkPos]grid.ChunkDiff, len(entries))
	for _, e := range entries {
		out[grid.ChunkPos{X: e.Pos[0], Y: e.Pos[1]}] = e.Diff
	}
	return out, nil
}
