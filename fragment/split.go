// Package fragment splits encoded media payloads into bounded chunks and
// reassembles them on the receiving side.
//
// The assembler only ever tracks one frame id. A newer id discards any
// partial state, older ids are dropped, and an assembly that does not
// complete within the timeout is abandoned. Late frames are never
// delivered.
package fragment

import (
	"errors"
	"fmt"
	"math"

	"github.com/opd-ai/lanshare/protocol"
)

var (
	// ErrEmptyPayload is returned when splitting a zero-length payload.
	ErrEmptyPayload = errors.New("empty payload")

	// ErrInvalidChunkSize is returned for a chunk bound outside
	// 1..protocol.MaxVideoChunkSize.
	ErrInvalidChunkSize = errors.New("invalid chunk size")

	// ErrTooManyChunks is returned when a payload needs more than 65535 chunks.
	ErrTooManyChunks = errors.New("payload needs too many chunks")
)

// DefaultMaxChunkSize is the default payload bound of one chunk.
const DefaultMaxChunkSize = protocol.MaxVideoChunkPayload

// Split cuts payload into ceil(len/maxChunk) chunks tagged with frameID.
// Every chunk of a keyframe carries the keyframe flag. Chunk payloads alias
// payload.
//
// Parameters:
//   - frameID: id shared by every chunk of this frame
//   - payload: encoded frame bytes
//   - maxChunk: largest payload of one chunk
//   - keyframe: whether the frame is independently decodable
//
// Returns:
//   - []protocol.VideoChunk: the chunks in index order
//   - error: ErrEmptyPayload, ErrInvalidChunkSize or ErrTooManyChunks
func Split(frameID uint32, payload []byte, maxChunk int, keyframe bool) ([]protocol.VideoChunk, error) {
	if len(payload) == 0 {
		return nil, ErrEmptyPayload
	}
	if maxChunk <= 0 || maxChunk > protocol.MaxVideoChunkSize {
		return nil, fmt.Errorf("%w: %d", ErrInvalidChunkSize, maxChunk)
	}

	total := (len(payload) + maxChunk - 1) / maxChunk
	if total > math.MaxUint16 {
		return nil, fmt.Errorf("%w: %d", ErrTooManyChunks, total)
	}

	chunks := make([]protocol.VideoChunk, 0, total)
	for idx := 0; idx < total; idx++ {
		start := idx * maxChunk
		end := min(start+maxChunk, len(payload))
		chunks = append(chunks, protocol.VideoChunk{
			FrameID:     frameID,
			ChunkIdx:    uint16(idx),
			TotalChunks: uint16(total),
			IsKeyframe:  keyframe,
			Payload:     payload[start:end],
		})
	}
	return chunks, nil
}
