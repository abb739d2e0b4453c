package protocol

import "math"

// PlayerID uniquely identifies a player within one session.
type PlayerID uint64

// HostPlayerID is reserved for the hosting peer. Clients are numbered from 1.
const HostPlayerID PlayerID = 0

// Size limits for a single datagram and its media payload.
const (
	// MaxDatagramSize is the receive scratch buffer size. It comfortably fits
	// the largest chunk plus envelope overhead.
	MaxDatagramSize = 32 * 1024

	// MaxVideoChunkPayload is the default fragment bound for encoded video.
	// It stays under common path MTUs once envelope overhead is added.
	MaxVideoChunkPayload = 4000

	// MaxAudioChunkPayload bounds a single audio packet.
	MaxAudioChunkPayload = 1200

	// MaxPayload is the largest payload a length prefix may describe.
	MaxPayload = math.MaxUint16

	// VideoFrameOverhead is the envelope around a VideoFrame payload: type,
	// frame id, index, total, flags and the length prefix.
	VideoFrameOverhead = 1 + 4 + 2 + 2 + 1 + 2

	// MaxVideoChunkSize is the largest video chunk payload whose datagram
	// still fits the receive buffer.
	MaxVideoChunkSize = MaxDatagramSize - VideoFrameOverhead

	// MaxPlayersPerState bounds the player list of a GameState message.
	MaxPlayersPerState = 1024
)

// Audio codec identifiers carried in AudioChunk.Codec.
const (
	AudioCodecPCM16 uint8 = 0
	AudioCodecOpus  uint8 = 1
)

// PlayerState is the authoritative transform of one player.
type PlayerState struct {
	ID       PlayerID
	Position [3]float32
	Yaw      float32
	Pitch    float32
}

// DefaultSpawn returns the initial state for a newly registered player.
func DefaultSpawn(id PlayerID) PlayerState {
	return PlayerState{
		ID:       id,
		Position: [3]float32{0, 1.8, 4.0},
		Yaw:      math.Pi,
	}
}

// VideoChunk is one fragment of an encoded video frame.
type VideoChunk struct {
	FrameID     uint32
	ChunkIdx    uint16
	TotalChunks uint16
	IsKeyframe  bool
	Payload     []byte
}

// AudioChunk is one packet of encoded audio. Sequence increases per packet.
type AudioChunk struct {
	Sequence   uint32
	SampleRate uint32
	Channels   uint8
	Codec      uint8
	Payload    []byte
}

// IsNewer reports whether id a comes after id b in a wrapping u32 sequence.
// Id 0 is newer than 0xFFFFFFFF; ids more than 2^31 apart compare as older.
func IsNewer(a, b uint32) bool {
	return int32(a-b) > 0
}
