package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

var (
	// ErrMalformed is returned for any datagram that cannot be decoded.
	ErrMalformed = errors.New("malformed message")

	// ErrPayloadTooLarge is returned when a payload cannot be length-prefixed.
	ErrPayloadTooLarge = errors.New("payload too large")

	// ErrTooManyPlayers is returned when a GameState exceeds MaxPlayersPerState.
	ErrTooManyPlayers = errors.New("too many players in game state")

	// ErrNilMessage is returned when encoding a nil message.
	ErrNilMessage = errors.New("nil message")
)

const (
	playerStateSize = 8 + 3*4 + 4 + 4
	flagKeyframe    = 0x01
)

// EncodeClientMessage serializes a client message into a datagram.
func EncodeClientMessage(msg ClientMessage) ([]byte, error) {
	if msg == nil {
		return nil, ErrNilMessage
	}

	buf := []byte{byte(msg.Type())}
	switch m := msg.(type) {
	case *Join, *Leave:
		return buf, nil
	case *PlayerUpdate:
		buf = appendVec3(buf, m.Position)
		buf = appendFloat32(buf, m.Yaw)
		buf = appendFloat32(buf, m.Pitch)
		return buf, nil
	default:
		return nil, fmt.Errorf("unsupported client message %T", msg)
	}
}

// EncodeServerMessage serializes a server message into a datagram.
func EncodeServerMessage(msg ServerMessage) ([]byte, error) {
	if msg == nil {
		return nil, ErrNilMessage
	}

	buf := []byte{byte(msg.Type())}
	switch m := msg.(type) {
	case *Welcome:
		return binary.BigEndian.AppendUint64(buf, uint64(m.AssignedID)), nil

	case *GameState:
		if len(m.Players) > MaxPlayersPerState {
			return nil, fmt.Errorf("%w: %d", ErrTooManyPlayers, len(m.Players))
		}
		buf = binary.BigEndian.AppendUint16(buf, uint16(len(m.Players)))
		for _, p := range m.Players {
			buf = binary.BigEndian.AppendUint64(buf, uint64(p.ID))
			buf = appendVec3(buf, p.Position)
			buf = appendFloat32(buf, p.Yaw)
			buf = appendFloat32(buf, p.Pitch)
		}
		return buf, nil

	case *PlayerLeft:
		return binary.BigEndian.AppendUint64(buf, uint64(m.ID)), nil

	case *VideoFrame:
		c := m.Chunk
		buf = binary.BigEndian.AppendUint32(buf, c.FrameID)
		buf = binary.BigEndian.AppendUint16(buf, c.ChunkIdx)
		buf = binary.BigEndian.AppendUint16(buf, c.TotalChunks)
		var flags byte
		if c.IsKeyframe {
			flags |= flagKeyframe
		}
		buf = append(buf, flags)
		return appendBytes(buf, c.Payload)

	case *VideoCodecInfo:
		var err error
		if buf, err = appendBytes(buf, []byte(m.Codec)); err != nil {
			return nil, err
		}
		buf = binary.BigEndian.AppendUint32(buf, m.Width)
		buf = binary.BigEndian.AppendUint32(buf, m.Height)
		buf = binary.BigEndian.AppendUint32(buf, m.FPS)
		return appendBytes(buf, m.Extradata)

	case *AudioFrame:
		c := m.Chunk
		buf = binary.BigEndian.AppendUint32(buf, c.Sequence)
		buf = binary.BigEndian.AppendUint32(buf, c.SampleRate)
		buf = append(buf, c.Channels, c.Codec)
		return appendBytes(buf, c.Payload)

	default:
		return nil, fmt.Errorf("unsupported server message %T", msg)
	}
}

// DecodeClientMessage parses a datagram received by the host.
func DecodeClientMessage(data []byte) (ClientMessage, error) {
	if len(data) < 1 {
		return nil, fmt.Errorf("%w: empty datagram", ErrMalformed)
	}

	r := reader{buf: data[1:]}
	var msg ClientMessage
	switch MessageType(data[0]) {
	case TypeJoin:
		msg = &Join{}
	case TypeLeave:
		msg = &Leave{}
	case TypePlayerUpdate:
		msg = &PlayerUpdate{
			Position: r.vec3(),
			Yaw:      r.float32(),
			Pitch:    r.float32(),
		}
	default:
		return nil, fmt.Errorf("%w: unknown client message type 0x%02x", ErrMalformed, data[0])
	}

	if err := r.finish(); err != nil {
		return nil, err
	}
	return msg, nil
}

// DecodeServerMessage parses a datagram received by a client.
func DecodeServerMessage(data []byte) (ServerMessage, error) {
	if len(data) < 1 {
		return nil, fmt.Errorf("%w: empty datagram", ErrMalformed)
	}

	r := reader{buf: data[1:]}
	var msg ServerMessage
	switch MessageType(data[0]) {
	case TypeWelcome:
		msg = &Welcome{AssignedID: PlayerID(r.uint64())}

	case TypeGameState:
		count := int(r.uint16())
		if count > MaxPlayersPerState || count*playerStateSize > r.remaining() {
			return nil, fmt.Errorf("%w: game state player count %d", ErrMalformed, count)
		}
		players := make([]PlayerState, count)
		for i := range players {
			players[i] = PlayerState{
				ID:       PlayerID(r.uint64()),
				Position: r.vec3(),
				Yaw:      r.float32(),
				Pitch:    r.float32(),
			}
		}
		msg = &GameState{Players: players}

	case TypePlayerLeft:
		msg = &PlayerLeft{ID: PlayerID(r.uint64())}

	case TypeVideoFrame:
		chunk := VideoChunk{
			FrameID:     r.uint32(),
			ChunkIdx:    r.uint16(),
			TotalChunks: r.uint16(),
		}
		chunk.IsKeyframe = r.byte()&flagKeyframe != 0
		chunk.Payload = r.bytes()
		msg = &VideoFrame{Chunk: chunk}

	case TypeVideoCodecInfo:
		msg = &VideoCodecInfo{
			Codec:     string(r.bytes()),
			Width:     r.uint32(),
			Height:    r.uint32(),
			FPS:       r.uint32(),
			Extradata: r.bytes(),
		}

	case TypeAudioFrame:
		chunk := AudioChunk{
			Sequence:   r.uint32(),
			SampleRate: r.uint32(),
			Channels:   r.byte(),
			Codec:      r.byte(),
		}
		chunk.Payload = r.bytes()
		msg = &AudioFrame{Chunk: chunk}

	default:
		return nil, fmt.Errorf("%w: unknown server message type 0x%02x", ErrMalformed, data[0])
	}

	if err := r.finish(); err != nil {
		return nil, err
	}
	return msg, nil
}

func appendFloat32(buf []byte, v float32) []byte {
	return binary.BigEndian.AppendUint32(buf, math.Float32bits(v))
}

func appendVec3(buf []byte, v [3]float32) []byte {
	for _, f := range v {
		buf = appendFloat32(buf, f)
	}
	return buf
}

func appendBytes(buf, data []byte) ([]byte, error) {
	if len(data) > MaxPayload {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrPayloadTooLarge, len(data), MaxPayload)
	}
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(data)))
	return append(buf, data...), nil
}

// reader consumes a message body. The first short read latches truncated
// and every later read returns zero values, so decoders check once at the end.
type reader struct {
	buf       []byte
	off       int
	truncated bool
}

func (r *reader) remaining() int {
	return len(r.buf) - r.off
}

func (r *reader) take(n int) []byte {
	if r.truncated || n > r.remaining() {
		r.truncated = true
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) byte() byte {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) uint16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}

func (r *reader) uint32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (r *reader) uint64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

func (r *reader) float32() float32 {
	return math.Float32frombits(r.uint32())
}

func (r *reader) vec3() [3]float32 {
	return [3]float32{r.float32(), r.float32(), r.float32()}
}

// bytes returns a copy so the caller may reuse the datagram buffer.
func (r *reader) bytes() []byte {
	n := int(r.uint16())
	b := r.take(n)
	if b == nil {
		return nil
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}

func (r *reader) finish() error {
	if r.truncated {
		return fmt.Errorf("%w: truncated body", ErrMalformed)
	}
	if r.remaining() != 0 {
		return fmt.Errorf("%w: %d trailing bytes", ErrMalformed, r.remaining())
	}
	return nil
}
