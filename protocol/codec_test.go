package protocol

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientMessageRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		msg  ClientMessage
	}{
		{"join", &Join{}},
		{"leave", &Leave{}},
		{"player update", &PlayerUpdate{Position: [3]float32{1, 2, 3}, Yaw: 0.5, Pitch: 0.1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := EncodeClientMessage(tt.msg)
			require.NoError(t, err)
			assert.Equal(t, byte(tt.msg.Type()), data[0])

			decoded, err := DecodeClientMessage(data)
			require.NoError(t, err)
			assert.Equal(t, tt.msg, decoded)
		})
	}
}

func TestGameStateRoundTrip(t *testing.T) {
	msg := &GameState{Players: []PlayerState{
		DefaultSpawn(HostPlayerID),
		{ID: 1, Position: [3]float32{1, 2, 3}, Yaw: 0.5, Pitch: 0.1},
	}}

	data, err := EncodeServerMessage(msg)
	require.NoError(t, err)

	decoded, err := DecodeServerMessage(data)
	require.NoError(t, err)
	assert.Equal(t, msg, decoded)
}

func TestVideoFrameCarriesPayloadAndFlags(t *testing.T) {
	payload := bytes.Repeat([]byte{0xAB}, MaxVideoChunkPayload)
	msg := &VideoFrame{Chunk: VideoChunk{
		FrameID:     42,
		ChunkIdx:    1,
		TotalChunks: 3,
		IsKeyframe:  true,
		Payload:     payload,
	}}

	data, err := EncodeServerMessage(msg)
	require.NoError(t, err)
	assert.Less(t, len(data), MaxDatagramSize)

	decoded, err := DecodeServerMessage(data)
	require.NoError(t, err)

	frame, ok := decoded.(*VideoFrame)
	require.True(t, ok)
	assert.Equal(t, uint32(42), frame.Chunk.FrameID)
	assert.Equal(t, uint16(1), frame.Chunk.ChunkIdx)
	assert.Equal(t, uint16(3), frame.Chunk.TotalChunks)
	assert.True(t, frame.Chunk.IsKeyframe)
	assert.Equal(t, payload, frame.Chunk.Payload)
}

func TestDecodedPayloadDoesNotAliasDatagram(t *testing.T) {
	data, err := EncodeServerMessage(&AudioFrame{Chunk: AudioChunk{
		Sequence:   7,
		SampleRate: 48000,
		Channels:   2,
		Codec:      AudioCodecPCM16,
		Payload:    []byte{1, 2, 3, 4},
	}})
	require.NoError(t, err)

	decoded, err := DecodeServerMessage(data)
	require.NoError(t, err)

	for i := range data {
		data[i] = 0
	}
	audio := decoded.(*AudioFrame)
	assert.Equal(t, []byte{1, 2, 3, 4}, audio.Chunk.Payload)
	assert.Equal(t, uint8(2), audio.Chunk.Channels)
}

func TestVideoCodecInfoRoundTrip(t *testing.T) {
	msg := &VideoCodecInfo{Codec: "h264", Width: 1920, Height: 1080, FPS: 30, Extradata: []byte{0, 0, 0, 1, 0x67}}

	data, err := EncodeServerMessage(msg)
	require.NoError(t, err)

	decoded, err := DecodeServerMessage(data)
	require.NoError(t, err)
	assert.Equal(t, msg, decoded)
}

func TestDecodeRejectsMalformed(t *testing.T) {
	welcome, err := EncodeServerMessage(&Welcome{AssignedID: 9})
	require.NoError(t, err)

	tests := []struct {
		name   string
		data   []byte
		client bool
	}{
		{"empty client datagram", nil, true},
		{"unknown client type", []byte{0x7F}, true},
		{"truncated player update", []byte{byte(TypePlayerUpdate), 0, 0}, true},
		{"join with trailing bytes", []byte{byte(TypeJoin), 1}, true},
		{"server type sent to host", welcome, true},
		{"truncated welcome", welcome[:5], false},
		{"game state count overruns datagram", []byte{byte(TypeGameState), 0x00, 0x05}, false},
		{"payload length overruns datagram", []byte{byte(TypeAudioFrame), 0, 0, 0, 1, 0, 0, 0xBB, 0x80, 1, 0, 0, 0xFF, 1}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.client {
				_, err = DecodeClientMessage(tt.data)
			} else {
				_, err = DecodeServerMessage(tt.data)
			}
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestEncodeRejectsOversizedInput(t *testing.T) {
	_, err := EncodeServerMessage(&VideoFrame{Chunk: VideoChunk{Payload: make([]byte, MaxPayload+1)}})
	assert.ErrorIs(t, err, ErrPayloadTooLarge)

	_, err = EncodeServerMessage(&GameState{Players: make([]PlayerState, MaxPlayersPerState+1)})
	assert.ErrorIs(t, err, ErrTooManyPlayers)

	_, err = EncodeServerMessage(nil)
	assert.ErrorIs(t, err, ErrNilMessage)
}

func TestIsNewerWraps(t *testing.T) {
	assert.True(t, IsNewer(43, 42))
	assert.False(t, IsNewer(42, 42))
	assert.False(t, IsNewer(41, 42))
	assert.True(t, IsNewer(0, 0xFFFFFFFF))
	assert.True(t, IsNewer(5, 0xFFFFFFF0))
	assert.False(t, IsNewer(0xFFFFFFF0, 5))
}
