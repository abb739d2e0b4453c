package audio

import (
	"errors"
	"testing"
	"time"

	"github.com/opd-ai/lanshare/internal/clock"
	"github.com/opd-ai/lanshare/media"
	"github.com/opd-ai/lanshare/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second

func TestQuantizePCM16ClampsAndRoundTrips(t *testing.T) {
	pcm := QuantizePCM16(nil, []float32{0, 0.5, -0.5, 1, -1, 2, -3})
	require.Len(t, pcm, 14)

	// 2.0 clamps to full scale, little-endian.
	assert.Equal(t, []byte{0xFF, 0x7F}, pcm[10:12])
	assert.Equal(t, []byte{0x01, 0x80}, pcm[12:14])

	samples, err := DequantizePCM16(nil, pcm)
	require.NoError(t, err)
	want := []float32{0, 0.5, -0.5, 1, -1, 1, -1}
	for i := range want {
		assert.InDelta(t, want[i], samples[i], 1.0/16384, "sample %d", i)
	}

	_, err = DequantizePCM16(nil, []byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestRingUnderrunFillsSilence(t *testing.T) {
	ring := NewRing(8)
	p := NewPlayback(ring, Format{SampleRate: 8000, Channels: 1})

	assert.Equal(t, 3, ring.Write([]float32{0.1, 0.2, 0.3}))

	dst := []float32{9, 9, 9, 9, 9}
	assert.Equal(t, 3, p.Fill(dst))
	assert.Equal(t, []float32{0.1, 0.2, 0.3, 0, 0}, dst)

	dst = []float32{9, 9}
	assert.Equal(t, 0, p.Fill(dst))
	assert.Equal(t, []float32{0, 0}, dst)

	stats := p.Stats()
	assert.Equal(t, uint64(2), stats.Underruns)
	assert.Equal(t, uint64(4), stats.Silence)
	assert.Equal(t, uint64(3), stats.Samples)
}

func TestRingDropsWhenFullAndWraps(t *testing.T) {
	ring := NewRing(4)
	assert.Equal(t, 4, ring.Write([]float32{1, 2, 3, 4, 5, 6}))
	assert.Equal(t, uint64(2), ring.Overflow())

	out := make([]float32, 3)
	assert.Equal(t, 3, ring.Read(out))
	assert.Equal(t, []float32{1, 2, 3}, out)

	assert.Equal(t, 3, ring.Write([]float32{7, 8, 9}))
	out = make([]float32, 8)
	n := ring.Read(out)
	assert.Equal(t, []float32{4, 7, 8, 9}, out[:n])
	assert.Equal(t, 0, ring.Len())
}

func TestRingForHoldsHalfASecond(t *testing.T) {
	assert.Equal(t, 48000, NewRingFor(Format{SampleRate: 48000, Channels: 2}).Cap())
}

func TestResamplerSameRateCopies(t *testing.T) {
	r, err := NewResampler(48000, 48000, 2)
	require.NoError(t, err)
	in := []float32{1, 2, 3, 4}
	out, err := r.Resample(nil, in)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = r.Resample(nil, []float32{1, 2, 3})
	assert.Error(t, err)
}

func TestResamplerInterpolatesLinearly(t *testing.T) {
	r, err := NewResampler(24000, 48000, 1)
	require.NoError(t, err)

	out, err := r.Resample(nil, []float32{0, 1, 2, 3})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{0, 0.5, 1, 1.5, 2, 2.5}, out, 1e-6)

	// The next call continues from the last frame of the previous one.
	out, err = r.Resample(nil, []float32{4, 5})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{3, 3.5, 4, 4.5}, out, 1e-6)
}

func TestResamplerStreamLength(t *testing.T) {
	tests := []struct {
		in, out uint32
	}{
		{44100, 48000},
		{48000, 44100},
		{16000, 48000},
		{48000, 8000},
	}
	for _, tt := range tests {
		r, err := NewResampler(tt.in, tt.out, 2)
		require.NoError(t, err)

		// One second in 10 ms blocks.
		block := make([]float32, int(tt.in)/100*2)
		total := 0
		for i := 0; i < 100; i++ {
			out, err := r.Resample(nil, block)
			require.NoError(t, err)
			require.Zero(t, len(out)%2)
			total += len(out) / 2
		}
		assert.InDelta(t, int(tt.out), total, 4, "%d -> %d", tt.in, tt.out)
	}
}

func TestConverterMapsChannels(t *testing.T) {
	down, err := NewConverter(Format{SampleRate: 48000, Channels: 2}, Format{SampleRate: 48000, Channels: 1})
	require.NoError(t, err)
	out, err := down.Convert(nil, []float32{0.2, 0.4, -1, 1})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{0.3, 0}, out, 1e-6)

	up, err := NewConverter(Format{SampleRate: 48000, Channels: 1}, Format{SampleRate: 48000, Channels: 2})
	require.NoError(t, err)
	out, err = up.Convert(nil, []float32{0.25, -0.5})
	require.NoError(t, err)
	assert.Equal(t, []float32{0.25, 0.25, -0.5, -0.5}, out)

	_, err = NewConverter(Format{}, DefaultOutputFormat)
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestOpusFrameDurationFromTOC(t *testing.T) {
	ms, err := opusFrameMillis(0x08) // config 1: SILK NB 20 ms
	require.NoError(t, err)
	assert.Equal(t, 20, ms)

	ms, err = opusFrameMillis(11 << 3) // config 11: SILK WB 60 ms
	require.NoError(t, err)
	assert.Equal(t, 60, ms)

	_, err = opusFrameMillis(16 << 3) // CELT
	assert.ErrorIs(t, err, ErrCodecUnavailable)

	_, _, err = NewOpusDecoder().Decode(nil, Format{})
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestDefaultDecoderFactory(t *testing.T) {
	dec, err := DefaultDecoderFactory(protocol.AudioCodecPCM16)
	require.NoError(t, err)
	assert.IsType(t, &PCM16Decoder{}, dec)

	dec, err = DefaultDecoderFactory(protocol.AudioCodecOpus)
	require.NoError(t, err)
	assert.IsType(t, &OpusDecoder{}, dec)

	_, err = DefaultDecoderFactory(9)
	assert.ErrorIs(t, err, ErrCodecUnavailable)
}

func nextAudioPacket(t *testing.T, w *EncodeWorker) protocol.AudioChunk {
	t.Helper()
	select {
	case p := <-w.Output():
		msg, err := protocol.DecodeServerMessage(p.Datagram)
		require.NoError(t, err)
		frame, ok := msg.(*protocol.AudioFrame)
		require.True(t, ok)
		assert.Equal(t, p.Sequence, frame.Chunk.Sequence)
		return frame.Chunk
	case <-time.After(waitFor):
		t.Fatal("no audio packet")
		return protocol.AudioChunk{}
	}
}

func TestEncodeWorkerSplitsAndSequences(t *testing.T) {
	w := NewEncodeWorker(EncodeConfig{})
	w.Start()
	defer w.Stop()

	// 20 ms of 48 kHz stereo is 3840 bytes of PCM16, four packets.
	samples := make([]float32, 960*2)
	for i := range samples {
		samples[i] = 0.25
	}
	w.Submit(Samples{Data: samples, SampleRate: 48000, Channels: 2})

	total := 0
	for i := 0; i < 4; i++ {
		chunk := nextAudioPacket(t, w)
		assert.Equal(t, uint32(i), chunk.Sequence)
		assert.Equal(t, uint32(48000), chunk.SampleRate)
		assert.Equal(t, uint8(2), chunk.Channels)
		assert.Equal(t, protocol.AudioCodecPCM16, chunk.Codec)
		assert.LessOrEqual(t, len(chunk.Payload), protocol.MaxAudioChunkPayload)
		assert.Zero(t, len(chunk.Payload)%4)
		total += len(chunk.Payload)
	}
	assert.Equal(t, 3840, total)

	w.Submit(Samples{Data: []float32{0.1, 0.1}, SampleRate: 48000, Channels: 2})
	assert.Equal(t, uint32(4), nextAudioPacket(t, w).Sequence)
}

func TestEncodeWorkerSkipsInvalidBuffers(t *testing.T) {
	w := NewEncodeWorker(EncodeConfig{})
	w.Start()

	w.Submit(Samples{Data: []float32{0.1, 0.2, 0.3}, SampleRate: 48000, Channels: 2})
	w.Submit(Samples{Data: []float32{0.1}, SampleRate: 0, Channels: 1})
	w.Stop()

	stats := w.Stats()
	assert.Equal(t, uint64(2), stats.Invalid)
	assert.Zero(t, stats.Packets)
}

func pcmChunk(seq uint32, samples []float32) protocol.AudioChunk {
	return protocol.AudioChunk{
		Sequence:   seq,
		SampleRate: 48000,
		Channels:   1,
		Codec:      protocol.AudioCodecPCM16,
		Payload:    QuantizePCM16(nil, samples),
	}
}

func TestDecodeWorkerCountsGaps(t *testing.T) {
	ring := NewRing(1024)
	w := NewDecodeWorker(nil, Format{SampleRate: 48000, Channels: 1}, ring)
	w.Start()

	for _, seq := range []uint32{0, 1, 4, 5, 200} {
		w.Submit(pcmChunk(seq, []float32{0.5, 0.5}))
	}
	w.Stop()

	stats := w.Stats()
	assert.Equal(t, uint64(5), stats.Decoded)
	assert.Equal(t, uint64(1), stats.Gaps)
	assert.Equal(t, uint64(2), stats.Lost)
	assert.Equal(t, 10, ring.Len())
}

type failingDecoder struct{}

func (failingDecoder) Decode([]byte, Format) ([]float32, Format, error) {
	return nil, Format{}, errors.New("corrupt")
}

func TestDecodeWorkerIsolatesCodecFailures(t *testing.T) {
	ring := NewRing(1024)
	factory := func(codec uint8) (Decoder, error) {
		switch codec {
		case protocol.AudioCodecPCM16:
			return &PCM16Decoder{}, nil
		case protocol.AudioCodecOpus:
			return failingDecoder{}, nil
		}
		return nil, ErrCodecUnavailable
	}
	w := NewDecodeWorker(factory, Format{SampleRate: 48000, Channels: 1}, ring)
	w.Start()

	opus := pcmChunk(1, []float32{0})
	opus.Codec = protocol.AudioCodecOpus
	unknown := pcmChunk(2, []float32{0})
	unknown.Codec = 7

	w.Submit(pcmChunk(0, []float32{0.1}))
	w.Submit(opus)
	w.Submit(unknown)
	w.Submit(pcmChunk(3, []float32{0.2}))
	w.Stop()

	stats := w.Stats()
	assert.Equal(t, uint64(2), stats.Decoded)
	assert.Equal(t, uint64(1), stats.Failed)
	assert.Equal(t, 2, ring.Len())
}

func TestDecodeWorkerRecreatesFailingDecoder(t *testing.T) {
	ring := NewRing(1024)
	builds := 0
	factory := func(codec uint8) (Decoder, error) {
		builds++
		if builds == 1 {
			return failingDecoder{}, nil
		}
		return &PCM16Decoder{}, nil
	}
	w := NewDecodeWorker(factory, Format{SampleRate: 48000, Channels: 1}, ring)
	w.SetTimeProvider(clock.NewMockTimeProvider(time.Unix(0, 0)))
	w.Start()

	var seq uint32
	for ; seq < media.DefaultFailureThreshold; seq++ {
		w.Submit(pcmChunk(seq, []float32{0.1}))
	}
	w.Submit(pcmChunk(seq, []float32{0.2}))
	w.Stop()

	stats := w.Stats()
	assert.Equal(t, 2, builds)
	assert.Equal(t, uint64(1), stats.Recreated)
	assert.Equal(t, uint64(media.DefaultFailureThreshold), stats.Failed)
	assert.Equal(t, uint64(1), stats.Decoded)
	assert.Equal(t, 1, ring.Len())
}

func TestReceiverReordersAndPlays(t *testing.T) {
	mock := clock.NewMockTimeProvider(time.Unix(0, 0))
	recv, err := NewReceiver(ReceiverConfig{
		Output:       Format{SampleRate: 48000, Channels: 2},
		TimeProvider: mock,
	})
	require.NoError(t, err)
	recv.Start()
	defer recv.Stop()

	recv.HandleChunk(pcmChunk(1, []float32{0.5}))
	recv.HandleChunk(pcmChunk(0, []float32{0.25}))
	assert.Zero(t, recv.Poll())

	mock.Advance(DefaultJitterHold)
	assert.Equal(t, 2, recv.Poll())

	// Late arrival behind the released watermark.
	recv.HandleChunk(pcmChunk(0, []float32{0.75}))
	assert.Equal(t, uint64(1), recv.Stats().Jitter.Late)

	playback := recv.Playback()
	require.Eventually(t, func() bool { return playback.Stats().Buffered == 4 }, waitFor, time.Millisecond)

	dst := make([]float32, 6)
	assert.Equal(t, 4, playback.Fill(dst))
	assert.InDeltaSlice(t, []float32{0.25, 0.25, 0.5, 0.5, 0, 0}, dst, 1e-4)
}
