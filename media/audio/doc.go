// Package audio implements the audio stream: PCM16 packing on the host, and
// on the client a jitter-buffered receive path that decodes PCM16 or Opus
// packets, converts them to the playback format and hands them to the audio
// device callback through a lock-free ring.
//
// The host side:
//
//	enc := audio.NewEncodeWorker(audio.EncodeConfig{})
//	enc.Start()
//	enc.Submit(audio.Samples{Data: pcm, SampleRate: 48000, Channels: 2})
//	packet := <-enc.Output() // one AudioFrame datagram per packet
//
// The client side:
//
//	recv, err := audio.NewReceiver(audio.ReceiverConfig{})
//	recv.Start()
//	recv.HandleChunk(chunk) // from the tick loop
//	recv.Poll()             // once per tick
//	recv.Playback().Fill(deviceBuffer)
package audio
