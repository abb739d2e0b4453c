// Package video implements the video half of the lanshare media pipeline.
//
// On the host, an [EncodeWorker] takes the newest captured RGBA frame,
// converts it to I420, encodes it and fragments the result into ready to
// send VideoFrame datagrams. Frames that arrive while the encoder is busy
// are skipped rather than queued.
//
// On a client, a [Receiver] owned by the tick loop reassembles chunks,
// hands complete payloads to a [DecodeWorker], and releases decoded frames
// through a jitter buffer to a [Sink]:
//
//	Receiver.HandleChunk -> fragment.Assembler -> DecodeWorker
//	    -> jitter.Buffer -> Receiver.Poll -> Sink.PresentFrame
//
// The codec itself is a black box behind [Encoder] and [Decoder]. The
// built-in [RawCodec] stores zstd compressed I420 planes, which is enough
// for a LAN and needs no native libraries.
package video
