// Package protocol defines the wire messages exchanged between a lanshare
// host and its clients.
//
// Every datagram carries exactly one message. Clients send [ClientMessage]
// values (Join, Leave, PlayerUpdate) and the host sends [ServerMessage] values
// (Welcome, GameState, PlayerLeft, VideoFrame, VideoCodecInfo, AudioFrame).
// Both unions are closed: the unexported marker methods keep other packages
// from adding variants, so a type switch over them is exhaustive.
//
// # Encoding
//
// Messages use a compact big-endian binary layout with a one byte type tag:
//
//	[type (1 byte)][body (variable length)]
//
// Media payloads are carried as raw bytes with a 16-bit length prefix.
//
//	data, err := protocol.EncodeServerMessage(&protocol.Welcome{AssignedID: 1})
//	msg, err := protocol.DecodeServerMessage(data)
//
// Decoding rejects unknown types, truncated bodies, length fields that
// overrun the datagram, and trailing bytes with [ErrMalformed]. Callers on the
// receive path drop such datagrams without penalizing the sender.
package protocol
