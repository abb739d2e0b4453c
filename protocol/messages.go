package protocol

// MessageType is the one byte tag that prefixes every datagram.
type MessageType byte

const (
	// Client to host
	TypeJoin         MessageType = 0x01
	TypeLeave        MessageType = 0x02
	TypePlayerUpdate MessageType = 0x03

	// Host to client
	TypeWelcome        MessageType = 0x10
	TypeGameState      MessageType = 0x11
	TypePlayerLeft     MessageType = 0x12
	TypeVideoFrame     MessageType = 0x13
	TypeVideoCodecInfo MessageType = 0x14
	TypeAudioFrame     MessageType = 0x15
)

// String returns a human readable name for logging.
func (t MessageType) String() string {
	switch t {
	case TypeJoin:
		return "Join"
	case TypeLeave:
		return "Leave"
	case TypePlayerUpdate:
		return "PlayerUpdate"
	case TypeWelcome:
		return "Welcome"
	case TypeGameState:
		return "GameState"
	case TypePlayerLeft:
		return "PlayerLeft"
	case TypeVideoFrame:
		return "VideoFrame"
	case TypeVideoCodecInfo:
		return "VideoCodecInfo"
	case TypeAudioFrame:
		return "AudioFrame"
	default:
		return "Unknown"
	}
}

// ClientMessage is a message sent from a client to the host.
type ClientMessage interface {
	Type() MessageType
	clientMessage()
}

// ServerMessage is a message sent from the host to its clients.
type ServerMessage interface {
	Type() MessageType
	serverMessage()
}

// Join asks the host for a player id.
type Join struct{}

// Leave announces a graceful disconnect.
type Leave struct{}

// PlayerUpdate carries the sender's current transform.
type PlayerUpdate struct {
	Position [3]float32
	Yaw      float32
	Pitch    float32
}

// Welcome confirms a join and tells the client its id.
type Welcome struct {
	AssignedID PlayerID
}

// GameState is the per-tick snapshot of every player.
type GameState struct {
	Players []PlayerState
}

// PlayerLeft tells the remaining clients a player is gone.
type PlayerLeft struct {
	ID PlayerID
}

// VideoFrame wraps one video fragment.
type VideoFrame struct {
	Chunk VideoChunk
}

// VideoCodecInfo describes the video stream so clients can configure a decoder.
type VideoCodecInfo struct {
	Codec     string
	Width     uint32
	Height    uint32
	FPS       uint32
	Extradata []byte
}

// AudioFrame wraps one audio packet.
type AudioFrame struct {
	Chunk AudioChunk
}

func (*Join) Type() MessageType         { return TypeJoin }
func (*Leave) Type() MessageType        { return TypeLeave }
func (*PlayerUpdate) Type() MessageType { return TypePlayerUpdate }

func (*Join) clientMessage()         {}
func (*Leave) clientMessage()        {}
func (*PlayerUpdate) clientMessage() {}

func (*Welcome) Type() MessageType        { return TypeWelcome }
func (*GameState) Type() MessageType      { return TypeGameState }
func (*PlayerLeft) Type() MessageType     { return TypePlayerLeft }
func (*VideoFrame) Type() MessageType     { return TypeVideoFrame }
func (*VideoCodecInfo) Type() MessageType { return TypeVideoCodecInfo }
func (*AudioFrame) Type() MessageType     { return TypeAudioFrame }

func (*Welcome) serverMessage()        {}
func (*GameState) serverMessage()      {}
func (*PlayerLeft) serverMessage()     {}
func (*VideoFrame) serverMessage()     {}
func (*VideoCodecInfo) serverMessage() {}
func (*AudioFrame) serverMessage()     {}
