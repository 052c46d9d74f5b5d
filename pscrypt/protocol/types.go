package protocol

type MessageType uint8

const (
	MessageTypeHello      MessageType = 1
	MessageTypeMixRequest MessageType = 2
	MessageTypeMixResult  MessageType = 3
	MessageTypeError      MessageType = 4
	MessageTypeClose      MessageType = 5
)

func (t MessageType) Valid() bool {
	return t >= MessageTypeHello && t <= MessageTypeClose
}

func (t MessageType) String() string {
	switch t {
	case MessageTypeHello:
		return "HELLO"
	case MessageTypeMixRequest:
		return "MIX_REQUEST"
	case MessageTypeMixResult:
		return "MIX_RESULT"
	case MessageTypeError:
		return "ERROR"
	case MessageTypeClose:
		return "CLOSE"
	default:
		return "UNKNOWN"
	}
}
