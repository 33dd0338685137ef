package core

// Status is the position of a session in its connection state machine.
type Status int

const (
	// StatusDisconnected means there is no open transport.
	StatusDisconnected Status = iota
	// StatusConnecting means a dial is in progress.
	StatusConnecting
	// StatusConnectedUnregistered means the transport is open but the server
	// has not assigned an id yet.
	StatusConnectedUnregistered
	// StatusRegistered means the client has an id and is in no channel.
	StatusRegistered
	// StatusInChannel means the client has an id and a confirmed channel.
	StatusInChannel
)

// String returns the string representation of a Status.
func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnectedUnregistered:
		return "connected_unregistered"
	case StatusRegistered:
		return "registered"
	case StatusInChannel:
		return "in_channel"
	default:
		return "unknown"
	}
}

// Connected reports whether the status implies an open transport.
func (s Status) Connected() bool {
	return s >= StatusConnectedUnregistered
}
