package proto

// NewUserJoin builds the registration request sent right after connecting.
func NewUserJoin(userName string) Message {
	return Message{
		typ:      TypeUserJoin,
		version:  ProtocolVersion,
		userName: userName,
	}
}

// NewChannelJoin builds the request to move the client into a channel.
func NewChannelJoin(channelName string, userID int64) Message {
	return Message{
		typ:         TypeChannelChange,
		channelName: channelName,
		userID:      idPtr(userID),
	}
}

// NewChatSend builds a chat line for the current channel.
func NewChatSend(text string, userID int64) Message {
	return Message{
		typ:    TypeChannelMessage,
		text:   text,
		userID: idPtr(userID),
	}
}

// NewHeartbeat builds the liveness frame. NoUserID is a valid id here.
func NewHeartbeat(userID int64) Message {
	return Message{
		typ:    TypeHeartbeat,
		userID: idPtr(userID),
	}
}

// NewUserJoinAck builds the server's answer to a registration request.
func NewUserJoinAck(userID int64) Message {
	return Message{
		typ:    TypeUserJoin,
		userID: idPtr(userID),
	}
}

// NewChannelJoinAck builds the server's channel confirmation. An empty
// name means the client is in no channel.
func NewChannelJoinAck(channelName string) Message {
	return Message{
		typ:         TypeAckChannelJoin,
		channelName: channelName,
	}
}

// NewChannelMessage builds a chat line as the server relays it.
func NewChannelMessage(userName, channelName, text string) Message {
	return Message{
		typ:         TypeChannelMessage,
		userName:    userName,
		channelName: channelName,
		text:        text,
	}
}

// NewChannelHistory builds a replay of earlier chat lines.
func NewChannelHistory(channelName string, items ...Message) Message {
	msg := Message{
		typ:         TypeChannelHistory,
		channelName: channelName,
	}
	if len(items) > 0 {
		msg.history = make([]Message, len(items))
		copy(msg.history, items)
	}
	return msg
}

// NewRosterUpdate builds the user list push for a channel.
func NewRosterUpdate(channelName string, userNames []string) Message {
	return Message{
		typ:              TypeChannelUserChange,
		channelName:      channelName,
		channelUserNames: cloneStrings(userNames),
	}
}

// NewDirectoryUpdate builds the channel list push.
func NewDirectoryUpdate(channelNames []string) Message {
	return Message{
		typ:          TypeChannelChange,
		channelNames: cloneStrings(channelNames),
	}
}

// NewUnknown builds a frame with an arbitrary tag. Recognized tags produce
// an empty frame of that type.
func NewUnknown(tag string) Message {
	if t := ParseType(tag); t != TypeUnknown {
		return Message{typ: t}
	}
	return Message{rawType: tag}
}

func idPtr(id int64) *int64 {
	return &id
}
