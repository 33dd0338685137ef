package proto

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ProtocolVersion is advertised to the server with the user join request.
const ProtocolVersion = 1

// NoUserID is returned by Message.UserID when the frame carries no id.
// Heartbeats of unregistered clients send it explicitly.
const NoUserID int64 = -1

var (
	// ErrMalformedPayload is returned by Parse for text that is not a message document.
	ErrMalformedPayload = errors.New("malformed payload")
	// ErrUnknownMessageType marks frames whose type tag is not recognized.
	ErrUnknownMessageType = errors.New("unknown message type")
)

// Type is the protocol tag of a frame.
type Type int

const (
	// TypeUnknown is any well-formed frame with an unrecognized tag.
	TypeUnknown Type = iota
	// TypeUserJoin is the registration request and its acknowledgement.
	TypeUserJoin
	// TypeAckChannelJoin confirms the channel the client is now in.
	TypeAckChannelJoin
	// TypeChannelMessage is a chat line.
	TypeChannelMessage
	// TypeChannelHistory replays earlier chat lines of a channel.
	TypeChannelHistory
	// TypeChannelUserChange pushes the roster of the current channel.
	TypeChannelUserChange
	// TypeChannelChange is the directory push, and the join request client to server.
	TypeChannelChange
	// TypeHeartbeat is the liveness frame.
	TypeHeartbeat
)

var typeTags = map[Type]string{
	TypeUserJoin:          "USER_JOIN",
	TypeAckChannelJoin:    "ACK_CHANNEL_JOIN",
	TypeChannelMessage:    "CHANNEL_MESSAGE",
	TypeChannelHistory:    "CHANNEL_HISTORY",
	TypeChannelUserChange: "CHANNEL_USER_CHANGE",
	TypeChannelChange:     "CHANNEL_CHANGE",
	TypeHeartbeat:         "HEARTBEAT",
}

var tagTypes = func() map[string]Type {
	m := make(map[string]Type, len(typeTags))
	for t, tag := range typeTags {
		m[tag] = t
	}
	return m
}()

// String returns the wire tag of the type.
func (t Type) String() string {
	if tag, ok := typeTags[t]; ok {
		return tag
	}
	return "UNKNOWN"
}

// ParseType maps a wire tag to its Type. Unrecognized tags yield TypeUnknown.
func ParseType(tag string) Type {
	if t, ok := tagTypes[tag]; ok {
		return t
	}
	return TypeUnknown
}

type field uint16

const (
	fieldVersion field = 1 << iota
	fieldUserID
	fieldUserName
	fieldChannelName
	fieldMessage
	fieldChannelNames
	fieldChannelUserNames
	fieldHistory
)

// fieldsByType lists the payload fields each frame type carries.
var fieldsByType = map[Type]field{
	TypeUserJoin:          fieldVersion | fieldUserID | fieldUserName,
	TypeAckChannelJoin:    fieldChannelName,
	TypeChannelMessage:    fieldUserID | fieldUserName | fieldChannelName | fieldMessage,
	TypeChannelHistory:    fieldChannelName | fieldHistory,
	TypeChannelUserChange: fieldChannelName | fieldChannelUserNames,
	TypeChannelChange:     fieldUserID | fieldChannelName | fieldChannelNames,
	TypeHeartbeat:         fieldUserID,
}

// Message is one protocol frame. It is immutable once constructed; build
// values with the New* constructors or Parse.
type Message struct {
	typ              Type
	rawType          string
	version          int
	userID           *int64
	userName         string
	channelName      string
	text             string
	channelNames     []string
	channelUserNames []string
	history          []Message
}

// Type returns the frame type.
func (m Message) Type() Type { return m.typ }

// RawType returns the tag as it appeared on the wire.
func (m Message) RawType() string {
	if m.rawType != "" {
		return m.rawType
	}
	return m.typ.String()
}

// Version returns the advertised protocol version, 0 when absent.
func (m Message) Version() int { return m.version }

// HasUserID reports whether the frame carries a user id.
func (m Message) HasUserID() bool { return m.userID != nil }

// UserID returns the user id or NoUserID when absent.
func (m Message) UserID() int64 {
	if m.userID == nil {
		return NoUserID
	}
	return *m.userID
}

// UserName returns the user name or "".
func (m Message) UserName() string { return m.userName }

// ChannelName returns the channel name or "".
func (m Message) ChannelName() string { return m.channelName }

// Text returns the chat text or "".
func (m Message) Text() string { return m.text }

// ChannelNames returns a copy of the advertised channel directory.
func (m Message) ChannelNames() []string { return cloneStrings(m.channelNames) }

// ChannelUserNames returns a copy of the channel roster.
func (m Message) ChannelUserNames() []string { return cloneStrings(m.channelUserNames) }

// History returns a copy of the replayed messages in wire order.
func (m Message) History() []Message {
	if len(m.history) == 0 {
		return nil
	}
	out := make([]Message, len(m.history))
	copy(out, m.history)
	return out
}

// String renders the frame as its wire document.
func (m Message) String() string {
	data, err := Serialize(m)
	if err != nil {
		return fmt.Sprintf("<%s: %v>", m.RawType(), err)
	}
	return string(data)
}

// document is the JSON shape of a frame on the wire.
type document struct {
	Type    *string  `json:"type"`
	Version int      `json:"version,omitempty"`
	UserID  *int64   `json:"userID,omitempty"`
	Content *content `json:"content,omitempty"`
}

type content struct {
	UserName         string            `json:"userName,omitempty"`
	ChannelName      string            `json:"channelName,omitempty"`
	Message          string            `json:"message,omitempty"`
	ChannelNames     []string          `json:"channelNames,omitempty"`
	ChannelUserNames []string          `json:"channelUserNames,omitempty"`
	ChannelHistory   []json.RawMessage `json:"channelHistory,omitempty"`
}

func (c *content) empty() bool {
	return c.UserName == "" && c.ChannelName == "" && c.Message == "" &&
		len(c.ChannelNames) == 0 && len(c.ChannelUserNames) == 0 && len(c.ChannelHistory) == 0
}

// Parse decodes one frame. It fails with ErrMalformedPayload when data is not
// a JSON object with a string type tag. Unrecognized tags are not an error.
func Parse(data []byte) (Message, error) {
	return parse(data, false)
}

func parse(data []byte, nested bool) (Message, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Message{}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}

	var tag string
	switch {
	case doc.Type != nil && *doc.Type != "":
		tag = *doc.Type
	case nested:
		// history items are chat lines; the server may omit their tag
		tag = TypeChannelMessage.String()
	default:
		return Message{}, fmt.Errorf("%w: missing type", ErrMalformedPayload)
	}

	msg := Message{typ: ParseType(tag)}
	if msg.typ == TypeUnknown {
		msg.rawType = tag
		return msg, nil
	}

	fields := fieldsByType[msg.typ]
	if fields&fieldVersion != 0 {
		msg.version = doc.Version
	}
	if fields&fieldUserID != 0 && doc.UserID != nil {
		id := *doc.UserID
		msg.userID = &id
	}
	if doc.Content == nil {
		return msg, nil
	}

	c := doc.Content
	if fields&fieldUserName != 0 {
		msg.userName = c.UserName
	}
	if fields&fieldChannelName != 0 {
		msg.channelName = c.ChannelName
	}
	if fields&fieldMessage != 0 {
		msg.text = c.Message
	}
	if fields&fieldChannelNames != 0 {
		msg.channelNames = cloneStrings(c.ChannelNames)
	}
	if fields&fieldChannelUserNames != 0 {
		msg.channelUserNames = cloneStrings(c.ChannelUserNames)
	}
	if fields&fieldHistory != 0 && len(c.ChannelHistory) > 0 {
		msg.history = make([]Message, 0, len(c.ChannelHistory))
		for i, raw := range c.ChannelHistory {
			item, err := parse(raw, true)
			if err != nil {
				return Message{}, fmt.Errorf("history item %d: %w", i, err)
			}
			msg.history = append(msg.history, item)
		}
	}

	return msg, nil
}

// Serialize encodes a frame into its wire document. It is the inverse of Parse.
func Serialize(m Message) ([]byte, error) {
	doc, err := m.document()
	if err != nil {
		return nil, err
	}
	return json.Marshal(doc)
}

func (m Message) document() (document, error) {
	tag := m.RawType()
	if tag == "" || (m.typ == TypeUnknown && m.rawType == "") {
		return document{}, fmt.Errorf("%w: message has no type", ErrUnknownMessageType)
	}

	doc := document{
		Type:    &tag,
		Version: m.version,
		UserID:  m.userID,
	}

	c := &content{
		UserName:         m.userName,
		ChannelName:      m.channelName,
		Message:          m.text,
		ChannelNames:     m.channelNames,
		ChannelUserNames: m.channelUserNames,
	}
	for _, item := range m.history {
		raw, err := Serialize(item)
		if err != nil {
			return document{}, fmt.Errorf("history item: %w", err)
		}
		c.ChannelHistory = append(c.ChannelHistory, raw)
	}
	if !c.empty() {
		doc.Content = c
	}
	return doc, nil
}

func cloneStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
