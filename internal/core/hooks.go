package core

import "github.com/vovakirdan/channelchat/internal/proto"

// Hooks are the notification points a presentation layer subscribes to.
// Each hook holds at most one callback; setting it again replaces the old one.
//
// Callbacks run synchronously on the session's dispatch path and must not
// block or call session operations that send (ChangeChannel, SendChat,
// Disconnect). Reading session state from a callback is fine.
//
// Hooks must be set before the session connects. OnMessage may be left nil;
// the other three are expected to be set by any presentation that renders
// them, though an unset hook is skipped rather than called.
type Hooks struct {
	// OnMessage receives every chat line, live or replayed from history.
	OnMessage func(proto.Message)
	// OnDirectoryChange receives the channel directory after each change.
	OnDirectoryChange func(channels []string)
	// OnRosterChange receives the channel roster after each change.
	OnRosterChange func(users []string)
	// OnChannelJoin fires when the client requests a channel and when it leaves.
	OnChannelJoin func()
}

func (h *Hooks) MessageArrived(msg proto.Message) {
	if h.OnMessage != nil {
		h.OnMessage(msg)
	}
}

func (h *Hooks) DirectoryChanged(channels []string) {
	if h.OnDirectoryChange != nil {
		h.OnDirectoryChange(channels)
	}
}

func (h *Hooks) RosterChanged(users []string) {
	if h.OnRosterChange != nil {
		h.OnRosterChange(users)
	}
}

func (h *Hooks) ChannelJoinedOrLeft() {
	if h.OnChannelJoin != nil {
		h.OnChannelJoin()
	}
}
