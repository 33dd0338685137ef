package core

import (
	"sort"

	"github.com/vovakirdan/channelchat/internal/proto"
)

// NoUserID marks an unregistered session.
const NoUserID = proto.NoUserID

// State is the client's view of its identity, channel, channel directory and
// channel roster. It is not safe for concurrent use; the session serializes
// access to it.
type State struct {
	userID    int64
	channel   string
	directory map[string]struct{}
	roster    map[string]struct{}
}

// NewState returns an unregistered state with empty collections.
func NewState() *State {
	return &State{
		userID:    NoUserID,
		directory: make(map[string]struct{}),
		roster:    make(map[string]struct{}),
	}
}

// ApplyUserJoinAck records the server-assigned id. Non-positive ids are
// ignored. Returns true if the id was accepted.
func (s *State) ApplyUserJoinAck(userID int64) bool {
	if userID <= 0 {
		return false
	}
	s.userID = userID
	return true
}

// ApplyChannelJoinAck sets the current channel. An empty name means no channel.
func (s *State) ApplyChannelJoinAck(channel string) {
	s.channel = channel
}

// ReplaceDirectory swaps the channel directory and returns its new size.
func (s *State) ReplaceDirectory(names []string) int {
	replaceSet(s.directory, names)
	return len(s.directory)
}

// ReplaceRoster swaps the channel roster and returns its new size.
func (s *State) ReplaceRoster(names []string) int {
	replaceSet(s.roster, names)
	return len(s.roster)
}

// Reset restores the initial unregistered state.
func (s *State) Reset() {
	s.userID = NoUserID
	s.channel = ""
	clear(s.directory)
	clear(s.roster)
}

// UserID returns the assigned id or NoUserID.
func (s *State) UserID() int64 { return s.userID }

// Channel returns the confirmed channel or "".
func (s *State) Channel() string { return s.channel }

// Registered reports whether the server assigned an id.
func (s *State) Registered() bool { return s.userID != NoUserID }

// InChannel reports whether the client has a confirmed channel.
func (s *State) InChannel() bool { return s.channel != "" }

// Directory returns the advertised channel names, sorted.
func (s *State) Directory() []string { return sortedKeys(s.directory) }

// Roster returns the user names of the current channel, sorted.
func (s *State) Roster() []string { return sortedKeys(s.roster) }

func replaceSet(set map[string]struct{}, names []string) {
	clear(set)
	for _, name := range names {
		set[name] = struct{}{}
	}
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
