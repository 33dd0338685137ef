package app

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/vovakirdan/channelchat/internal/core"
	"github.com/vovakirdan/channelchat/internal/proto"
)

// Console renders session notifications as plain text lines and keeps the
// chat lines of the current channel.
type Console struct {
	mu       sync.Mutex
	out      io.Writer
	lines    []string
	channels []string
	users    []string
}

// NewConsole writes to out.
func NewConsole(out io.Writer) *Console {
	return &Console{out: out}
}

// Hooks binds the console to a session's notifications.
func (c *Console) Hooks() core.Hooks {
	return core.Hooks{
		OnMessage:         c.ShowMessage,
		OnDirectoryChange: c.ShowDirectory,
		OnRosterChange:    c.ShowRoster,
		OnChannelJoin:     c.ChannelSwitch,
	}
}

// ShowMessage prints one chat line and keeps it in the log.
func (c *Console) ShowMessage(msg proto.Message) {
	line := formatMessage(msg)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, line)
	c.writeLocked(line)
}

func (c *Console) ShowDirectory(channels []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.channels = channels
	c.writeLocked("* channels: " + joinOrNone(channels))
}

func (c *Console) ShowRoster(users []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.users = users
	c.writeLocked("* users: " + joinOrNone(users))
}

// ChannelSwitch marks a join request or a disconnect in the output.
func (c *Console) ChannelSwitch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeLocked("* switching channel")
}

// Clear drops the retained chat lines.
func (c *Console) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = nil
}

// Lines returns the retained chat lines, oldest first.
func (c *Console) Lines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.lines))
	copy(out, c.lines)
	return out
}

// Channels returns the last directory shown.
func (c *Console) Channels() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.channels...)
}

// Users returns the last roster shown.
func (c *Console) Users() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.users...)
}

// Printf writes a status line.
func (c *Console) Printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeLocked(fmt.Sprintf(format, args...))
}

func (c *Console) writeLocked(line string) {
	_, _ = io.WriteString(c.out, line+"\n")
}

func formatMessage(msg proto.Message) string {
	user := msg.UserName()
	if user == "" {
		user = "?"
	}
	return user + ": " + msg.Text()
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "(none)"
	}
	return strings.Join(items, ", ")
}
