package app

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vovakirdan/channelchat/internal/proto"
)

func TestConsoleRendersHooks(t *testing.T) {
	var out bytes.Buffer
	c := NewConsole(&out)
	hooks := c.Hooks()

	hooks.MessageArrived(proto.NewChannelMessage("bob", "general", "hi"))
	hooks.MessageArrived(proto.NewChannelMessage("", "general", "anonymous"))
	hooks.DirectoryChanged([]string{"general", "random"})
	hooks.RosterChanged(nil)
	hooks.ChannelJoinedOrLeft()

	want := "bob: hi\n" +
		"?: anonymous\n" +
		"* channels: general, random\n" +
		"* users: (none)\n" +
		"* switching channel\n"
	assert.Equal(t, want, out.String())
	assert.Equal(t, []string{"bob: hi", "?: anonymous"}, c.Lines())
	assert.Equal(t, []string{"general", "random"}, c.Channels())
	assert.Empty(t, c.Users())
}

func TestConsoleKeepsLogUntilCleared(t *testing.T) {
	var out bytes.Buffer
	c := NewConsole(&out)

	c.ShowMessage(proto.NewChannelMessage("bob", "general", "one"))
	c.ChannelSwitch()
	c.ShowDirectory(nil)
	c.ShowRoster(nil)
	assert.Equal(t, []string{"bob: one"}, c.Lines(), "disconnect notifications keep the log")

	c.Clear()
	assert.Empty(t, c.Lines())

	lines := c.Lines()
	c.ShowMessage(proto.NewChannelMessage("bob", "general", "two"))
	assert.Empty(t, lines, "Lines returns a copy")
}
