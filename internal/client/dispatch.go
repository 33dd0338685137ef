package client

import (
	"github.com/vovakirdan/channelchat/internal/core"
	"github.com/vovakirdan/channelchat/internal/proto"
)

// dispatch classifies one inbound frame, applies it to the state and fires
// the matching hook. Bad frames are logged and dropped.
func (s *Session) dispatch(data []byte) {
	msg, err := proto.Parse(data)
	if err != nil {
		s.metrics.FrameDropped(core.CodeMalformedPayload)
		s.log.Warn().Err(err).Int("bytes", len(data)).Msg("dropped malformed frame")
		return
	}
	s.log.Trace().Str("frame", string(data)).Msg("received frame")

	s.mu.Lock()
	defer s.mu.Unlock()

	switch msg.Type() {
	case proto.TypeUserJoin:
		s.handleUserJoinAck(msg)
	case proto.TypeAckChannelJoin:
		s.handleChannelJoinAck(msg)
	case proto.TypeChannelMessage:
		s.hooks.MessageArrived(msg)
	case proto.TypeChannelHistory:
		items := msg.History()
		s.log.Debug().Int("count", len(items)).Str("channel", msg.ChannelName()).Msg("replaying history")
		for _, item := range items {
			if item.Type() != proto.TypeChannelMessage {
				s.metrics.FrameDropped(core.CodeNotChatLine)
				s.log.Debug().Str("type", item.RawType()).Msg("skipped history item")
				continue
			}
			s.hooks.MessageArrived(item)
		}
	case proto.TypeChannelUserChange:
		s.stateMu.Lock()
		n := s.state.ReplaceRoster(msg.ChannelUserNames())
		roster := s.state.Roster()
		s.stateMu.Unlock()
		s.log.Debug().Int("users", n).Msg("received roster")
		s.hooks.RosterChanged(roster)
	case proto.TypeChannelChange:
		s.stateMu.Lock()
		n := s.state.ReplaceDirectory(msg.ChannelNames())
		directory := s.state.Directory()
		s.stateMu.Unlock()
		s.log.Debug().Int("channels", n).Msg("received channel directory")
		s.hooks.DirectoryChanged(directory)
	case proto.TypeHeartbeat:
		s.log.Trace().Msg("ignored heartbeat echo")
	default:
		s.metrics.FrameDropped(core.CodeUnknownType)
		s.log.Warn().
			Err(core.Dropped(core.CodeUnknownType, proto.ErrUnknownMessageType)).
			Str("type", msg.RawType()).
			Msg("dropped frame")
		return
	}

	s.metrics.FrameReceived(msg.RawType())
}

func (s *Session) handleUserJoinAck(msg proto.Message) {
	s.stateMu.Lock()
	accepted := s.state.ApplyUserJoinAck(msg.UserID())
	userID := s.state.UserID()
	s.stateMu.Unlock()

	if !accepted {
		s.log.Debug().Int64("user_id", msg.UserID()).Msg("ignored user join ack with invalid id")
		return
	}
	s.userID.Store(userID)

	s.connMu.RLock()
	registered := s.registered
	s.connMu.RUnlock()
	if registered != nil {
		select {
		case <-registered:
		default:
			close(registered)
		}
	}
	s.log.Info().Int64("user_id", userID).Msg("registered")
}

func (s *Session) handleChannelJoinAck(msg proto.Message) {
	if s.userID.Load() == core.NoUserID {
		s.metrics.FrameDropped(core.CodeNotRegistered)
		s.log.Warn().Str("channel", msg.ChannelName()).Msg("dropped channel ack: not registered")
		return
	}

	s.stateMu.Lock()
	s.state.ApplyChannelJoinAck(msg.ChannelName())
	s.stateMu.Unlock()

	if msg.ChannelName() == "" {
		s.log.Info().Msg("left channel")
		return
	}
	s.log.Info().Str("channel", msg.ChannelName()).Msg("joined channel")
}
