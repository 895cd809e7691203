package bot

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// MessageAPI is the REST surface the bot needs for moderation, cleanup and
// the audit channel. *discordgo.Session satisfies it.
type MessageAPI interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendReply(channelID, content string, reference *discordgo.MessageReference, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error
	ChannelMessages(channelID string, limit int, beforeID, afterID, aroundID string, options ...discordgo.RequestOption) ([]*discordgo.Message, error)
}

type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type Timer interface {
	Stop() bool
}

type realClock struct{}

type realTimer struct{ t *time.Timer }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return realTimer{t: time.AfterFunc(d, f)}
}

func (t realTimer) Stop() bool { return t.t.Stop() }

// Presenter posts persona-voiced warnings and cleans up after them.
type Presenter struct {
	api     MessageAPI
	clock   Clock
	persona string
	ttl     time.Duration
	logger  *zap.Logger
}

func NewPresenter(api MessageAPI, persona string, ttl time.Duration, logger *zap.Logger) *Presenter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Presenter{api: api, clock: realClock{}, persona: persona, ttl: ttl, logger: logger}
}

func (p *Presenter) WithClock(clock Clock) {
	p.clock = clock
}

func (p *Presenter) Format(text string) string {
	return p.persona + ": " + text
}

// Warn replies to msg with text, schedules the reply for removal after the
// configured TTL and deletes msg. Every step is best effort.
func (p *Presenter) Warn(ctx context.Context, msg *discordgo.Message, text string) {
	reply, err := p.api.ChannelMessageSendReply(msg.ChannelID, p.Format(text), msg.Reference(), discordgo.WithContext(ctx))
	if err != nil {
		p.logFailure("warning reply failed", err, msg.ChannelID, msg.ID)
	} else if reply != nil {
		channelID, replyID := reply.ChannelID, reply.ID
		if channelID == "" {
			channelID = msg.ChannelID
		}
		p.clock.AfterFunc(p.ttl, func() {
			if err := p.api.ChannelMessageDelete(channelID, replyID); err != nil {
				p.logFailure("warning retract failed", err, channelID, replyID)
			}
		})
	}

	if err := p.api.ChannelMessageDelete(msg.ChannelID, msg.ID, discordgo.WithContext(ctx)); err != nil {
		p.logFailure("message delete failed", err, msg.ChannelID, msg.ID)
	}
}

// logFailure keeps missing-permission and already-gone errors at debug.
func (p *Presenter) logFailure(message string, err error, channelID, messageID string) {
	fields := []zap.Field{zap.String("channel_id", channelID), zap.String("message_id", messageID), zap.Error(err)}
	if isExpectedRESTError(err) {
		p.logger.Debug(message, fields...)
		return
	}
	p.logger.Warn(message, fields...)
}

func isExpectedRESTError(err error) bool {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) || restErr.Response == nil {
		return false
	}
	switch restErr.Response.StatusCode {
	case http.StatusForbidden, http.StatusNotFound:
		return true
	default:
		return false
	}
}
