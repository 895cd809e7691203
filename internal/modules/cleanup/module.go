package cleanup

import (
	"context"
	"fmt"

	"bloz-linkguard/internal/utils"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const (
	DefaultLimit = 50
	MaxLimit     = 100
)

// MessageAPI is the slice of the Discord REST client cleanup needs.
// *discordgo.Session satisfies it.
type MessageAPI interface {
	ChannelMessages(channelID string, limit int, beforeID, afterID, aroundID string, options ...discordgo.RequestOption) ([]*discordgo.Message, error)
	ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error
}

type Result struct {
	Scanned int
	Deleted int
	Failed  int
}

type Module struct {
	api    MessageAPI
	logger *zap.Logger
}

func New(api MessageAPI, logger *zap.Logger) *Module {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Module{api: api, logger: logger}
}

// ClampLimit maps a requested scan size onto 1..MaxLimit, using
// DefaultLimit when nothing was requested.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

// ShouldDelete reports whether a historical message breaks the single link
// rule: the content must be exactly one http(s) URL, and with a non-empty
// whitelist its host must be a listed domain or a subdomain of one.
func ShouldDelete(msg *discordgo.Message, whitelist []string) bool {
	raw, ok := utils.SingleURL(msg.Content)
	if !ok {
		return true
	}
	if len(whitelist) == 0 {
		return false
	}
	host, ok := utils.HostFromURL(raw)
	if !ok {
		return true
	}
	return !utils.DomainMatch(host, whitelist, true)
}

// Run scans the last limit messages of channelID and deletes the ones that
// break the single link rule. Messages from bots are never touched.
func (m *Module) Run(ctx context.Context, channelID string, limit int, whitelist []string) (Result, error) {
	limit = ClampLimit(limit)
	messages, err := m.api.ChannelMessages(channelID, limit, "", "", "", discordgo.WithContext(ctx))
	if err != nil {
		return Result{}, fmt.Errorf("fetch messages: %w", err)
	}

	var result Result
	for _, msg := range messages {
		if msg == nil {
			continue
		}
		result.Scanned++
		if msg.Author != nil && msg.Author.Bot {
			continue
		}
		if !ShouldDelete(msg, whitelist) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := m.api.ChannelMessageDelete(channelID, msg.ID, discordgo.WithContext(ctx)); err != nil {
			result.Failed++
			m.logger.Warn("cleanup delete failed", zap.String("channel_id", channelID), zap.String("message_id", msg.ID), zap.Error(err))
			continue
		}
		result.Deleted++
	}
	return result, nil
}
