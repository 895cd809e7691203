package storage

import (
	"errors"
	"sort"
	"strings"
)

// Mode is the link policy enforced in a channel.
type Mode string

const (
	ModeOff       Mode = "off"
	ModeLinksOnly Mode = "links-only"
	ModeNoLinks   Mode = "no-links"
)

var ErrInvalidMode = errors.New("invalid mode")

// Modes lists every accepted mode in display order.
var Modes = []Mode{ModeOff, ModeLinksOnly, ModeNoLinks}

func ParseMode(value string) (Mode, error) {
	mode := Mode(strings.ToLower(strings.TrimSpace(value)))
	switch mode {
	case ModeOff, ModeLinksOnly, ModeNoLinks:
		return mode, nil
	default:
		return "", ErrInvalidMode
	}
}

// GuildConfig is the moderation policy of one guild.
type GuildConfig struct {
	Channels    map[string]Mode `json:"channels"`
	Whitelist   []string        `json:"whitelist"`
	BypassRoles []string        `json:"bypassRoles"`
}

func NewGuildConfig() GuildConfig {
	return GuildConfig{
		Channels:    make(map[string]Mode),
		Whitelist:   []string{},
		BypassRoles: []string{},
	}
}

// ChannelMode returns the channel's mode, "off" when unset or unknown.
func (g GuildConfig) ChannelMode(channelID string) Mode {
	mode, ok := g.Channels[channelID]
	if !ok {
		return ModeOff
	}
	if _, err := ParseMode(string(mode)); err != nil {
		return ModeOff
	}
	return mode
}

func (g *GuildConfig) SetChannelMode(channelID string, mode Mode) {
	if g.Channels == nil {
		g.Channels = make(map[string]Mode)
	}
	g.Channels[channelID] = mode
}

// AddDomain appends domain unless it is already present.
func (g *GuildConfig) AddDomain(domain string) bool {
	if domain == "" || contains(g.Whitelist, domain) {
		return false
	}
	g.Whitelist = append(g.Whitelist, domain)
	return true
}

func (g *GuildConfig) RemoveDomain(domain string) bool {
	var removed bool
	g.Whitelist, removed = without(g.Whitelist, domain)
	return removed
}

func (g *GuildConfig) ClearWhitelist() {
	g.Whitelist = []string{}
}

func (g *GuildConfig) AddBypassRole(roleID string) bool {
	if roleID == "" || contains(g.BypassRoles, roleID) {
		return false
	}
	g.BypassRoles = append(g.BypassRoles, roleID)
	return true
}

func (g *GuildConfig) RemoveBypassRole(roleID string) bool {
	var removed bool
	g.BypassRoles, removed = without(g.BypassRoles, roleID)
	return removed
}

func (g *GuildConfig) ClearBypassRoles() {
	g.BypassRoles = []string{}
}

// HasBypassRole reports whether any of roleIDs is a bypass role.
func (g GuildConfig) HasBypassRole(roleIDs []string) bool {
	for _, roleID := range roleIDs {
		if contains(g.BypassRoles, roleID) {
			return true
		}
	}
	return false
}

func (g GuildConfig) IsWhitelisted(domain string) bool {
	return contains(g.Whitelist, domain)
}

// SortedChannels returns the configured channel ids in a stable order.
func (g GuildConfig) SortedChannels() []string {
	ids := make([]string, 0, len(g.Channels))
	for id := range g.Channels {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (g GuildConfig) Clone() GuildConfig {
	clone := NewGuildConfig()
	for id, mode := range g.Channels {
		clone.Channels[id] = mode
	}
	clone.Whitelist = append(clone.Whitelist, g.Whitelist...)
	clone.BypassRoles = append(clone.BypassRoles, g.BypassRoles...)
	return clone
}

// normalize repairs entries read from disk: nil collections become empty
// and duplicate list entries are dropped.
func (g *GuildConfig) normalize() {
	if g.Channels == nil {
		g.Channels = make(map[string]Mode)
	}
	g.Whitelist = dedupe(g.Whitelist)
	g.BypassRoles = dedupe(g.BypassRoles)
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

func without(values []string, target string) ([]string, bool) {
	out := make([]string, 0, len(values))
	removed := false
	for _, v := range values {
		if v == target {
			removed = true
			continue
		}
		out = append(out, v)
	}
	return out, removed
}

func dedupe(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" || contains(out, v) {
			continue
		}
		out = append(out, v)
	}
	return out
}
