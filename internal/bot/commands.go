package bot

import (
	"bloz-linkguard/internal/modules/cleanup"
	"bloz-linkguard/internal/storage"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

var (
	manageGuildPerm    int64 = discordgo.PermissionManageServer
	manageMessagesPerm int64 = discordgo.PermissionManageMessages
	minCleanupLimit          = float64(1)
)

func modeChoices() []*discordgo.ApplicationCommandOptionChoice {
	choices := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(storage.Modes))
	for _, mode := range storage.Modes {
		choices = append(choices, &discordgo.ApplicationCommandOptionChoice{Name: string(mode), Value: string(mode)})
	}
	return choices
}

func listActionChoices() []*discordgo.ApplicationCommandOptionChoice {
	return []*discordgo.ApplicationCommandOptionChoice{
		{Name: "add", Value: "add"},
		{Name: "remove", Value: "remove"},
		{Name: "list", Value: "list"},
		{Name: "clear", Value: "clear"},
	}
}

func channelOption(description string) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:         discordgo.ApplicationCommandOptionChannel,
		Name:         "channel",
		Description:  description,
		ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildText, discordgo.ChannelTypeGuildNews},
	}
}

func commandDefinitions() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:                     "mode",
			Description:              "Set or view a channel's link mode",
			DefaultMemberPermissions: &manageGuildPerm,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "set",
					Description: "Set the link mode of a channel",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "mode",
							Description: "off, links-only or no-links",
							Required:    true,
							Choices:     modeChoices(),
						},
						channelOption("Channel to configure (defaults to this one)"),
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "view",
					Description: "Show the link mode of a channel",
					Options: []*discordgo.ApplicationCommandOption{
						channelOption("Channel to inspect (defaults to this one)"),
					},
				},
			},
		},
		{
			Name:                     "whitelist",
			Description:              "Manage allowed domains",
			DefaultMemberPermissions: &manageGuildPerm,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "action",
					Description: "add, remove, list or clear",
					Required:    true,
					Choices:     listActionChoices(),
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "domain",
					Description: "Domain like youtube.com",
				},
			},
		},
		{
			Name:                     "bypass",
			Description:              "Manage roles that skip link checks",
			DefaultMemberPermissions: &manageGuildPerm,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "action",
					Description: "add, remove, list or clear",
					Required:    true,
					Choices:     listActionChoices(),
				},
				{
					Type:        discordgo.ApplicationCommandOptionRole,
					Name:        "role",
					Description: "Role to add or remove",
				},
			},
		},
		{
			Name:                     "settings",
			Description:              "Show this server's link settings",
			DefaultMemberPermissions: &manageGuildPerm,
		},
		{
			Name:                     "test",
			Description:              "Check what the link detector sees in some text",
			DefaultMemberPermissions: &manageGuildPerm,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "text",
					Description: "Text to inspect",
					Required:    true,
				},
			},
		},
		{
			Name:                     "cleanup",
			Description:              "Delete recent messages that aren't a single allowed link",
			DefaultMemberPermissions: &manageMessagesPerm,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "limit",
					Description: "How many recent messages to scan (1-100)",
					MinValue:    &minCleanupLimit,
					MaxValue:    cleanup.MaxLimit,
				},
			},
		},
	}
}

func (b *Bot) appID() string {
	if b.cfg.ClientID != "" {
		return b.cfg.ClientID
	}
	if b.session != nil && b.session.State != nil && b.session.State.User != nil {
		return b.session.State.User.ID
	}
	return ""
}

// registerCommands overwrites the guild's command set once per process.
func (b *Bot) registerCommands(guildID string) {
	b.registeredMu.Lock()
	if b.registered[guildID] {
		b.registeredMu.Unlock()
		return
	}
	b.registered[guildID] = true
	b.registeredMu.Unlock()

	if _, err := b.session.ApplicationCommandBulkOverwrite(b.appID(), guildID, commandDefinitions()); err != nil {
		b.registeredMu.Lock()
		delete(b.registered, guildID)
		b.registeredMu.Unlock()
		b.logger.Warn("command registration failed", zap.String("guild_id", guildID), zap.Error(err))
		return
	}
	b.logger.Info("commands registered", zap.String("guild_id", guildID))
}
