package bot

import (
	"context"
	"fmt"
	"strings"

	"bloz-linkguard/internal/modules/audit"
	"bloz-linkguard/internal/modules/cleanup"
	"bloz-linkguard/internal/storage"
	"bloz-linkguard/internal/utils"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const (
	msgGuildOnly      = "Guild only."
	msgGenericFailure = "Something went sideways. Try again."
)

type commandOptions map[string]*discordgo.ApplicationCommandInteractionDataOption

func optionsByName(options []*discordgo.ApplicationCommandInteractionDataOption) commandOptions {
	out := make(commandOptions, len(options))
	for _, opt := range options {
		out[opt.Name] = opt
	}
	return out
}

func (o commandOptions) str(name string) string {
	if opt, ok := o[name]; ok && opt.Type == discordgo.ApplicationCommandOptionString {
		return strings.TrimSpace(opt.StringValue())
	}
	return ""
}

func (o commandOptions) channelID(name string) string {
	if opt, ok := o[name]; ok && opt.Type == discordgo.ApplicationCommandOptionChannel {
		if ch := opt.ChannelValue(nil); ch != nil {
			return ch.ID
		}
	}
	return ""
}

func (o commandOptions) roleID(name string) string {
	if opt, ok := o[name]; ok && opt.Type == discordgo.ApplicationCommandOptionRole {
		if role := opt.RoleValue(nil, ""); role != nil {
			return role.ID
		}
	}
	return ""
}

func (o commandOptions) integer(name string) (int, bool) {
	if opt, ok := o[name]; ok && opt.Type == discordgo.ApplicationCommandOptionInteger {
		return int(opt.IntValue()), true
	}
	return 0, false
}

// invocation is what the command handlers need from an interaction.
type invocation struct {
	guildID   string
	channelID string
	userID    string
}

func invocationFrom(interaction *discordgo.InteractionCreate) invocation {
	inv := invocation{guildID: interaction.GuildID, channelID: interaction.ChannelID}
	switch {
	case interaction.Member != nil && interaction.Member.User != nil:
		inv.userID = interaction.Member.User.ID
	case interaction.User != nil:
		inv.userID = interaction.User.ID
	}
	return inv
}

func (b *Bot) onInteractionCreate(session *discordgo.Session, interaction *discordgo.InteractionCreate) {
	if interaction.Type != discordgo.InteractionApplicationCommand {
		return
	}

	data := interaction.ApplicationCommandData()
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("command panicked", zap.String("command", data.Name), zap.String("guild_id", interaction.GuildID), zap.Any("panic", r))
			b.respond(session, interaction, msgGenericFailure, true)
		}
	}()

	if interaction.GuildID == "" {
		b.respond(session, interaction, msgGuildOnly, true)
		return
	}

	ctx := context.Background()
	inv := invocationFrom(interaction)
	if data.Name == "cleanup" {
		b.handleCleanupCommand(ctx, session, interaction, inv, data.Options)
		return
	}

	content, err := b.runCommand(ctx, inv, data)
	if err != nil {
		b.logger.Error("command failed", zap.String("command", data.Name), zap.String("guild_id", inv.guildID), zap.Error(err))
		content = msgGenericFailure
	}
	b.respond(session, interaction, content, true)
}

func (b *Bot) runCommand(ctx context.Context, inv invocation, data discordgo.ApplicationCommandInteractionData) (string, error) {
	switch data.Name {
	case "mode":
		return b.handleModeCommand(ctx, inv, data.Options)
	case "whitelist":
		return b.handleWhitelistCommand(ctx, inv, optionsByName(data.Options)), nil
	case "bypass":
		return b.handleBypassCommand(ctx, inv, optionsByName(data.Options)), nil
	case "settings":
		return b.settingsText(inv.guildID), nil
	case "test":
		return testText(optionsByName(data.Options).str("text")), nil
	default:
		return "", fmt.Errorf("unknown command %q", data.Name)
	}
}

func (b *Bot) handleModeCommand(ctx context.Context, inv invocation, options []*discordgo.ApplicationCommandInteractionDataOption) (string, error) {
	if len(options) == 0 || options[0].Type != discordgo.ApplicationCommandOptionSubCommand {
		return "", fmt.Errorf("mode: missing subcommand")
	}
	sub := options[0]
	opts := optionsByName(sub.Options)
	channelID := opts.channelID("channel")
	if channelID == "" {
		channelID = inv.channelID
	}

	switch sub.Name {
	case "set":
		mode, err := storage.ParseMode(opts.str("mode"))
		if err != nil {
			return "Invalid mode.", nil
		}
		b.update(inv.guildID, func(cfg *storage.GuildConfig) { cfg.SetChannelMode(channelID, mode) })
		b.audit.Log(ctx, audit.LevelInfo, inv.guildID, inv.userID, audit.EventConfigChanged, fmt.Sprintf("mode channel=%s value=%s", channelID, mode))
		return fmt.Sprintf("Mode for <#%s> set to **%s**.", channelID, mode), nil
	case "view":
		mode := b.store.Guild(inv.guildID).ChannelMode(channelID)
		return fmt.Sprintf("Mode for <#%s> is **%s**.", channelID, mode), nil
	default:
		return "", fmt.Errorf("mode: unknown subcommand %q", sub.Name)
	}
}

func (b *Bot) handleWhitelistCommand(ctx context.Context, inv invocation, opts commandOptions) string {
	switch action := opts.str("action"); action {
	case "add":
		domain := utils.NormalizeDomain(opts.str("domain"))
		if domain == "" {
			return "Provide a domain like `youtube.com`."
		}
		var added bool
		b.update(inv.guildID, func(cfg *storage.GuildConfig) { added = cfg.AddDomain(domain) })
		if !added {
			return fmt.Sprintf("**%s** is already whitelisted.", domain)
		}
		b.audit.Log(ctx, audit.LevelInfo, inv.guildID, inv.userID, audit.EventConfigChanged, "whitelist add "+domain)
		return fmt.Sprintf("Added **%s** to whitelist.", domain)
	case "remove":
		domain := utils.NormalizeDomain(opts.str("domain"))
		if domain == "" {
			return "Provide a domain to remove."
		}
		var removed bool
		b.update(inv.guildID, func(cfg *storage.GuildConfig) { removed = cfg.RemoveDomain(domain) })
		if !removed {
			return fmt.Sprintf("**%s** wasn't on the whitelist.", domain)
		}
		b.audit.Log(ctx, audit.LevelInfo, inv.guildID, inv.userID, audit.EventConfigChanged, "whitelist remove "+domain)
		return fmt.Sprintf("Removed **%s** from whitelist.", domain)
	case "list":
		cfg := b.store.Guild(inv.guildID)
		return "**Allowed domains:**\n" + bulletList(cfg.Whitelist, "(empty)", func(d string) string { return d })
	case "clear":
		b.update(inv.guildID, func(cfg *storage.GuildConfig) { cfg.ClearWhitelist() })
		b.audit.Log(ctx, audit.LevelInfo, inv.guildID, inv.userID, audit.EventConfigChanged, "whitelist clear")
		return "Whitelist cleared."
	default:
		return "Unknown action."
	}
}

func (b *Bot) handleBypassCommand(ctx context.Context, inv invocation, opts commandOptions) string {
	switch action := opts.str("action"); action {
	case "add":
		roleID := opts.roleID("role")
		if roleID == "" {
			return "Pick a role to add."
		}
		b.update(inv.guildID, func(cfg *storage.GuildConfig) { cfg.AddBypassRole(roleID) })
		b.audit.Log(ctx, audit.LevelInfo, inv.guildID, inv.userID, audit.EventConfigChanged, "bypass add "+roleID)
		return fmt.Sprintf("Added bypass role: %s.", roleMention(roleID))
	case "remove":
		roleID := opts.roleID("role")
		if roleID == "" {
			return "Pick a role to remove."
		}
		b.update(inv.guildID, func(cfg *storage.GuildConfig) { cfg.RemoveBypassRole(roleID) })
		b.audit.Log(ctx, audit.LevelInfo, inv.guildID, inv.userID, audit.EventConfigChanged, "bypass remove "+roleID)
		return fmt.Sprintf("Removed bypass role: %s.", roleMention(roleID))
	case "list":
		cfg := b.store.Guild(inv.guildID)
		return "**Bypass roles:**\n" + bulletList(cfg.BypassRoles, "(none)", roleMention)
	case "clear":
		b.update(inv.guildID, func(cfg *storage.GuildConfig) { cfg.ClearBypassRoles() })
		b.audit.Log(ctx, audit.LevelInfo, inv.guildID, inv.userID, audit.EventConfigChanged, "bypass clear")
		return "Bypass roles cleared."
	default:
		return "Unknown action."
	}
}

func (b *Bot) settingsText(guildID string) string {
	cfg := b.store.Guild(guildID)
	lines := []string{"**Modes:**"}
	channels := cfg.SortedChannels()
	if len(channels) == 0 {
		lines = append(lines, "(none)")
	}
	for _, channelID := range channels {
		lines = append(lines, fmt.Sprintf("• <#%s> → **%s**", channelID, cfg.Channels[channelID]))
	}

	whitelist := "(empty)"
	if len(cfg.Whitelist) > 0 {
		whitelist = strings.Join(cfg.Whitelist, ", ")
	}
	lines = append(lines, "**Whitelist:** "+whitelist)

	roles := "(none)"
	if len(cfg.BypassRoles) > 0 {
		mentions := make([]string, 0, len(cfg.BypassRoles))
		for _, roleID := range cfg.BypassRoles {
			mentions = append(mentions, roleMention(roleID))
		}
		roles = strings.Join(mentions, ", ")
	}
	lines = append(lines, "**Bypass roles:** "+roles)
	return strings.Join(lines, "\n")
}

func testText(text string) string {
	hasLink := "no"
	if utils.HasLink(text) {
		hasLink = "yes"
	}
	domains := "(none)"
	if found := utils.ExtractDomains(text); len(found) > 0 {
		domains = strings.Join(found, ", ")
	}
	return fmt.Sprintf("Has URL: **%s**\nDomains: %s", hasLink, domains)
}

func (b *Bot) handleCleanupCommand(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, inv invocation, options []*discordgo.ApplicationCommandInteractionDataOption) {
	err := session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	})
	if err != nil {
		b.logger.Warn("cleanup defer failed", zap.String("guild_id", inv.guildID), zap.Error(err))
		return
	}

	limit, ok := optionsByName(options).integer("limit")
	if !ok {
		limit = b.cfg.Cleanup.DefaultLimit
	}
	content := b.runCleanup(ctx, inv, limit)
	if _, err := session.InteractionResponseEdit(interaction.Interaction, &discordgo.WebhookEdit{Content: &content}); err != nil {
		b.logger.Warn("cleanup response failed", zap.String("guild_id", inv.guildID), zap.Error(err))
	}
}

func (b *Bot) runCleanup(ctx context.Context, inv invocation, limit int) string {
	if maxLimit := b.cfg.Cleanup.MaxLimit; maxLimit > 0 && limit > maxLimit {
		limit = maxLimit
	}
	limit = cleanup.ClampLimit(limit)

	cfg := b.store.Guild(inv.guildID)
	result, err := b.cleanup.Run(ctx, inv.channelID, limit, cfg.Whitelist)
	if err != nil {
		b.logger.Error("cleanup failed", zap.String("guild_id", inv.guildID), zap.String("channel_id", inv.channelID), zap.Error(err))
		return msgGenericFailure
	}

	b.audit.Log(ctx, audit.LevelInfo, inv.guildID, inv.userID, audit.EventCleanup,
		fmt.Sprintf("channel=%s scanned=%d deleted=%d failed=%d", inv.channelID, result.Scanned, result.Deleted, result.Failed))
	summary := fmt.Sprintf("Scanned %d messages, deleted **%d**.", result.Scanned, result.Deleted)
	if result.Failed > 0 {
		summary += fmt.Sprintf(" %d could not be deleted.", result.Failed)
	}
	return summary
}

// update applies fn through the store. A failed write is logged by the store
// and the change stays live in memory.
func (b *Bot) update(guildID string, fn func(cfg *storage.GuildConfig)) {
	_, _ = b.store.Update(guildID, fn)
}

func (b *Bot) respond(session *discordgo.Session, interaction *discordgo.InteractionCreate, content string, ephemeral bool) {
	flags := discordgo.MessageFlags(0)
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	if err := session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   flags,
		},
	}); err != nil {
		b.logger.Warn("interaction respond failed", zap.String("guild_id", interaction.GuildID), zap.Error(err))
	}
}

func roleMention(roleID string) string {
	return "<@&" + roleID + ">"
}

func bulletList(values []string, empty string, format func(string) string) string {
	if len(values) == 0 {
		return empty
	}
	lines := make([]string, 0, len(values))
	for _, v := range values {
		lines = append(lines, "• "+format(v))
	}
	return strings.Join(lines, "\n")
}
