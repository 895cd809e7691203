package bot

import (
	"context"
	"fmt"
	"sync"

	"bloz-linkguard/internal/config"
	"bloz-linkguard/internal/modules/audit"
	"bloz-linkguard/internal/modules/cleanup"
	"bloz-linkguard/internal/modules/linkfilter"
	"bloz-linkguard/internal/storage"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

type Bot struct {
	cfg          config.Config
	logger       *zap.Logger
	store        *storage.Store
	filter       *linkfilter.Engine
	presenter    *Presenter
	cleanup      *cleanup.Module
	audit        *audit.Logger
	api          MessageAPI
	session      *discordgo.Session
	registeredMu sync.Mutex
	registered   map[string]bool
}

func New(cfg config.Config, logger *zap.Logger, store *storage.Store, auditLogger *audit.Logger) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, err
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsMessageContent

	b := newBot(cfg, logger, store, auditLogger, session)
	b.session = session
	return b, nil
}

func newBot(cfg config.Config, logger *zap.Logger, store *storage.Store, auditLogger *audit.Logger, api MessageAPI) *Bot {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Bot{
		cfg:        cfg,
		logger:     logger,
		store:      store,
		filter:     linkfilter.New(nil),
		presenter:  NewPresenter(api, cfg.PersonaName, cfg.WarnTTL(), logger),
		cleanup:    cleanup.New(api, logger),
		audit:      auditLogger,
		api:        api,
		registered: make(map[string]bool),
	}
	if b.audit != nil && cfg.AuditChannelID != "" {
		b.audit.SetNotifier(b.notifyAudit)
	}
	return b
}

func (b *Bot) Start() error {
	b.session.AddHandler(b.onReady)
	b.session.AddHandler(b.onGuildCreate)
	b.session.AddHandler(b.onMessageCreate)
	b.session.AddHandler(b.onInteractionCreate)

	return b.session.Open()
}

func (b *Bot) Close(ctx context.Context) {
	_ = ctx
	if b.session != nil {
		_ = b.session.Close()
	}
}

func (b *Bot) onReady(session *discordgo.Session, event *discordgo.Ready) {
	b.logger.Info("discord ready", zap.String("user", event.User.Username), zap.Int("guilds", len(event.Guilds)))
}

// GuildCreate fires for every guild after connecting and again on join.
func (b *Bot) onGuildCreate(session *discordgo.Session, event *discordgo.GuildCreate) {
	if event.Guild == nil || event.Unavailable {
		return
	}
	b.registerCommands(event.ID)
}

func (b *Bot) onMessageCreate(session *discordgo.Session, msg *discordgo.MessageCreate) {
	if msg.Author == nil || msg.GuildID == "" {
		return
	}
	b.moderate(context.Background(), msg.Message)
}

// moderate runs the guild's link policy over msg and, on a violation,
// warns the author and removes the message.
func (b *Bot) moderate(ctx context.Context, msg *discordgo.Message) linkfilter.Decision {
	cfg := b.store.Guild(msg.GuildID)
	decision := b.filter.Decide(linkfilter.MessageFromDiscord(msg), cfg)
	if !decision.Deleted() {
		return decision
	}

	authorID := ""
	if msg.Author != nil {
		authorID = msg.Author.ID
	}
	details := fmt.Sprintf("channel=%s reason=%s", msg.ChannelID, decision.Reason)
	if decision.Domain != "" {
		details += " domain=" + decision.Domain
	}
	b.audit.Log(ctx, audit.LevelWarn, msg.GuildID, authorID, audit.EventMessageRemoved, details)
	b.presenter.Warn(ctx, msg, decision.Warning)
	return decision
}

func (b *Bot) notifyAudit(ctx context.Context, entry audit.Entry) {
	text := fmt.Sprintf("[%s] %s", entry.Level, entry.Event)
	if entry.UserID != "" {
		text += " by <@" + entry.UserID + ">"
	}
	if entry.Details != "" {
		text += ": " + entry.Details
	}
	if _, err := b.api.ChannelMessageSend(b.cfg.AuditChannelID, text, discordgo.WithContext(ctx)); err != nil {
		b.logger.Warn("audit channel send failed", zap.String("channel_id", b.cfg.AuditChannelID), zap.Error(err))
	}
}
