package bot

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"bloz-linkguard/internal/config"
	"bloz-linkguard/internal/modules/audit"
	"bloz-linkguard/internal/modules/linkfilter"
	"bloz-linkguard/internal/storage"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentReply struct {
	channelID string
	content   string
	reference *discordgo.MessageReference
}

type fakeAPI struct {
	mu        sync.Mutex
	replies   []sentReply
	sent      []string
	deleted   []string
	history   []*discordgo.Message
	replyErr  error
	deleteErr error
}

func (f *fakeAPI) ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, channelID+":"+content)
	return &discordgo.Message{ID: "sent", ChannelID: channelID, Content: content}, nil
}

func (f *fakeAPI) ChannelMessageSendReply(channelID, content string, reference *discordgo.MessageReference, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.replyErr != nil {
		return nil, f.replyErr
	}
	f.replies = append(f.replies, sentReply{channelID: channelID, content: content, reference: reference})
	return &discordgo.Message{ID: "reply", ChannelID: channelID, Content: content}, nil
}

func (f *fakeAPI) ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, messageID)
	return nil
}

func (f *fakeAPI) ChannelMessages(channelID string, limit int, beforeID, afterID, aroundID string, options ...discordgo.RequestOption) ([]*discordgo.Message, error) {
	if limit < len(f.history) {
		return f.history[:limit], nil
	}
	return f.history, nil
}

type fakeTimer struct{ stopped bool }

func (t *fakeTimer) Stop() bool {
	t.stopped = true
	return true
}

type fakeClock struct {
	delays []time.Duration
	funcs  []func()
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.delays = append(c.delays, d)
	c.funcs = append(c.funcs, f)
	return &fakeTimer{}
}

func (c *fakeClock) fire() {
	pending := c.funcs
	c.funcs = nil
	for _, f := range pending {
		f()
	}
}

type firstPicker struct{}

func (firstPicker) Intn(int) int { return 0 }

func newTestBot(t *testing.T, api *fakeAPI) (*Bot, *fakeClock) {
	t.Helper()
	cfg := config.DefaultConfig()
	store := storage.New(filepath.Join(t.TempDir(), "data.json"), nil)
	b := newBot(cfg, nil, store, audit.NewLogger(nil), api)
	b.filter = linkfilter.New(firstPicker{})
	clock := &fakeClock{}
	b.presenter.WithClock(clock)
	return b, clock
}

func testInvocation() invocation {
	return invocation{guildID: "g1", channelID: "c1", userID: "u1"}
}

func strOpt(name, value string) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{Name: name, Type: discordgo.ApplicationCommandOptionString, Value: value}
}

func command(name string, options ...*discordgo.ApplicationCommandInteractionDataOption) discordgo.ApplicationCommandInteractionData {
	return discordgo.ApplicationCommandInteractionData{Name: name, Options: options}
}

func modeSet(mode string, extra ...*discordgo.ApplicationCommandInteractionDataOption) discordgo.ApplicationCommandInteractionData {
	sub := &discordgo.ApplicationCommandInteractionDataOption{
		Name:    "set",
		Type:    discordgo.ApplicationCommandOptionSubCommand,
		Options: append([]*discordgo.ApplicationCommandInteractionDataOption{strOpt("mode", mode)}, extra...),
	}
	return command("mode", sub)
}

func TestModeSetDefaultsToInvokingChannel(t *testing.T) {
	b, _ := newTestBot(t, &fakeAPI{})

	out, err := b.runCommand(context.Background(), testInvocation(), modeSet("no-links"))
	require.NoError(t, err)
	assert.Equal(t, "Mode for <#c1> set to **no-links**.", out)
	assert.Equal(t, storage.ModeNoLinks, b.store.Guild("g1").ChannelMode("c1"))

	channel := &discordgo.ApplicationCommandInteractionDataOption{Name: "channel", Type: discordgo.ApplicationCommandOptionChannel, Value: "c9"}
	out, err = b.runCommand(context.Background(), testInvocation(), modeSet("links-only", channel))
	require.NoError(t, err)
	assert.Equal(t, "Mode for <#c9> set to **links-only**.", out)

	reloaded := storage.New(b.store.Path(), nil)
	assert.Equal(t, storage.ModeLinksOnly, reloaded.Guild("g1").ChannelMode("c9"))
}

func TestModeSetRejectsUnknownMode(t *testing.T) {
	b, _ := newTestBot(t, &fakeAPI{})
	out, err := b.runCommand(context.Background(), testInvocation(), modeSet("strict"))
	require.NoError(t, err)
	assert.Equal(t, "Invalid mode.", out)
}

func TestModeView(t *testing.T) {
	b, _ := newTestBot(t, &fakeAPI{})
	view := &discordgo.ApplicationCommandInteractionDataOption{Name: "view", Type: discordgo.ApplicationCommandOptionSubCommand}

	out, err := b.runCommand(context.Background(), testInvocation(), command("mode", view))
	require.NoError(t, err)
	assert.Equal(t, "Mode for <#c1> is **off**.", out)
}

func TestWhitelistCommand(t *testing.T) {
	b, _ := newTestBot(t, &fakeAPI{})
	ctx := context.Background()
	run := func(options ...*discordgo.ApplicationCommandInteractionDataOption) string {
		out, err := b.runCommand(ctx, testInvocation(), command("whitelist", options...))
		require.NoError(t, err)
		return out
	}

	assert.Equal(t, "Added **youtube.com** to whitelist.", run(strOpt("action", "add"), strOpt("domain", "https://www.YouTube.com/watch?v=1")))
	assert.Equal(t, "**youtube.com** is already whitelisted.", run(strOpt("action", "add"), strOpt("domain", "youtube.com")))
	assert.Equal(t, "Provide a domain like `youtube.com`.", run(strOpt("action", "add")))
	run(strOpt("action", "add"), strOpt("domain", "vimeo.com"))
	assert.Equal(t, "**Allowed domains:**\n• youtube.com\n• vimeo.com", run(strOpt("action", "list")))
	assert.Equal(t, "Removed **vimeo.com** from whitelist.", run(strOpt("action", "remove"), strOpt("domain", "vimeo.com")))
	assert.Equal(t, "Whitelist cleared.", run(strOpt("action", "clear")))
	assert.Equal(t, "**Allowed domains:**\n(empty)", run(strOpt("action", "list")))
}

func TestBypassCommand(t *testing.T) {
	b, _ := newTestBot(t, &fakeAPI{})
	ctx := context.Background()
	role := &discordgo.ApplicationCommandInteractionDataOption{Name: "role", Type: discordgo.ApplicationCommandOptionRole, Value: "r1"}

	out, err := b.runCommand(ctx, testInvocation(), command("bypass", strOpt("action", "add"), role))
	require.NoError(t, err)
	assert.Equal(t, "Added bypass role: <@&r1>.", out)

	out, _ = b.runCommand(ctx, testInvocation(), command("bypass", strOpt("action", "list")))
	assert.Equal(t, "**Bypass roles:**\n• <@&r1>", out)

	out, _ = b.runCommand(ctx, testInvocation(), command("bypass", strOpt("action", "remove")))
	assert.Equal(t, "Pick a role to remove.", out)

	out, _ = b.runCommand(ctx, testInvocation(), command("bypass", strOpt("action", "clear")))
	assert.Equal(t, "Bypass roles cleared.", out)
	assert.Empty(t, b.store.Guild("g1").BypassRoles)
}

func TestSettingsText(t *testing.T) {
	b, _ := newTestBot(t, &fakeAPI{})
	assert.Equal(t, "**Modes:**\n(none)\n**Whitelist:** (empty)\n**Bypass roles:** (none)", b.settingsText("g1"))

	_, _ = b.store.Update("g1", func(cfg *storage.GuildConfig) {
		cfg.SetChannelMode("c2", storage.ModeNoLinks)
		cfg.SetChannelMode("c1", storage.ModeLinksOnly)
		cfg.AddDomain("a.com")
		cfg.AddDomain("b.com")
		cfg.AddBypassRole("r1")
	})
	want := "**Modes:**\n• <#c1> → **links-only**\n• <#c2> → **no-links**\n**Whitelist:** a.com, b.com\n**Bypass roles:** <@&r1>"
	assert.Equal(t, want, b.settingsText("g1"))
}

func TestTestCommand(t *testing.T) {
	b, _ := newTestBot(t, &fakeAPI{})
	out, err := b.runCommand(context.Background(), testInvocation(), command("test", strOpt("text", "see https://www.example.com/x and https://a.io")))
	require.NoError(t, err)
	assert.Equal(t, "Has URL: **yes**\nDomains: example.com, a.io", out)

	assert.Equal(t, "Has URL: **no**\nDomains: (none)", testText("no links here"))
	assert.Equal(t, "Has URL: **yes**\nDomains: (none)", testText("check example.com"))
}

func TestUnknownCommandErrors(t *testing.T) {
	b, _ := newTestBot(t, &fakeAPI{})
	_, err := b.runCommand(context.Background(), testInvocation(), command("nope"))
	require.Error(t, err)
}

func TestModerateWarnsAndRetracts(t *testing.T) {
	api := &fakeAPI{}
	b, clock := newTestBot(t, api)
	_, _ = b.store.Update("g1", func(cfg *storage.GuildConfig) { cfg.SetChannelMode("c1", storage.ModeNoLinks) })

	msg := &discordgo.Message{ID: "m1", GuildID: "g1", ChannelID: "c1", Content: "https://x.com", Author: &discordgo.User{ID: "u1"}}
	decision := b.moderate(context.Background(), msg)
	require.True(t, decision.Deleted())

	require.Len(t, api.replies, 1)
	assert.Equal(t, "Bloz: "+decision.Warning, api.replies[0].content)
	assert.Equal(t, "m1", api.replies[0].reference.MessageID)
	assert.Equal(t, []string{"m1"}, api.deleted)
	require.Equal(t, []time.Duration{6 * time.Second}, clock.delays)

	clock.fire()
	assert.Equal(t, []string{"m1", "reply"}, api.deleted)
}

func TestModerateAllowsCompliantMessage(t *testing.T) {
	api := &fakeAPI{}
	b, clock := newTestBot(t, api)
	_, _ = b.store.Update("g1", func(cfg *storage.GuildConfig) { cfg.SetChannelMode("c1", storage.ModeLinksOnly) })

	msg := &discordgo.Message{ID: "m1", GuildID: "g1", ChannelID: "c1", Content: "https://x.com", Author: &discordgo.User{ID: "u1"}}
	assert.False(t, b.moderate(context.Background(), msg).Deleted())
	assert.Empty(t, api.replies)
	assert.Empty(t, api.deleted)
	assert.Empty(t, clock.delays)
}

func TestWarnDeletesOriginalWhenReplyFails(t *testing.T) {
	api := &fakeAPI{replyErr: errors.New("missing access")}
	b, clock := newTestBot(t, api)

	b.presenter.Warn(context.Background(), &discordgo.Message{ID: "m1", ChannelID: "c1"}, "nope")
	assert.Equal(t, []string{"m1"}, api.deleted)
	assert.Empty(t, clock.delays)
}

func TestIsExpectedRESTError(t *testing.T) {
	forbidden := &discordgo.RESTError{Response: &http.Response{StatusCode: http.StatusForbidden}}
	serverErr := &discordgo.RESTError{Response: &http.Response{StatusCode: http.StatusInternalServerError}}

	assert.True(t, isExpectedRESTError(forbidden))
	assert.False(t, isExpectedRESTError(serverErr))
	assert.False(t, isExpectedRESTError(errors.New("plain")))
}

func TestRunCleanup(t *testing.T) {
	api := &fakeAPI{history: []*discordgo.Message{
		{ID: "m1", Content: "https://youtube.com/watch", Author: &discordgo.User{ID: "u1"}},
		{ID: "m2", Content: "chatter", Author: &discordgo.User{ID: "u2"}},
		{ID: "m3", Content: "https://spam.net", Author: &discordgo.User{ID: "u3"}},
	}}
	b, _ := newTestBot(t, api)
	_, _ = b.store.Update("g1", func(cfg *storage.GuildConfig) { cfg.AddDomain("youtube.com") })

	out := b.runCleanup(context.Background(), testInvocation(), 500)
	assert.Equal(t, "Scanned 3 messages, deleted **2**.", out)
	assert.Equal(t, []string{"m2", "m3"}, api.deleted)
}

func TestAuditChannelNotifier(t *testing.T) {
	api := &fakeAPI{}
	cfg := config.DefaultConfig()
	cfg.AuditChannelID = "log"
	auditLogger := audit.NewLogger(nil)
	newBot(cfg, nil, storage.New(filepath.Join(t.TempDir(), "data.json"), nil), auditLogger, api)

	auditLogger.Log(context.Background(), audit.LevelInfo, "g1", "u1", audit.EventConfigChanged, "whitelist clear")
	assert.Equal(t, []string{"log:[INFO] config_changed by <@u1>: whitelist clear"}, api.sent)
}

func TestCommandDefinitions(t *testing.T) {
	names := map[string]bool{}
	for _, cmd := range commandDefinitions() {
		names[cmd.Name] = true
		require.NotNil(t, cmd.DefaultMemberPermissions, cmd.Name)
	}
	for _, name := range []string{"mode", "whitelist", "bypass", "settings", "test", "cleanup"} {
		assert.True(t, names[name], name)
	}
}
