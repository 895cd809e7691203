package linkfilter

import (
	"math/rand"
	"strings"
	"sync"
	"time"

	"bloz-linkguard/internal/storage"
	"bloz-linkguard/internal/utils"

	"github.com/bwmarrin/discordgo"
)

type Action int

const (
	ActionAllow Action = iota
	ActionDelete
)

func (a Action) String() string {
	if a == ActionDelete {
		return "delete"
	}
	return "allow"
}

type Reason string

const (
	ReasonNone           Reason = ""
	ReasonDomainBlocked  Reason = "domain_blocked"
	ReasonNeedsLink      Reason = "needs_link"
	ReasonLinkNotAllowed Reason = "link_not_allowed"
)

// Decision is the outcome for one message. Warning is only set on delete.
type Decision struct {
	Action  Action
	Reason  Reason
	Domain  string
	Warning string
}

func (d Decision) Deleted() bool {
	return d.Action == ActionDelete
}

// Message is the part of an inbound chat message the filter looks at.
type Message struct {
	GuildID        string
	ChannelID      string
	AuthorID       string
	AuthorIsBot    bool
	AuthorRoleIDs  []string
	Content        string
	AttachmentURLs []string
}

func MessageFromDiscord(msg *discordgo.Message) Message {
	out := Message{
		GuildID:   msg.GuildID,
		ChannelID: msg.ChannelID,
		Content:   strings.TrimSpace(msg.Content),
	}
	if msg.Author != nil {
		out.AuthorID = msg.Author.ID
		out.AuthorIsBot = msg.Author.Bot
	}
	if msg.Member != nil {
		out.AuthorRoleIDs = append(out.AuthorRoleIDs, msg.Member.Roles...)
	}
	for _, attachment := range msg.Attachments {
		if attachment == nil || attachment.URL == "" {
			continue
		}
		out.AttachmentURLs = append(out.AttachmentURLs, attachment.URL)
	}
	return out
}

// Picker is the random source used to choose warning templates.
type Picker interface {
	Intn(n int) int
}

type Engine struct {
	mu  sync.Mutex
	rng Picker
}

func New(rng Picker) *Engine {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Engine{rng: rng}
}

// Decide applies the guild's policy to msg. Rules are checked in order and
// the first one that applies wins.
func (e *Engine) Decide(msg Message, cfg storage.GuildConfig) Decision {
	mode := cfg.ChannelMode(msg.ChannelID)
	if msg.AuthorIsBot || cfg.HasBypassRole(msg.AuthorRoleIDs) || mode == storage.ModeOff {
		return Decision{Action: ActionAllow}
	}

	hasLink := utils.HasLink(msg.Content)
	for _, raw := range msg.AttachmentURLs {
		if utils.HasScheme(raw) {
			hasLink = true
			break
		}
	}

	if hasLink && len(cfg.Whitelist) > 0 {
		for _, host := range Hosts(msg) {
			if !cfg.IsWhitelisted(host) {
				return e.deny(ReasonDomainBlocked, host)
			}
		}
	}

	switch {
	case mode == storage.ModeLinksOnly && !hasLink:
		return e.deny(ReasonNeedsLink, "")
	case mode == storage.ModeNoLinks && hasLink:
		return e.deny(ReasonLinkNotAllowed, "")
	}
	return Decision{Action: ActionAllow}
}

// Hosts returns the distinct hostnames linked from the message text and its
// attachments, in first-seen order.
func Hosts(msg Message) []string {
	seen := make(map[string]struct{})
	var hosts []string
	add := func(host string) {
		if _, ok := seen[host]; ok {
			return
		}
		seen[host] = struct{}{}
		hosts = append(hosts, host)
	}
	for _, host := range utils.ExtractDomains(msg.Content) {
		add(host)
	}
	for _, raw := range msg.AttachmentURLs {
		if host, ok := utils.HostFromURL(raw); ok {
			add(host)
		}
	}
	return hosts
}

func (e *Engine) deny(reason Reason, domain string) Decision {
	e.mu.Lock()
	warning := Pick(e.rng, reason, domain)
	e.mu.Unlock()
	return Decision{Action: ActionDelete, Reason: reason, Domain: domain, Warning: warning}
}
