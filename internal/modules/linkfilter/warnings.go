package linkfilter

import "fmt"

// Domain templates take the offending domain as their only verb.
var domainTemplates = []string{
	"%s isn't on this server's list of allowed sites. Message removed.",
	"links to %s don't fly here. Stick to the approved domains.",
	"nope, %s is not whitelisted in this channel.",
	"that %s link got swept up. Only approved domains, please.",
}

var needsLinkTemplates = []string{
	"this channel is links only. Drop a link or take the chat elsewhere.",
	"no link, no post. That's the rule in here.",
	"this spot is for sharing links. Talk it over in another channel.",
}

var noLinksTemplates = []string{
	"links aren't allowed in this channel.",
	"keep the links out of here, please.",
	"this is a link-free zone. Your message was removed.",
}

// Pick returns a random template for reason. It returns "" for ReasonNone.
func Pick(rng Picker, reason Reason, domain string) string {
	switch reason {
	case ReasonDomainBlocked:
		return fmt.Sprintf(pickFrom(rng, domainTemplates), domain)
	case ReasonNeedsLink:
		return pickFrom(rng, needsLinkTemplates)
	case ReasonLinkNotAllowed:
		return pickFrom(rng, noLinksTemplates)
	default:
		return ""
	}
}

func pickFrom(rng Picker, pool []string) string {
	if len(pool) == 0 {
		return ""
	}
	idx := rng.Intn(len(pool))
	if idx < 0 || idx >= len(pool) {
		idx = 0
	}
	return pool[idx]
}
