package autorole

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/ishyv/tx-discord-bot-sub004/guildmodels"
)

//Canonical trigger head tokens, compared after lowercasing and dropping punctuation
var triggerHeads = map[string]guildmodels.TriggerKind{
	"onreactany":                guildmodels.TriggerAnyReaction,
	"onreactspecific":           guildmodels.TriggerSpecificReaction,
	"onauthorreactionthreshold": guildmodels.TriggerReactionCountThreshold,
	"onreputationatleast":       guildmodels.TriggerReputationThreshold,
	"onantiquityatleast":        guildmodels.TriggerMembershipAgeThreshold,
	"onmessagecontains":         guildmodels.TriggerMessageContains,
}

//TriggerSyntax documents the accepted trigger expressions
const TriggerSyntax = "```" + `onReactAny
onReactSpecific <message link or id> <emoji>
onAuthorReactionThreshold <emoji> <count 1-1000>
onReputationAtLeast <reputation>
onAntiquityAtLeast <age, e.g. 12h, 7d, 2w, 3mo, 1y>
onMessageContains <keyword> [keyword...]` + "```"

var customEmojiRegex = regexp.MustCompile(`^<a?:[^:\s]+:(\d+)>$`)

//Message links or bare IDs
var messageRefRegex = regexp.MustCompile(`^(?:https://(?:\w+\.)?discord(?:app)?\.com/channels/\d+/\d+/(\d+)|(\d+))$`)

var ageRegex = regexp.MustCompile(`^(\d+)\s*(h|d|w|mo|y)$`)

//NormalizeEmoji turns custom emoji markup into the emoji's numeric ID. Raw IDs and unicode
//emoji are returned unchanged.
func NormalizeEmoji(s string) string {
	s = strings.TrimSpace(s)
	if m := customEmojiRegex.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return s
}

func normalizeHead(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

func parseMessageRef(s string) (string, bool) {
	m := messageRefRegex.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	id := m[1]
	if id == "" {
		id = m[2]
	}
	return id, guildmodels.IsSnowflake(id)
}

//ParseAge reads a membership age such as "36h", "7d", "2w", "3mo" or "1y". Go duration
//strings are accepted as well.
func ParseAge(s string) (time.Duration, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if m := ageRegex.FindStringSubmatch(s); m != nil {
		n, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return 0, false
		}
		unit := map[string]time.Duration{
			"h":  time.Hour,
			"d":  24 * time.Hour,
			"w":  7 * 24 * time.Hour,
			"mo": 30 * 24 * time.Hour,
			"y":  365 * 24 * time.Hour,
		}[m[2]]
		if n > int64((1<<63-1)/unit) {
			return 0, false
		}
		return time.Duration(n) * unit, true
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, false
	}
	return d, true
}

func normalizeKeywords(args []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, arg := range args {
		for _, kw := range strings.Split(arg, ",") {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw == "" || seen[kw] {
				continue
			}
			seen[kw] = true
			out = append(out, kw)
			if len(out) == guildmodels.MaxKeywords {
				return out
			}
		}
	}
	return out
}

//ParseTrigger reads a trigger expression such as "onAuthorReactionThreshold 🔥 5". It returns
//false for an unknown head token or arguments that fail validation; it never panics on input.
func ParseTrigger(text string) (guildmodels.Trigger, bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return guildmodels.Trigger{}, false
	}
	kind, ok := triggerHeads[normalizeHead(fields[0])]
	if !ok {
		return guildmodels.Trigger{}, false
	}
	args := fields[1:]

	var trigger guildmodels.Trigger
	switch kind {
	case guildmodels.TriggerAnyReaction:
		if len(args) != 0 {
			return guildmodels.Trigger{}, false
		}
		trigger = guildmodels.AnyReaction()
	case guildmodels.TriggerSpecificReaction:
		if len(args) != 2 {
			return guildmodels.Trigger{}, false
		}
		msgID, ok := parseMessageRef(args[0])
		if !ok {
			return guildmodels.Trigger{}, false
		}
		trigger = guildmodels.SpecificReaction(msgID, NormalizeEmoji(args[1]))
	case guildmodels.TriggerReactionCountThreshold:
		if len(args) != 2 {
			return guildmodels.Trigger{}, false
		}
		count, err := strconv.Atoi(args[1])
		if err != nil {
			return guildmodels.Trigger{}, false
		}
		trigger = guildmodels.ReactionCountThreshold(NormalizeEmoji(args[0]), count)
	case guildmodels.TriggerReputationThreshold:
		if len(args) != 1 {
			return guildmodels.Trigger{}, false
		}
		minRep, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return guildmodels.Trigger{}, false
		}
		trigger = guildmodels.ReputationThreshold(minRep)
	case guildmodels.TriggerMembershipAgeThreshold:
		if len(args) != 1 {
			return guildmodels.Trigger{}, false
		}
		age, ok := ParseAge(args[0])
		if !ok {
			return guildmodels.Trigger{}, false
		}
		trigger = guildmodels.MembershipAgeThreshold(age)
	case guildmodels.TriggerMessageContains:
		keywords := normalizeKeywords(args)
		if len(keywords) == 0 {
			return guildmodels.Trigger{}, false
		}
		trigger = guildmodels.MessageContains(keywords)
	}

	if err := trigger.Validate(); err != nil {
		return guildmodels.Trigger{}, false
	}
	return trigger, true
}
