package autorole

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/ishyv/tx-discord-bot-sub004/guildmodels"
)

func TestParseTrigger(t *testing.T) {
	tests := []struct {
		input string
		want  guildmodels.Trigger
		ok    bool
	}{
		{"onAuthorReactionThreshold 🔥 5", guildmodels.ReactionCountThreshold("🔥", 5), true},
		{"onAuthorReactionThreshold 🔥 0", guildmodels.Trigger{}, false},
		{"onAuthorReactionThreshold 🔥 1001", guildmodels.Trigger{}, false},
		{"onAuthorReactionThreshold 🔥 five", guildmodels.Trigger{}, false},
		{"onAuthorReactionThreshold <:pog:123456789012345678> 1000", guildmodels.ReactionCountThreshold("123456789012345678", 1000), true},
		{"onReactAny", guildmodels.AnyReaction(), true},
		{"ON_REACT_ANY", guildmodels.AnyReaction(), true},
		{"onReactAny extra", guildmodels.Trigger{}, false},
		{"onReactSpecific 400000000000000001 🔥", guildmodels.SpecificReaction(testMessage, "🔥"), true},
		{"onReactSpecific https://discord.com/channels/100000000000000001/500000000000000001/400000000000000001 <a:dance:987654321098765432>",
			guildmodels.SpecificReaction(testMessage, "987654321098765432"), true},
		{"onReactSpecific 1234 🔥", guildmodels.Trigger{}, false},
		{"onReactSpecific 400000000000000001", guildmodels.Trigger{}, false},
		{"onReputationAtLeast 0", guildmodels.ReputationThreshold(0), true},
		{"on-reputation-at-least 250", guildmodels.ReputationThreshold(250), true},
		{"onReputationAtLeast -1", guildmodels.Trigger{}, false},
		{"onAntiquityAtLeast 7d", guildmodels.MembershipAgeThreshold(7 * 24 * time.Hour), true},
		{"onAntiquityAtLeast 1h", guildmodels.MembershipAgeThreshold(time.Hour), true},
		{"onAntiquityAtLeast 3mo", guildmodels.MembershipAgeThreshold(90 * 24 * time.Hour), true},
		{"onAntiquityAtLeast 90m", guildmodels.MembershipAgeThreshold(90 * time.Minute), true},
		{"onAntiquityAtLeast 59m", guildmodels.Trigger{}, false},
		{"onAntiquityAtLeast 99999999999999999999y", guildmodels.Trigger{}, false},
		{"onMessageContains Hello, WORLD hello", guildmodels.MessageContains([]string{"hello", "world"}), true},
		{"onMessageContains", guildmodels.Trigger{}, false},
		{"onMessageContains , ,", guildmodels.Trigger{}, false},
		{"onSomethingElse 5", guildmodels.Trigger{}, false},
		{"", guildmodels.Trigger{}, false},
		{"   ", guildmodels.Trigger{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseTrigger(tt.input)
			if ok != tt.ok {
				t.Fatalf("expected ok=%v, got %v (%+v)", tt.ok, ok, got)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestParseTriggerCapsKeywords(t *testing.T) {
	var kws []string
	for i := 0; i < 80; i++ {
		kws = append(kws, "kw"+strings.Repeat("x", i))
	}
	got, ok := ParseTrigger("onMessageContains " + strings.Join(kws, ","))
	if !ok {
		t.Fatal("expected keyword list to parse")
	}
	if n := len(got.MessageContains.Keywords); n != guildmodels.MaxKeywords {
		t.Errorf("expected %d keywords, got %d", guildmodels.MaxKeywords, n)
	}
}

func TestNormalizeEmoji(t *testing.T) {
	tests := map[string]string{
		"<:pepe:555555555555555555>":   "555555555555555555",
		"<a:dance:555555555555555555>": "555555555555555555",
		"555555555555555555":           "555555555555555555",
		"🔥":                            "🔥",
		" 🔥 ":                          "🔥",
		"<:broken>":                    "<:broken>",
	}
	for in, want := range tests {
		if got := NormalizeEmoji(in); got != want {
			t.Errorf("NormalizeEmoji(%q) = %q, want %q", in, got, want)
		}
	}
}
