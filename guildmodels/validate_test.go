package guildmodels

import (
	"testing"
	"time"
)

func TestIsSnowflake(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"123456789012345678", true},
		{"12345678901234567", true},
		{"12345678901234567890", true},
		{"1234", false},
		{"123456789012345678901", false},
		{"12345678901234567a", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsSnowflake(tt.in); got != tt.want {
			t.Errorf("IsSnowflake(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestValidateRule(t *testing.T) {
	valid := func() Rule {
		return Rule{
			GuildID: "100000000000000001",
			Name:    "helpers",
			Trigger: AnyReaction(),
			RoleID:  "200000000000000002",
			Enabled: true,
		}
	}

	tests := []struct {
		name    string
		mutate  func(r *Rule)
		wantErr bool
	}{
		{"valid live rule", func(r *Rule) {}, false},
		{"valid timed rule", func(r *Rule) { r.SetDuration(time.Hour) }, false},
		{"bad guild id", func(r *Rule) { r.GuildID = "guild" }, true},
		{"bad role id", func(r *Rule) { r.RoleID = "12" }, true},
		{"uppercase name", func(r *Rule) { r.Name = "Helpers" }, true},
		{"empty name", func(r *Rule) { r.Name = "" }, true},
		{"name too long", func(r *Rule) { r.Name = "abcdefghijklmnopqrstuvwxyz0123456" }, true},
		{"bad creator", func(r *Rule) { r.CreatedBy = "me" }, true},
		{"count out of range", func(r *Rule) { r.Trigger = ReactionCountThreshold("🔥", 1001) }, true},
		{"age too short", func(r *Rule) { r.Trigger = MembershipAgeThreshold(time.Minute) }, true},
		{"negative reputation", func(r *Rule) { r.Trigger = ReputationThreshold(-1) }, true},
		{"mismatched payload", func(r *Rule) {
			r.Trigger = AnyReaction()
			r.Trigger.Reputation = &ReputationArgs{MinReputation: 3}
		}, true},
		{"unknown kind", func(r *Rule) { r.Trigger = Trigger{Kind: "whatever"} }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid()
			tt.mutate(&r)
			err := ValidateRule(&r)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateRule() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRuleGrantKind(t *testing.T) {
	r := Rule{}
	if r.GrantKind() != GrantLive {
		t.Errorf("rule without duration should be LIVE")
	}
	r.SetDuration(90 * time.Minute)
	if r.GrantKind() != GrantTimed || r.Duration() != 90*time.Minute {
		t.Errorf("rule with duration should be TIMED for 90m, got %v %v", r.GrantKind(), r.Duration())
	}
	r.SetDuration(0)
	if r.GrantKind() != GrantLive {
		t.Errorf("zero duration should make the rule LIVE again")
	}
}

func TestFeatureEnabled(t *testing.T) {
	var missing *DiscordGuild
	if !missing.FeatureEnabled(FeatureAutorole, true) {
		t.Errorf("nil guild should fall back to default")
	}
	g := DefaultGuild("100000000000000001")
	if g.FeatureEnabled(FeatureAutorole, false) {
		t.Errorf("unset feature should fall back to default")
	}
	g.Features[FeatureAutorole] = false
	if g.FeatureEnabled(FeatureAutorole, true) {
		t.Errorf("explicitly disabled feature should stay disabled")
	}
}
