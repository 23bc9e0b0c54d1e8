package discord

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
)

func TestEmojiKey(t *testing.T) {
	tests := []struct {
		name  string
		emoji *discordgo.Emoji
		want  string
	}{
		{"unicode", &discordgo.Emoji{Name: "🔥"}, "🔥"},
		{"custom", &discordgo.Emoji{ID: "112233445566778899", Name: "blob"}, "112233445566778899"},
		{"nil", nil, ""},
	}
	for _, tt := range tests {
		if got := EmojiKey(tt.emoji); got != tt.want {
			t.Errorf("%v: expected %q, got %q", tt.name, tt.want, got)
		}
	}
}

func TestReactionEventDefersAuthorLookup(t *testing.T) {
	//no platform: building the event must not touch the REST API
	d := &EventSource{}
	e := d.reactionEvent(&discordgo.MessageReaction{
		UserID:    "300000000000000001",
		MessageID: "400000000000000001",
		ChannelID: "500000000000000001",
		GuildID:   "100000000000000001",
		Emoji:     discordgo.Emoji{Name: "🔥"},
	}, false)
	if e.AuthorID != "" {
		t.Errorf("expected no author before lookup, got %q", e.AuthorID)
	}
	if e.AuthorLookup == nil {
		t.Errorf("expected a deferred author lookup")
	}
	if e.EmojiKey != "🔥" || e.MessageID != "400000000000000001" {
		t.Errorf("unexpected event %+v", e)
	}
}

func TestToMembersSortsAndSkipsMissingUsers(t *testing.T) {
	joined := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	page := []*discordgo.Member{
		{User: &discordgo.User{ID: "100000000000000002"}, JoinedAt: joined},
		{User: nil},
		{User: &discordgo.User{ID: "99999999999999999", Bot: true}, JoinedAt: joined},
		nil,
		{User: &discordgo.User{ID: "100000000000000001"}, JoinedAt: joined},
	}
	members := toMembers(page)
	want := []string{"99999999999999999", "100000000000000001", "100000000000000002"}
	if len(members) != len(want) {
		t.Fatalf("expected %d members, got %d", len(want), len(members))
	}
	for i, id := range want {
		if members[i].ID != id {
			t.Errorf("position %d: expected %v, got %v", i, id, members[i].ID)
		}
		if !members[i].JoinedAt.Equal(joined) {
			t.Errorf("member %v lost its join time", members[i].ID)
		}
	}
	if !members[0].Bot || members[1].Bot {
		t.Error("bot flag not carried over")
	}
}

func TestSnowflakeLess(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"9", "10", true},
		{"10", "9", false},
		{"100000000000000001", "100000000000000002", true},
		{"100000000000000002", "100000000000000002", false},
	}
	for _, tt := range tests {
		if got := snowflakeLess(tt.a, tt.b); got != tt.want {
			t.Errorf("snowflakeLess(%v, %v): expected %v, got %v", tt.a, tt.b, tt.want, got)
		}
	}
}

func TestCountsAsSuccess(t *testing.T) {
	restErr := func(status int) error {
		return &discordgo.RESTError{Response: &http.Response{StatusCode: status}}
	}
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"success", nil, true},
		{"forbidden", restErr(http.StatusForbidden), true},
		{"unknown member", restErr(http.StatusNotFound), true},
		{"server error", restErr(http.StatusBadGateway), false},
		{"transport", errors.New("connection reset"), false},
	}
	for _, tt := range tests {
		if got := countsAsSuccess(tt.err); got != tt.want {
			t.Errorf("%v: expected %v, got %v", tt.name, tt.want, got)
		}
	}
}
