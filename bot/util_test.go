package bot

import (
	"testing"

	"github.com/bwmarrin/discordgo"
)

func TestFindRole(t *testing.T) {
	roles := []*discordgo.Role{
		{ID: "200000000000000001", Name: "Mods"},
		{ID: "200000000000000002", Name: "Veteran Member"},
		{ID: "200000000000000003", Name: "200000000000000001"},
	}
	tests := []struct {
		in   string
		want string
	}{
		{"<@&200000000000000002>", "200000000000000002"},
		{`"Veteran Member"`, "200000000000000002"},
		{"Mods", "200000000000000001"},
		{"  Mods  ", "200000000000000001"},
		{"200000000000000001", "200000000000000001"},
		{"<@&299999999999999999>", ""},
		{"Veteran Member", ""},
		{"", ""},
	}
	for _, tt := range tests {
		got := findRole(roles, tt.in)
		switch {
		case tt.want == "" && got != nil:
			t.Errorf("%q: expected no role, got %v", tt.in, got.ID)
		case tt.want != "" && (got == nil || got.ID != tt.want):
			t.Errorf("%q: expected %v, got %v", tt.in, tt.want, got)
		}
	}
}
