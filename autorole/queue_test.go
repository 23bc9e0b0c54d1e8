package autorole

import (
	"errors"
	"testing"
	"time"
)

func TestRoleQueuePreservesGuildOrder(t *testing.T) {
	platform := newFakePlatform()
	q := NewRoleQueue(platform)

	var want []string
	for i := 0; i < 50; i++ {
		if i%2 == 0 {
			q.EnqueueGrant(testGuild, testMember, testRole, "flap")
			want = append(want, "add")
		} else {
			q.EnqueueRevoke(testGuild, testMember, testRole, "flap")
			want = append(want, "remove")
		}
	}
	q.Wait()

	calls := platform.Calls()
	if len(calls) != len(want) {
		t.Fatalf("expected %d calls, got %d", len(want), len(calls))
	}
	for i, c := range calls {
		if c.Op != want[i] {
			t.Fatalf("call %d: expected %v, got %v", i, want[i], c.Op)
		}
	}
	if q.Pending(testGuild) != 0 {
		t.Errorf("expected empty lane after drain")
	}
}

func TestRoleQueueRejectsMalformedIDs(t *testing.T) {
	platform := newFakePlatform()
	q := NewRoleQueue(platform)

	tests := []struct {
		name                    string
		guild, member, roleName string
	}{
		{"bad guild", "guild", testMember, testRole},
		{"bad member", testGuild, "12345", testRole},
		{"bad role", testGuild, testMember, "<@&role>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			select {
			case <-q.EnqueueGrant(tt.guild, tt.member, tt.roleName, "test"):
			case <-time.After(time.Second):
				t.Fatal("future never resolved")
			}
		})
	}
	if n := len(platform.Calls()); n != 0 {
		t.Errorf("expected no platform calls, got %d", n)
	}
}

func TestRoleQueueSwallowsFailures(t *testing.T) {
	platform := newFakePlatform()
	platform.fail[testMember] = errors.New("missing permissions")
	q := NewRoleQueue(platform)

	first := q.EnqueueGrant(testGuild, testMember, testRole, "test")
	second := q.EnqueueGrant(testGuild, testMember2, testRole, "test")
	<-first
	<-second

	if n := platform.count("add"); n != 2 {
		t.Errorf("expected both adds attempted, got %d", n)
	}
}

func TestRoleQueueGuildsRunInParallel(t *testing.T) {
	platform := newFakePlatform()
	gate := make(chan struct{})
	platform.gate[testGuild] = gate
	q := NewRoleQueue(platform)

	blocked := q.EnqueueGrant(testGuild, testMember, testRole, "slow")
	select {
	case <-q.EnqueueGrant(testGuild2, testMember, testRole, "fast"):
	case <-time.After(time.Second):
		t.Fatal("second guild was blocked by the first")
	}
	close(gate)
	<-blocked
	q.Wait()
}
