package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ishyv/tx-discord-bot-sub004/guildmodels"
)

func expiredGrant(guildID, member, rule string, expires time.Time) guildmodels.Grant {
	return guildmodels.Grant{
		GuildID:   guildID,
		MemberID:  member,
		RoleID:    testRole,
		RuleName:  rule,
		Kind:      guildmodels.GrantTimed,
		ExpiresAt: &expires,
	}
}

func TestTimedGrantsSweep(t *testing.T) {
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	rule := ageRule(testGuild, "weekly")
	rule.SetDuration(7 * 24 * time.Hour)
	rules := &fakeRules{rules: []guildmodels.Rule{rule}}
	grants := &fakeGrants{grants: []guildmodels.Grant{
		expiredGrant(testGuild, "300000000000000001", "weekly", now.Add(-time.Minute)),
		expiredGrant(testGuild, "300000000000000002", "deleted", now.Add(-time.Hour)),
		expiredGrant(testGuild, "300000000000000003", "weekly", now.Add(time.Hour)),
		expiredGrant(testGuild2, "300000000000000004", "weekly", now.Add(-time.Hour)),
	}}
	svc := newFakeService()
	svc.disabled[testGuild2] = true

	sched := NewTimedGrants(time.Minute, grants, rules, svc)
	sched.now = func() time.Time { return now }
	if !sched.Sweep(context.Background()) {
		t.Fatal("sweep unexpectedly skipped")
	}

	if len(svc.revoked) != 2 {
		t.Fatalf("expected 2 revocations, got %+v", svc.revoked)
	}
	for _, r := range svc.revoked {
		if r.Kind != guildmodels.GrantTimed || r.Rule.RoleID != testRole {
			t.Errorf("unexpected revocation %+v", r)
		}
	}
	synthesized := svc.revoked[1].Rule
	if synthesized.Name != "deleted" || synthesized.Enabled {
		t.Errorf("expected a disabled stand-in for the deleted rule, got %+v", synthesized)
	}
}

func TestTimedGrantsFailureDoesNotAbortSweep(t *testing.T) {
	now := time.Now()
	grants := &fakeGrants{grants: []guildmodels.Grant{
		expiredGrant(testGuild, "300000000000000001", "broken", now.Add(-time.Minute)),
		expiredGrant(testGuild, "300000000000000002", "fine", now.Add(-time.Minute)),
	}}
	svc := newFakeService()
	svc.failRules["broken"] = errors.New("store unavailable")

	sched := NewTimedGrants(time.Minute, grants, &fakeRules{}, svc)
	sched.Sweep(context.Background())
	if len(svc.revoked) != 1 || svc.revoked[0].Rule.Name != "fine" {
		t.Errorf("expected the healthy grant revoked, got %+v", svc.revoked)
	}
}

func TestTimedGrantsSkipsOverlappingSweep(t *testing.T) {
	gate := make(chan struct{})
	grants := &fakeGrants{gate: gate}
	sched := NewTimedGrants(time.Minute, grants, &fakeRules{}, newFakeService())

	done := make(chan bool)
	go func() { done <- sched.Sweep(context.Background()) }()

	deadline := time.Now().Add(time.Second)
	for !sched.running.Load() {
		if time.Now().After(deadline) {
			t.Fatal("first sweep never started")
		}
		time.Sleep(time.Millisecond)
	}
	if sched.Sweep(context.Background()) {
		t.Error("expected overlapping sweep to be skipped")
	}
	close(gate)
	if !<-done {
		t.Error("expected first sweep to run")
	}
	if grants.calls != 1 {
		t.Errorf("expected one listing, got %d", grants.calls)
	}
}

func TestTimedGrantsStopWaitsForSweep(t *testing.T) {
	gate := make(chan struct{})
	grants := &fakeGrants{gate: gate}
	sched := NewTimedGrants(5*time.Millisecond, grants, &fakeRules{}, newFakeService())
	if err := sched.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(time.Second)
	for !sched.running.Load() {
		if time.Now().After(deadline) {
			t.Fatal("no sweep started")
		}
		time.Sleep(time.Millisecond)
	}

	stopped := make(chan struct{})
	go func() {
		sched.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
		t.Fatal("stop returned while a sweep was in flight")
	case <-time.After(20 * time.Millisecond):
	}
	close(gate)
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("stop never returned")
	}
	sched.Stop()
}

func TestTimedGrantsRejectsBadInterval(t *testing.T) {
	sched := NewTimedGrants(0, &fakeGrants{}, &fakeRules{}, newFakeService())
	if err := sched.Start(context.Background()); err == nil {
		t.Error("expected error for zero interval")
	}
}
