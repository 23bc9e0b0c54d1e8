package autorole

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ishyv/tx-discord-bot-sub004/guildmodels"
)

func TestTallyIncrementDecrementReturnsToAbsence(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, newFakePlatform())
	ctx := context.Background()

	const n = 7
	for i := 1; i <= n; i++ {
		got, err := svc.IncrementReactionTally(ctx, testGuild, testMessage, "🔥", testAuthor)
		if err != nil {
			t.Fatal(err)
		}
		assertMirror(t, svc, store, i)
		if got != i {
			t.Fatalf("expected count %d, got %d", i, got)
		}
	}
	for i := n - 1; i >= 0; i-- {
		got, err := svc.DecrementReactionTally(ctx, testGuild, testMessage, "🔥")
		if err != nil {
			t.Fatal(err)
		}
		if got != i {
			t.Fatalf("expected count %d, got %d", i, got)
		}
		assertMirror(t, svc, store, i)
	}

	//never below zero
	if got, err := svc.DecrementReactionTally(ctx, testGuild, testMessage, "🔥"); err != nil || got != 0 {
		t.Errorf("expected decrement of absent tally to stay at 0, got %d, %v", got, err)
	}
	assertMirror(t, svc, store, 0)
}

func assertMirror(t *testing.T, svc *Service, store *memStore, want int) {
	t.Helper()
	stored, inStore := store.tally(testGuild, testMessage, "🔥")
	mirrored, inMirror := svc.TallyCount(testGuild, testMessage, "🔥")
	if inStore != inMirror || stored != mirrored {
		t.Fatalf("mirror (%d, %v) does not match store (%d, %v)", mirrored, inMirror, stored, inStore)
	}
	if want == 0 && inStore {
		t.Fatalf("expected tally row to be deleted at zero")
	}
	if want > 0 && stored != want {
		t.Fatalf("expected stored count %d, got %d", want, stored)
	}
}

func TestTallyConcurrentIncrements(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, newFakePlatform())
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := svc.IncrementReactionTally(ctx, testGuild, testMessage, "🔥", testAuthor); err != nil {
				t.Errorf("increment %d failed: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	if got, _ := store.tally(testGuild, testMessage, "🔥"); got != n {
		t.Errorf("expected %d, got %d", n, got)
	}
	assertMirror(t, svc, store, n)
}

//slowTallyStore stalls the first increment between its store write and its return, so a
//later increment finishes its write first
type slowTallyStore struct {
	*memStore
	once  sync.Once
	stall time.Duration
}

func (s *slowTallyStore) IncrementTally(ctx context.Context, key guildmodels.ReactionTally, now time.Time) (guildmodels.ReactionTally, error) {
	tally, err := s.memStore.IncrementTally(ctx, key, now)
	s.once.Do(func() { time.Sleep(s.stall) })
	return tally, err
}

func TestTallyMirrorFollowsLastStoreWrite(t *testing.T) {
	store := newMemStore()
	slow := &slowTallyStore{memStore: store, stall: 50 * time.Millisecond}
	svc := NewService(Deps{Rules: store, Grants: store, Tallies: slow, Flags: store, Ledger: store, Platform: newFakePlatform()}, Config{})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.IncrementReactionTally(ctx, testGuild, testMessage, "🔥", testAuthor); err != nil {
				t.Errorf("increment failed: %v", err)
			}
		}()
		time.Sleep(5 * time.Millisecond)
	}
	wg.Wait()
	assertMirror(t, svc, store, 2)
}

func TestTallyConcurrentIncrementsAndDecrements(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, newFakePlatform())
	ctx := context.Background()

	const n = 40
	for i := 0; i < n; i++ {
		if _, err := svc.IncrementReactionTally(ctx, testGuild, testMessage, "🔥", testAuthor); err != nil {
			t.Fatal(err)
		}
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := svc.IncrementReactionTally(ctx, testGuild, testMessage, "🔥", testAuthor); err != nil {
				t.Errorf("increment failed: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := svc.DecrementReactionTally(ctx, testGuild, testMessage, "🔥"); err != nil {
				t.Errorf("decrement failed: %v", err)
			}
		}()
	}
	wg.Wait()
	assertMirror(t, svc, store, n)
}

func TestDrainMessageState(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, newFakePlatform())
	ctx := context.Background()

	for i, emoji := range []string{"🔥", "⭐"} {
		member := fmt.Sprintf("30000000000000000%d", i)
		if err := svc.HandleReactionAdd(ctx, ReactionEvent{
			GuildID: testGuild, MessageID: testMessage, MemberID: member, AuthorID: testAuthor, EmojiKey: emoji,
		}); err != nil {
			t.Fatal(err)
		}
	}

	drained, err := svc.DrainMessageState(ctx, testGuild, testMessage)
	if err != nil {
		t.Fatal(err)
	}
	if len(drained.Presence) != 2 || len(drained.Tallies) != 2 {
		t.Errorf("expected 2 markers and 2 tallies drained, got %d and %d", len(drained.Presence), len(drained.Tallies))
	}
	if _, ok := svc.TallyCount(testGuild, testMessage, "🔥"); ok {
		t.Errorf("expected mirror cleared")
	}
}
