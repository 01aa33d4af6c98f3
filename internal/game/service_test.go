package game

import (
	"context"
	"testing"
	"time"
)

func TestServiceStateFallsBackToStoredSnapshot(t *testing.T) {
	r := slowRules()
	registry := NewRegistry(time.Minute)
	store := NewMemoryStore()
	clock := NewClock(registry, r, nil, store, nil)
	svc := NewService(registry, nil, clock, store, nil)
	ctx := context.Background()

	snap := Snapshot{
		ID:     "ended-1",
		Status: MatchEnded,
		Round:  3,
		Phase:  PhaseEnded,
		Winner: WinnerTraitors,
		Slots: []SlotSnapshot{
			{ParticipantID: "t1", Role: RoleTraitor, Status: SlotAlive},
			{ParticipantID: "i1", Role: RoleInnocent, Status: SlotMurdered, DeathRound: 2},
		},
	}
	if err := store.SaveSnapshot(ctx, snap); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	// 对局不在注册表时回退到终局快照。
	view, err := svc.State(ctx, "ended-1", Viewer{})
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if view.Winner != WinnerTraitors {
		t.Fatalf("Winner = %q, want traitors", view.Winner)
	}
	if view.Slots[0].Role != RoleTraitor {
		t.Fatal("终局快照应公开全部阵营")
	}

	if _, err := svc.State(ctx, "ghost", Viewer{}); err != ErrMatchNotFound {
		t.Fatalf("未知对局应返回 ErrMatchNotFound, got %v", err)
	}
}

func TestServiceSpectatorCounting(t *testing.T) {
	r := slowRules()
	registry := NewRegistry(time.Minute)
	clock := NewClock(registry, r, nil, nil, nil)
	svc := NewService(registry, nil, clock, nil, nil)
	ctx := context.Background()

	m := &Match{
		ID:     "spec-1",
		Status: MatchActive,
		Round:  1,
		Phase:  PhaseDiscussion,
		Slots: []*Slot{
			{ParticipantID: "p0", Role: RoleTraitor, Status: SlotAlive},
			{ParticipantID: "p1", Role: RoleInnocent, Status: SlotAlive},
		},
	}
	registry.Add(m)

	if got := svc.SpectatorJoin(ctx, m.ID); got != 1 {
		t.Fatalf("SpectatorJoin = %d, want 1", got)
	}
	svc.SpectatorJoin(ctx, m.ID)

	view, err := svc.State(ctx, m.ID, Viewer{})
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if view.SpectatorCount != 2 {
		t.Fatalf("SpectatorCount = %d, want 2", view.SpectatorCount)
	}

	if got := svc.SpectatorLeave(ctx, m.ID); got != 1 {
		t.Fatalf("SpectatorLeave = %d, want 1", got)
	}
	// 计数不下穿零。
	svc.SpectatorLeave(ctx, m.ID)
	if got := svc.SpectatorLeave(ctx, m.ID); got != 0 {
		t.Fatalf("重复离场后计数 = %d, want 0", got)
	}
}

func TestServiceJoinQueueValidation(t *testing.T) {
	r := slowRules()
	registry := NewRegistry(time.Minute)
	clock := NewClock(registry, r, nil, nil, nil)
	queue := NewQueue(registry, clock, nil, r.Match)
	svc := NewService(registry, queue, clock, nil, nil)
	ctx := context.Background()

	if err := svc.JoinQueue(ctx, Seat{ParticipantID: "  "}); err == nil {
		t.Fatal("空白参赛者 ID 应被拒绝")
	}
	if err := svc.JoinQueue(ctx, Seat{ParticipantID: "p0", Name: "p0"}); err != nil {
		t.Fatalf("JoinQueue: %v", err)
	}
	svc.LeaveQueue(ctx, "p0")
	if got := queue.Waiting(); got != 0 {
		t.Fatalf("退出后 Waiting = %d, want 0", got)
	}
}

func TestServiceChatChannels(t *testing.T) {
	r := slowRules()
	registry := NewRegistry(time.Minute)
	store := NewMemoryStore()
	clock := NewClock(registry, r, nil, store, nil)
	svc := NewService(registry, nil, clock, store, nil)
	ctx := context.Background()

	m := &Match{
		ID:     "chat-1",
		Status: MatchActive,
		Round:  1,
		Phase:  PhaseMurder,
		Slots: []*Slot{
			{ParticipantID: "t1", Role: RoleTraitor, Status: SlotAlive},
			{ParticipantID: "i1", Role: RoleInnocent, Status: SlotAlive},
		},
		actions: newActionSet(1, PhaseMurder),
	}
	registry.Add(m)

	// 刺杀阶段只有内鬼能在密谈频道发言。
	if err := svc.SubmitChat(ctx, m.ID, "i1", "hello?"); err != ErrWrongPhase {
		t.Fatalf("无辜者密谈应返回 ErrWrongPhase, got %v", err)
	}
	if err := svc.SubmitChat(ctx, m.ID, "t1", "take i1 tonight"); err != nil {
		t.Fatalf("SubmitChat: %v", err)
	}
	if err := svc.SubmitChat(ctx, m.ID, "t1", "   "); err == nil {
		t.Fatal("空白消息应被拒绝")
	}

	m.mu.Lock()
	m.Phase = PhaseDiscussion
	m.mu.Unlock()
	if err := svc.SubmitChat(ctx, m.ID, "i1", "who saw anything"); err != nil {
		t.Fatalf("SubmitChat: %v", err)
	}

	store.mu.RLock()
	chats := store.chats[m.ID]
	store.mu.RUnlock()
	if len(chats) != 2 {
		t.Fatalf("落库聊天条数 = %d, want 2", len(chats))
	}
	if chats[0].Channel != ChannelTraitors || chats[1].Channel != ChannelMatch {
		t.Fatalf("频道 = (%s, %s), want (traitors, match)", chats[0].Channel, chats[1].Channel)
	}
}
