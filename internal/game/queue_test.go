package game

import (
	"context"
	"testing"
	"time"

	"Traitors-Arena/internal/fanout"
	"Traitors-Arena/internal/rules"
)

// slowRules 的阶段预算远大于测试时长，定时器不会在断言前触发。
func slowRules() rules.Rules {
	r := rules.Default()
	r.Match = rules.MatchRules{RosterSize: 4, TraitorCount: 1}
	r.Phases = rules.PhaseRules{
		StartingSeconds:   300,
		MurderSeconds:     300,
		DiscussionSeconds: 300,
		VotingSeconds:     300,
		RevealSeconds:     300,
	}
	return r
}

func TestQueueFormsMatchAtRosterSize(t *testing.T) {
	r := slowRules()
	registry := NewRegistry(time.Minute)
	clock := NewClock(registry, r, nil, nil, nil)
	queue := NewQueue(registry, clock, nil, r.Match)
	ctx := context.Background()

	ids := []string{"p0", "p1", "p2"}
	for _, id := range ids {
		if err := queue.Enqueue(ctx, Seat{ParticipantID: id, Name: id}); err != nil {
			t.Fatalf("Enqueue(%s): %v", id, err)
		}
	}
	if got := queue.Waiting(); got != 3 {
		t.Fatalf("Waiting = %d, want 3", got)
	}
	if registry.Live() != 0 {
		t.Fatal("未凑满座位数不应建局")
	}

	if err := queue.Enqueue(ctx, Seat{ParticipantID: "p3", Name: "p3"}); err != nil {
		t.Fatalf("Enqueue(p3): %v", err)
	}
	if got := queue.Waiting(); got != 0 {
		t.Fatalf("建局后 Waiting = %d, want 0", got)
	}
	if registry.Live() != 1 {
		t.Fatalf("Live = %d, want 1", registry.Live())
	}

	matchID, ok := registry.LiveMatchOf("p0")
	if !ok {
		t.Fatal("p0 应已入座")
	}
	m, err := registry.Get(matchID)
	if err != nil {
		t.Fatalf("Get(%s): %v", matchID, err)
	}
	snap := m.Snapshot()
	if snap.Status != MatchStarting || snap.Phase != PhaseStarting {
		t.Fatalf("新局状态 = (%s, %s), want (starting, starting)", snap.Status, snap.Phase)
	}
	if len(snap.Slots) != 4 {
		t.Fatalf("座位数 = %d, want 4", len(snap.Slots))
	}

	traitors := 0
	for _, slot := range snap.Slots {
		if slot.Status != SlotAlive {
			t.Fatalf("新局座位 %s 状态 = %s, want alive", slot.ParticipantID, slot.Status)
		}
		if slot.Role == RoleTraitor {
			traitors++
		}
	}
	if traitors != r.Match.TraitorCount {
		t.Fatalf("内鬼数 = %d, want %d", traitors, r.Match.TraitorCount)
	}
}

func TestQueueRejectsDuplicates(t *testing.T) {
	r := slowRules()
	registry := NewRegistry(time.Minute)
	clock := NewClock(registry, r, nil, nil, nil)
	queue := NewQueue(registry, clock, nil, r.Match)
	ctx := context.Background()

	if err := queue.Enqueue(ctx, Seat{ParticipantID: "p0"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := queue.Enqueue(ctx, Seat{ParticipantID: "p0"}); err != ErrAlreadyQueued {
		t.Fatalf("重复报名应返回 ErrAlreadyQueued, got %v", err)
	}

	for _, id := range []string{"p1", "p2", "p3"} {
		if err := queue.Enqueue(ctx, Seat{ParticipantID: id}); err != nil {
			t.Fatalf("Enqueue(%s): %v", id, err)
		}
	}
	// 此刻四人已入座。
	if err := queue.Enqueue(ctx, Seat{ParticipantID: "p0"}); err != ErrAlreadyInMatch {
		t.Fatalf("局中报名应返回 ErrAlreadyInMatch, got %v", err)
	}
}

func TestQueueDequeue(t *testing.T) {
	r := slowRules()
	registry := NewRegistry(time.Minute)
	clock := NewClock(registry, r, nil, nil, nil)
	queue := NewQueue(registry, clock, nil, r.Match)
	ctx := context.Background()

	for _, id := range []string{"p0", "p1"} {
		if err := queue.Enqueue(ctx, Seat{ParticipantID: id}); err != nil {
			t.Fatalf("Enqueue(%s): %v", id, err)
		}
	}
	queue.Dequeue("p0")
	queue.Dequeue("ghost") // 不在队列中为空操作
	if got := queue.Waiting(); got != 1 {
		t.Fatalf("Waiting = %d, want 1", got)
	}

	// 退出后可以重新报名。
	if err := queue.Enqueue(ctx, Seat{ParticipantID: "p0"}); err != nil {
		t.Fatalf("重新报名失败: %v", err)
	}
}

func TestQueueDeliversPrivateMatchFound(t *testing.T) {
	r := slowRules()
	registry := NewRegistry(time.Minute)
	hub := fanout.NewHub(16)
	defer hub.Close()
	clock := NewClock(registry, r, hub, nil, nil)
	queue := NewQueue(registry, clock, hub, r.Match)
	ctx := context.Background()

	sub := hub.Subscribe("p0")
	defer hub.Unsubscribe(sub)

	for _, id := range []string{"p0", "p1", "p2", "p3"} {
		if err := queue.Enqueue(ctx, Seat{ParticipantID: id, Name: id}); err != nil {
			t.Fatalf("Enqueue(%s): %v", id, err)
		}
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case delivery := <-sub.Events():
			ev, ok := delivery.Event.(MatchFoundEvent)
			if !ok {
				continue
			}
			if delivery.Audience.Kind != fanout.AudienceParticipant {
				t.Fatalf("建局事件受众 = %s, want participant", delivery.Audience.Kind)
			}
			if ev.Role != RoleTraitor && ev.Role != RoleInnocent {
				t.Fatalf("事件阵营非法: %q", ev.Role)
			}
			if ev.Role == RoleInnocent && len(ev.Teammates) != 0 {
				t.Fatal("无辜者不应收到队友名单")
			}
			if len(ev.Roster) != 4 {
				t.Fatalf("名单长度 = %d, want 4", len(ev.Roster))
			}
			return
		case <-deadline:
			t.Fatal("未收到建局事件")
		}
	}
}
