package economy

import (
	"context"
	"testing"
	"time"

	"Traitors-Arena/internal/game"
	"Traitors-Arena/internal/participant"
	"Traitors-Arena/internal/rules"
)

func testRules() rules.Rules {
	r := rules.Default()
	r.Match = rules.MatchRules{RosterSize: 4, TraitorCount: 2}
	r.Economy = rules.EconomyRules{
		PointPool:       1000,
		PredictionAward: 50,
		BaseRating:      1200,
		EloK:            32,
	}
	return r
}

func newEconomyFixture(t *testing.T) (*Service, *MemoryStore, *participant.MemoryStore, *game.Registry) {
	t.Helper()
	store := NewMemoryStore()
	profiles := participant.NewMemoryStore()
	registry := game.NewRegistry(time.Minute)
	svc := NewService(store, profiles, registry, testRules())
	return svc, store, profiles, registry
}

// endedSnapshot 是一场无辜者获胜的终局:两名内鬼均被放逐,
// i1 存活,i2 遇害。
func endedSnapshot() game.Snapshot {
	return game.Snapshot{
		ID:     "m-1",
		Status: game.MatchEnded,
		Round:  3,
		Phase:  game.PhaseEnded,
		Winner: game.WinnerInnocents,
		Slots: []game.SlotSnapshot{
			{ParticipantID: "t1", Role: game.RoleTraitor, Status: game.SlotBanished, DeathRound: 1},
			{ParticipantID: "t2", Role: game.RoleTraitor, Status: game.SlotBanished, DeathRound: 3},
			{ParticipantID: "i1", Role: game.RoleInnocent, Status: game.SlotAlive},
			{ParticipantID: "i2", Role: game.RoleInnocent, Status: game.SlotMurdered, DeathRound: 2},
		},
	}
}

func mustGet(t *testing.T, profiles *participant.MemoryStore, id string) *participant.Participant {
	t.Helper()
	p, err := profiles.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get(%s): %v", id, err)
	}
	return p
}

func TestSettleAppliesEntries(t *testing.T) {
	svc, store, profiles, _ := newEconomyFixture(t)
	ctx := context.Background()

	// i1 与 t1 预先注册,其余座位结算时自动建档。
	for _, id := range []string{"i1", "t1"} {
		if err := profiles.Create(ctx, &participant.Participant{ID: id, Name: id, Rating: 1200}); err != nil {
			t.Fatalf("Create(%s): %v", id, err)
		}
	}

	if err := svc.Settle(ctx, endedSnapshot()); err != nil {
		t.Fatalf("Settle: %v", err)
	}

	// 全员同分起步,期望分恰为 0.5:胜方 +16,负方 -16。
	i1 := mustGet(t, profiles, "i1")
	if i1.Rating != 1216 {
		t.Fatalf("i1 评分 = %d, want 1216", i1.Rating)
	}
	// 唯一存活的胜者独享奖池。
	if i1.UnclaimedPoints != 1000 {
		t.Fatalf("i1 积分 = %d, want 1000", i1.UnclaimedPoints)
	}
	if i1.GamesPlayed != 1 || i1.GamesWon != 1 || i1.InnocentWins != 1 {
		t.Fatalf("i1 统计 = %+v", i1)
	}
	if i1.CurrentStreak != 1 || i1.BestStreak != 1 {
		t.Fatalf("i1 连胜 = (%d, %d), want (1, 1)", i1.CurrentStreak, i1.BestStreak)
	}

	// 胜而不存活:评分照涨,奖池无份。
	i2 := mustGet(t, profiles, "i2")
	if i2.Rating != 1216 || i2.UnclaimedPoints != 0 {
		t.Fatalf("i2 = (rating %d, points %d), want (1216, 0)", i2.Rating, i2.UnclaimedPoints)
	}

	t1 := mustGet(t, profiles, "t1")
	if t1.Rating != 1184 || t1.GamesWon != 0 {
		t.Fatalf("t1 = (rating %d, won %d), want (1184, 0)", t1.Rating, t1.GamesWon)
	}
	if t1.CurrentStreak != 0 {
		t.Fatalf("t1 连胜 = %d, want 0", t1.CurrentStreak)
	}

	// 未注册座位按基准分建档。
	t2 := mustGet(t, profiles, "t2")
	if t2.Rating != 1184 || t2.GamesPlayed != 1 {
		t.Fatalf("t2 = (rating %d, played %d), want (1184, 1)", t2.Rating, t2.GamesPlayed)
	}

	if done, _ := store.Settled(ctx, "m-1"); !done {
		t.Fatal("结算后应有对局级标记")
	}
}

func TestSettleIsIdempotent(t *testing.T) {
	svc, _, profiles, _ := newEconomyFixture(t)
	ctx := context.Background()

	snap := endedSnapshot()
	if err := svc.Settle(ctx, snap); err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if err := svc.Settle(ctx, snap); err != nil {
		t.Fatalf("重复 Settle: %v", err)
	}

	i1 := mustGet(t, profiles, "i1")
	if i1.GamesPlayed != 1 {
		t.Fatalf("重复结算后场次 = %d, want 1", i1.GamesPlayed)
	}
	if i1.UnclaimedPoints != 1000 {
		t.Fatalf("重复结算后积分 = %d, want 1000", i1.UnclaimedPoints)
	}
}

func TestSettleRejectsLiveMatch(t *testing.T) {
	svc, _, _, _ := newEconomyFixture(t)
	snap := endedSnapshot()
	snap.Status = game.MatchActive
	if err := svc.Settle(context.Background(), snap); err == nil {
		t.Fatal("未终局的快照应被拒绝")
	}
}

func TestSettleDrawIsRatingNeutral(t *testing.T) {
	svc, _, profiles, _ := newEconomyFixture(t)
	ctx := context.Background()

	snap := endedSnapshot()
	snap.Winner = game.WinnerNone
	for i := range snap.Slots {
		snap.Slots[i].Status = game.SlotMurdered
	}

	if err := svc.Settle(ctx, snap); err != nil {
		t.Fatalf("Settle: %v", err)
	}

	// 平局按 0.5 计分,同分对局评分不动;无人存活则奖池作废。
	for _, id := range []string{"t1", "t2", "i1", "i2"} {
		p := mustGet(t, profiles, id)
		if p.Rating != 1200 {
			t.Fatalf("%s 评分 = %d, want 1200", id, p.Rating)
		}
		if p.UnclaimedPoints != 0 {
			t.Fatalf("%s 积分 = %d, want 0", id, p.UnclaimedPoints)
		}
		if p.GamesPlayed != 1 || p.GamesWon != 0 {
			t.Fatalf("%s 统计 = %+v", id, p)
		}
	}
}

func TestSettleResetsStreakOnDraw(t *testing.T) {
	svc, _, profiles, _ := newEconomyFixture(t)
	ctx := context.Background()

	if err := profiles.Create(ctx, &participant.Participant{
		ID: "i1", Rating: 1200, CurrentStreak: 3, BestStreak: 3,
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	snap := endedSnapshot()
	snap.Winner = game.WinnerNone
	if err := svc.Settle(ctx, snap); err != nil {
		t.Fatalf("Settle: %v", err)
	}

	// 无胜方同样不算胜,连胜清零;历史最佳保留。
	p := mustGet(t, profiles, "i1")
	if p.CurrentStreak != 0 {
		t.Fatalf("无胜方收场后连胜 = %d, want 0", p.CurrentStreak)
	}
	if p.BestStreak != 3 {
		t.Fatalf("历史最佳连胜 = %d, want 3", p.BestStreak)
	}
}

func TestSettleEloFavorsUnderdog(t *testing.T) {
	svc, store, profiles, _ := newEconomyFixture(t)
	ctx := context.Background()

	if err := profiles.Create(ctx, &participant.Participant{ID: "i1", Rating: 1400}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	snap := endedSnapshot()
	snap.Slots[3].Status = game.SlotAlive // i2 也存活
	if err := svc.Settle(ctx, snap); err != nil {
		t.Fatalf("Settle: %v", err)
	}

	high := store.entries[entryKey{matchID: "m-1", participantID: "i1"}]
	low := store.entries[entryKey{matchID: "m-1", participantID: "i2"}]
	if high.RatingDelta <= 0 || low.RatingDelta <= 0 {
		t.Fatalf("胜方增量应为正, got (%d, %d)", high.RatingDelta, low.RatingDelta)
	}
	// 高分选手击败低分对手的收益更小。
	if high.RatingDelta >= low.RatingDelta {
		t.Fatalf("高分胜者增量 %d 应小于低分胜者 %d", high.RatingDelta, low.RatingDelta)
	}
	for _, id := range []string{"t1", "t2"} {
		entry := store.entries[entryKey{matchID: "m-1", participantID: id}]
		if entry.RatingDelta >= 0 {
			t.Fatalf("%s 的评分增量应为负, got %d", id, entry.RatingDelta)
		}
	}

	// 两名存活胜者平分奖池。
	if high.Points != 500 || low.Points != 500 {
		t.Fatalf("奖池分配 = (%d, %d), want (500, 500)", high.Points, low.Points)
	}
}

func TestSettleGrantsAchievementsOnce(t *testing.T) {
	svc, store, _, _ := newEconomyFixture(t)
	ctx := context.Background()

	if err := svc.Settle(ctx, endedSnapshot()); err != nil {
		t.Fatalf("Settle: %v", err)
	}

	grants, err := store.AchievementsOf(ctx, "i1")
	if err != nil {
		t.Fatalf("AchievementsOf: %v", err)
	}
	// 首局获胜解锁 初次登场 与 首胜。
	want := map[string]bool{"first-blood": false, "winner": false}
	for _, grant := range grants {
		if _, ok := want[grant.AchievementID]; ok {
			want[grant.AchievementID] = true
		}
	}
	for id, seen := range want {
		if !seen {
			t.Fatalf("成就 %s 未解锁", id)
		}
	}

	// 第二场结算不应重复解锁。
	snap := endedSnapshot()
	snap.ID = "m-2"
	if err := svc.Settle(ctx, snap); err != nil {
		t.Fatalf("Settle(m-2): %v", err)
	}
	again, _ := store.AchievementsOf(ctx, "i1")
	counts := make(map[string]int)
	for _, grant := range again {
		counts[grant.AchievementID]++
	}
	for id, n := range counts {
		if n != 1 {
			t.Fatalf("成就 %s 解锁了 %d 次", id, n)
		}
	}
}

func TestSettleScoresPredictions(t *testing.T) {
	svc, store, profiles, registry := newEconomyFixture(t)
	ctx := context.Background()

	for _, id := range []string{"viewer-1", "viewer-2"} {
		if err := profiles.Create(ctx, &participant.Participant{ID: id, Rating: 1200}); err != nil {
			t.Fatalf("Create(%s): %v", id, err)
		}
	}

	m := liveMatch("m-1")
	registry.Add(m)

	if _, err := svc.SubmitPrediction(ctx, "m-1", "viewer-1", []string{"t1", "t2"}); err != nil {
		t.Fatalf("SubmitPrediction: %v", err)
	}
	if _, err := svc.SubmitPrediction(ctx, "m-1", "viewer-2", []string{"t1", "i1"}); err != nil {
		t.Fatalf("SubmitPrediction: %v", err)
	}

	if err := svc.Settle(ctx, endedSnapshot()); err != nil {
		t.Fatalf("Settle: %v", err)
	}

	// 押中完整名单才得奖。
	if got := mustGet(t, profiles, "viewer-1").UnclaimedPoints; got != 50 {
		t.Fatalf("viewer-1 奖励 = %d, want 50", got)
	}
	if got := mustGet(t, profiles, "viewer-2").UnclaimedPoints; got != 0 {
		t.Fatalf("viewer-2 奖励 = %d, want 0", got)
	}

	predictions, err := store.PredictionsByMatch(ctx, "m-1")
	if err != nil {
		t.Fatalf("PredictionsByMatch: %v", err)
	}
	for _, prediction := range predictions {
		if !prediction.Scored {
			t.Fatalf("押注 %s 未判分", prediction.ID)
		}
	}
}
