package economy

import (
	"context"
	"errors"
	"testing"
	"time"

	"Traitors-Arena/internal/game"
	"Traitors-Arena/internal/participant"
)

func TestClaim(t *testing.T) {
	svc, _, profiles, _ := newEconomyFixture(t)
	ctx := context.Background()

	if err := profiles.Create(ctx, &participant.Participant{
		ID: "p1", Rating: 1200, UnclaimedPoints: 750,
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	wallet := "0x8ba1f109551bd432803012645ac136ddd64dba72"
	claim, err := svc.Claim(ctx, "p1", wallet)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if claim.Points != 750 {
		t.Fatalf("划转积分 = %d, want 750", claim.Points)
	}
	// 地址按校验和格式留档。
	if claim.Wallet == wallet {
		t.Fatal("钱包地址应规范化为校验和格式")
	}

	if got := mustGet(t, profiles, "p1").UnclaimedPoints; got != 0 {
		t.Fatalf("提取后余额 = %d, want 0", got)
	}

	history, err := svc.Claims(ctx, "p1")
	if err != nil {
		t.Fatalf("Claims: %v", err)
	}
	if len(history) != 1 || history[0].ID != claim.ID {
		t.Fatalf("提取记录 = %+v", history)
	}
}

func TestClaimValidation(t *testing.T) {
	svc, _, profiles, _ := newEconomyFixture(t)
	ctx := context.Background()

	if err := profiles.Create(ctx, &participant.Participant{ID: "p1", Rating: 1200}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := svc.Claim(ctx, "p1", "not-an-address"); err != ErrInvalidWallet {
		t.Fatalf("非法地址应返回 ErrInvalidWallet, got %v", err)
	}
	if _, err := svc.Claim(ctx, "p1", "0x8ba1f109551bd432803012645ac136ddd64dba72"); err != ErrNothingToClaim {
		t.Fatalf("零余额应返回 ErrNothingToClaim, got %v", err)
	}
	if _, err := svc.Claim(ctx, "ghost", "0x8ba1f109551bd432803012645ac136ddd64dba72"); err != participant.ErrNotFound {
		t.Fatalf("未知参赛者应返回 ErrNotFound, got %v", err)
	}
}

type failingProfileStore struct {
	*participant.MemoryStore
}

func (s *failingProfileStore) SaveStats(context.Context, *participant.Participant) error {
	return errors.New("storage unavailable")
}

// 余额清零失败时不能留下提取记录,否则同一笔余额还能再提一次。
func TestClaimRecordsNothingWhenBalanceUpdateFails(t *testing.T) {
	profiles := &failingProfileStore{MemoryStore: participant.NewMemoryStore()}
	store := NewMemoryStore()
	svc := NewService(store, profiles, game.NewRegistry(time.Minute), testRules())
	ctx := context.Background()

	if err := profiles.MemoryStore.Create(ctx, &participant.Participant{
		ID: "p1", Rating: 1200, UnclaimedPoints: 750,
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := svc.Claim(ctx, "p1", "0x8ba1f109551bd432803012645ac136ddd64dba72"); err == nil {
		t.Fatal("清零失败的提取应报错")
	}
	history, err := svc.Claims(ctx, "p1")
	if err != nil {
		t.Fatalf("Claims: %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("失败的提取留下了 %d 条记录", len(history))
	}
	if got := mustGet(t, profiles.MemoryStore, "p1").UnclaimedPoints; got != 750 {
		t.Fatalf("失败后余额 = %d, want 750", got)
	}
}
