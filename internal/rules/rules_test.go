package rules

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	got, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := Default()
	if got.Match != want.Match || got.Phases != want.Phases || got.Economy != want.Economy {
		t.Fatalf("缺省规则不一致: got %+v", got)
	}
	if len(got.Achievements) != len(want.Achievements) {
		t.Fatalf("成就数 = %d, want %d", len(got.Achievements), len(want.Achievements))
	}
}

func TestLoadMergesWithDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	content := []byte("match:\n  roster_size: 8\n  traitor_count: 3\nphases:\n  murder_seconds: 20\n")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Match.RosterSize != 8 || got.Match.TraitorCount != 3 {
		t.Fatalf("Match = %+v", got.Match)
	}
	if got.Phases.MurderSeconds != 20 {
		t.Fatalf("MurderSeconds = %d, want 20", got.Phases.MurderSeconds)
	}
	// 未填写的字段回退默认值。
	if got.Phases.DiscussionSeconds != Default().Phases.DiscussionSeconds {
		t.Fatalf("DiscussionSeconds = %d, want 默认值", got.Phases.DiscussionSeconds)
	}
	if got.Economy.PointPool != Default().Economy.PointPool {
		t.Fatalf("PointPool = %d, want 默认值", got.Economy.PointPool)
	}
}

func TestLoadRejectsInvalidRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	// 内鬼达到半数，开局即满足内鬼胜利条件。
	content := []byte("match:\n  roster_size: 6\n  traitor_count: 3\n")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("内鬼过半的规则应被拒绝")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		roster  int
		traitor int
		wantErr bool
	}{
		{name: "标准十人局", roster: 10, traitor: 2},
		{name: "最小可玩局", roster: 4, traitor: 1},
		{name: "座位不足", roster: 3, traitor: 1, wantErr: true},
		{name: "内鬼为零", roster: 10, traitor: 0, wantErr: true},
		{name: "内鬼恰好半数", roster: 10, traitor: 5, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Default()
			r.Match = MatchRules{RosterSize: tt.roster, TraitorCount: tt.traitor}
			err := r.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestPhaseDurations(t *testing.T) {
	r := Default()
	r.Phases = PhaseRules{
		StartingSeconds:   5,
		MurderSeconds:     30,
		DiscussionSeconds: 180,
		VotingSeconds:     45,
		RevealSeconds:     8,
	}
	if got := r.StartingDuration(); got != 5*time.Second {
		t.Fatalf("StartingDuration = %v", got)
	}
	if got := r.MurderDuration(); got != 30*time.Second {
		t.Fatalf("MurderDuration = %v", got)
	}
	if got := r.DiscussionDuration(); got != 3*time.Minute {
		t.Fatalf("DiscussionDuration = %v", got)
	}
	if got := r.VotingDuration(); got != 45*time.Second {
		t.Fatalf("VotingDuration = %v", got)
	}
	if got := r.RevealDuration(); got != 8*time.Second {
		t.Fatalf("RevealDuration = %v", got)
	}
}
