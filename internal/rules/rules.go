package rules

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Rules 描述一场对局的全部可配置规则。节目组通过 YAML 文件下发，
// 未填写的字段回退到默认值。
type Rules struct {
	Match        MatchRules        `yaml:"match"`
	Phases       PhaseRules        `yaml:"phases"`
	Economy      EconomyRules      `yaml:"economy"`
	Achievements []AchievementRule `yaml:"achievements"`
}

// MatchRules 固定一场对局的座位数与内鬼数量。
type MatchRules struct {
	RosterSize   int `yaml:"roster_size"`
	TraitorCount int `yaml:"traitor_count"`
}

// PhaseRules 给出每个阶段的时间预算，单位为秒。
type PhaseRules struct {
	StartingSeconds   int `yaml:"starting_seconds"`
	MurderSeconds     int `yaml:"murder_seconds"`
	DiscussionSeconds int `yaml:"discussion_seconds"`
	VotingSeconds     int `yaml:"voting_seconds"`
	RevealSeconds     int `yaml:"reveal_seconds"`
}

// EconomyRules 控制赛后结算的积分与评分参数。
type EconomyRules struct {
	PointPool       int64   `yaml:"point_pool"`
	PredictionAward int64   `yaml:"prediction_award"`
	BaseRating      float64 `yaml:"base_rating"`
	EloK            float64 `yaml:"elo_k"`
}

// AchievementRule 定义一个成就的解锁条件。
// Metric 取值: games_played, games_won, traitor_wins, innocent_wins,
// best_streak, rating。
type AchievementRule struct {
	ID        string  `yaml:"id"`
	Name      string  `yaml:"name"`
	Metric    string  `yaml:"metric"`
	Threshold float64 `yaml:"threshold"`
}

// Default 返回 10 人 2 内鬼的标准规则。
func Default() Rules {
	return Rules{
		Match: MatchRules{RosterSize: 10, TraitorCount: 2},
		Phases: PhaseRules{
			StartingSeconds:   5,
			MurderSeconds:     30,
			DiscussionSeconds: 180,
			VotingSeconds:     45,
			RevealSeconds:     8,
		},
		Economy: EconomyRules{
			PointPool:       1000,
			PredictionAward: 50,
			BaseRating:      1200,
			EloK:            32,
		},
		Achievements: []AchievementRule{
			{ID: "first-blood", Name: "初次登场", Metric: "games_played", Threshold: 1},
			{ID: "veteran", Name: "老牌选手", Metric: "games_played", Threshold: 50},
			{ID: "winner", Name: "首胜", Metric: "games_won", Threshold: 1},
			{ID: "mastermind", Name: "幕后黑手", Metric: "traitor_wins", Threshold: 10},
			{ID: "detective", Name: "金牌侦探", Metric: "innocent_wins", Threshold: 10},
			{ID: "unstoppable", Name: "连胜狂潮", Metric: "best_streak", Threshold: 5},
			{ID: "grandmaster", Name: "宗师", Metric: "rating", Threshold: 1600},
		},
	}
}

// Load 解析 YAML 规则文件并补齐默认值。文件不存在时直接返回默认规则。
func Load(path string) (Rules, error) {
	defaults := Default()
	if path == "" {
		return defaults, nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return defaults, nil
		}
		return Rules{}, fmt.Errorf("读取规则文件失败: %w", err)
	}
	cfg := defaults
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return Rules{}, fmt.Errorf("解析规则文件失败: %w", err)
	}
	cfg.applyDefaults(defaults)
	if err := cfg.Validate(); err != nil {
		return Rules{}, err
	}
	return cfg, nil
}

func (r *Rules) applyDefaults(defaults Rules) {
	if r.Match.RosterSize <= 0 {
		r.Match.RosterSize = defaults.Match.RosterSize
	}
	if r.Match.TraitorCount <= 0 {
		r.Match.TraitorCount = defaults.Match.TraitorCount
	}
	if r.Phases.StartingSeconds <= 0 {
		r.Phases.StartingSeconds = defaults.Phases.StartingSeconds
	}
	if r.Phases.MurderSeconds <= 0 {
		r.Phases.MurderSeconds = defaults.Phases.MurderSeconds
	}
	if r.Phases.DiscussionSeconds <= 0 {
		r.Phases.DiscussionSeconds = defaults.Phases.DiscussionSeconds
	}
	if r.Phases.VotingSeconds <= 0 {
		r.Phases.VotingSeconds = defaults.Phases.VotingSeconds
	}
	if r.Phases.RevealSeconds <= 0 {
		r.Phases.RevealSeconds = defaults.Phases.RevealSeconds
	}
	if r.Economy.PointPool <= 0 {
		r.Economy.PointPool = defaults.Economy.PointPool
	}
	if r.Economy.PredictionAward <= 0 {
		r.Economy.PredictionAward = defaults.Economy.PredictionAward
	}
	if r.Economy.BaseRating <= 0 {
		r.Economy.BaseRating = defaults.Economy.BaseRating
	}
	if r.Economy.EloK <= 0 {
		r.Economy.EloK = defaults.Economy.EloK
	}
	if len(r.Achievements) == 0 {
		r.Achievements = defaults.Achievements
	}
}

// Validate 检查规则是否能构成一场双方均有胜机的对局。
func (r Rules) Validate() error {
	if r.Match.RosterSize < 4 {
		return fmt.Errorf("roster_size 至少为 4, 当前 %d", r.Match.RosterSize)
	}
	if r.Match.TraitorCount < 1 {
		return fmt.Errorf("traitor_count 至少为 1, 当前 %d", r.Match.TraitorCount)
	}
	// 内鬼必须是少数，否则开局即满足内鬼胜利条件。
	if r.Match.TraitorCount*2 >= r.Match.RosterSize {
		return fmt.Errorf("traitor_count %d 不得达到 roster_size %d 的一半",
			r.Match.TraitorCount, r.Match.RosterSize)
	}
	return nil
}

// StartingDuration 返回开局缓冲时长。
func (r Rules) StartingDuration() time.Duration {
	return time.Duration(r.Phases.StartingSeconds) * time.Second
}

// MurderDuration 返回刺杀阶段时长。
func (r Rules) MurderDuration() time.Duration {
	return time.Duration(r.Phases.MurderSeconds) * time.Second
}

// DiscussionDuration 返回讨论阶段时长。
func (r Rules) DiscussionDuration() time.Duration {
	return time.Duration(r.Phases.DiscussionSeconds) * time.Second
}

// VotingDuration 返回投票阶段时长。
func (r Rules) VotingDuration() time.Duration {
	return time.Duration(r.Phases.VotingSeconds) * time.Second
}

// RevealDuration 返回揭示阶段时长。
func (r Rules) RevealDuration() time.Duration {
	return time.Duration(r.Phases.RevealSeconds) * time.Second
}
