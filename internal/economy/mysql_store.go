package economy

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	xerrors "Traitors-Arena/internal/errors"
)

// MySQLStore 使用 MySQL 持久化经济数据。
type MySQLStore struct {
	db *sql.DB
}

var _ Store = (*MySQLStore)(nil)

// NewMySQLStore 基于共享连接池创建经济存储并初始化表结构。
func NewMySQLStore(db *sql.DB) (*MySQLStore, error) {
	if db == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "数据库连接不能为空")
	}
	store := &MySQLStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *MySQLStore) initSchema() error {
	schemas := []string{
		`CREATE TABLE IF NOT EXISTS settlements (
        match_id VARCHAR(64) PRIMARY KEY,
        winner VARCHAR(16) NOT NULL DEFAULT '',
        settled_at BIGINT NOT NULL
)`,
		`CREATE TABLE IF NOT EXISTS settlement_entries (
        match_id VARCHAR(64) NOT NULL,
        participant_id VARCHAR(64) NOT NULL,
        role VARCHAR(16) NOT NULL,
        won TINYINT(1) NOT NULL,
        survived TINYINT(1) NOT NULL,
        points BIGINT NOT NULL,
        rating_delta INT NOT NULL,
        rating_after INT NOT NULL,
        created_at BIGINT NOT NULL,
        PRIMARY KEY (match_id, participant_id)
)`,
		`CREATE TABLE IF NOT EXISTS predictions (
        id VARCHAR(64) NOT NULL,
        match_id VARCHAR(64) NOT NULL,
        participant_id VARCHAR(64) NOT NULL,
        suspects JSON NOT NULL,
        scored TINYINT(1) NOT NULL DEFAULT 0,
        correct TINYINT(1) NOT NULL DEFAULT 0,
        award BIGINT NOT NULL DEFAULT 0,
        created_at BIGINT NOT NULL,
        PRIMARY KEY (match_id, participant_id),
        INDEX idx_prediction_id (id)
)`,
		`CREATE TABLE IF NOT EXISTS achievements (
        participant_id VARCHAR(64) NOT NULL,
        achievement_id VARCHAR(64) NOT NULL,
        name VARCHAR(128) NOT NULL,
        granted_at BIGINT NOT NULL,
        PRIMARY KEY (participant_id, achievement_id)
)`,
		`CREATE TABLE IF NOT EXISTS claims (
        id VARCHAR(64) PRIMARY KEY,
        participant_id VARCHAR(64) NOT NULL,
        wallet VARCHAR(64) NOT NULL,
        points BIGINT NOT NULL,
        created_at BIGINT NOT NULL,
        INDEX idx_claim_participant (participant_id)
)`,
	}
	for _, schema := range schemas {
		if _, err := s.db.Exec(schema); err != nil {
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, "初始化经济表失败")
		}
	}
	return nil
}

func (s *MySQLStore) Settled(ctx context.Context, matchID string) (bool, error) {
	var winner string
	err := s.db.QueryRowContext(ctx, `SELECT winner FROM settlements WHERE match_id = ?`, matchID).Scan(&winner)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询结算标记失败")
	}
	return true, nil
}

func (s *MySQLStore) MarkSettled(ctx context.Context, matchID, winner string) error {
	const stmt = `INSERT INTO settlements (match_id, winner, settled_at) VALUES (?, ?, UNIX_TIMESTAMP())
        ON DUPLICATE KEY UPDATE winner = VALUES(winner)`
	if _, err := s.db.ExecContext(ctx, stmt, matchID, winner); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入结算标记失败")
	}
	return nil
}

func (s *MySQLStore) EntryRecorded(ctx context.Context, matchID, participantID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM settlement_entries WHERE match_id = ? AND participant_id = ?`,
		matchID, participantID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询结算条目失败")
	}
	return true, nil
}

func (s *MySQLStore) RecordEntry(ctx context.Context, entry SettlementEntry) error {
	const stmt = `INSERT INTO settlement_entries
        (match_id, participant_id, role, won, survived, points, rating_delta, rating_after, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON DUPLICATE KEY UPDATE points = VALUES(points)`
	_, err := s.db.ExecContext(ctx, stmt,
		entry.MatchID, entry.ParticipantID, string(entry.Role),
		entry.Won, entry.Survived, entry.Points,
		entry.RatingDelta, entry.RatingAfter, entry.CreatedAt)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入结算条目失败")
	}
	return nil
}

func (s *MySQLStore) SavePrediction(ctx context.Context, p *Prediction) error {
	suspects, err := json.Marshal(p.Suspects)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "序列化押注名单失败")
	}
	const stmt = `INSERT INTO predictions (id, match_id, participant_id, suspects, scored, correct, award, created_at)
        VALUES (?, ?, ?, ?, 0, 0, 0, ?)
        ON DUPLICATE KEY UPDATE id = VALUES(id), suspects = VALUES(suspects), created_at = VALUES(created_at)`
	if _, err := s.db.ExecContext(ctx, stmt, p.ID, p.MatchID, p.ParticipantID, suspects, p.CreatedAt); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入押注失败")
	}
	return nil
}

func (s *MySQLStore) PredictionsByMatch(ctx context.Context, matchID string) ([]*Prediction, error) {
	const stmt = `SELECT id, match_id, participant_id, suspects, scored, correct, award, created_at
        FROM predictions WHERE match_id = ?`
	rows, err := s.db.QueryContext(ctx, stmt, matchID)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询押注失败")
	}
	defer rows.Close()

	var out []*Prediction
	for rows.Next() {
		var (
			p        Prediction
			suspects []byte
		)
		if err := rows.Scan(&p.ID, &p.MatchID, &p.ParticipantID, &suspects, &p.Scored, &p.Correct, &p.Award, &p.CreatedAt); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析押注记录失败")
		}
		if err := json.Unmarshal(suspects, &p.Suspects); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析押注名单失败")
		}
		out = append(out, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历押注失败")
	}
	return out, nil
}

func (s *MySQLStore) MarkPredictionScored(ctx context.Context, id string, correct bool, award int64) error {
	const stmt = `UPDATE predictions SET scored = 1, correct = ?, award = ? WHERE id = ?`
	if _, err := s.db.ExecContext(ctx, stmt, correct, award, id); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入判分结果失败")
	}
	return nil
}

func (s *MySQLStore) HasAchievement(ctx context.Context, participantID, achievementID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM achievements WHERE participant_id = ? AND achievement_id = ?`,
		participantID, achievementID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询成就失败")
	}
	return true, nil
}

func (s *MySQLStore) GrantAchievement(ctx context.Context, grant AchievementGrant) error {
	const stmt = `INSERT IGNORE INTO achievements (participant_id, achievement_id, name, granted_at)
        VALUES (?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, stmt, grant.ParticipantID, grant.AchievementID, grant.Name, grant.GrantedAt); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入成就失败")
	}
	return nil
}

func (s *MySQLStore) AchievementsOf(ctx context.Context, participantID string) ([]AchievementGrant, error) {
	const stmt = `SELECT participant_id, achievement_id, name, granted_at
        FROM achievements WHERE participant_id = ? ORDER BY granted_at`
	rows, err := s.db.QueryContext(ctx, stmt, participantID)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询成就失败")
	}
	defer rows.Close()

	var out []AchievementGrant
	for rows.Next() {
		var grant AchievementGrant
		if err := rows.Scan(&grant.ParticipantID, &grant.AchievementID, &grant.Name, &grant.GrantedAt); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析成就记录失败")
		}
		out = append(out, grant)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历成就失败")
	}
	return out, nil
}

func (s *MySQLStore) RecordClaim(ctx context.Context, claim Claim) error {
	const stmt = `INSERT INTO claims (id, participant_id, wallet, points, created_at) VALUES (?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, stmt, claim.ID, claim.ParticipantID, claim.Wallet, claim.Points, claim.CreatedAt); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入提取记录失败")
	}
	return nil
}

func (s *MySQLStore) ClaimsOf(ctx context.Context, participantID string) ([]Claim, error) {
	const stmt = `SELECT id, participant_id, wallet, points, created_at
        FROM claims WHERE participant_id = ? ORDER BY created_at`
	rows, err := s.db.QueryContext(ctx, stmt, participantID)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询提取记录失败")
	}
	defer rows.Close()

	var out []Claim
	for rows.Next() {
		var claim Claim
		if err := rows.Scan(&claim.ID, &claim.ParticipantID, &claim.Wallet, &claim.Points, &claim.CreatedAt); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析提取记录失败")
		}
		out = append(out, claim)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历提取记录失败")
	}
	return out, nil
}

// Close 实现 Store 接口,连接池由调用方负责关闭。
func (s *MySQLStore) Close() error { return nil }
