package participant

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	xerrors "Traitors-Arena/internal/errors"
)

// MySQLStore 使用 MySQL 持久化参赛者档案。
type MySQLStore struct {
	db *sql.DB
}

var _ Store = (*MySQLStore)(nil)

// NewMySQLStore 基于共享连接池创建档案存储并初始化表结构。
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
	const schema = `CREATE TABLE IF NOT EXISTS participants (
        id VARCHAR(64) PRIMARY KEY,
        name VARCHAR(128) NOT NULL,
        kind VARCHAR(16) NOT NULL,
        rating INT NOT NULL,
        games_played INT NOT NULL DEFAULT 0,
        games_won INT NOT NULL DEFAULT 0,
        traitor_wins INT NOT NULL DEFAULT 0,
        innocent_wins INT NOT NULL DEFAULT 0,
        current_streak INT NOT NULL DEFAULT 0,
        best_streak INT NOT NULL DEFAULT 0,
        unclaimed_points INT NOT NULL DEFAULT 0,
        created_at BIGINT NOT NULL,
        updated_at BIGINT NOT NULL,
        INDEX idx_participant_rating (rating)
)`
	if _, err := s.db.Exec(schema); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "初始化参赛者表失败")
	}
	return nil
}

// Create 注册新参赛者。
func (s *MySQLStore) Create(ctx context.Context, p *Participant) error {
	now := time.Now().UTC()
	const stmt = `INSERT INTO participants
        (id, name, kind, rating, games_played, games_won, traitor_wins, innocent_wins,
         current_streak, best_streak, unclaimed_points, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, stmt,
		p.ID, p.Name, string(p.Kind), p.Rating,
		p.GamesPlayed, p.GamesWon, p.TraitorWins, p.InnocentWins,
		p.CurrentStreak, p.BestStreak, p.UnclaimedPoints,
		now.Unix(), now.Unix())
	if err != nil {
		if strings.Contains(err.Error(), "Duplicate entry") {
			return ErrAlreadyExists
		}
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入参赛者档案失败")
	}
	p.CreatedAt = now
	p.UpdatedAt = now
	return nil
}

// Get 查询参赛者档案。
func (s *MySQLStore) Get(ctx context.Context, id string) (*Participant, error) {
	const stmt = `SELECT id, name, kind, rating, games_played, games_won, traitor_wins,
        innocent_wins, current_streak, best_streak, unclaimed_points, created_at, updated_at
        FROM participants WHERE id = ?`
	row := s.db.QueryRowContext(ctx, stmt, id)
	p, err := scanParticipant(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询参赛者档案失败")
	}
	return p, nil
}

// SaveStats 覆盖写入结算后的统计字段。
func (s *MySQLStore) SaveStats(ctx context.Context, p *Participant) error {
	const stmt = `UPDATE participants SET rating = ?, games_played = ?, games_won = ?,
        traitor_wins = ?, innocent_wins = ?, current_streak = ?, best_streak = ?,
        unclaimed_points = ?, updated_at = ? WHERE id = ?`
	result, err := s.db.ExecContext(ctx, stmt,
		p.Rating, p.GamesPlayed, p.GamesWon, p.TraitorWins, p.InnocentWins,
		p.CurrentStreak, p.BestStreak, p.UnclaimedPoints,
		time.Now().Unix(), p.ID)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "更新参赛者统计失败")
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		if _, getErr := s.Get(ctx, p.ID); getErr != nil {
			return getErr
		}
	}
	return nil
}

// List 按积分降序返回排行榜。
func (s *MySQLStore) List(ctx context.Context, limit int) ([]*Participant, error) {
	if limit <= 0 {
		limit = 100
	}
	const stmt = `SELECT id, name, kind, rating, games_played, games_won, traitor_wins,
        innocent_wins, current_streak, best_streak, unclaimed_points, created_at, updated_at
        FROM participants ORDER BY rating DESC, id ASC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, stmt, limit)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询排行榜失败")
	}
	defer rows.Close()

	var out []*Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析参赛者记录失败")
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历排行榜失败")
	}
	return out, nil
}

// Close 实现 Store 接口,连接池由调用方负责关闭。
func (s *MySQLStore) Close() error { return nil }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanParticipant(row rowScanner) (*Participant, error) {
	var (
		p                  Participant
		kind               string
		createdAt, updated int64
	)
	err := row.Scan(&p.ID, &p.Name, &kind, &p.Rating,
		&p.GamesPlayed, &p.GamesWon, &p.TraitorWins, &p.InnocentWins,
		&p.CurrentStreak, &p.BestStreak, &p.UnclaimedPoints,
		&createdAt, &updated)
	if err != nil {
		return nil, err
	}
	p.Kind = Kind(kind)
	p.CreatedAt = time.Unix(createdAt, 0).UTC()
	p.UpdatedAt = time.Unix(updated, 0).UTC()
	return &p, nil
}
