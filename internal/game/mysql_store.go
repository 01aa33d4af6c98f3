package game

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	xerrors "Traitors-Arena/internal/errors"
)

// MySQLStore 使用 MySQL 记录对局数据。
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore 基于共享连接池创建对局存储并初始化表结构。
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
		`CREATE TABLE IF NOT EXISTS match_votes (
        id BIGINT AUTO_INCREMENT PRIMARY KEY,
        match_id VARCHAR(64) NOT NULL,
        round INT NOT NULL,
        voter_id VARCHAR(64) NOT NULL,
        target_id VARCHAR(64) NOT NULL,
        rationale TEXT,
        created_at BIGINT NOT NULL,
        INDEX idx_vote_match (match_id, round)
)`,
		`CREATE TABLE IF NOT EXISTS match_chat (
        id BIGINT AUTO_INCREMENT PRIMARY KEY,
        match_id VARCHAR(64) NOT NULL,
        round INT NOT NULL,
        channel VARCHAR(16) NOT NULL,
        participant_id VARCHAR(64) NOT NULL,
        body TEXT NOT NULL,
        created_at BIGINT NOT NULL,
        INDEX idx_chat_match (match_id, round)
)`,
		`CREATE TABLE IF NOT EXISTS match_snapshots (
        id VARCHAR(64) PRIMARY KEY,
        status VARCHAR(16) NOT NULL,
        round INT NOT NULL,
        winner VARCHAR(16) DEFAULT '',
        slots JSON NOT NULL,
        created_at BIGINT NOT NULL,
        started_at BIGINT NOT NULL DEFAULT 0,
        ended_at BIGINT NOT NULL DEFAULT 0
)`,
	}
	for _, schema := range schemas {
		if _, err := s.db.Exec(schema); err != nil {
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, "初始化对局表失败")
		}
	}
	return nil
}

// AppendVote 追加一条放逐票记录。
func (s *MySQLStore) AppendVote(ctx context.Context, matchID string, round int, voterID, targetID, rationale string) error {
	const stmt = `INSERT INTO match_votes (match_id, round, voter_id, target_id, rationale, created_at)
        VALUES (?, ?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, stmt, matchID, round, voterID, targetID, rationale, time.Now().Unix()); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入投票记录失败")
	}
	return nil
}

// AppendChat 追加一条聊天记录。
func (s *MySQLStore) AppendChat(ctx context.Context, matchID string, round int, channel, participantID, text string) error {
	const stmt = `INSERT INTO match_chat (match_id, round, channel, participant_id, body, created_at)
        VALUES (?, ?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, stmt, matchID, round, channel, participantID, text, time.Now().Unix()); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入聊天记录失败")
	}
	return nil
}

// SaveSnapshot 保存终局快照，重复保存时覆盖。
func (s *MySQLStore) SaveSnapshot(ctx context.Context, snap Snapshot) error {
	slots, err := json.Marshal(snap.Slots)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "编码座位快照失败")
	}
	const stmt = `INSERT INTO match_snapshots (id, status, round, winner, slots, created_at, started_at, ended_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)
        ON DUPLICATE KEY UPDATE status = VALUES(status), round = VALUES(round),
        winner = VALUES(winner), slots = VALUES(slots), ended_at = VALUES(ended_at)`
	if _, err := s.db.ExecContext(ctx, stmt,
		snap.ID, snap.Status, snap.Round, snap.Winner, slots,
		snap.CreatedAt, snap.StartedAt, snap.EndedAt,
	); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "保存对局快照失败")
	}
	return nil
}

// LoadSnapshot 读取终局快照。
func (s *MySQLStore) LoadSnapshot(ctx context.Context, matchID string) (*Snapshot, error) {
	const stmt = `SELECT id, status, round, winner, slots, created_at, started_at, ended_at
        FROM match_snapshots WHERE id = ?`
	row := s.db.QueryRowContext(ctx, stmt, matchID)

	var snap Snapshot
	var slots []byte
	if err := row.Scan(&snap.ID, &snap.Status, &snap.Round, &snap.Winner, &slots,
		&snap.CreatedAt, &snap.StartedAt, &snap.EndedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, xerrors.New(xerrors.CodeNotFound, "对局快照不存在")
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取对局快照失败")
	}
	if err := json.Unmarshal(slots, &snap.Slots); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解码座位快照失败")
	}
	snap.Phase = PhaseEnded
	return &snap, nil
}

// Close 由连接池所有者负责关闭，这里无需操作。
func (s *MySQLStore) Close() error { return nil }

var _ Store = (*MySQLStore)(nil)
