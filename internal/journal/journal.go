// Package journal 下单记录（SQLite）
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

// Entry 一次下单的结果
type Entry struct {
	ID         string    `json:"id"`
	Identity   string    `json:"identity"`
	TokenID    string    `json:"nftTokenId"`
	OrderType  string    `json:"orderType"`
	Success    bool      `json:"success"`
	Code       string    `json:"code,omitempty"`
	Message    string    `json:"message,omitempty"`
	StatusCode int       `json:"statusCode,omitempty"`
	RaceID     string    `json:"raceId,omitempty"`
	Winner     int       `json:"winner"`
	Attempts   int       `json:"attempts,omitempty"`
	Cancelled  int       `json:"cancelled,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Journal 下单记录
type Journal struct {
	db *sql.DB
}

// Open 打开（或创建）数据库；path 为 ":memory:" 时仅保存在内存
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "journal: 打开数据库失败")
	}
	db.SetMaxOpenConns(1) // SQLite：单连接更稳定
	j := &Journal{db: db}
	if err := j.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`
CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  identity TEXT NOT NULL,
  token_id TEXT NOT NULL,
  order_type TEXT NOT NULL,
  success INTEGER NOT NULL,
  code TEXT,
  message TEXT,
  status_code INTEGER,
  race_id TEXT,
  winner INTEGER NOT NULL DEFAULT -1,
  attempts INTEGER NOT NULL DEFAULT 0,
  cancelled INTEGER NOT NULL DEFAULT 0,
  created_at TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS idx_orders_identity_created ON orders(identity, created_at DESC);`,
	}
	for _, stmt := range stmts {
		if _, err := j.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("journal migrate failed: %w", err)
		}
	}
	return nil
}

// Close 关闭数据库
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Record 写入一条记录，ID 和 CreatedAt 为空时自动填充
func (j *Journal) Record(ctx context.Context, e Entry) (Entry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := j.db.ExecContext(ctx, `
INSERT INTO orders (id, identity, token_id, order_type, success, code, message, status_code, race_id, winner, attempts, cancelled, created_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)
`, e.ID, e.Identity, e.TokenID, e.OrderType, boolToInt(e.Success), e.Code, e.Message, e.StatusCode,
		e.RaceID, e.Winner, e.Attempts, e.Cancelled, e.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return e, errors.Wrap(err, "journal: 写入失败")
	}
	return e, nil
}

// Recent 最近的记录（按时间倒序），identity 为空时返回全部
func (j *Journal) Recent(ctx context.Context, identity string, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx, `
SELECT id, identity, token_id, order_type, success, code, message, status_code, race_id, winner, attempts, cancelled, created_at
FROM orders
WHERE (? = '' OR identity = ?)
ORDER BY created_at DESC
LIMIT ?
`, identity, identity, limit)
	if err != nil {
		return nil, errors.Wrap(err, "journal: 查询失败")
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e         Entry
			success   int
			code      sql.NullString
			message   sql.NullString
			status    sql.NullInt64
			raceID    sql.NullString
			createdAt string
		)
		if err := rows.Scan(&e.ID, &e.Identity, &e.TokenID, &e.OrderType, &success, &code, &message, &status,
			&raceID, &e.Winner, &e.Attempts, &e.Cancelled, &createdAt); err != nil {
			return nil, err
		}
		e.Success = success != 0
		e.Code = code.String
		e.Message = message.String
		e.StatusCode = int(status.Int64)
		e.RaceID = raceID.String
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, e)
	}
	return out, rows.Err()
}
