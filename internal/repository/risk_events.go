package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/EricMovillaSanolivar/ai-fall-prevent/internal/models"

	"go.uber.org/zap"
)

// DefaultListLimit ListRecent 默认条数
const DefaultListLimit = 50

// MaxListLimit ListRecent 最大条数
const MaxListLimit = 500

// riskEventsSchema 风险事件审计表
const riskEventsSchema = `
	CREATE TABLE IF NOT EXISTS risk_events (
		event_id    UUID PRIMARY KEY,
		camera_id   TEXT NOT NULL,
		kind        TEXT NOT NULL,
		side        TEXT,
		subject     INTEGER NOT NULL,
		keypoint    JSONB NOT NULL,
		detected_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_risk_events_camera_detected
		ON risk_events (camera_id, detected_at DESC);
`

// RiskEventsRepository 风险事件审计仓库
type RiskEventsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewRiskEventsRepository 创建风险事件仓库
func NewRiskEventsRepository(db *sql.DB, logger *zap.Logger) *RiskEventsRepository {
	return &RiskEventsRepository{
		db:     db,
		logger: logger,
	}
}

// EnsureSchema 创建审计表（幂等）
func (r *RiskEventsRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, riskEventsSchema); err != nil {
		return fmt.Errorf("failed to create risk_events table: %w", err)
	}
	return nil
}

// InsertEvents 在一个事务内写入一帧的风险事件
func (r *RiskEventsRepository) InsertEvents(ctx context.Context, events []models.RiskEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO risk_events (event_id, camera_id, kind, side, subject, keypoint, detected_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (event_id) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range events {
		keypoint, err := json.Marshal(e.Keypoint)
		if err != nil {
			return fmt.Errorf("failed to marshal keypoint: %w", err)
		}
		var side sql.NullString
		if e.Side != "" {
			side = sql.NullString{String: string(e.Side), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx,
			e.EventID, e.CameraID, string(e.Kind), side, e.Subject, keypoint, e.DetectedAt,
		); err != nil {
			return fmt.Errorf("failed to insert risk event %s: %w", e.EventID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit risk events: %w", err)
	}

	r.logger.Debug("Risk events stored", zap.Int("count", len(events)))
	return nil
}

// ListRecent 按时间倒序列出最近的风险事件；cameraID 为空时不过滤
func (r *RiskEventsRepository) ListRecent(ctx context.Context, cameraID string, limit int) ([]models.RiskEvent, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	query := `
		SELECT event_id, camera_id, kind, side, subject, keypoint, detected_at
		FROM risk_events
		WHERE ($1 = '' OR camera_id = $1)
		ORDER BY detected_at DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, cameraID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query risk events: %w", err)
	}
	defer rows.Close()

	events := make([]models.RiskEvent, 0)
	for rows.Next() {
		var e models.RiskEvent
		var kind string
		var side sql.NullString
		var keypoint []byte
		if err := rows.Scan(&e.EventID, &e.CameraID, &kind, &side, &e.Subject, &keypoint, &e.DetectedAt); err != nil {
			return nil, fmt.Errorf("failed to scan risk event: %w", err)
		}
		e.Kind = models.RiskKind(kind)
		if side.Valid {
			e.Side = models.Side(side.String)
		}
		if len(keypoint) > 0 {
			if err := json.Unmarshal(keypoint, &e.Keypoint); err != nil {
				r.logger.Warn("Failed to parse keypoint", zap.String("event_id", e.EventID), zap.Error(err))
			}
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate risk events: %w", err)
	}
	return events, nil
}
