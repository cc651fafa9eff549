package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/hitoshi/userhub/internal/model"
)

// PostgresSessionRepo はPostgreSQLを使用したセッションリポジトリ。
type PostgresSessionRepo struct {
	db *sql.DB
}

// NewPostgresSessionRepo はPostgresSessionRepoを生成する。
func NewPostgresSessionRepo(db *sql.DB) *PostgresSessionRepo {
	return &PostgresSessionRepo{db: db}
}

// Create はセッションを作成する。
func (r *PostgresSessionRepo) Create(ctx context.Context, session *model.Session) error {
	data, err := json.Marshal(session.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal session data: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, data, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		session.ID, session.UserID, data, session.ExpiresAt, session.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// FindByID は指定IDのセッションを取得する。期限切れ・未検出の場合はnilを返す。
func (r *PostgresSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	session := &model.Session{}
	var data []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, data, expires_at, created_at
		 FROM sessions
		 WHERE id = $1 AND expires_at > now()`,
		id,
	).Scan(&session.ID, &session.UserID, &data, &session.ExpiresAt, &session.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if err := json.Unmarshal(data, &session.Data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session data: %w", err)
	}

	return session, nil
}

// SetUser はセッションに認証済みユーザーIDを紐付ける。
func (r *PostgresSessionRepo) SetUser(ctx context.Context, id, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET user_id = $2 WHERE id = $1`,
		id, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to set session user: %w", err)
	}
	return nil
}

// AppendFlash はフラッシュメッセージを1件追記する。
// 行ロックを取ってread-modify-writeするため、同時リクエストでも追記が失われない。
func (r *PostgresSessionRepo) AppendFlash(ctx context.Context, id string, kind model.FlashKind, message string) error {
	return r.updateData(ctx, id, func(d *model.SessionData) {
		switch kind {
		case model.FlashSuccess:
			d.Success = append(d.Success, message)
		case model.FlashError:
			d.Error = append(d.Error, message)
		}
	})
}

// PopFlashes はフラッシュメッセージを取得し、同時にクリアする。
func (r *PostgresSessionRepo) PopFlashes(ctx context.Context, id string) (success, errMsgs []string, err error) {
	err = r.updateData(ctx, id, func(d *model.SessionData) {
		success = d.Success
		errMsgs = d.Error
		d.Success = nil
		d.Error = nil
	})
	if err != nil {
		return nil, nil, err
	}
	return success, errMsgs, nil
}

// SetRedirectURL はログイン後に戻るべきURLを記録する。
func (r *PostgresSessionRepo) SetRedirectURL(ctx context.Context, id, url string) error {
	return r.updateData(ctx, id, func(d *model.SessionData) {
		d.RedirectURL = url
	})
}

// PopRedirectURL はリダイレクト先URLを取得し、同時にクリアする。
func (r *PostgresSessionRepo) PopRedirectURL(ctx context.Context, id string) (string, error) {
	var url string
	err := r.updateData(ctx, id, func(d *model.SessionData) {
		url = d.RedirectURL
		d.RedirectURL = ""
	})
	if err != nil {
		return "", err
	}
	return url, nil
}

// updateData はセッションのdataカラムをトランザクション内で読み書きする。
// 対象セッションが存在しない（期限切れ含む）場合は何もせず正常終了する。
func (r *PostgresSessionRepo) updateData(ctx context.Context, id string, mutate func(*model.SessionData)) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var raw []byte
	err = tx.QueryRowContext(ctx,
		`SELECT data FROM sessions WHERE id = $1 AND expires_at > now() FOR UPDATE`,
		id,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to lock session data: %w", err)
	}

	var data model.SessionData
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("failed to unmarshal session data: %w", err)
	}

	mutate(&data)

	raw, err = json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal session data: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE sessions SET data = $2 WHERE id = $1`,
		id, raw,
	); err != nil {
		return fmt.Errorf("failed to update session data: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// DeleteByID は指定IDのセッションを削除する。
func (r *PostgresSessionRepo) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteByUserID は指定ユーザーの全セッションを削除する。
func (r *PostgresSessionRepo) DeleteByUserID(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete user sessions: %w", err)
	}
	return nil
}

// DeleteExpired は期限切れセッションを削除し、削除件数を返す。
func (r *PostgresSessionRepo) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE expires_at <= now()`,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return count, nil
}

// compile-time interface check
var _ SessionRepository = (*PostgresSessionRepo)(nil)
