package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/userhub/internal/model"
)

// PostgresFederatedRepo はPostgreSQLを使用した外部IdP紐付けリポジトリ。
type PostgresFederatedRepo struct {
	db *sql.DB
}

// NewPostgresFederatedRepo はPostgresFederatedRepoを生成する。
func NewPostgresFederatedRepo(db *sql.DB) *PostgresFederatedRepo {
	return &PostgresFederatedRepo{db: db}
}

// FindByProviderAndSubject はproviderとsubjectで紐付けを検索する。見つからない場合はnilを返す。
func (r *PostgresFederatedRepo) FindByProviderAndSubject(ctx context.Context, provider, subject string) (*model.FederatedCredential, error) {
	cred := &model.FederatedCredential{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, provider, subject, name, created_at
		 FROM federated_credentials
		 WHERE provider = $1 AND subject = $2`,
		provider, subject,
	).Scan(&cred.ID, &cred.UserID, &cred.Provider, &cred.Subject, &cred.Name, &cred.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find federated credential: %w", err)
	}

	return cred, nil
}

// Upsert は紐付けを冪等に保存する。
// 同一(provider, subject)の同時コールバックはON CONFLICT DO NOTHINGで片方が勝つ。
func (r *PostgresFederatedRepo) Upsert(ctx context.Context, cred *model.FederatedCredential) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO federated_credentials (id, user_id, provider, subject, name, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (provider, subject) DO NOTHING`,
		cred.ID, cred.UserID, cred.Provider, cred.Subject, cred.Name, cred.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert federated credential: %w", err)
	}
	return nil
}

// ListByUserID は指定ユーザーの紐付け一覧を返す。
func (r *PostgresFederatedRepo) ListByUserID(ctx context.Context, userID string) ([]*model.FederatedCredential, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, provider, subject, name, created_at
		 FROM federated_credentials
		 WHERE user_id = $1
		 ORDER BY created_at ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list federated credentials: %w", err)
	}
	defer rows.Close()

	var creds []*model.FederatedCredential
	for rows.Next() {
		cred := &model.FederatedCredential{}
		if err := rows.Scan(&cred.ID, &cred.UserID, &cred.Provider, &cred.Subject, &cred.Name, &cred.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan federated credential: %w", err)
		}
		creds = append(creds, cred)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate federated credentials: %w", err)
	}

	return creds, nil
}

// compile-time interface check
var _ FederatedCredentialRepository = (*PostgresFederatedRepo)(nil)
