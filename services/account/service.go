package account

import (
	"context"
	"strings"

	"smallbiznis-rewards/pkg/errutil"
	"smallbiznis-rewards/pkg/reference"
	"smallbiznis-rewards/pkg/repository"
	"smallbiznis-rewards/pkg/security"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const inviteCodeAttempts = 5

type Service struct {
	db   *gorm.DB
	node *snowflake.Node

	account repository.Repository[Account]
}

type ServiceParams struct {
	fx.In
	DB   *gorm.DB
	Node *snowflake.Node
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:   p.DB,
		node: p.Node,

		account: repository.ProvideStore[Account](p.DB),
	}
}

// Ensure returns the account of userID, creating it with a fresh invite code when missing.
func (s *Service) Ensure(ctx context.Context, userID string) (*Account, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, errutil.BadRequest("user_id is required", nil)
	}

	existing, err := s.account.FindOne(ctx, &Account{UserID: userID})
	if err != nil {
		return nil, errutil.Internal("failed to load account", err)
	}
	if existing != nil {
		return existing, nil
	}

	for i := 0; i < inviteCodeAttempts; i++ {
		acc := &Account{
			ID:         s.node.Generate().String(),
			UserID:     userID,
			InviteCode: reference.InviteCode(),
		}

		err := s.account.Create(ctx, acc)
		if err == nil {
			zap.L().Info("account created", zap.String("user_id", userID), zap.String("invite_code", acc.InviteCode))
			return acc, nil
		}
		if !repository.IsDuplicate(err) {
			return nil, errutil.Internal("failed to create account", err)
		}

		// Either a concurrent create for the same user or an invite code collision.
		if existing, ferr := s.account.FindOne(ctx, &Account{UserID: userID}); ferr == nil && existing != nil {
			return existing, nil
		}
	}

	return nil, errutil.Internal("failed to allocate invite code", nil)
}

func (s *Service) Get(ctx context.Context, userID string) (*Account, error) {
	acc, err := s.account.FindOne(ctx, &Account{UserID: userID})
	if err != nil {
		return nil, errutil.Internal("failed to load account", err)
	}
	if acc == nil {
		return nil, errutil.NotFound("account not found", nil)
	}
	return acc, nil
}

// GetByInviteCode resolves codes case-insensitively; codes are stored uppercase.
func (s *Service) GetByInviteCode(ctx context.Context, code string) (*Account, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, errutil.BadRequest("invite code is required", nil)
	}

	acc, err := s.account.FindOne(ctx, &Account{InviteCode: code})
	if err != nil {
		return nil, errutil.Internal("failed to load account", err)
	}
	if acc == nil {
		return nil, errutil.NotFound("invalid invite code", nil)
	}
	return acc, nil
}

// SetPIN stores the bcrypt hash of the withdrawal PIN.
func (s *Service) SetPIN(ctx context.Context, userID, pin string) error {
	if len(pin) < 4 || len(pin) > 12 {
		return errutil.BadRequest("pin must be 4 to 12 characters", nil)
	}

	acc, err := s.Get(ctx, userID)
	if err != nil {
		return err
	}

	hash, err := security.HashPIN(pin)
	if err != nil {
		return errutil.Internal("failed to hash pin", err)
	}

	if err := s.account.Update(ctx, acc.ID, map[string]any{"pin_hash": hash}); err != nil {
		return errutil.Internal("failed to update pin", err)
	}
	return nil
}

// ActivateSubscriptionTx flags the account as subscribed inside tx.
func (s *Service) ActivateSubscriptionTx(ctx context.Context, tx *gorm.DB, userID string) error {
	res := tx.WithContext(ctx).Model(&Account{}).
		Where("user_id = ?", userID).
		Update("subscription_active", true)
	if res.Error != nil {
		return errutil.Internal("failed to activate subscription", res.Error)
	}
	if res.RowsAffected == 0 {
		return errutil.NotFound("account not found", nil)
	}
	return nil
}
