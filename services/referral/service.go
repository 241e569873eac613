package referral

import (
	"context"
	"fmt"

	"smallbiznis-rewards/pkg/config"
	"smallbiznis-rewards/pkg/errutil"
	"smallbiznis-rewards/pkg/events"
	"smallbiznis-rewards/pkg/repository"
	"smallbiznis-rewards/services/account"
	"smallbiznis-rewards/services/catalog"
	"smallbiznis-rewards/services/ledger"
	"smallbiznis-rewards/services/notification"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const ProviderReferral = "referral"

type Service struct {
	db        *gorm.DB
	node      *snowflake.Node
	reward    int64
	accounts  *account.Service
	ledger    *ledger.Service
	catalog   *catalog.Service
	notifier  notification.Notifier
	publisher events.Publisher

	invite  repository.Repository[Invite]
	account repository.Repository[account.Account]
}

type ServiceParams struct {
	fx.In
	Config    *config.Config
	DB        *gorm.DB
	Node      *snowflake.Node
	Accounts  *account.Service
	Ledger    *ledger.Service
	Catalog   *catalog.Service
	Notifier  notification.Notifier
	Publisher events.Publisher
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:        p.DB,
		node:      p.Node,
		reward:    p.Config.Referral.Reward,
		accounts:  p.Accounts,
		ledger:    p.Ledger,
		catalog:   p.Catalog,
		notifier:  p.Notifier,
		publisher: p.Publisher,

		invite:  repository.ProvideStore[Invite](p.DB),
		account: repository.ProvideStore[account.Account](p.DB),
	}
}

// Link records that inviteeID joined with code.
func (s *Service) Link(ctx context.Context, inviteeID, code string) (*Invite, error) {
	if inviteeID == "" {
		return nil, errutil.BadRequest("user_id is required", nil)
	}

	inviter, err := s.accounts.GetByInviteCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if inviter.UserID == inviteeID {
		return nil, errutil.BadRequest("cannot use your own invite code", nil)
	}

	var inv *Invite
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invitee, err := s.ledger.LockAccount(ctx, tx, inviteeID)
		if err != nil {
			return err
		}
		if invitee.InvitedBy != nil {
			return errutil.Conflict("invite code already applied", nil)
		}

		inv, err = s.getOrCreate(ctx, tx, inviter.UserID, inviteeID)
		if err != nil {
			return err
		}

		if err := s.account.WithTrx(tx).Update(ctx, invitee.ID, map[string]any{"invited_by": inviter.UserID}); err != nil {
			return errutil.Internal("failed to link inviter", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("[Referral] invite linked", zap.String("inviter", inviter.UserID), zap.String("invitee", inviteeID))
	s.notifier.NotifyUser(ctx, inviter.UserID, "New referral",
		"Someone joined with your invite code. You will be rewarded when they activate.", notification.LevelInfo)

	return inv, nil
}

func (s *Service) getOrCreate(ctx context.Context, tx *gorm.DB, inviterID, inviteeID string) (*Invite, error) {
	repo := s.invite.WithTrx(tx)

	existing, err := repo.FindOne(ctx, &Invite{InviteeID: inviteeID})
	if err != nil {
		return nil, errutil.Internal("failed to load invite", err)
	}
	if existing != nil {
		if existing.InviterID != inviterID {
			return nil, errutil.Conflict("invitee already has an inviter", nil)
		}
		return existing, nil
	}

	inv := &Invite{
		ID:        s.node.Generate().String(),
		InviterID: inviterID,
		InviteeID: inviteeID,
	}
	if err := repo.Create(ctx, inv); err != nil {
		if repository.IsDuplicate(err) {
			return nil, errutil.Conflict("invitee already has an inviter", err)
		}
		return nil, errutil.Internal("failed to create invite", err)
	}
	return inv, nil
}

// Amount is the referral bonus: the active "referral" category amount, else the configured default.
func (s *Service) Amount(ctx context.Context) (int64, error) {
	cat, err := s.catalog.Category(ctx, ledger.CategoryReferral)
	if err != nil {
		return 0, err
	}
	if cat != nil && cat.RewardAmount > 0 {
		return cat.RewardAmount, nil
	}
	return s.reward, nil
}

// RewardOnActivation credits the inviter of userID once. The duplicate check runs
// under the inviter's account lock so concurrent activations credit a single time.
func (s *Service) RewardOnActivation(ctx context.Context, userID string) (*ledger.RewardLog, error) {
	acc, err := s.accounts.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if acc.InvitedBy == nil || *acc.InvitedBy == "" {
		return nil, errutil.UnprocessableEntity("user has no inviter", nil)
	}
	inviterID := *acc.InvitedBy

	amount, err := s.Amount(ctx)
	if err != nil {
		return nil, err
	}
	if amount <= 0 {
		return nil, errutil.Unavailable("referral reward is not configured", nil)
	}

	var entry *ledger.RewardLog
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.ledger.LockAccount(ctx, tx, inviterID); err != nil {
			return err
		}

		exists, err := s.ledger.HasEntry(ctx, tx, inviterID, ledger.CategoryReferral, userID)
		if err != nil {
			return err
		}
		if exists {
			return errutil.Conflict("referral reward already granted", nil)
		}

		entry, err = s.ledger.CreditTx(ctx, tx, ledger.CreditParams{
			UserID:         inviterID,
			Provider:       ProviderReferral,
			Category:       ledger.CategoryReferral,
			Amount:         amount,
			ProviderAmount: amount,
			AdminAmount:    amount,
			Reference:      userID,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("[Referral] inviter rewarded",
		zap.String("inviter", inviterID),
		zap.String("invitee", userID),
		zap.Int64("amount", amount),
	)
	events.PublishSafe(ctx, s.publisher, events.Event{Type: events.ReferralRewarded, Key: inviterID, Payload: entry})
	s.notifier.NotifyUser(ctx, inviterID, "Referral bonus",
		fmt.Sprintf("You earned %d for a referral.", amount), notification.LevelInfo)

	return entry, nil
}

// RepairMissingInvites recreates Invite rows for accounts whose invited_by has no matching row.
func (s *Service) RepairMissingInvites(ctx context.Context) (int, error) {
	var orphans []account.Account
	err := s.db.WithContext(ctx).
		Model(&account.Account{}).
		Where("invited_by IS NOT NULL AND invited_by <> ''").
		Where("NOT EXISTS (SELECT 1 FROM invites WHERE invites.invitee_id = accounts.user_id)").
		Find(&orphans).Error
	if err != nil {
		return 0, errutil.Internal("failed to scan accounts", err)
	}

	repaired := 0
	for _, acc := range orphans {
		inv := &Invite{
			ID:        s.node.Generate().String(),
			InviterID: *acc.InvitedBy,
			InviteeID: acc.UserID,
		}
		if err := s.invite.Create(ctx, inv); err != nil {
			if repository.IsDuplicate(err) {
				continue
			}
			zap.L().Warn("[Referral] failed to repair invite", zap.String("invitee", acc.UserID), zap.Error(err))
			continue
		}
		repaired++
	}

	zap.L().Info("[Referral] invite repair done", zap.Int("scanned", len(orphans)), zap.Int("repaired", repaired))
	return repaired, nil
}

func (s *Service) ListInvitees(ctx context.Context, inviterID string) ([]*Invite, error) {
	out, err := s.invite.Find(ctx, &Invite{InviterID: inviterID})
	if err != nil {
		return nil, errutil.Internal("failed to list invites", err)
	}
	return out, nil
}
