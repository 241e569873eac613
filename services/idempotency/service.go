package idempotency

import (
	"context"
	"errors"
	"strings"

	"smallbiznis-rewards/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

// ErrDuplicate is returned by Claim when the pair was already processed.
var ErrDuplicate = errors.New("idempotency key already claimed")

type Guard struct {
	node *snowflake.Node
	keys repository.Repository[Key]
}

type GuardParams struct {
	fx.In
	DB   *gorm.DB
	Node *snowflake.Node
}

func NewGuard(p GuardParams) *Guard {
	return &Guard{
		node: p.Node,
		keys: repository.ProvideStore[Key](p.DB),
	}
}

// Claim inserts the key inside tx. On ErrDuplicate the caller must roll tx back.
func (g *Guard) Claim(ctx context.Context, tx *gorm.DB, provider, transactionID, userID string) error {
	key := &Key{
		ID:            g.node.Generate().String(),
		Provider:      strings.ToLower(provider),
		TransactionID: transactionID,
		UserID:        userID,
	}
	if err := g.keys.WithTrx(tx).Create(ctx, key); err != nil {
		if repository.IsDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// Seen reports whether the pair was already claimed.
func (g *Guard) Seen(ctx context.Context, provider, transactionID string) (bool, error) {
	n, err := g.keys.Count(ctx, &Key{Provider: strings.ToLower(provider), TransactionID: transactionID})
	return n > 0, err
}
