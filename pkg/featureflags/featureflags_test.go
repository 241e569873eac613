package featureflags

import (
	"context"
	"testing"

	"smallbiznis-rewards/pkg/config"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func TestUnconfiguredUsesFallback(t *testing.T) {
	ff := ProvideFeatureFlag(FeatureParams{Config: &config.Config{}})

	require.True(t, ff.Enabled(context.Background(), PayoutsEnabled, true))
	require.False(t, ff.Enabled(context.Background(), PayoutsEnabled, false))
}

func TestStatic(t *testing.T) {
	ff := Static{PayoutsEnabled: false}

	require.False(t, ff.Enabled(context.Background(), PayoutsEnabled, true))
	require.True(t, ff.Enabled(context.Background(), "other", true))
}
