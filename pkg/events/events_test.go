package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type failingPublisher struct{ calls int }

func (f *failingPublisher) Publish(ctx context.Context, evt Event) error {
	f.calls++
	return errors.New("broker down")
}

func TestPublishSafeSwallowsErrors(t *testing.T) {
	p := &failingPublisher{}
	require.NotPanics(t, func() {
		PublishSafe(context.Background(), p, Event{Type: RewardCredited, Key: "u1"})
		PublishSafe(context.Background(), nil, Event{Type: RewardCredited})
	})
	require.Equal(t, 1, p.calls)
}

func TestSplitCSV(t *testing.T) {
	require.Equal(t, []string{"a:9092", "b:9092"}, splitCSV(" a:9092, ,b:9092"))
}
