package profiling

import (
	"testing"

	"smallbiznis-rewards/pkg/config"

	"github.com/grafana/pyroscope-go"
	"github.com/stretchr/testify/require"
)

func TestProfilerConfig(t *testing.T) {
	cfg := &config.Config{AppName: "rewards-worker", AppEnv: "staging", NodeID: 7}
	cfg.Pyroscope.Addr = "http://pyroscope:4040"

	pc := profilerConfig(cfg)
	require.Equal(t, "rewards-worker", pc.ApplicationName)
	require.Equal(t, "7", pc.Tags["node_id"])
	require.NotContains(t, pc.ProfileTypes, pyroscope.ProfileMutexCount)

	cfg.Pyroscope.Contention = true
	pc = profilerConfig(cfg)
	require.Contains(t, pc.ProfileTypes, pyroscope.ProfileMutexCount)
	require.Contains(t, pc.ProfileTypes, pyroscope.ProfileBlockDuration)
}

func TestProfilingDisabledWithoutAddr(t *testing.T) {
	require.NoError(t, ProvideProfiling(nil, &config.Config{}))
}
