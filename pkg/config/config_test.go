package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(viper.New(), t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 3800.0, cfg.Currency.USDToUGXRate)
	require.Equal(t, int64(100000), cfg.Withdrawal.MaxSingle)
	require.Equal(t, int64(400000), cfg.Withdrawal.DailyLimit)
	require.True(t, cfg.Withdrawal.RefundOnFailure)
	require.Equal(t, 15*time.Minute, cfg.Withdrawal.PendingThreshold)
	require.Equal(t, 5*time.Minute, cfg.Catalog.CacheTTL)
	require.Equal(t, 4, cfg.Payout.MaxPolls)

	require.Equal(t, "api", cfg.Providers["adgem"].Mode)
	require.Equal(t, "hmac", cfg.Providers["adgem"].Verify)
	require.Equal(t, "md5", cfg.Providers["wannads"].Verify)
	require.True(t, cfg.Providers["cpalead"].Enabled)
}

func TestLoadFileAndLegacyEnv(t *testing.T) {
	dir := t.TempDir()
	yaml := []byte("app_name: rewards-test\nwithdrawal:\n  max_single: 5000\n  daily_limit: 20000\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o600))

	t.Setenv("ADGEM_POSTBACK_KEY", "postback-key")
	t.Setenv("CPALEAD_POSTBACK_IPS", "10.0.0.0/8,192.168.1.10/32")
	t.Setenv("USD_TO_UGX_RATE", "3700")

	cfg, err := Load(viper.New(), dir)
	require.NoError(t, err)

	require.Equal(t, "rewards-test", cfg.AppName)
	require.Equal(t, int64(5000), cfg.Withdrawal.MaxSingle)
	require.Equal(t, int64(20000), cfg.Withdrawal.DailyLimit)
	require.Equal(t, "postback-key", cfg.Providers["adgem"].Secret)
	require.Equal(t, []string{"10.0.0.0/8", "192.168.1.10/32"}, cfg.Providers["cpalead"].AllowedIPs)
	require.Equal(t, 3700.0, cfg.Currency.USDToUGXRate)
}

func TestLoadRejectsInvalidLimits(t *testing.T) {
	t.Setenv("WITHDRAWAL_DAILY_LIMIT", "10")

	_, err := Load(viper.New(), t.TempDir())
	require.Error(t, err)
}

func TestTrustedProxies(t *testing.T) {
	cfg, err := Load(viper.New(), t.TempDir())
	require.NoError(t, err)
	require.Empty(t, cfg.Server.TrustedProxies)

	t.Setenv("HTTP_SERVER_TRUSTED_PROXIES", "10.0.0.1,172.16.0.0/12")
	cfg, err = Load(viper.New(), t.TempDir())
	require.NoError(t, err)
	require.Equal(t, []string{"10.0.0.1", "172.16.0.0/12"}, cfg.Server.TrustedProxies)

	t.Setenv("HTTP_SERVER_TRUSTED_PROXIES", "not-an-ip")
	_, err = Load(viper.New(), t.TempDir())
	require.Error(t, err)
}
