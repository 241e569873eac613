package server

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"smallbiznis-rewards/pkg/config"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func writeKeyPair(t *testing.T, dir, cn string) (string, string) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	certPath := filepath.Join(dir, "tls.crt")
	keyPath := filepath.Join(dir, "tls.key")
	require.NoError(t, os.WriteFile(certPath, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600))
	require.NoError(t, os.WriteFile(keyPath, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600))
	return certPath, keyPath
}

func leafName(t *testing.T, cert *tls.Certificate) string {
	t.Helper()
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	require.NoError(t, err)
	return leaf.Subject.CommonName
}

func TestNewHttpServerPlain(t *testing.T) {
	cfg := &config.Config{}
	cfg.Server.Addr = "9090"
	cfg.Server.ReadTimeout = 5 * time.Second

	srv := NewHttpServer(Params{Config: cfg, Handler: http.NotFoundHandler()})
	require.Equal(t, ":9090", srv.server.Addr)
	require.Nil(t, srv.server.TLSConfig)
	require.Nil(t, srv.certs)
	require.Equal(t, 5*time.Second, srv.server.ReadHeaderTimeout)
}

func TestNewHttpServerTLSReload(t *testing.T) {
	dir := t.TempDir()
	certPath, keyPath := writeKeyPair(t, dir, "first")

	cfg := &config.Config{}
	cfg.TLS.Enable = true
	cfg.TLS.CertPath = certPath
	cfg.TLS.KeyPath = keyPath

	srv := NewHttpServer(Params{Config: cfg, Handler: http.NotFoundHandler()})
	require.NotNil(t, srv.server.TLSConfig)

	cert, err := srv.server.TLSConfig.GetCertificate(nil)
	require.NoError(t, err)
	require.Equal(t, "first", leafName(t, cert))

	writeKeyPair(t, dir, "second")
	require.NoError(t, srv.certs.load())

	cert, err = srv.server.TLSConfig.GetCertificate(nil)
	require.NoError(t, err)
	require.Equal(t, "second", leafName(t, cert))
}

func TestMissingCertificate(t *testing.T) {
	cfg := &config.Config{}
	cfg.TLS.Enable = true
	cfg.TLS.CertPath = filepath.Join(t.TempDir(), "missing.crt")
	cfg.TLS.KeyPath = filepath.Join(t.TempDir(), "missing.key")

	srv := NewHttpServer(Params{Config: cfg, Handler: http.NotFoundHandler()})
	_, err := srv.server.TLSConfig.GetCertificate(nil)
	require.ErrorIs(t, err, errNoCertificate)
}
