package cert_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kashguard/go-mpc-roomsigner/internal/util/cert"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndVerify(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, cert.Generate(dir, cert.DefaultHosts, time.Hour))

	certFile := filepath.Join(dir, cert.ServerCertFile)
	keyFile := filepath.Join(dir, cert.ServerKeyFile)
	caFile := filepath.Join(dir, cert.CACertFile)

	assert.NoError(t, cert.VerifyTLSConfig(certFile, keyFile, caFile))
	assert.NoError(t, cert.VerifyTLSConfig(certFile, keyFile, ""))

	cfg, err := cert.ClientTLSConfig(caFile)
	require.NoError(t, err)
	assert.NotNil(t, cfg.RootCAs)

	info, err := os.Stat(keyFile)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestVerifyRejectsForeignCA(t *testing.T) {
	a, b := t.TempDir(), t.TempDir()
	require.NoError(t, cert.Generate(a, []string{"localhost"}, time.Hour))
	require.NoError(t, cert.Generate(b, []string{"localhost"}, time.Hour))

	err := cert.VerifyTLSConfig(filepath.Join(a, cert.ServerCertFile), filepath.Join(a, cert.ServerKeyFile), filepath.Join(b, cert.CACertFile))
	assert.Error(t, err)

	err = cert.VerifyTLSConfig(filepath.Join(a, cert.ServerCertFile), filepath.Join(b, cert.ServerKeyFile), "")
	assert.Error(t, err, "key of another certificate")

	err = cert.VerifyTLSConfig(filepath.Join(a, "missing.crt"), filepath.Join(a, cert.ServerKeyFile), "")
	assert.Error(t, err)
}
