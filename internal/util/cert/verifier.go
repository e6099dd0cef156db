package cert

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
)

// VerifyTLSConfig checks that the certificate and key exist, match and are currently valid.
// When caCertFile is set the certificate must also chain to it.
func VerifyTLSConfig(certFile, keyFile, caCertFile string) error {
	if _, err := os.Stat(certFile); err != nil {
		return errors.Wrapf(err, "server certificate file not found: %s", certFile)
	}
	if _, err := os.Stat(keyFile); err != nil {
		return errors.Wrapf(err, "server key file not found: %s", keyFile)
	}

	pair, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return errors.Wrap(err, "failed to load server certificate key pair")
	}
	if len(pair.Certificate) == 0 {
		return errors.New("no certificate found in file")
	}
	x509Cert, err := x509.ParseCertificate(pair.Certificate[0])
	if err != nil {
		return errors.Wrap(err, "failed to parse server certificate")
	}

	now := time.Now()
	if now.After(x509Cert.NotAfter) {
		return fmt.Errorf("server certificate expired at %s", x509Cert.NotAfter)
	}
	if now.Before(x509Cert.NotBefore) {
		return fmt.Errorf("server certificate not valid until %s", x509Cert.NotBefore)
	}

	if caCertFile == "" {
		return nil
	}
	roots, err := loadCAPool(caCertFile)
	if err != nil {
		return err
	}
	// hostnames are not checked, one certificate serves every node
	if _, err := x509Cert.Verify(x509.VerifyOptions{Roots: roots}); err != nil {
		return errors.Wrap(err, "server certificate verification against CA failed")
	}
	return nil
}

// ClientTLSConfig trusts caCertFile in addition to nothing else, for relay and peer clients.
func ClientTLSConfig(caCertFile string) (*tls.Config, error) {
	roots, err := loadCAPool(caCertFile)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		RootCAs:    roots,
		MinVersion: tls.VersionTLS12,
	}, nil
}

func loadCAPool(caCertFile string) (*x509.CertPool, error) {
	caBytes, err := os.ReadFile(caCertFile)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read CA certificate %s", caCertFile)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caBytes) {
		return nil, errors.New("failed to parse CA certificate")
	}
	return pool, nil
}
