package cert

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// File names written by Generate.
const (
	CACertFile     = "ca.crt"
	CAKeyFile      = "ca.key"
	ServerCertFile = "server.crt"
	ServerKeyFile  = "server.key"
)

var DefaultHosts = []string{"localhost", "127.0.0.1", "relay", "party-1", "party-2", "party-3"}

// Generate writes a development CA and a server certificate for hosts, shared by
// the relay and the party nodes.
func Generate(outDir string, hosts []string, validFor time.Duration) error {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return errors.Wrap(err, "failed to create certificate directory")
	}

	caKey, caCert, err := generateCA(validFor)
	if err != nil {
		return err
	}
	if err := writePair(outDir, CACertFile, CAKeyFile, caCert.Raw, caKey); err != nil {
		return err
	}

	serverKey, serverDER, err := generateServerCert(hosts, caCert, caKey, validFor)
	if err != nil {
		return err
	}
	if err := writePair(outDir, ServerCertFile, ServerKeyFile, serverDER, serverKey); err != nil {
		return err
	}

	log.Info().Str("dir", outDir).Strs("hosts", hosts).Msg("Certificates generated")
	return nil
}

func generateCA(validFor time.Duration) (*ecdsa.PrivateKey, *x509.Certificate, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to generate CA key")
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			Organization: []string{"MPC Room Signer"},
			CommonName:   "MPC Room Signer Dev CA",
		},
		NotBefore:             now.Add(-time.Minute),
		NotAfter:              now.Add(validFor),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &priv.PublicKey, priv)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to create CA certificate")
	}
	caCert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to parse CA certificate")
	}
	return priv, caCert, nil
}

func generateServerCert(hosts []string, caCert *x509.Certificate, caKey *ecdsa.PrivateKey, validFor time.Duration) (*ecdsa.PrivateKey, []byte, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to generate server key")
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: big.NewInt(now.UnixNano()),
		Subject: pkix.Name{
			Organization: []string{"MPC Room Signer"},
			CommonName:   "mpc-roomsigner",
		},
		NotBefore:   now.Add(-time.Minute),
		NotAfter:    now.Add(validFor),
		KeyUsage:    x509.KeyUsageDigitalSignature,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
	}
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, h)
		}
	}

	der, err := x509.CreateCertificate(rand.Reader, template, caCert, &priv.PublicKey, caKey)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to create server certificate")
	}
	return priv, der, nil
}

func writePair(dir, certName, keyName string, der []byte, key *ecdsa.PrivateKey) error {
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return errors.Wrap(err, "failed to marshal private key")
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})

	if err := os.WriteFile(filepath.Join(dir, certName), certPEM, 0644); err != nil {
		return errors.Wrapf(err, "failed to write %s", certName)
	}
	if err := os.WriteFile(filepath.Join(dir, keyName), keyPEM, 0600); err != nil {
		return errors.Wrapf(err, "failed to write %s", keyName)
	}
	return nil
}
