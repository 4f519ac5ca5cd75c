package connection

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"net"
	"time"
)

// selfSignedTLSConfig generates an ECDSA P-256 self-signed certificate
// and returns a tls.Config suitable for a CDI QUIC listener or dialer.
// CDI is treated as a closed, trusted link between router-managed peers
// (the spec's "RDMA-like media transport"), so client verification is
// skipped rather than plumbed through the uniform Connection
// constructor — grounded on the same certificate-generation shape the
// teacher uses for its own QUIC-based transport, scaled down since this
// module has no cert-rotation or fingerprint-pinning requirement.
func selfSignedTLSConfig(nextProto string) (*tls.Config, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate private key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("generate serial number: %w", err)
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: "channeld-cdi"},
		NotBefore:    now.Add(-time.Minute),
		NotAfter:     now.Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		DNSNames:     []string{"localhost"},
		IPAddresses:  []net.IP{net.IPv4(127, 0, 0, 1), net.IPv6loopback},
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("create certificate: %w", err)
	}

	cert := tls.Certificate{Certificate: [][]byte{certDER}, PrivateKey: key}

	return &tls.Config{
		Certificates:       []tls.Certificate{cert},
		NextProtos:         []string{nextProto},
		InsecureSkipVerify: true,
	}, nil
}
