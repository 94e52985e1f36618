package provider

import (
	"crypto/tls"
	"fmt"
	"net/http"
)

// CertSource is client certificate material for mutual TLS, supplied either
// as file paths or as decoded PEM bytes. The two forms are interchangeable;
// resolution happens once at client construction.
type CertSource struct {
	certFile string
	keyFile  string

	certPEM []byte
	keyPEM  []byte
}

// CertFromFiles references certificate and key PEM files on disk.
func CertFromFiles(certFile, keyFile string) *CertSource {
	return &CertSource{certFile: certFile, keyFile: keyFile}
}

// CertFromPEM takes certificate and key material already held in memory,
// e.g. loaded from a secrets manager.
func CertFromPEM(certPEM, keyPEM []byte) *CertSource {
	return &CertSource{certPEM: certPEM, keyPEM: keyPEM}
}

func (s *CertSource) load() (tls.Certificate, error) {
	if len(s.certPEM) > 0 {
		cert, err := tls.X509KeyPair(s.certPEM, s.keyPEM)
		if err != nil {
			return tls.Certificate{}, fmt.Errorf("failed to parse client certificate PEM: %w", err)
		}
		return cert, nil
	}

	cert, err := tls.LoadX509KeyPair(s.certFile, s.keyFile)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to load client certificate from %s: %w", s.certFile, err)
	}
	return cert, nil
}

// newTransport builds the HTTP transport, attaching the client certificate
// when a source is configured.
func newTransport(source *CertSource) (http.RoundTripper, error) {
	if source == nil {
		return nil, nil // http.Client falls back to http.DefaultTransport
	}

	cert, err := source.load()
	if err != nil {
		return nil, err
	}

	return &http.Transport{
		TLSClientConfig: &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		},
	}, nil
}
