package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/ericfisherdev/keyhold/internal/config"
	"github.com/ericfisherdev/keyhold/internal/identity"
)

func main() {
	os.Exit(check(os.Getenv("KEYHOLD_CONFIG")))
}

// check probes the credential list over TLS, trusting only the server's own
// certificate. It returns the process exit code.
func check(configFile string) int {
	cfg, err := config.Load(configFile, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "healthcheck:", err)
		return 1
	}

	pool, err := identity.LoadCertPool(cfg.TLS.Cert)
	if err != nil {
		fmt.Fprintln(os.Stderr, "healthcheck:", err)
		return 1
	}

	if err := probe(normalizeAddr(cfg.Server.Addr), cfg.ServerName(), pool); err != nil {
		fmt.Fprintln(os.Stderr, "healthcheck:", err)
		return 1
	}
	return 0
}

func probe(addr, serverName string, pool *x509.CertPool) error {
	client := &http.Client{
		Timeout: 2 * time.Second,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				RootCAs:    pool,
				ServerName: serverName,
				MinVersion: tls.VersionTLS12,
			},
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("https://%s/api/passwords", addr), nil)
	if err != nil {
		return err
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

// normalizeAddr ensures the probe connects to loopback rather than the
// bind-all address the server may be listening on.
func normalizeAddr(raw string) string {
	host, port, err := net.SplitHostPort(raw)
	if err != nil {
		return "127.0.0.1:443"
	}

	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}

	return net.JoinHostPort(host, port)
}
