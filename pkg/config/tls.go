/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package config

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/carverauto/solarpulse/pkg/models"
)

var (
	ErrCAParsingFailed   = errors.New("failed to parse CA certificate")
	ErrIncompleteKeyPair = errors.New("cert_file and key_file must be set together")
	ErrSecretFileEmpty   = errors.New("secret file is empty")
)

// NormalizeTLSPaths resolves relative certificate paths against cfg.CertDir.
func NormalizeTLSPaths(cfg *models.TLSConfig) {
	if cfg == nil || cfg.CertDir == "" {
		return
	}

	resolve := func(path string) string {
		if path == "" || filepath.IsAbs(path) {
			return path
		}

		return filepath.Join(cfg.CertDir, path)
	}

	cfg.CertFile = resolve(cfg.CertFile)
	cfg.KeyFile = resolve(cfg.KeyFile)
	cfg.CAFile = resolve(cfg.CAFile)
}

// LoadTLS builds a client tls.Config. A client key pair is optional; a CA
// file replaces the system roots when present.
func LoadTLS(cfg *models.TLSConfig) (*tls.Config, error) {
	if cfg == nil {
		return nil, nil
	}

	c := *cfg
	cfg = &c
	NormalizeTLSPaths(cfg)

	out := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		ServerName:         cfg.ServerName,
		InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // opt-in for lab brokers
	}

	if (cfg.CertFile == "") != (cfg.KeyFile == "") {
		return nil, ErrIncompleteKeyPair
	}

	if cfg.CertFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}

		out.Certificates = []tls.Certificate{cert}
	}

	if cfg.CAFile != "" {
		caCert, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}

		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, ErrCAParsingFailed
		}

		out.RootCAs = pool
	}

	return out, nil
}

// ReadSecretFile returns the trimmed contents of the file named by the
// environment variable envVar. found is false when the variable is unset.
func ReadSecretFile(envVar string) (secret string, found bool, err error) {
	path := os.Getenv(envVar)
	if path == "" {
		return "", false, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", true, fmt.Errorf("read %s: %w", envVar, err)
	}

	secret = strings.TrimSpace(string(data))
	if secret == "" {
		return "", true, fmt.Errorf("%w: %s", ErrSecretFileEmpty, path)
	}

	return secret, true, nil
}
