// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ledger

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/awnumar/memguard"
)

// Signer produces and verifies signatures over canonical entry bytes.
// The KeyID records which mechanism signed an entry; a verifier must
// never have to guess.
type Signer interface {
	Sign(canonical []byte) (sigHex string, err error)
	Verify(canonical []byte, sigHex string) bool
	KeyID() string
}

// =============================================================================
// Ed25519 (primary)
// =============================================================================

// Ed25519Signer signs with a persistent Ed25519 key pair. The public
// key is published alongside the ledger file for the verifier.
type Ed25519Signer struct {
	priv  ed25519.PrivateKey
	pub   ed25519.PublicKey
	keyID string
}

// NewEd25519Signer loads the key pair from ledgerDir, generating one
// on first run. public.key is (re)written so the published material
// always matches the signing key.
func NewEd25519Signer(ledgerDir string) (*Ed25519Signer, error) {
	if err := os.MkdirAll(ledgerDir, 0o700); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}
	privPath := filepath.Join(ledgerDir, "private.key")
	pubPath := filepath.Join(ledgerDir, "public.key")

	var priv ed25519.PrivateKey
	data, err := os.ReadFile(privPath)
	switch {
	case err == nil:
		if len(data) != ed25519.PrivateKeySize {
			return nil, fmt.Errorf("private key has wrong size %d", len(data))
		}
		priv = ed25519.PrivateKey(data)
	case os.IsNotExist(err):
		_, priv, err = ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("generate signing key: %w", err)
		}
		if err := os.WriteFile(privPath, priv, 0o600); err != nil {
			return nil, fmt.Errorf("persist private key: %w", err)
		}
	default:
		return nil, fmt.Errorf("read private key: %w", err)
	}

	pub := priv.Public().(ed25519.PublicKey)
	if err := os.WriteFile(pubPath, pub, 0o644); err != nil {
		return nil, fmt.Errorf("publish public key: %w", err)
	}
	fp := sha256.Sum256(pub)
	return &Ed25519Signer{
		priv:  priv,
		pub:   pub,
		keyID: "ed25519:" + hex.EncodeToString(fp[:4]),
	}, nil
}

func (s *Ed25519Signer) Sign(canonical []byte) (string, error) {
	return hex.EncodeToString(ed25519.Sign(s.priv, canonical)), nil
}

func (s *Ed25519Signer) Verify(canonical []byte, sigHex string) bool {
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return false
	}
	return ed25519.Verify(s.pub, canonical, sig)
}

func (s *Ed25519Signer) KeyID() string { return s.keyID }

// =============================================================================
// HMAC-SHA256 (explicit fallback)
// =============================================================================

// HMACSigner is the fallback when Ed25519 key material is unavailable
// and the operator has explicitly allowed HMAC. The per-install secret
// lives in a memguard locked buffer so it never sits in swappable
// memory; the key id marks the downgrade so it is never silent.
type HMACSigner struct {
	secret *memguard.LockedBuffer
	keyID  string
}

// NewHMACSigner loads or creates the per-install secret under
// ledgerDir. In HMAC mode public.key holds the shared secret; the
// verifier must be co-located or given the file out of band.
func NewHMACSigner(ledgerDir string) (*HMACSigner, error) {
	if err := os.MkdirAll(ledgerDir, 0o700); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}
	secretPath := filepath.Join(ledgerDir, "private.key")
	pubPath := filepath.Join(ledgerDir, "public.key")

	data, err := os.ReadFile(secretPath)
	if os.IsNotExist(err) {
		buf := memguard.NewBufferRandom(32)
		if err := os.WriteFile(secretPath, buf.Bytes(), 0o600); err != nil {
			buf.Destroy()
			return nil, fmt.Errorf("persist hmac secret: %w", err)
		}
		data = append([]byte(nil), buf.Bytes()...)
		buf.Destroy()
	} else if err != nil {
		return nil, fmt.Errorf("read hmac secret: %w", err)
	}
	if err := os.WriteFile(pubPath, data, 0o600); err != nil {
		return nil, fmt.Errorf("publish hmac key material: %w", err)
	}

	locked := memguard.NewBufferFromBytes(data) // wipes data
	fp := sha256.Sum256(locked.Bytes())
	return &HMACSigner{
		secret: locked,
		keyID:  "hmac:" + hex.EncodeToString(fp[:4]),
	}, nil
}

func (s *HMACSigner) Sign(canonical []byte) (string, error) {
	mac := hmac.New(sha256.New, s.secret.Bytes())
	mac.Write(canonical)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

func (s *HMACSigner) Verify(canonical []byte, sigHex string) bool {
	expected, err := s.Sign(canonical)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(sigHex))
}

func (s *HMACSigner) KeyID() string { return s.keyID }

// Destroy wipes the locked secret. Call on shutdown.
func (s *HMACSigner) Destroy() { s.secret.Destroy() }

// NewSigner picks Ed25519 and only falls back to HMAC when allowHMAC
// is set. The downgrade path is explicit: with allowHMAC=false any
// Ed25519 initialization failure is fatal.
func NewSigner(ledgerDir string, allowHMAC bool) (Signer, error) {
	s, err := NewEd25519Signer(ledgerDir)
	if err == nil {
		return s, nil
	}
	if !allowHMAC {
		return nil, fmt.Errorf("ed25519 signer unavailable and hmac not permitted: %w", err)
	}
	return NewHMACSigner(ledgerDir)
}
