package jwt

import (
	"crypto/rsa"
	"fmt"
	"time"
)

// Config locates the signing keys. Inline PEM wins over a path; when no
// public key is given it is derived from the private key.
type Config struct {
	PrivPath string
	PubPath  string
	PrivPEM  string
	PubPEM   string
	Issuer   string
	Audience string
	TTL      time.Duration
	KID      string
}

type Manager struct {
	Generator *Generator
	Verifier  *Verifier
}

func LoadAndBuild(cfg Config) (*Manager, error) {
	priv, err := privateKey(cfg)
	if err != nil {
		return nil, err
	}
	pub, err := publicKey(cfg, priv)
	if err != nil {
		return nil, err
	}
	if pub.N.Cmp(priv.N) != 0 {
		return nil, fmt.Errorf("jwt public key does not match the private key")
	}
	return &Manager{
		Generator: NewGenerator(priv, cfg.Issuer, cfg.Audience, cfg.KID, cfg.TTL),
		Verifier:  NewVerifier(pub, cfg.Issuer, cfg.Audience),
	}, nil
}

func privateKey(cfg Config) (*rsa.PrivateKey, error) {
	if cfg.PrivPEM != "" {
		k, err := ParseRSAPrivateKey([]byte(cfg.PrivPEM))
		if err != nil {
			return nil, fmt.Errorf("inline private key: %w", err)
		}
		return k, nil
	}
	k, err := LoadRSAPrivateKeyFromPEM(cfg.PrivPath)
	if err != nil {
		return nil, fmt.Errorf("private key %s: %w", cfg.PrivPath, err)
	}
	return k, nil
}

func publicKey(cfg Config, priv *rsa.PrivateKey) (*rsa.PublicKey, error) {
	switch {
	case cfg.PubPEM != "":
		k, err := ParseRSAPublicKey([]byte(cfg.PubPEM))
		if err != nil {
			return nil, fmt.Errorf("inline public key: %w", err)
		}
		return k, nil
	case cfg.PubPath != "":
		k, err := LoadRSAPublicKeyFromPEM(cfg.PubPath)
		if err != nil {
			return nil, fmt.Errorf("public key %s: %w", cfg.PubPath, err)
		}
		return k, nil
	default:
		return &priv.PublicKey, nil
	}
}
