package repository

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"

	"go.uber.org/zap"
	"golang.org/x/crypto/pbkdf2"
)

const (
	kdfIterations = 1000
	keyLength     = 32
	nonceLength   = 12
)

// Encryptor 敏感字段加密器（AES-256-GCM）
// 密钥由口令经 PBKDF2 派生，密文为 base64(nonce + ciphertext)
type Encryptor struct {
	aead cipher.AEAD
}

// NewEncryptor 由口令和盐派生密钥并初始化加密器
func NewEncryptor(passphrase, salt string, logger *zap.Logger) (*Encryptor, error) {
	key := pbkdf2.Key([]byte(passphrase), []byte(salt), kdfIterations, keyLength, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to init cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to init gcm: %w", err)
	}

	if logger != nil {
		keyHash := sha256.Sum256(key)
		logger.Info("encryption initialized",
			zap.String("key_hash", hex.EncodeToString(keyHash[:])[:12]))
	}
	return &Encryptor{aead: aead}, nil
}

// Encrypt 加密明文，返回 base64 编码密文
func (e *Encryptor) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, nonceLength)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	ct := e.aead.Seal(nil, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(append(nonce, ct...)), nil
}

// Decrypt 解密 base64 编码密文
func (e *Encryptor) Decrypt(ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("invalid ciphertext encoding: %w", err)
	}
	if len(raw) < nonceLength {
		return "", fmt.Errorf("ciphertext too short")
	}
	plain, err := e.aead.Open(nil, raw[:nonceLength], raw[nonceLength:], nil)
	if err != nil {
		return "", fmt.Errorf("decryption failed: %w", err)
	}
	return string(plain), nil
}

// HashPatientID 患者标识哈希（外发回执与审计只带哈希，不带原始标识）
func HashPatientID(patientID string) string {
	sum := sha256.Sum256([]byte(patientID))
	return hex.EncodeToString(sum[:])[:16]
}
