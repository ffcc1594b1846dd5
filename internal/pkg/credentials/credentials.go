package credentials

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

const sealedPrefix = "v1:"

var ErrKeySize = errors.New("credentials: key must be 32 bytes")

// Sealer 负责会话 Cookie 的加解密,密钥来自配置
type Sealer struct {
	key []byte
}

// NewSealer 创建加密器,key 为 base64 编码的 32 字节密钥
func NewSealer(encodedKey string) (*Sealer, error) {
	key, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil {
		return nil, fmt.Errorf("credentials: decode key: %w", err)
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, ErrKeySize
	}
	return &Sealer{key: key}, nil
}

// Seal 加密明文 Cookie,输出带版本前缀的 base64 文本
func (s *Sealer) Seal(plaintext string) (string, error) {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return sealedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Open 解密存储值。历史数据可能是未加密的裸 Cookie,
// 没有版本前缀时原样返回并标记降级
func (s *Sealer) Open(stored string) (plaintext string, degraded bool, err error) {
	if !strings.HasPrefix(stored, sealedPrefix) {
		return stored, true, nil
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(stored, sealedPrefix))
	if err != nil {
		return "", false, fmt.Errorf("credentials: decode: %w", err)
	}
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return "", false, err
	}
	if len(raw) < aead.NonceSize() {
		return "", false, errors.New("credentials: ciphertext too short")
	}
	nonce, ciphertext := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	out, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", false, fmt.Errorf("credentials: open: %w", err)
	}
	return string(out), false, nil
}

// GenerateKey 生成新的 base64 密钥,供部署初始化使用
func GenerateKey() (string, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(key), nil
}
