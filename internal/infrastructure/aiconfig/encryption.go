package aiconfig

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/repolens/backend/internal/infrastructure/config"
)

// keyFileName 密钥文件名（位于数据目录下，仅所有者可读写）
const keyFileName = ".ai_key"

// EncryptionKey 加密密钥管理器
type EncryptionKey struct {
	keyPath string
	key     []byte
}

// NewEncryptionKey 创建加密密钥管理器
func NewEncryptionKey() (*EncryptionKey, error) {
	ek := &EncryptionKey{
		keyPath: filepath.Join(config.GetDataDir(), keyFileName),
	}

	// 加载或生成密钥
	if err := ek.loadOrGenerateKey(); err != nil {
		return nil, fmt.Errorf("failed to load or generate key: %w", err)
	}

	return ek, nil
}

// loadOrGenerateKey 加载或生成加密密钥
func (ek *EncryptionKey) loadOrGenerateKey() error {
	// 尝试读取现有密钥
	if data, err := os.ReadFile(ek.keyPath); err == nil && len(data) == 32 {
		ek.key = data
		return nil
	}

	// 生成新密钥（32 字节，用于 AES-256）
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return fmt.Errorf("failed to generate key: %w", err)
	}

	// 确保目录存在
	if err := os.MkdirAll(filepath.Dir(ek.keyPath), 0700); err != nil {
		return fmt.Errorf("failed to create key directory: %w", err)
	}

	// 保存密钥（仅所有者可读写）
	if err := os.WriteFile(ek.keyPath, key, 0600); err != nil {
		return fmt.Errorf("failed to save key: %w", err)
	}

	ek.key = key
	return nil
}

// Encrypt 加密文本
func (ek *EncryptionKey) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	block, err := aes.NewCipher(ek.key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	// 生成随机 nonce，前置到密文
	nonce := make([]byte, aesGCM.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := aesGCM.Seal(nonce, nonce, []byte(plaintext), nil)

	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt 解密文本
func (ek *EncryptionKey) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}

	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		// 非 base64 编码，可能是未加密的旧数据，直接返回
		return ciphertext, nil
	}

	block, err := aes.NewCipher(ek.key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	nonceSize := aesGCM.NonceSize()
	if len(data) < nonceSize {
		// 数据太短，可能是未加密的旧数据
		return ciphertext, nil
	}

	nonce, ciphertextBytes := data[:nonceSize], data[nonceSize:]

	plaintext, err := aesGCM.Open(nil, nonce, ciphertextBytes, nil)
	if err != nil {
		// 解密失败，可能是未加密的旧数据
		return ciphertext, nil
	}

	return string(plaintext), nil
}
