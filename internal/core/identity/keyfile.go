package identity

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mr-tron/base58"
)

// ============================================================================
//                              密钥文件
// ============================================================================

// 密钥文件是单行文本：Ed25519 种子（32 字节）的 Base58 编码。

// LoadKeyFile 从文件加载私钥
func LoadKeyFile(path string) (ed25519.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}

	seed, err := base58.Decode(string(bytes.TrimSpace(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKeyFile, err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("%w: seed is %d bytes", ErrInvalidKeyFile, len(seed))
	}
	return ed25519.NewKeyFromSeed(seed), nil
}

// SaveKeyFile 保存私钥到文件
//
// 文件权限 0600，目录不存在时创建。
func SaveKeyFile(priv ed25519.PrivateKey, path string) error {
	if len(priv) != ed25519.PrivateKeySize {
		return ErrInvalidKeySize
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("创建密钥目录失败: %w", err)
	}
	data := []byte(base58.Encode(priv.Seed()) + "\n")
	return atomicWriteFile(path, data, 0o600)
}

// atomicWriteFile 通过同目录临时文件加 rename 写入，失败时目标文件保持不变
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(path), ".tmp-")
	if err != nil {
		return fmt.Errorf("创建临时文件失败: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("写入临时文件失败: %w", err)
	}
	if err := tmpFile.Chmod(perm); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("设置文件权限失败: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("同步临时文件失败: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("关闭临时文件失败: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename 失败: %w", err)
	}

	success = true
	return nil
}
