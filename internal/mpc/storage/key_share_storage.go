package storage

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/scrypt"
)

const shareFileExt = ".share.enc"

// FileSystemKeyShareStorage 文件系统密钥分片存储实现
// 文件先写入临时文件再原子重命名，读取方只会看到完整的旧内容或新内容
type FileSystemKeyShareStorage struct {
	basePath      string
	encryptionKey []byte
}

// NewFileSystemKeyShareStorage 创建文件系统密钥分片存储实例
func NewFileSystemKeyShareStorage(basePath string, password string, salt string) (*FileSystemKeyShareStorage, error) {
	if password == "" {
		return nil, errors.New("key share password is required")
	}

	key, err := deriveKey(password, salt)
	if err != nil {
		return nil, errors.Wrap(err, "failed to derive encryption key")
	}

	if err := os.MkdirAll(basePath, 0700); err != nil {
		return nil, errors.Wrap(err, "failed to create base path")
	}

	return &FileSystemKeyShareStorage{
		basePath:      basePath,
		encryptionKey: key,
	}, nil
}

// deriveKey 从口令派生 AES-256 密钥
func deriveKey(password string, salt string) ([]byte, error) {
	return scrypt.Key([]byte(password), []byte(salt), 32768, 8, 1, 32)
}

func (s *FileSystemKeyShareStorage) filePath(keyID, nodeID string) (string, error) {
	if !safePathElement(keyID) || !safePathElement(nodeID) {
		return "", errors.Errorf("invalid key share location %q/%q", keyID, nodeID)
	}
	return filepath.Join(s.basePath, keyID, nodeID+shareFileExt), nil
}

func safePathElement(p string) bool {
	return p != "" && p != "." && p != ".." && !strings.ContainsAny(p, `/\`)
}

func (s *FileSystemKeyShareStorage) encrypt(plaintext []byte) ([]byte, error) {
	gcm, err := s.gcm()
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, errors.Wrap(err, "failed to generate nonce")
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func (s *FileSystemKeyShareStorage) decrypt(ciphertext []byte) ([]byte, error) {
	gcm, err := s.gcm()
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, errors.New("ciphertext too short")
	}

	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decrypt")
	}
	return plaintext, nil
}

func (s *FileSystemKeyShareStorage) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(s.encryptionKey)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create cipher")
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create GCM")
	}
	return gcm, nil
}

// StoreKeyShare 存储密钥分片（加密）
func (s *FileSystemKeyShareStorage) StoreKeyShare(ctx context.Context, keyID string, nodeID string, share []byte) error {
	path, err := s.filePath(keyID, nodeID)
	if err != nil {
		return err
	}

	encrypted, err := s.encrypt(share)
	if err != nil {
		return errors.Wrap(err, "failed to encrypt key share")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return errors.Wrap(err, "failed to create directory")
	}

	tmp, err := os.CreateTemp(dir, nodeID+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "failed to create temp file")
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(encrypted); err != nil {
		tmp.Close()
		return errors.Wrap(err, "failed to write encrypted share")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrap(err, "failed to sync encrypted share")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "failed to close temp file")
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return errors.Wrap(err, "failed to rename temp file")
	}

	log.Debug().Str("key_id", keyID).Str("node_id", nodeID).Msg("Stored key share")
	return nil
}

// GetKeyShare 获取密钥分片（解密）
func (s *FileSystemKeyShareStorage) GetKeyShare(ctx context.Context, keyID string, nodeID string) ([]byte, error) {
	path, err := s.filePath(keyID, nodeID)
	if err != nil {
		return nil, err
	}

	encrypted, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrKeyShareNotFound
		}
		return nil, errors.Wrap(err, "failed to read encrypted share")
	}

	share, err := s.decrypt(encrypted)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decrypt key share")
	}
	return share, nil
}

// DeleteKeyShare 删除密钥分片
func (s *FileSystemKeyShareStorage) DeleteKeyShare(ctx context.Context, keyID string, nodeID string) error {
	path, err := s.filePath(keyID, nodeID)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrap(err, "failed to delete key share")
	}

	// 目录为空时一并删除
	dir := filepath.Dir(path)
	if entries, err := os.ReadDir(dir); err == nil && len(entries) == 0 {
		_ = os.Remove(dir)
	}
	return nil
}

// ListKeyShares 列出节点持有的所有 keyID
func (s *FileSystemKeyShareStorage) ListKeyShares(ctx context.Context, nodeID string) ([]string, error) {
	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list key shares")
	}

	var keyIDs []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(s.basePath, e.Name(), nodeID+shareFileExt)); err == nil {
			keyIDs = append(keyIDs, e.Name())
		}
	}
	sort.Strings(keyIDs)
	return keyIDs, nil
}
