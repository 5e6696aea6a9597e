// Package auth 提供 JWT 与 API Key 认证功能。
// 本文件实现 API Key 的生成与哈希。明文 Key 只在签发时返回一次，
// 存储端与校验路径都只接触 SHA-256 哈希。
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// apiKeyBytes 是生成 API Key 的随机字节数。
// 十六进制编码后为 40 字符，落在合法格式的 20-50 位字母数字区间内。
const apiKeyBytes = 20

// GenerateAPIKey 生成一个新的 API Key 明文。
func GenerateAPIKey() (string, error) {
	buf := make([]byte, apiKeyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate api key: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// HashAPIKey 返回 API Key 的 SHA-256 十六进制哈希。
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
