// Package api 实现 HTTP 传输层。
// 本文件实现 API Key 管理端点：签发与吊销。
// 明文 Key 只在签发响应中出现一次，之后只有哈希可被持有方验证。
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/oriys/cirrus/internal/auth"
	"github.com/oriys/cirrus/internal/domain"
)

// APIKeyStore 定义了 API Key 持久化接口，由 PostgreSQL 存储实现。
type APIKeyStore interface {
	CreateAPIKey(ctx context.Context, keyHash, userID, label string) error
	RevokeAPIKey(ctx context.Context, keyHash string) error
}

// CreateAPIKey 为当前用户签发一个新的 API Key。
func (h *Handler) CreateAPIKey(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Label string `json:"label"`
	}
	if !h.decode(w, r, &body) {
		return
	}

	uid := userID(r)
	if uid == "" {
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
		return
	}

	key, err := auth.GenerateAPIKey()
	if err != nil {
		h.logger.WithError(err).Error("Failed to generate api key")
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	if err := h.keys.CreateAPIKey(r.Context(), auth.HashAPIKey(key), uid, body.Label); err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]any{
		"apiKey": key,
		"label":  body.Label,
	})
}

// RevokeAPIKey 吊销调用方提交的 API Key。
func (h *Handler) RevokeAPIKey(w http.ResponseWriter, r *http.Request) {
	var body struct {
		APIKey string `json:"apiKey"`
	}
	if !h.decode(w, r, &body) {
		return
	}
	if !domain.IsValidAPIKey(body.APIKey) || body.APIKey == domain.AnonymousAPIKey {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": domain.ErrInvalidAPIKey.Error()})
		return
	}

	if err := h.keys.RevokeAPIKey(r.Context(), auth.HashAPIKey(body.APIKey)); err != nil {
		if errors.Is(err, domain.ErrAPIKeyNotFound) {
			h.writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
			return
		}
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]bool{"revoked": true})
}
