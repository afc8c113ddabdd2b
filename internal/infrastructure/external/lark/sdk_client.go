// Package lark delivers notifications through the Lark (Feishu) open API.
package lark

import (
	"context"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"go.uber.org/zap"
)

// Config holds the Lark app credentials
type Config struct {
	AppID     string
	AppSecret string
	// BaseURL overrides the open platform domain, e.g. for Lark international
	BaseURL string
}

// messageCreator is the slice of the SDK the messenger calls
type messageCreator interface {
	Create(ctx context.Context, req *larkim.CreateMessageReq, options ...larkcore.RequestOptionFunc) (*larkim.CreateMessageResp, error)
}

// NewSDKClient builds an SDK client with tenant token caching enabled
func NewSDKClient(cfg Config, logger *zap.Logger) *lark.Client {
	opts := []lark.ClientOptionFunc{
		lark.WithLogLevel(larkcore.LogLevelInfo),
		lark.WithEnableTokenCache(true),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, lark.WithOpenBaseUrl(cfg.BaseURL))
	}
	logger.Info("Lark client configured", zap.String("app_id", cfg.AppID), zap.String("base_url", cfg.BaseURL))
	return lark.NewClient(cfg.AppID, cfg.AppSecret, opts...)
}
