package credentials

import (
	"context"
	"encoding/base64"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-resty/resty/v2"
	"github.com/velabrowser/vela/backend/internal/logging"
	"go.uber.org/zap"
)

const maxIconBytes = 128 * 1024

// IconFetcher resolves site favicons for the credential list UI. Purely
// display metadata: lookups are cached, bounded, and a failure never
// affects store operations.
type IconFetcher struct {
	client *resty.Client
	log    *logging.Logger
	cache  sync.Map // origin -> dataURI ("" for known misses)
}

// NewIconFetcher creates a fetcher with conservative timeouts.
func NewIconFetcher(log *logging.Logger) *IconFetcher {
	client := resty.New().
		SetTimeout(5 * time.Second).
		SetRetryCount(1).
		SetHeader("Accept", "image/*")
	return &IconFetcher{client: client, log: log}
}

// Fetch returns a data URI for the origin's favicon, or "" when none could
// be resolved. Misses are cached too, so a dead site is asked once.
func (f *IconFetcher) Fetch(ctx context.Context, origin string) string {
	if cached, ok := f.cache.Load(origin); ok {
		return cached.(string)
	}

	uri := f.fetch(ctx, origin)
	f.cache.Store(origin, uri)
	return uri
}

func (f *IconFetcher) fetch(ctx context.Context, origin string) string {
	resp, err := f.client.R().SetContext(ctx).Get(origin + "/favicon.ico")
	if err != nil || !resp.IsSuccess() {
		f.log.Debug("favicon fetch failed", zap.String("origin", origin), zap.Error(err))
		return ""
	}

	body := resp.Body()
	if len(body) == 0 || len(body) > maxIconBytes {
		return ""
	}

	mime := mimetype.Detect(body)
	if !strings.HasPrefix(mime.String(), "image/") {
		return ""
	}

	return "data:" + mime.String() + ";base64," + base64.StdEncoding.EncodeToString(body)
}
