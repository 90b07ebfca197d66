package gmailclient

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// SendInterval is the minimum gap between two sends, to stay under Gmail's
// per-user rate limits
const SendInterval = 3 * time.Second

// Client wraps the Gmail API client
type Client struct {
	service *gmail.Service
	from    string
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewClient creates a Gmail client over an already authorised http client
// (see utils.TokenSource). from may be empty, in which case Gmail fills in
// the authorised account.
func NewClient(ctx context.Context, httpClient *http.Client, from string, logger *zap.Logger, opts ...option.ClientOption) (*Client, error) {
	opts = append([]option.ClientOption{option.WithHTTPClient(httpClient)}, opts...)
	service, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail service: %w", err)
	}

	return &Client{
		service: service,
		from:    from,
		limiter: rate.NewLimiter(rate.Every(SendInterval), 1),
		logger:  logger,
	}, nil
}
