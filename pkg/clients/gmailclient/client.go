package gmailclient

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/jakechorley/escort-dispatch/internal/config"
	"github.com/jakechorley/escort-dispatch/pkg/utils"
)

// sendFunc delivers a raw message for a Gmail user
type sendFunc func(ctx context.Context, userID string, msg *gmail.Message) error

// Client wraps the Gmail API client
type Client struct {
	send     sendFunc
	userID   string
	sender   string
	interval time.Duration

	sendMutex    sync.Mutex
	lastSendTime time.Time
}

// NewClient creates a new Gmail client using an existing OAuth token.
// userID is the Gmail account to send as ("me" when empty); sender is an optional From address.
func NewClient(ctx context.Context, oauthCfg *config.OAuthClientConfig, token *oauth2.Token, userID, sender string) (*Client, error) {
	oauthConfig, err := utils.GetOAuthConfig(oauthCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to get oauth config: %w", err)
	}

	service, err := gmail.NewService(ctx, option.WithHTTPClient(oauthConfig.Client(ctx, token)))
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail service: %w", err)
	}

	send := func(ctx context.Context, userID string, msg *gmail.Message) error {
		_, err := service.Users.Messages.Send(userID, msg).Context(ctx).Do()
		return err
	}
	return newClient(send, userID, sender), nil
}

func newClient(send sendFunc, userID, sender string) *Client {
	if userID == "" {
		userID = "me"
	}
	return &Client{send: send, userID: userID, sender: sender, interval: EmailInterval}
}
