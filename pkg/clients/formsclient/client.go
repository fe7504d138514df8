package formsclient

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	"google.golang.org/api/forms/v1"
	"google.golang.org/api/option"

	"github.com/jakechorley/escort-dispatch/internal/config"
	"github.com/jakechorley/escort-dispatch/pkg/utils"
)

// listFunc returns every response submitted to a form, following pagination
type listFunc func(ctx context.Context, formID string) ([]*forms.FormResponse, error)

// Client wraps the Google Forms API client
type Client struct {
	list listFunc
}

// NewClient creates a new Forms client using an existing OAuth token.
// The token should already contain all necessary scopes (sheets, gmail, forms).
func NewClient(ctx context.Context, oauthCfg *config.OAuthClientConfig, token *oauth2.Token) (*Client, error) {
	oauthConfig, err := utils.GetOAuthConfig(oauthCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to get oauth config: %w", err)
	}

	service, err := forms.NewService(ctx, option.WithHTTPClient(oauthConfig.Client(ctx, token)))
	if err != nil {
		return nil, fmt.Errorf("failed to create forms service: %w", err)
	}

	list := func(ctx context.Context, formID string) ([]*forms.FormResponse, error) {
		var all []*forms.FormResponse
		err := service.Forms.Responses.List(formID).Pages(ctx, func(page *forms.ListFormResponsesResponse) error {
			all = append(all, page.Responses...)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list form responses: %w", err)
		}
		return all, nil
	}
	return &Client{list: list}, nil
}
