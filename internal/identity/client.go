package identity

import (
	"context"
	"fmt"
	"os"
	"time"

	"coldtrack-sync/internal/models"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// DefaultBaseURL Firebase Auth (Identity Toolkit) REST endpoint
const DefaultBaseURL = "https://identitytoolkit.googleapis.com/v1"

const pageSize = 1000

var scopes = []string{
	"https://www.googleapis.com/auth/identitytoolkit",
	"https://www.googleapis.com/auth/cloud-platform",
}

// Options identity provider settings
type Options struct {
	ProjectID       string
	CredentialsPath string
	BaseURL         string // defaults to DefaultBaseURL
	Timeout         time.Duration
	// TokenSource overrides CredentialsPath
	TokenSource oauth2.TokenSource
}

type batchGetResponse struct {
	Users []struct {
		LocalID     string `json:"localId"`
		Email       string `json:"email"`
		DisplayName string `json:"displayName"`
		Disabled    bool   `json:"disabled"`
	} `json:"users"`
	NextPageToken string `json:"nextPageToken"`
}

type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Client lists accounts from Firebase Auth
type Client struct {
	httpClient *resty.Client
	projectID  string
	tokens     oauth2.TokenSource
	logger     *zap.Logger
}

// NewClient builds an identity client
func NewClient(ctx context.Context, opts Options, logger *zap.Logger) (*Client, error) {
	if opts.ProjectID == "" {
		return nil, fmt.Errorf("identity provider project id is required")
	}

	tokens := opts.TokenSource
	if tokens == nil {
		if opts.CredentialsPath == "" {
			return nil, fmt.Errorf("identity provider credentials are required")
		}
		data, err := os.ReadFile(opts.CredentialsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read credentials: %w", err)
		}
		creds, err := google.CredentialsFromJSON(ctx, data, scopes...)
		if err != nil {
			return nil, fmt.Errorf("failed to parse credentials: %w", err)
		}
		tokens = oauth2.ReuseTokenSource(nil, creds.TokenSource)
	}

	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(3).
		SetRetryWaitTime(1*time.Second).
		SetRetryMaxWaitTime(5*time.Second).
		SetHeader("Accept", "application/json")

	return &Client{
		httpClient: httpClient,
		projectID:  opts.ProjectID,
		tokens:     tokens,
		logger:     logger,
	}, nil
}

// ListUsers pages through every account in the project
func (c *Client) ListUsers(ctx context.Context) ([]models.ExternalUser, error) {
	var users []models.ExternalUser
	pageToken := ""

	for {
		page, err := c.listPage(ctx, pageToken)
		if err != nil {
			return nil, err
		}
		for _, u := range page.Users {
			users = append(users, models.ExternalUser{
				UID:         u.LocalID,
				Email:       u.Email,
				DisplayName: u.DisplayName,
				Disabled:    u.Disabled,
			})
		}
		if page.NextPageToken == "" || len(page.Users) == 0 {
			break
		}
		pageToken = page.NextPageToken
	}

	c.logger.Debug("Listed identity provider users", zap.Int("count", len(users)))
	return users, nil
}

func (c *Client) listPage(ctx context.Context, pageToken string) (*batchGetResponse, error) {
	tok, err := c.tokens.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to obtain access token: %w", err)
	}

	req := c.httpClient.R().
		SetContext(ctx).
		SetAuthToken(tok.AccessToken).
		SetQueryParam("maxResults", fmt.Sprint(pageSize)).
		SetResult(&batchGetResponse{}).
		SetError(&apiError{})
	if pageToken != "" {
		req.SetQueryParam("nextPageToken", pageToken)
	}

	resp, err := req.Get(fmt.Sprintf("/projects/%s/accounts:batchGet", c.projectID))
	if err != nil {
		return nil, fmt.Errorf("failed to call identity provider: %w", err)
	}
	if resp.IsError() {
		if apiErr, ok := resp.Error().(*apiError); ok && apiErr.Error.Message != "" {
			return nil, fmt.Errorf("identity provider error: %s (status: %d)", apiErr.Error.Message, resp.StatusCode())
		}
		return nil, fmt.Errorf("identity provider returned status %d", resp.StatusCode())
	}

	page, ok := resp.Result().(*batchGetResponse)
	if !ok || page == nil {
		return nil, fmt.Errorf("identity provider returned an unexpected body")
	}
	return page, nil
}
