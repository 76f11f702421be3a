package roblox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"rankguard/src/groupservice"
	"rankguard/src/infrastructure/log"
)

const (
	DefaultGroupsURL = "https://groups.roblox.com"
	DefaultUsersURL  = "https://users.roblox.com"

	sessionCookie = ".ROBLOSECURITY"
	csrfHeader    = "X-CSRF-TOKEN"
)

// Config holds the settings for a Client.
type Config struct {
	Cookie     string
	GroupsURL  string
	UsersURL   string
	HTTPClient *http.Client
}

// APIError is a non-success answer from the Roblox web API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("roblox api returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("roblox api returned status %d: %s", e.StatusCode, e.Message)
}

// Is matches groupservice.ErrRejected for client-side (4xx) answers.
func (e *APIError) Is(target error) bool {
	return target == groupservice.ErrRejected && e.StatusCode >= 400 && e.StatusCode < 500
}

// Client talks to the Roblox groups API using a cookie session.
type Client struct {
	httpClient *http.Client
	groupsURL  string
	usersURL   string
	cookie     string
	breaker    *gobreaker.CircuitBreaker

	mu   sync.Mutex
	csrf string
}

var _ groupservice.Service = (*Client)(nil)

// NewClient creates a new Roblox API client
func NewClient(cfg Config) *Client {
	if cfg.GroupsURL == "" {
		cfg.GroupsURL = DefaultGroupsURL
	}
	if cfg.UsersURL == "" {
		cfg.UsersURL = DefaultUsersURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &Client{
		httpClient: cfg.HTTPClient,
		groupsURL:  strings.TrimRight(cfg.GroupsURL, "/"),
		usersURL:   strings.TrimRight(cfg.UsersURL, "/"),
		cookie:     cfg.Cookie,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "roblox",
			MaxRequests: 1,
			Interval:    30 * time.Second,
			Timeout:     10 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.Requests >= 3 && failureRatio >= 0.6
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Info("Circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
			},
		}),
	}
}

// Login verifies the session cookie and returns the authenticated account.
func (c *Client) Login(ctx context.Context) (*groupservice.User, error) {
	if c.cookie == "" {
		return nil, fmt.Errorf("%w: no session cookie configured", groupservice.ErrNotAuthenticated)
	}

	var user groupservice.User
	err := c.call(ctx, http.MethodGet, c.usersURL+"/v1/users/authenticated", nil, &user)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("%w: %v", groupservice.ErrNotAuthenticated, err)
		}
		return nil, fmt.Errorf("failed to verify session: %w", err)
	}

	return &user, nil
}

type rolesResponse struct {
	GroupID int64               `json:"groupId"`
	Roles   []groupservice.Role `json:"roles"`
}

// Roles lists the roles of a group ordered as the API returns them.
func (c *Client) Roles(ctx context.Context, groupID int64) ([]groupservice.Role, error) {
	var resp rolesResponse
	url := fmt.Sprintf("%s/v1/groups/%d/roles", c.groupsURL, groupID)
	if err := c.call(ctx, http.MethodGet, url, nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to list roles of group %d: %w", groupID, err)
	}
	return resp.Roles, nil
}

// SetRank resolves the role holding req.Rank and assigns it to the member.
func (c *Client) SetRank(ctx context.Context, req groupservice.SetRankRequest) (*groupservice.Role, error) {
	req.Report(10)

	roles, err := c.Roles(ctx, req.GroupID)
	if err != nil {
		return nil, err
	}

	var role *groupservice.Role
	for i := range roles {
		if roles[i].Rank == req.Rank {
			role = &roles[i]
			break
		}
	}
	if role == nil {
		return nil, fmt.Errorf("%w: group %d has no role with rank %d", groupservice.ErrRoleNotFound, req.GroupID, req.Rank)
	}

	req.Report(50)

	body, err := json.Marshal(map[string]int64{"roleId": role.ID})
	if err != nil {
		return nil, fmt.Errorf("error marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/groups/%d/users/%d", c.groupsURL, req.GroupID, req.UserID)
	if err := c.call(ctx, http.MethodPatch, url, body, nil); err != nil {
		return nil, fmt.Errorf("failed to set rank of user %d in group %d: %w", req.UserID, req.GroupID, err)
	}

	req.Report(90)
	return role, nil
}

// call performs one API request, refreshing the CSRF token once when the
// API rejects the current one.
func (c *Client) call(ctx context.Context, method, url string, body []byte, out interface{}) error {
	resp, err := c.send(ctx, method, url, body)
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusForbidden && resp.Header.Get(csrfHeader) != "" && method != http.MethodGet {
		c.setCSRF(resp.Header.Get(csrfHeader))
		resp.Body.Close()

		resp, err = c.send(ctx, method, url, body)
		if err != nil {
			return err
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("error decoding response: %w", err)
	}
	return nil
}

// send runs the request through the circuit breaker. Server-side failures
// count against the breaker, client-side rejections do not.
func (c *Client) send(ctx context.Context, method, url string, body []byte) (*http.Response, error) {
	out, err := c.breaker.Execute(func() (interface{}, error) {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return nil, fmt.Errorf("error creating request: %w", err)
		}
		req.AddCookie(&http.Cookie{Name: sessionCookie, Value: c.cookie})
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if token := c.getCSRF(); token != "" {
			req.Header.Set(csrfHeader, token)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("error making request: %w", err)
		}
		if resp.StatusCode >= 500 {
			apiErr := decodeAPIError(resp)
			resp.Body.Close()
			return nil, apiErr
		}
		return resp, nil
	})
	if err != nil {
		return nil, err
	}
	return out.(*http.Response), nil
}

func (c *Client) getCSRF() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.csrf
}

func (c *Client) setCSRF(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.csrf = token
}

type errorResponse struct {
	Errors []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	var payload errorResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&payload); err == nil && len(payload.Errors) > 0 {
		apiErr.Message = payload.Errors[0].Message
	}
	return apiErr
}
