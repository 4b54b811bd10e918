package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// RoleClient looks up entity ids by role in the user service. An empty
// result set is a valid state, not an error: campuses without role-tagged
// guard accounts fall back to other candidate policies upstream.
type RoleClient interface {
	GetUserIDsByRole(ctx context.Context, role string) ([]string, error)
}

type roleClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewRoleClient(baseURL string, timeout time.Duration) RoleClient {
	return &roleClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *roleClient) GetUserIDsByRole(ctx context.Context, role string) ([]string, error) {
	url := fmt.Sprintf("%s/roles/%s/users", c.baseURL, role)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		// No users carry this role yet
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("role lookup failed: status=%d, body=%s", resp.StatusCode, string(body))
	}

	var result struct {
		UserIDs []string `json:"userIds"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return result.UserIDs, nil
}
