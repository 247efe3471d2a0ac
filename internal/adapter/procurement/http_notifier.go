package procurement

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pharmalink/stockcore/internal/core/domain"
)

// HTTPNotifier hands shortfall descriptors to the external procurement
// workflow over its REST endpoint and returns the requirement id it assigns.
type HTTPNotifier struct {
	endpoint string
	client   *http.Client
}

func NewHTTPNotifier(endpoint string) *HTTPNotifier {
	return &HTTPNotifier{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

type requirementResponse struct {
	RequirementID     string `json:"requirement_id"`
	RequirementNumber string `json:"requirement_number"`
}

func (n *HTTPNotifier) RaiseRequirement(ctx context.Context, s domain.Shortfall) (string, error) {
	body, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("marshal shortfall: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("post requirement: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("procurement service returned %d", resp.StatusCode)
	}

	var parsed requirementResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode requirement response: %w", err)
	}
	return parsed.RequirementID, nil
}
