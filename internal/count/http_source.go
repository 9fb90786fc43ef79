package count

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// HTTPSource reads the total from GET {endpoint}, answering {"count": n} or {"total": n}.
type HTTPSource struct {
	Endpoint string
	Client   *http.Client
}

func NewHTTPSource(endpoint string) *HTTPSource {
	return &HTTPSource{Endpoint: endpoint, Client: &http.Client{}}
}

func (s *HTTPSource) Count(ctx context.Context) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.Endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("count request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode/100 != 2 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return 0, fmt.Errorf("count endpoint returned %d", resp.StatusCode)
	}

	var payload struct {
		Count *int `json:"count"`
		Total *int `json:"total"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, fmt.Errorf("decode count: %w", err)
	}
	switch {
	case payload.Count != nil:
		return *payload.Count, nil
	case payload.Total != nil:
		return *payload.Total, nil
	}
	return 0, fmt.Errorf("count endpoint reply has neither count nor total")
}
