package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/postern-ai/postern/pkg/protocol"
)

// resolveAPIKey returns the --api-key flag value, falling back to the
// POSTERN_API_KEY env var.
func resolveAPIKey() string {
	if apiKey != "" {
		return apiKey
	}
	return os.Getenv("POSTERN_API_KEY")
}

func apiClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}

// apiGet performs a GET and decodes the JSON response.
func apiGet(path string, dest any) error {
	req, err := http.NewRequest(http.MethodGet, strings.TrimRight(baseURL, "/")+path, nil)
	if err != nil {
		return err
	}
	return apiDo(req, dest)
}

// apiPost performs a POST with a JSON body and decodes the response.
func apiPost(path string, body, dest any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, strings.TrimRight(baseURL, "/")+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return apiDo(req, dest)
}

func apiDo(req *http.Request, dest any) error {
	req.Header.Set("x-api-key", resolveAPIKey())
	resp, err := apiClient().Do(req) // #nosec G704 -- URL comes from the --url flag, not request input
	if err != nil {
		return fmt.Errorf("cannot connect to posternd at %s: %w", baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr protocol.ErrorResponse
		if decErr := json.NewDecoder(resp.Body).Decode(&apiErr); decErr == nil && apiErr.Error != "" {
			return fmt.Errorf("posternd returned %s (HTTP %d)", apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("posternd returned HTTP %d", resp.StatusCode)
	}
	if dest != nil {
		return json.NewDecoder(resp.Body).Decode(dest)
	}
	return nil
}
