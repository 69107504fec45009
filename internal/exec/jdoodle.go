// Package exec runs room code snippets through the JDoodle API.
package exec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const defaultBaseURL = "https://api.jdoodle.com/v1/execute"

// JDoodle's language identifiers differ from editor language names.
var languageMap = map[string]string{
	"javascript": "nodejs",
	"python":     "python3",
	"java":       "java",
	"cpp":        "cpp17",
	"c":          "c",
}

type Client struct {
	clientID     string
	clientSecret string
	baseURL      string
	httpClient   *http.Client
}

type Result struct {
	Output     string `json:"output"`
	StatusCode int    `json:"statusCode"`
	Memory     string `json:"memory"`
	CPUTime    string `json:"cpuTime"`
}

type request struct {
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
	Script       string `json:"script"`
	Language     string `json:"language"`
	VersionIndex string `json:"versionIndex"`
}

func NewClient(clientID, clientSecret string) *Client {
	return &Client{
		clientID:     clientID,
		clientSecret: clientSecret,
		baseURL:      defaultBaseURL,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
	}
}

// NewClientWithURL points the client at a different endpoint, for tests.
func NewClientWithURL(clientID, clientSecret, baseURL string) *Client {
	c := NewClient(clientID, clientSecret)
	c.baseURL = baseURL
	return c
}

func (c *Client) Execute(code, language string) (*Result, error) {
	jdoodleLanguage, ok := languageMap[language]
	if !ok {
		jdoodleLanguage = "nodejs"
	}

	body, err := json.Marshal(request{
		ClientID:     c.clientID,
		ClientSecret: c.clientSecret,
		Script:       code,
		Language:     jdoodleLanguage,
		VersionIndex: "0",
	})
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Post(c.baseURL, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("execute request: status %d", resp.StatusCode)
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode execute response: %w", err)
	}
	return &result, nil
}
