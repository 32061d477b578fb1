package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/fieldsignal/relay/pkg/registry"
)

// GatewayClient sends plain-text messages back to the originating channel
// through the messaging gateway's conversation API.
type GatewayClient struct {
	httpClient        *http.Client
	apiURL            string
	accountKey        string
	conversationKey   string
	conversationToken string
}

func NewGatewayClient(httpClient *http.Client, integration *registry.IntegrationModel) *GatewayClient {
	return &GatewayClient{
		httpClient:        httpClient,
		apiURL:            strings.TrimRight(integration.Detail("api_url"), "/"),
		accountKey:        integration.Detail("account_key"),
		conversationKey:   integration.Detail("conversation_key"),
		conversationToken: integration.Detail("conversation_token"),
	}
}

// SendText delivers body as a plain-text message and returns the gateway's
// message identifier.
func (c *GatewayClient) SendText(ctx context.Context, toAddr, body string) (string, error) {
	payload := map[string]interface{}{
		"to_addr": toAddr,
		"content": body,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal send request: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages.json", c.apiURL, c.conversationKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.accountKey, c.conversationToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("gateway send failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var result struct {
		MessageID string `json:"message_id"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("malformed gateway response: %w", err)
	}
	return result.MessageID, nil
}
