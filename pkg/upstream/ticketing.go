package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/fieldsignal/relay/pkg/registry"
)

// TicketingClient talks to the helpdesk-style ticketing service. Notes
// posted without a ticket token open a new ticket and return its token;
// notes posted with a token land as replies on the existing ticket.
type TicketingClient struct {
	httpClient *http.Client
	apiURL     string
	apiKey     string
	mailboxID  string
}

func NewTicketingClient(httpClient *http.Client, integration *registry.IntegrationModel) *TicketingClient {
	return &TicketingClient{
		httpClient: httpClient,
		apiURL:     strings.TrimRight(integration.Detail("api_url"), "/"),
		apiKey:     integration.Detail("api_key"),
		mailboxID:  integration.Detail("mailbox_id"),
	}
}

type noteRecipient struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// CreateNote posts a note to the mailbox. ticketToken may be empty for a new
// ticket; the returned string is the ticket token (the service echoes the
// existing one on replies).
func (c *TicketingClient) CreateNote(ctx context.Context, subject, message, fromName, fromAddr, ticketToken string) (string, error) {
	payload := map[string]interface{}{
		"mailbox_id": c.mailboxID,
		"subject":    subject,
		"message":    message,
		"from":       []noteRecipient{{Name: fromName, Address: fromAddr}},
	}
	if ticketToken != "" {
		payload["ticket_id"] = ticketToken
	}

	respBody, err := c.post(ctx, "/note", payload)
	if err != nil {
		return "", err
	}

	token := strings.Trim(strings.TrimSpace(string(respBody)), `"`)
	if token == "" {
		return "", fmt.Errorf("ticketing service returned empty ticket token")
	}
	return token, nil
}

// AttachTags adds tags to an existing ticket.
func (c *TicketingClient) AttachTags(ctx context.Context, ticketToken string, tags []string) error {
	path := fmt.Sprintf("/ticket/%s/tags", url.PathEscape(ticketToken))
	_, err := c.post(ctx, path, map[string]interface{}{"tags": tags})
	return err
}

func (c *TicketingClient) post(ctx context.Context, path string, payload map[string]interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ticketing request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+path, strings.NewReader(string(raw)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.apiKey, "x")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ticketing call failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	return respBody, nil
}
