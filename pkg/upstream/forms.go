package upstream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/fieldsignal/relay/pkg/registry"
)

// FormsClient submits structured report content to the forms-collection
// service as a JSON submission with HTTP basic auth.
type FormsClient struct {
	httpClient *http.Client
	url        string
	username   string
	password   string
	formID     string
}

func NewFormsClient(httpClient *http.Client, integration *registry.IntegrationModel) *FormsClient {
	return &FormsClient{
		httpClient: httpClient,
		url:        integration.Detail("url"),
		username:   integration.Detail("username"),
		password:   integration.Detail("password"),
		formID:     integration.Detail("form_id"),
	}
}

// Submit posts the content as a form submission and returns the service's
// response body. Content must already be a JSON document.
func (c *FormsClient) Submit(ctx context.Context, content string) (string, error) {
	body := fmt.Sprintf(`{"submission": %s, "id": %q}`, content, c.formID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, strings.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.username, c.password)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("forms submission failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	return string(respBody), nil
}
