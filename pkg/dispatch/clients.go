package dispatch

import (
	"context"
	"net/http"

	"github.com/fieldsignal/relay/pkg/registry"
	"github.com/fieldsignal/relay/pkg/upstream"
)

// GatewayAPI is the messaging gateway's synchronous send call.
type GatewayAPI interface {
	SendText(ctx context.Context, toAddr, body string) (string, error)
}

// TicketingAPI covers ticket creation, replies and tag attachment.
type TicketingAPI interface {
	CreateNote(ctx context.Context, subject, message, fromName, fromAddr, ticketToken string) (string, error)
	AttachTags(ctx context.Context, ticketToken string, tags []string) error
}

// FormsAPI is the forms-collection submission call.
type FormsAPI interface {
	Submit(ctx context.Context, content string) (string, error)
}

// ClientFactory builds per-integration API clients. Credentials live on the
// integration row, so clients are constructed per dispatch rather than held.
type ClientFactory interface {
	Gateway(integration *registry.IntegrationModel) GatewayAPI
	Ticketing(integration *registry.IntegrationModel) TicketingAPI
	Forms(integration *registry.IntegrationModel) FormsAPI
}

// HTTPClientFactory is the production factory over pkg/upstream.
type HTTPClientFactory struct {
	httpClient *http.Client
}

func NewHTTPClientFactory(httpClient *http.Client) *HTTPClientFactory {
	return &HTTPClientFactory{httpClient: httpClient}
}

func (f *HTTPClientFactory) Gateway(integration *registry.IntegrationModel) GatewayAPI {
	return upstream.NewGatewayClient(f.httpClient, integration)
}

func (f *HTTPClientFactory) Ticketing(integration *registry.IntegrationModel) TicketingAPI {
	return upstream.NewTicketingClient(f.httpClient, integration)
}

func (f *HTTPClientFactory) Forms(integration *registry.IntegrationModel) FormsAPI {
	return upstream.NewFormsClient(f.httpClient, integration)
}
