package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fieldsignal/relay/pkg/registry"
	"gorm.io/datatypes"
)

func integrationFor(details map[string]interface{}) *registry.IntegrationModel {
	return &registry.IntegrationModel{Details: datatypes.JSONMap(details)}
}

func TestGatewaySendText(t *testing.T) {
	var gotPath, gotUser string
	var gotBody map[string]interface{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUser, _, _ = r.BasicAuth()
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{"message_id":"msg-42"}`))
	}))
	defer server.Close()

	client := NewGatewayClient(server.Client(), integrationFor(map[string]interface{}{
		"api_url":            server.URL,
		"account_key":        "acct",
		"conversation_key":   "conv",
		"conversation_token": "tok",
	}))

	messageID, err := client.SendText(context.Background(), "+27845001001", "hello there")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if messageID != "msg-42" {
		t.Fatalf("unexpected message id %q", messageID)
	}
	if gotPath != "/conv/messages.json" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotUser != "acct" {
		t.Fatalf("unexpected basic auth user %q", gotUser)
	}
	if gotBody["to_addr"] != "+27845001001" || gotBody["content"] != "hello there" {
		t.Fatalf("unexpected payload %v", gotBody)
	}
}

func TestTicketingCreateNoteReturnsToken(t *testing.T) {
	var gotBody map[string]interface{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`"nonce-123"`))
	}))
	defer server.Close()

	client := NewTicketingClient(server.Client(), integrationFor(map[string]interface{}{
		"api_url":    server.URL,
		"api_key":    "key",
		"mailbox_id": "10",
	}))

	token, err := client.CreateNote(context.Background(), "Report from +27845001001", "body", "+27845001001", "reports+1@example.org", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token != "nonce-123" {
		t.Fatalf("unexpected token %q", token)
	}
	if gotBody["mailbox_id"] != "10" || gotBody["subject"] != "Report from +27845001001" {
		t.Fatalf("unexpected payload %v", gotBody)
	}
	if _, hasTicket := gotBody["ticket_id"]; hasTicket {
		t.Fatal("new-ticket note must not carry ticket_id")
	}
}

func TestTicketingReplyCarriesTicketID(t *testing.T) {
	var gotBody map[string]interface{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`"nonce-123"`))
	}))
	defer server.Close()

	client := NewTicketingClient(server.Client(), integrationFor(map[string]interface{}{
		"api_url": server.URL,
		"api_key": "key",
	}))

	if _, err := client.CreateNote(context.Background(), "subject", "reply body", "user", "addr", "nonce-123"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotBody["ticket_id"] != "nonce-123" {
		t.Fatalf("expected ticket_id on reply, got %v", gotBody)
	}
}

func TestTicketingServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewTicketingClient(server.Client(), integrationFor(map[string]interface{}{
		"api_url": server.URL,
		"api_key": "key",
	}))

	_, err := client.CreateNote(context.Background(), "s", "m", "f", "a", "")
	if err == nil {
		t.Fatal("expected error")
	}
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 StatusError, got %v", err)
	}
	if !IsTransient(err) {
		t.Fatal("503 must classify as transient")
	}
}

func TestTicketingClientErrorIsPermanent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewTicketingClient(server.Client(), integrationFor(map[string]interface{}{
		"api_url": server.URL,
		"api_key": "key",
	}))

	_, err := client.CreateNote(context.Background(), "s", "m", "f", "a", "")
	if err == nil {
		t.Fatal("expected error")
	}
	if IsTransient(err) {
		t.Fatal("401 must not classify as transient")
	}
}

func TestTicketingAttachTags(t *testing.T) {
	var gotPath string
	var gotBody map[string]interface{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := NewTicketingClient(server.Client(), integrationFor(map[string]interface{}{
		"api_url": server.URL,
		"api_key": "key",
	}))

	if err := client.AttachTags(context.Background(), "nonce-123", []string{"Cat1", "Cat2"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotPath != "/ticket/nonce-123/tags" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	tags, _ := gotBody["tags"].([]interface{})
	if len(tags) != 2 {
		t.Fatalf("unexpected tags payload %v", gotBody)
	}
}

func TestFormsSubmitWrapsContent(t *testing.T) {
	var gotBody map[string]interface{}
	var gotUser, gotPass string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, gotPass, _ = r.BasicAuth()
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{"status":"created"}`))
	}))
	defer server.Close()

	client := NewFormsClient(server.Client(), integrationFor(map[string]interface{}{
		"url":      server.URL,
		"username": "ona-user",
		"password": "secret",
		"form_id":  "incident_form",
	}))

	response, err := client.Submit(context.Background(), `{"description":"burst pipe"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if response != `{"status":"created"}` {
		t.Fatalf("unexpected response %q", response)
	}
	if gotUser != "ona-user" || gotPass != "secret" {
		t.Fatal("basic auth not sent")
	}
	if gotBody["id"] != "incident_form" {
		t.Fatalf("form id missing from envelope: %v", gotBody)
	}
	submission, _ := gotBody["submission"].(map[string]interface{})
	if submission["description"] != "burst pipe" {
		t.Fatalf("submission content not embedded: %v", gotBody)
	}
}

func TestGatewayTimeoutSurfacesAsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	httpClient := server.Client()
	httpClient.Timeout = 20 * time.Millisecond

	client := NewGatewayClient(httpClient, integrationFor(map[string]interface{}{
		"api_url":          server.URL,
		"conversation_key": "conv",
	}))

	if _, err := client.SendText(context.Background(), "+27845001001", "hi"); err == nil {
		t.Fatal("expected timeout error")
	}
}
