package delivery

import (
	"errors"
	"testing"

	"github.com/fieldsignal/relay/pkg/registry"
	"github.com/google/uuid"
)

func TestValidate(t *testing.T) {
	valid := func() *RecordModel {
		return &RecordModel{
			IntegrationID: uuid.New(),
			Kind:          registry.KindMessaging,
			Message:       "hello",
		}
	}

	if err := valid().Validate(); err != nil {
		t.Fatalf("valid record rejected: %v", err)
	}

	record := valid()
	record.IntegrationID = uuid.Nil
	if err := record.Validate(); !errors.Is(err, ErrMissingIntegration) {
		t.Fatalf("expected ErrMissingIntegration, got %v", err)
	}

	record = valid()
	record.Message = ""
	if err := record.Validate(); !errors.Is(err, ErrMissingMessage) {
		t.Fatalf("expected ErrMissingMessage, got %v", err)
	}

	record = valid()
	record.Kind = "carrier-pigeon"
	if err := record.Validate(); err == nil {
		t.Fatal("expected unknown kind to be rejected")
	}

	for _, kind := range []string{registry.KindTicketing, registry.KindForms, registry.KindMessaging} {
		record = valid()
		record.Kind = kind
		if err := record.Validate(); err != nil {
			t.Fatalf("kind %q rejected: %v", kind, err)
		}
	}
}
