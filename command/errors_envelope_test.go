package command

import (
	"context"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-sessionvault/core"
)

func TestSubmitUploadMessage_ValidateReturnsRichError(t *testing.T) {
	err := (SubmitUploadMessage{}).Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryValidation {
		t.Fatalf("expected validation category, got %q", rich.Category)
	}
	if rich.TextCode != core.VaultErrorBadInput {
		t.Fatalf("expected %q text code, got %q", core.VaultErrorBadInput, rich.TextCode)
	}
}

func TestSubmitUploadCommand_NilServiceReturnsRichError(t *testing.T) {
	var cmd *SubmitUploadCommand
	err := cmd.Execute(context.Background(), SubmitUploadMessage{})
	if err == nil {
		t.Fatalf("expected command dependency error")
	}

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryInternal {
		t.Fatalf("expected internal category, got %q", rich.Category)
	}
}
