package core

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

func TestVaultErrorConstructors_CarryTextCodes(t *testing.T) {
	cases := []struct {
		err      error
		textCode string
		check    func(error) bool
	}{
		{NewUnsupportedFormatError("x"), VaultErrorUnsupportedFormat, IsUnsupportedFormat},
		{NewCorruptSessionError("x"), VaultErrorCorruptSession, IsCorruptSession},
		{NewUnknownKeyVersionError("x"), VaultErrorUnknownKeyVersion, IsUnknownKeyVersion},
		{NewVerificationFailedError("x", false), VaultErrorVerificationFailed, IsVerificationFailed},
		{NewDestroyerFailedError("x", false), VaultErrorDestroyerFailed, IsDestroyerFailed},
		{NewStaleTransitionError("x"), VaultErrorStaleTransition, IsStaleTransition},
	}
	for _, tc := range cases {
		var richErr *goerrors.Error
		if !goerrors.As(tc.err, &richErr) {
			t.Fatalf("expected rich error, got %T", tc.err)
		}
		if richErr.TextCode != tc.textCode {
			t.Fatalf("TextCode = %q, want %q", richErr.TextCode, tc.textCode)
		}
		if !tc.check(tc.err) {
			t.Fatalf("classifier rejected %s", tc.textCode)
		}
		if richErr.Code == 0 {
			t.Fatalf("%s missing http status", tc.textCode)
		}
	}
}

func TestVaultErrorClassifiers_SurviveWrapping(t *testing.T) {
	wrapped := fmt.Errorf("import stage: %w", NewCorruptSessionError("truncated"))
	if !IsCorruptSession(wrapped) {
		t.Fatal("classifier must see through wrapping")
	}
	if IsCorruptSession(errors.New("corrupt-ish")) {
		t.Fatal("plain errors must not classify")
	}
	if IsCorruptSession(nil) {
		t.Fatal("nil must not classify")
	}
}

func TestMetadataFlags(t *testing.T) {
	if !IsFatalVerification(NewVerificationFailedError("x", true)) {
		t.Fatal("fatal flag lost")
	}
	if IsFatalVerification(NewVerificationFailedError("x", false)) {
		t.Fatal("non-fatal flagged fatal")
	}
	if !IsRetryableDestroyerFailure(NewDestroyerFailedError("x", true)) {
		t.Fatal("retryable flag lost")
	}
	if IsRetryableDestroyerFailure(NewDestroyerFailedError("x", false)) {
		t.Fatal("permanent flagged retryable")
	}
	// Flags are scoped to their own text code.
	if IsRetryableDestroyerFailure(NewVerificationFailedError("x", true)) {
		t.Fatal("flag leaked across text codes")
	}
}

func TestVaultErrorMapper_ClassifiesPlainErrors(t *testing.T) {
	cases := []struct {
		message  string
		textCode string
	}{
		{"unsupported session format", VaultErrorUnsupportedFormat},
		{"payload is corrupt", VaultErrorCorruptSession},
		{"frame is truncated at byte 12", VaultErrorCorruptSession},
		{"unknown key version 7", VaultErrorUnknownKeyVersion},
		{"lease already held for account", VaultErrorLeaseHeld},
		{"account \"x\" not found", VaultErrorNotFound},
		{"seller id is required", VaultErrorBadInput},
	}
	for _, tc := range cases {
		mapped := vaultErrorMapper(errors.New(tc.message))
		if mapped == nil {
			t.Fatalf("mapper returned nil for %q", tc.message)
		}
		if mapped.TextCode != tc.textCode {
			t.Fatalf("mapper(%q).TextCode = %q, want %q", tc.message, mapped.TextCode, tc.textCode)
		}
	}
}

func TestVaultErrorMapper_PreservesRichErrors(t *testing.T) {
	original := NewStaleTransitionError("account acct-1 is sold, expected reserved")
	mapped := vaultErrorMapper(original)
	if mapped.TextCode != VaultErrorStaleTransition {
		t.Fatalf("TextCode = %q", mapped.TextCode)
	}
	if mapped.Code != http.StatusConflict {
		t.Fatalf("Code = %d, want 409", mapped.Code)
	}
}

func TestVaultErrorMapper_Nil(t *testing.T) {
	if vaultErrorMapper(nil) != nil {
		t.Fatal("mapper must pass nil through")
	}
}
