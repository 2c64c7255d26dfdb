package auth

import (
	"strings"
	"testing"
)

func TestAPIKeyGenerate_Format(t *testing.T) {
	ks := NewAPIKeyServiceForTest()

	plaintext, hash, preview, err := ks.Generate()
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if !strings.HasPrefix(plaintext, apiKeyPrefix) {
		t.Errorf("plaintext %q missing %q prefix", plaintext, apiKeyPrefix)
	}
	if !strings.HasPrefix(hash, "$2") {
		t.Errorf("hash does not look like bcrypt: %q", hash)
	}
	if !strings.HasPrefix(preview, apiKeyPrefix) || !strings.Contains(preview, "…") {
		t.Errorf("preview %q should be a truncated display form", preview)
	}
}

// The stored hash must never reveal the secret: it is not the plaintext,
// and the preview only exposes the edges of the key.
func TestAPIKeyGenerate_SecretNotRecoverable(t *testing.T) {
	ks := NewAPIKeyServiceForTest()

	plaintext, hash, preview, err := ks.Generate()
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if hash == plaintext || strings.Contains(hash, strings.TrimPrefix(plaintext, apiKeyPrefix)) {
		t.Error("hash must not contain the plaintext secret")
	}
	if preview == plaintext {
		t.Error("preview must not be the full plaintext key")
	}
	if len(preview) >= len(plaintext) {
		t.Errorf("preview (%d chars) should be shorter than the key (%d chars)", len(preview), len(plaintext))
	}
}

func TestAPIKeyGenerate_KeysAreUnique(t *testing.T) {
	ks := NewAPIKeyServiceForTest()

	k1, _, _, _ := ks.Generate()
	k2, _, _, _ := ks.Generate()

	if k1 == k2 {
		t.Error("Generate() produced the same key twice")
	}
}

func TestAPIKeyVerify(t *testing.T) {
	ks := NewAPIKeyServiceForTest()

	plaintext, hash, _, err := ks.Generate()
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if !ks.Verify(hash, plaintext) {
		t.Error("Verify() rejected the key it was generated with")
	}
	if ks.Verify(hash, plaintext+"x") {
		t.Error("Verify() accepted a modified key")
	}
	if ks.Verify(hash, "") {
		t.Error("Verify() accepted an empty key")
	}

	other, _, _, _ := ks.Generate()
	if ks.Verify(hash, other) {
		t.Error("Verify() accepted a different connection's key")
	}
}

func TestPreview(t *testing.T) {
	got := Preview("bbx_abcdefghijklmnopqrstuvwxyz123456")
	if !strings.HasPrefix(got, "bbx_abcd") {
		t.Errorf("Preview() = %q, should keep the leading characters", got)
	}
	if !strings.HasSuffix(got, "3456") {
		t.Errorf("Preview() = %q, should keep the trailing characters", got)
	}
	if strings.Contains(got, "ijklmnop") {
		t.Errorf("Preview() = %q, should not expose the middle of the key", got)
	}
}
