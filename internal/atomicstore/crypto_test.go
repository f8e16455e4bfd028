package atomicstore

import (
	"path/filepath"
	"testing"
)

func TestWriteReadEncryptedRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "secret.json")

	want := doc{Name: "alpha", Count: 3}
	if err := WriteJSONEncrypted(path, "correct horse battery staple", want); err != nil {
		t.Fatalf("WriteJSONEncrypted: %v", err)
	}

	var got doc
	ok, err := ReadJSONEncrypted(path, "correct horse battery staple", &got)
	if err != nil {
		t.Fatalf("ReadJSONEncrypted: %v", err)
	}
	if !ok {
		t.Fatalf("ReadJSONEncrypted: expected ok=true")
	}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestReadJSONEncryptedMissingFile(t *testing.T) {
	dir := t.TempDir()
	var got doc
	ok, err := ReadJSONEncrypted(filepath.Join(dir, "missing.json"), "passphrase", &got)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Errorf("expected ok=false for a missing file")
	}
}

func TestReadJSONEncryptedWrongPassphraseErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "secret.json")

	if err := WriteJSONEncrypted(path, "correct horse battery staple", doc{Name: "alpha"}); err != nil {
		t.Fatalf("WriteJSONEncrypted: %v", err)
	}

	var got doc
	_, err := ReadJSONEncrypted(path, "wrong passphrase", &got)
	if err == nil {
		t.Fatal("expected an error for a wrong passphrase, got nil")
	}
}

func TestWriteJSONEncryptedDoesNotProduceValidPlainJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "secret.json")

	if err := WriteJSONEncrypted(path, "passphrase", doc{Name: "alpha", Count: 3}); err != nil {
		t.Fatalf("WriteJSONEncrypted: %v", err)
	}

	var got doc
	ok, err := ReadJSON(path, &got)
	if err != nil {
		t.Fatalf("ReadJSON: unexpected error %v", err)
	}
	if ok {
		t.Errorf("expected an encrypted envelope to not parse as plain JSON")
	}
}
