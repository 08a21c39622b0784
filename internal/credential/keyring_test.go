package credential

import (
	"errors"
	"testing"

	"github.com/99designs/keyring"
)

func TestStore(t *testing.T) {
	s := New(keyring.NewArrayKeyring(nil))

	if _, err := s.Token(); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := s.SetToken("abc"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.SetToken("def"); err != nil {
		t.Fatalf("replace: %v", err)
	}
	tok, err := s.Token()
	if err != nil || tok != "def" {
		t.Fatalf("expected def, got %q (%v)", tok, err)
	}

	if err := s.DeleteToken(); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.DeleteToken(); err != nil {
		t.Fatalf("second delete should be a no-op, got %v", err)
	}
	if _, err := s.Token(); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestOpenFileBackend(t *testing.T) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName:      serviceName,
		AllowedBackends:  []keyring.BackendType{keyring.FileBackend},
		FileDir:          t.TempDir(),
		FilePasswordFunc: keyring.FixedStringPrompt("test"),
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	s := New(ring)
	if err := s.SetToken("file-token"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if tok, err := s.Token(); err != nil || tok != "file-token" {
		t.Fatalf("expected file-token, got %q (%v)", tok, err)
	}
}
