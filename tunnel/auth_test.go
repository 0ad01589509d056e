package tunnel

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/crypto/ssh"

	ncerr "modemlink/internal/errors"
	"modemlink/util"
)

// TestBuildAuthMethods_ExplicitKey verifies that a key file is loaded.
func TestBuildAuthMethods_ExplicitKey(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "id_test")
	writeTestKey(t, keyPath, nil)

	methods, err := BuildAuthMethods(&SSHConfig{KeyPath: keyPath})
	if err != nil {
		t.Fatalf("BuildAuthMethods: %v", err)
	}
	if len(methods) != 1 {
		t.Fatalf("expected one auth method, got %d", len(methods))
	}
}

// TestBuildAuthMethods_EncryptedKey verifies the passphrase prompt is
// used for encrypted keys.
func TestBuildAuthMethods_EncryptedKey(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "id_enc")
	writeTestKey(t, keyPath, []byte("s3cret"))

	prompts := 0
	restore := readSecret
	readSecret = func(string) ([]byte, error) {
		prompts++
		return []byte("s3cret"), nil
	}
	t.Cleanup(func() { readSecret = restore })

	if _, err := BuildAuthMethods(&SSHConfig{KeyPath: keyPath}); err != nil {
		t.Fatalf("BuildAuthMethods: %v", err)
	}
	if prompts != 1 {
		t.Errorf("prompted %d times, want 1", prompts)
	}
}

// TestBuildAuthMethods_Password verifies the password prompt.
func TestBuildAuthMethods_Password(t *testing.T) {
	restore := readSecret
	readSecret = func(string) ([]byte, error) { return []byte("pw"), nil }
	t.Cleanup(func() { readSecret = restore })

	methods, err := BuildAuthMethods(&SSHConfig{PromptPass: true})
	if err != nil {
		t.Fatalf("BuildAuthMethods: %v", err)
	}
	if len(methods) != 1 {
		t.Errorf("expected one auth method, got %d", len(methods))
	}
}

// TestBuildAuthMethods_MissingKey verifies a clear error message.
func TestBuildAuthMethods_MissingKey(t *testing.T) {
	t.Setenv("SSH_AUTH_SOCK", "")

	if _, err := BuildAuthMethods(&SSHConfig{KeyPath: "/nonexistent/key"}); err == nil {
		t.Fatal("expected error for missing key")
	}
}

// TestBuildAuthMethods_AgentUnset verifies UseAgent fails without a socket.
func TestBuildAuthMethods_AgentUnset(t *testing.T) {
	t.Setenv("SSH_AUTH_SOCK", "")

	if _, err := BuildAuthMethods(&SSHConfig{UseAgent: true}); err == nil {
		t.Fatal("expected error without SSH_AUTH_SOCK")
	}
}

// TestHostKeyCallback_Insecure verifies that InsecureIgnoreHostKey is used
// when StrictHostKey is false.
func TestHostKeyCallback_Insecure(t *testing.T) {
	cb, err := hostKeyCallback(&SSHConfig{StrictHostKey: false})
	if err != nil {
		t.Fatal(err)
	}
	if cb == nil {
		t.Fatal("callback should not be nil")
	}
}

// TestHostKeyCallback_MissingKnownHosts verifies strict mode needs a file.
func TestHostKeyCallback_MissingKnownHosts(t *testing.T) {
	cfg := &SSHConfig{StrictHostKey: true, KnownHosts: filepath.Join(t.TempDir(), "absent")}
	if _, err := hostKeyCallback(cfg); err == nil {
		t.Fatal("expected error for missing known_hosts")
	}
}

// TestSSHTunnel_DialBeforeConnect verifies Dial needs a live tunnel.
func TestSSHTunnel_DialBeforeConnect(t *testing.T) {
	tun := NewSSHTunnel(&SSHConfig{Host: "bastion"}, util.NopLogger())
	if tun.config.Port != DefaultPort {
		t.Errorf("port = %d, want default %d", tun.config.Port, DefaultPort)
	}
	if tun.IsAlive() {
		t.Error("fresh tunnel should not be alive")
	}
	_, err := tun.Dial(context.Background(), "tcp", "10.0.0.2:6000")
	if !errors.Is(err, ncerr.ErrNotConnected) {
		t.Errorf("Dial = %v, want ErrNotConnected", err)
	}
	if err := tun.Close(); err != nil {
		t.Errorf("Close on unconnected tunnel: %v", err)
	}
}

// ── helpers ──────────────────────────────────────────────────────────

// writeTestKey generates an ed25519 key and writes it in OpenSSH
// format, encrypted when passphrase is non-nil.
func writeTestKey(t *testing.T, path string, passphrase []byte) {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}

	var block *pem.Block
	if passphrase != nil {
		block, err = ssh.MarshalPrivateKeyWithPassphrase(priv, "test@modemlink", passphrase)
	} else {
		block, err = ssh.MarshalPrivateKey(priv, "test@modemlink")
	}
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}
	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0o600); err != nil {
		t.Fatal(err)
	}
}
