// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package sessionfile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/loomchat/loom/lib/ref"
	"github.com/loomchat/loom/lib/secret"
)

func newBuffer(t *testing.T, value string) *secret.Buffer {
	t.Helper()
	buffer, err := secret.NewFromBytes([]byte(value))
	if err != nil {
		t.Fatalf("NewFromBytes: %v", err)
	}
	t.Cleanup(func() { buffer.Close() })
	return buffer
}

func TestSealSaveLoadUnseal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loom", "session.json")
	passphrase := newBuffer(t, "correct horse battery staple")
	token := newBuffer(t, "syt_secret_token")

	session := &Session{
		UserID:     ref.MustParseUserID("@alice:loom.chat"),
		DeviceID:   "LOOMDEV1",
		Homeserver: "https://loom.chat",
	}
	if err := session.Seal(token, passphrase); err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if strings.Contains(session.SealedToken, "syt_secret_token") {
		t.Fatal("sealed token contains the plaintext")
	}
	if err := Save(session, path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		t.Errorf("file mode = %o, want 0600", mode)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.UserID != session.UserID || loaded.DeviceID != "LOOMDEV1" {
		t.Errorf("loaded = %+v", loaded)
	}

	unsealed, err := loaded.Unseal(passphrase)
	if err != nil {
		t.Fatalf("Unseal: %v", err)
	}
	defer unsealed.Close()
	if got := unsealed.String(); got != "syt_secret_token" {
		t.Errorf("unsealed token = %q", got)
	}
}

func TestUnseal_WrongPassphrase(t *testing.T) {
	passphrase := newBuffer(t, "right")
	token := newBuffer(t, "tok")
	session := &Session{}
	if err := session.Seal(token, passphrase); err != nil {
		t.Fatalf("Seal: %v", err)
	}

	wrong := newBuffer(t, "wrong")
	if _, err := session.Unseal(wrong); err == nil {
		t.Fatal("expected error for wrong passphrase")
	}
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err == nil || !strings.Contains(err.Error(), "loom-login") {
		t.Fatalf("err = %v, want pointer to loom-login", err)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "{"},
		{"no user_id", `{"homeserver":"https://x","sealed_token":"abc"}`},
		{"no homeserver", `{"user_id":"@a:x","sealed_token":"abc"}`},
		{"no sealed_token", `{"user_id":"@a:x","homeserver":"https://x"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "session.json")
			if err := os.WriteFile(path, []byte(tt.body), 0600); err != nil {
				t.Fatalf("WriteFile: %v", err)
			}
			if _, err := Load(path); err == nil {
				t.Error("expected error")
			}
		})
	}
}
