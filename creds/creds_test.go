package creds

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadGeneratesStableIdentity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "credentials.json")
	store := NewFileStore(path)

	first, err := store.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if first.DeviceID == "" {
		t.Fatal("Expected a generated device id")
	}

	second, err := store.Load()
	if err != nil {
		t.Fatalf("Second load failed: %v", err)
	}
	if second.DeviceID != first.DeviceID {
		t.Errorf("Device id changed between loads: %s vs %s", first.DeviceID, second.DeviceID)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("Expected mode 0600, got %o", perm)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	store := NewFileStore(path)

	want := Credentials{DeviceID: "dev-1", DeviceName: "hub", Token: "secret", RelayURL: "wss://relay.example"}
	if err := store.Save(want); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got != want {
		t.Errorf("Round trip mismatch: got %+v, want %+v", got, want)
	}
}

func TestLoadBackfillsMissingDeviceID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	if err := os.WriteFile(path, []byte(`{"token":"secret"}`), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	got, err := NewFileStore(path).Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got.DeviceID == "" {
		t.Error("Expected a backfilled device id")
	}
	if got.Token != "secret" {
		t.Errorf("Token lost: %+v", got)
	}
}
