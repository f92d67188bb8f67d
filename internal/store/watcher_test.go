package store

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"
)

func TestSeedWatcher_ReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := writeSeed(t, dir, seedJSON)
	db := openTestDB(t)

	changed := make(chan struct{}, 4)
	w, err := NewSeedWatcher(path, db, func() { changed <- struct{}{} })
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	defer w.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.Reload(ctx); err != nil {
		t.Fatalf("initial reload: %v", err)
	}
	<-changed
	if err := w.Watch(ctx); err != nil {
		t.Fatalf("watch: %v", err)
	}

	updated := strings.Replace(seedJSON, `"id": "support"`, `"id": "sales"`, 1)
	go func() {
		time.Sleep(100 * time.Millisecond)
		os.WriteFile(path, []byte(updated), 0o644)
	}()

	select {
	case <-changed:
	case <-ctx.Done():
		t.Fatal("timeout waiting for reload")
	}
	if _, err := db.GetAssistant(ctx, "sales"); err != nil {
		t.Errorf("reloaded assistant missing: %v", err)
	}
}

func TestSeedWatcher_BadFileKeepsPreviousConfig(t *testing.T) {
	path := writeSeed(t, t.TempDir(), seedJSON)
	db := openTestDB(t)
	calls := 0
	w, _ := NewSeedWatcher(path, db, func() { calls++ })
	defer w.Stop()

	ctx := context.Background()
	w.Reload(ctx)
	os.WriteFile(path, []byte(`{"assistants": [`), 0o644)
	if err := w.Reload(ctx); err == nil {
		t.Fatal("expected parse error")
	}
	if calls != 1 {
		t.Errorf("onChange must not fire for a bad file, got %d calls", calls)
	}
	if _, err := db.GetAssistant(ctx, "support"); err != nil {
		t.Errorf("previous config lost: %v", err)
	}
}
