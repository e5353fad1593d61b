package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func startWatcher(t *testing.T, path string, opts ...WatcherOption[Settings]) *Watcher[Settings] {
	t.Helper()
	opts = append([]WatcherOption[Settings]{WithDebounce[Settings](50 * time.Millisecond)}, opts...)
	w := NewConfigWatcher(path, LoadSettings, newTestLogger(), opts...)
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := w.Stop(); err != nil {
			t.Errorf("Stop: %v", err)
		}
	})
	// Let the watch goroutine settle before touching the file.
	time.Sleep(50 * time.Millisecond)
	return w
}

func receive(t *testing.T, ch <-chan Settings) Settings {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for reload")
		return Settings{}
	}
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	path := writeFile(t, "settings.toml", "quality = 80\n")
	w := startWatcher(t, path)

	received := make(chan Settings, 1)
	w.OnReload(func(s Settings) { received <- s })

	if err := os.WriteFile(path, []byte("quality = 42\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := receive(t, received); got.Quality != 42 {
		t.Errorf("got quality %d, want 42", got.Quality)
	}
}

func TestWatcherFollowsAtomicReplace(t *testing.T) {
	path := writeFile(t, "settings.toml", "quality = 80\n")
	w := startWatcher(t, path)

	received := make(chan Settings, 1)
	w.OnReload(func(s Settings) { received <- s })

	tmp := filepath.Join(filepath.Dir(path), ".settings.toml.swp")
	if err := os.WriteFile(tmp, []byte("resolution = \"640x480\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatal(err)
	}
	if got := receive(t, received); got.Resolution != "640x480" {
		t.Errorf("got resolution %q, want 640x480", got.Resolution)
	}

	// The watch survives the replace.
	if err := os.WriteFile(path, []byte("quality = 10\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := receive(t, received); got.Quality != 10 {
		t.Errorf("got quality %d after replace, want 10", got.Quality)
	}
}

func TestWatcherIgnoresSiblingFiles(t *testing.T) {
	path := writeFile(t, "settings.toml", "quality = 80\n")
	w := startWatcher(t, path)

	var calls atomic.Int32
	w.OnReload(func(Settings) { calls.Add(1) })

	if err := os.WriteFile(filepath.Join(filepath.Dir(path), "other.toml"), []byte("x = 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(200 * time.Millisecond)
	if n := calls.Load(); n != 0 {
		t.Errorf("handler called %d times for a sibling file", n)
	}
}

func TestWatcherMultipleHandlersAndUnsubscribe(t *testing.T) {
	path := writeFile(t, "settings.toml", "quality = 80\n")
	w := startWatcher(t, path)

	first := make(chan Settings, 2)
	second := make(chan Settings, 2)
	unsubscribe := w.OnReload(func(s Settings) { first <- s })
	w.OnReload(func(s Settings) { second <- s })

	if err := os.WriteFile(path, []byte("quality = 50\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	a, b := receive(t, first), receive(t, second)
	if a != b {
		t.Errorf("handlers saw different snapshots: %+v vs %+v", a, b)
	}

	unsubscribe()
	if err := os.WriteFile(path, []byte("quality = 51\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := receive(t, second); got.Quality != 51 {
		t.Errorf("got quality %d, want 51", got.Quality)
	}
	select {
	case s := <-first:
		t.Errorf("unsubscribed handler received %+v", s)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWatcherErrorHandler(t *testing.T) {
	path := writeFile(t, "settings.toml", "quality = 80\n")
	errs := make(chan error, 1)
	w := startWatcher(t, path, WithErrorHandler[Settings](func(err error) { errs <- err }))

	var calls atomic.Int32
	w.OnReload(func(Settings) { calls.Add(1) })

	if err := os.WriteFile(path, []byte("quality = 500\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	select {
	case err := <-errs:
		if !errors.Is(err, ErrInvalidSettings) {
			t.Errorf("got %v, want ErrInvalidSettings", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("error handler not called")
	}
	if calls.Load() != 0 {
		t.Error("reload handler called for invalid settings")
	}
}

func TestWatcherDebounce(t *testing.T) {
	path := writeFile(t, "settings.toml", "quality = 80\n")
	w := startWatcher(t, path, WithDebounce[Settings](200*time.Millisecond))

	var mu sync.Mutex
	var seen []int
	w.OnReload(func(s Settings) {
		mu.Lock()
		seen = append(seen, s.Quality)
		mu.Unlock()
	})

	for q := 1; q <= 5; q++ {
		if err := os.WriteFile(path, []byte("quality = "+string(rune('0'+q))+"\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		time.Sleep(20 * time.Millisecond)
	}
	time.Sleep(500 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 1 || seen[0] != 5 {
		t.Errorf("got reloads %v, want [5]", seen)
	}
}

func TestWatcherStartMissingDirectory(t *testing.T) {
	w := NewConfigWatcher(filepath.Join(t.TempDir(), "absent", "settings.toml"), LoadSettings, newTestLogger())
	if err := w.Start(); err == nil {
		_ = w.Stop()
		t.Error("expected error watching a missing directory")
	}
}

func TestWatcherStopIdempotent(t *testing.T) {
	w := NewConfigWatcher(writeFile(t, "settings.toml", ""), LoadSettings, newTestLogger())
	if err := w.Stop(); err != nil {
		t.Errorf("Stop before Start: %v", err)
	}
}

func TestWatcherSkipsUnchangedSave(t *testing.T) {
	path := writeFile(t, "settings.toml", "quality = 80\n")
	w := startWatcher(t, path)

	received := make(chan Settings, 2)
	w.OnReload(func(s Settings) { received <- s })

	if err := os.WriteFile(path, []byte("quality = 80\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	select {
	case s := <-received:
		t.Fatalf("handler called for identical content: %+v", s)
	case <-time.After(300 * time.Millisecond):
	}

	if err := os.WriteFile(path, []byte("quality = 81\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := receive(t, received); got.Quality != 81 {
		t.Errorf("got quality %d, want 81", got.Quality)
	}
}

func TestWatcherReloadForces(t *testing.T) {
	path := writeFile(t, "settings.toml", "quality = 33\n")
	w := NewConfigWatcher(path, LoadSettings, newTestLogger())

	received := make(chan Settings, 2)
	w.OnReload(func(s Settings) { received <- s })

	for range 2 {
		if err := w.Reload(); err != nil {
			t.Fatalf("Reload: %v", err)
		}
		if got := receive(t, received); got.Quality != 33 {
			t.Errorf("got quality %d, want 33", got.Quality)
		}
	}

	if err := os.WriteFile(path, []byte("quality = 0\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := w.Reload(); !errors.Is(err, ErrInvalidSettings) {
		t.Errorf("got %v, want ErrInvalidSettings", err)
	}
}
