package store

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
)

func TestDefaultFileWatcherConfig(t *testing.T) {
	cfg := DefaultFileWatcherConfig()

	if cfg.DebounceInterval != 100*time.Millisecond {
		t.Errorf("DebounceInterval = %v, want 100ms", cfg.DebounceInterval)
	}
	if len(cfg.Extensions) != 2 {
		t.Errorf("len(Extensions) = %d, want 2", len(cfg.Extensions))
	}
	if !cfg.SkipHidden {
		t.Error("SkipHidden = false, want true")
	}
}

func TestNewFileWatcher_DefaultsWhenNil(t *testing.T) {
	fw, err := NewFileWatcher(nil, nil)
	if err != nil {
		t.Fatalf("NewFileWatcher() error = %v", err)
	}
	defer fw.watcher.Close()

	if fw.config == nil {
		t.Fatal("config not defaulted")
	}
	if fw.config.DebounceInterval != 100*time.Millisecond {
		t.Errorf("DebounceInterval = %v, want 100ms", fw.config.DebounceInterval)
	}
	if fw.logger == nil {
		t.Error("logger not defaulted")
	}
}

func TestFileWatcher_StopNotRunning(t *testing.T) {
	fw, err := NewFileWatcher(nil, nil)
	if err != nil {
		t.Fatalf("NewFileWatcher() error = %v", err)
	}
	defer fw.watcher.Close()

	if err := fw.Stop(); err != nil {
		t.Errorf("Stop() on idle watcher error = %v, want nil", err)
	}
}

func TestFileWatcher_ShouldProcessEvent(t *testing.T) {
	fw, err := NewFileWatcher(nil, nil)
	if err != nil {
		t.Fatalf("NewFileWatcher() error = %v", err)
	}
	defer fw.watcher.Close()

	tests := []struct {
		name  string
		event fsnotify.Event
		want  bool
	}{
		{
			name:  "yaml write",
			event: fsnotify.Event{Name: "/rules/gates.yaml", Op: fsnotify.Write},
			want:  true,
		},
		{
			name:  "yml create",
			event: fsnotify.Event{Name: "/rules/limits.yml", Op: fsnotify.Create},
			want:  true,
		},
		{
			name:  "chmod ignored",
			event: fsnotify.Event{Name: "/rules/gates.yaml", Op: fsnotify.Chmod},
			want:  false,
		},
		{
			name:  "wrong extension",
			event: fsnotify.Event{Name: "/rules/notes.txt", Op: fsnotify.Write},
			want:  false,
		},
		{
			name:  "hidden file",
			event: fsnotify.Event{Name: "/rules/.draft.yaml", Op: fsnotify.Write},
			want:  false,
		},
		{
			name:  "rename counts",
			event: fsnotify.Event{Name: "/rules/gates.yaml", Op: fsnotify.Rename},
			want:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := fw.shouldProcessEvent(tt.event); got != tt.want {
				t.Errorf("shouldProcessEvent(%v) = %v, want %v", tt.event, got, tt.want)
			}
		})
	}
}

func TestDebouncer_CollapsesBurst(t *testing.T) {
	d := NewDebouncer(50 * time.Millisecond)

	var fired atomic.Int32
	for i := 0; i < 5; i++ {
		d.Trigger(func() { fired.Add(1) })
	}

	time.Sleep(200 * time.Millisecond)

	if got := fired.Load(); got != 1 {
		t.Errorf("callback fired %d times, want 1", got)
	}
}

func TestDebouncer_Stop(t *testing.T) {
	d := NewDebouncer(50 * time.Millisecond)

	var fired atomic.Int32
	d.Trigger(func() { fired.Add(1) })
	d.Stop()

	time.Sleep(150 * time.Millisecond)

	if got := fired.Load(); got != 0 {
		t.Errorf("callback fired %d times after Stop, want 0", got)
	}
}
