package filesystem

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"
)

// recordingObserver captures observer calls for assertions.
type recordingObserver struct {
	mu       sync.Mutex
	ops      []string
	volumes  []string
	outcomes map[RetryOutcome]int
}

func (r *recordingObserver) ObserveOperation(volume, operation string, _ float64, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, operation)
	r.volumes = append(r.volumes, volume)
}

func (r *recordingObserver) ObserveRetry(_, _ string, outcome RetryOutcome) {
	r.mu.Lock()
	r.outcomes[outcome]++
	r.mu.Unlock()
}

func (r *recordingObserver) count(outcome RetryOutcome) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.outcomes[outcome]
}

func withObserver(t *testing.T) *recordingObserver {
	t.Helper()
	original := defaultObserver
	rec := &recordingObserver{outcomes: make(map[RetryOutcome]int)}
	SetObserver(rec)
	t.Cleanup(func() { defaultObserver = original })
	return rec
}

func fastConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     4 * time.Millisecond,
	}
}

func TestDefaultRetryConfig(t *testing.T) {
	config := DefaultRetryConfig()

	if config.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", config.MaxRetries)
	}
	if config.InitialBackoff != 50*time.Millisecond {
		t.Errorf("InitialBackoff = %v, want 50ms", config.InitialBackoff)
	}
	if config.MaxBackoff != 500*time.Millisecond {
		t.Errorf("MaxBackoff = %v, want 500ms", config.MaxBackoff)
	}
	if config.VolumeResolver != nil {
		t.Error("VolumeResolver should be nil by default")
	}
}

func TestIsNFSStaleError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error", nil, false},
		{"ESTALE error", syscall.ESTALE, true},
		{"wrapped ESTALE", &os.PathError{Op: "stat", Path: "/x", Err: syscall.ESTALE}, true},
		{"ENOENT error", syscall.ENOENT, false},
		{"generic error", os.ErrNotExist, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isNFSStaleError(tt.err); got != tt.want {
				t.Errorf("isNFSStaleError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWithRetry_RecoversFromStaleHandle(t *testing.T) {
	rec := withObserver(t)

	calls := 0
	got, err := withRetry("stat", "/cache/x", fastConfig(), func() (int, error) {
		calls++
		if calls < 3 {
			return 0, syscall.ESTALE
		}
		return 42, nil
	})

	if err != nil {
		t.Fatalf("withRetry() error = %v", err)
	}
	if got != 42 {
		t.Errorf("withRetry() = %d, want 42", got)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	stale, attempts := rec.count(RetryStale), rec.count(RetryAttempt)
	recovered, exhausted := rec.count(RetryRecovered), rec.count(RetryExhausted)
	if stale != 2 || attempts != 2 || recovered != 1 || exhausted != 0 {
		t.Errorf("observer stale=%d attempts=%d recovered=%d exhausted=%d",
			stale, attempts, recovered, exhausted)
	}
}

func TestWithRetry_GivesUpAfterMaxRetries(t *testing.T) {
	rec := withObserver(t)

	calls := 0
	_, err := withRetry("open", "/cache/x", fastConfig(), func() (struct{}, error) {
		calls++
		return struct{}{}, syscall.ESTALE
	})

	if !isNFSStaleError(err) {
		t.Fatalf("withRetry() error = %v, want ESTALE", err)
	}
	if calls != 4 {
		t.Errorf("calls = %d, want 4 (1 + MaxRetries)", calls)
	}
	if got := rec.count(RetryExhausted); got != 1 {
		t.Errorf("exhausted = %d, want 1", got)
	}
	if len(rec.ops) != 1 || rec.ops[0] != "open" {
		t.Errorf("ops = %v, want [open]", rec.ops)
	}
}

func TestWithRetry_DoesNotRetryOtherErrors(t *testing.T) {
	withObserver(t)

	calls := 0
	_, err := withRetry("stat", "/cache/x", fastConfig(), func() (int, error) {
		calls++
		return 0, syscall.ENOENT
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestStatWithRetry(t *testing.T) {
	rec := withObserver(t)
	tmpDir := t.TempDir()

	config := fastConfig()
	config.VolumeResolver = NewVolumeResolver(map[string]string{"cache": tmpDir})

	testFile := filepath.Join(tmpDir, "a.jpg")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	info, err := StatWithRetry(testFile, config)
	if err != nil {
		t.Fatalf("StatWithRetry() error = %v", err)
	}
	if info.Size() != 4 {
		t.Errorf("Size() = %d, want 4", info.Size())
	}

	_, err = StatWithRetry(filepath.Join(tmpDir, "missing"), config)
	if !os.IsNotExist(err) {
		t.Errorf("StatWithRetry(missing) error = %v, want not exist", err)
	}

	for _, v := range rec.volumes {
		if v != "cache" {
			t.Errorf("volume label = %q, want cache", v)
		}
	}
}

func TestOpenWithRetry(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "a.txt")
	if err := os.WriteFile(testFile, []byte("hello"), 0o644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	f, err := OpenWithRetry(testFile, fastConfig())
	if err != nil {
		t.Fatalf("OpenWithRetry() error = %v", err)
	}
	defer f.Close()

	buf := make([]byte, 5)
	if _, err := f.Read(buf); err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if string(buf) != "hello" {
		t.Errorf("content = %q, want hello", buf)
	}
}

func TestCreateTempWithRetry_AndRename(t *testing.T) {
	tmpDir := t.TempDir()
	dest := filepath.Join(tmpDir, "out.bin")
	if err := os.WriteFile(dest, []byte("previous content"), 0o644); err != nil {
		t.Fatal(err)
	}

	f, err := CreateTempWithRetry(tmpDir, ".out.bin-*", 0o640, fastConfig())
	if err != nil {
		t.Fatalf("CreateTempWithRetry() error = %v", err)
	}
	if !strings.HasPrefix(filepath.Base(f.Name()), ".out.bin-") {
		t.Errorf("temp name = %s", f.Name())
	}
	info, err := f.Stat()
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o640 {
		t.Errorf("mode = %v, want 0640", info.Mode().Perm())
	}
	if _, err := f.Write([]byte("new")); err != nil {
		t.Fatal(err)
	}
	f.Close()

	if err := RenameWithRetry(f.Name(), dest, fastConfig()); err != nil {
		t.Fatalf("RenameWithRetry() error = %v", err)
	}
	data, _ := os.ReadFile(dest)
	if string(data) != "new" {
		t.Errorf("content = %q, want new", data)
	}
	if _, err := os.Stat(f.Name()); !os.IsNotExist(err) {
		t.Errorf("temp file still present: %v", err)
	}
}

func TestCreateTempWithRetry_MissingDir(t *testing.T) {
	if _, err := CreateTempWithRetry(filepath.Join(t.TempDir(), "missing"), "x-*", 0o644, fastConfig()); err == nil {
		t.Error("CreateTempWithRetry() in a missing directory should fail")
	}
}

func TestMkdirAllWithRetry_Idempotent(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b", "c")

	for i := 0; i < 2; i++ {
		if err := MkdirAllWithRetry(dir, 0o755, fastConfig()); err != nil {
			t.Fatalf("MkdirAllWithRetry() call %d error = %v", i+1, err)
		}
	}

	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		t.Fatalf("directory not created: %v", err)
	}
}

func TestMkdirAllWithRetry_Concurrent(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "images")

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- MkdirAllWithRetry(dir, 0o755, fastConfig())
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("concurrent MkdirAllWithRetry() error = %v", err)
		}
	}
}

func TestMkdirAllWithRetry_FileInTheWay(t *testing.T) {
	tmpDir := t.TempDir()
	blocker := filepath.Join(tmpDir, "blocker")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	if err := MkdirAllWithRetry(filepath.Join(blocker, "sub"), 0o755, fastConfig()); err == nil {
		t.Error("expected error when a file blocks the path")
	}
}

func TestIsRegularFile(t *testing.T) {
	tmpDir := t.TempDir()
	file := filepath.Join(tmpDir, "f")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		path string
		want bool
	}{
		{file, true},
		{tmpDir, false},
		{filepath.Join(tmpDir, "missing"), false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsRegularFile(tt.path); got != tt.want {
			t.Errorf("IsRegularFile(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestTreeSize(t *testing.T) {
	root := t.TempDir()
	write := func(rel string, n int) {
		t.Helper()
		p := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, make([]byte, n), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	write("loose.bin", 10)
	write("images/a.jpg", 100)
	write("images/b.png", 50)
	write("audios/c.mp3", 7)
	write("images/deep/ignored.jpg", 1000)

	size, count, err := TreeSize(root)
	if err != nil {
		t.Fatalf("TreeSize() error = %v", err)
	}
	if size != 167 {
		t.Errorf("size = %d, want 167", size)
	}
	if count != 4 {
		t.Errorf("count = %d, want 4", count)
	}
}

func TestTreeSize_MissingRoot(t *testing.T) {
	if _, _, err := TreeSize(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("expected error for missing root")
	}
}
