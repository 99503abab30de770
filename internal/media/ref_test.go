package media

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"media-cache/internal/mediatypes"
)

func TestRef_Key(t *testing.T) {
	tests := []struct {
		ref  *Ref
		want string
	}{
		{NewPathRef("/srv/a.jpg"), "/srv/a.jpg"},
		{NewPathRef("https://example.com/b.png"), "https://example.com/b.png"},
		{NewResourceRef(42), "res:42"},
	}
	for _, tt := range tests {
		if got := tt.ref.Key(); got != tt.want {
			t.Errorf("Key() = %q, want %q", got, tt.want)
		}
		if got := ParseRef(tt.want).Key(); got != tt.want {
			t.Errorf("ParseRef(%q).Key() = %q", tt.want, got)
		}
	}

	if ParseRef("res:abc").IsResource() {
		t.Error("res: with a non-numeric id should be a path ref")
	}
}

func TestRef_Locators(t *testing.T) {
	p := NewPathRef("/a.jpg")
	if _, ok := p.ResourceID(); ok || p.IsResource() {
		t.Error("path ref reports a resource id")
	}

	r := NewResourceRef(7)
	if id, ok := r.ResourceID(); !ok || id != 7 {
		t.Errorf("ResourceID() = %d, %v", id, ok)
	}
	if r.Path() != "" {
		t.Errorf("resource ref Path() = %q, want empty", r.Path())
	}
}

func TestRef_Category(t *testing.T) {
	if got := NewPathRef("/x/report.xlsx").Category(); got != mediatypes.MicrosoftExcel {
		t.Errorf("Category() = %v, want microsoft_excel", got)
	}

	r := NewResourceRef(1)
	if got := r.Category(); got != mediatypes.NotAFile {
		t.Errorf("uncached resource Category() = %v, want not_a_file", got)
	}
	r.SetCachedPath("/cache/images/mediacache_picture_1.png")
	if got := r.Category(); got != mediatypes.Image {
		t.Errorf("cached resource Category() = %v, want image", got)
	}
}

func TestRef_IsStoredLocally(t *testing.T) {
	dir := t.TempDir()
	local := writeFile(t, dir, "local.jpg", []byte("x"))
	cached := writeFile(t, dir, "cached.jpg", []byte("y"))

	if !NewPathRef(local).IsStoredLocally() {
		t.Error("existing original path should be stored locally")
	}
	if NewPathRef(dir).IsStoredLocally() {
		t.Error("a directory is not stored locally")
	}

	remote := NewPathRef("https://example.com/a.jpg")
	if remote.IsStoredLocally() {
		t.Error("remote ref without cache should not be stored locally")
	}
	remote.SetCachedPath(cached)
	if !remote.IsStoredLocally() || remote.LocalPath() != cached {
		t.Errorf("LocalPath() = %q, want %q", remote.LocalPath(), cached)
	}

	res := NewResourceRef(3)
	if res.IsStoredLocally() {
		t.Error("uncached resource should not be stored locally")
	}
	res.SetCachedPath(cached)
	if !res.IsStoredLocally() {
		t.Error("cached resource should be stored locally")
	}
}

func TestRef_DeletingFileKeepsCachedPath(t *testing.T) {
	cached := writeFile(t, t.TempDir(), "c.png", []byte("z"))
	r := NewPathRef("https://example.com/c.png")
	r.SetCachedPath(cached)

	if err := os.Remove(cached); err != nil {
		t.Fatal(err)
	}
	if r.IsStoredLocally() {
		t.Error("deleted file should not count as stored locally")
	}
	if r.CachedPath() != cached {
		t.Errorf("CachedPath() = %q, want %q", r.CachedPath(), cached)
	}
}

func TestRef_ConcurrentSetCachedPath(t *testing.T) {
	r := NewPathRef("https://example.com/a.jpg")
	dir := t.TempDir()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r.SetCachedPath(filepath.Join(dir, "x"))
			_ = r.CachedPath()
			_ = r.IsStoredLocally()
		}(i)
	}
	wg.Wait()
}
