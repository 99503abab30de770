package playlist

import (
	"bufio"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"media-cache/internal/fetch"
)

// WPL structure based on Windows Media Player playlist format
type WPL struct {
	XMLName xml.Name `xml:"smil"`
	Head    WPLHead  `xml:"head"`
	Body    WPLBody  `xml:"body"`
}

type WPLHead struct {
	Title string `xml:"title"`
}

type WPLBody struct {
	Seq WPLSeq `xml:"seq"`
}

type WPLSeq struct {
	Media []WPLMedia `xml:"media"`
}

type WPLMedia struct {
	Src string `xml:"src,attr"`
}

// Playlist is a named, ordered list of cache sources.
type Playlist struct {
	Name    string   `json:"name"`
	Path    string   `json:"path"`
	Sources []string `json:"sources"`
}

// Parse reads the playlist at path. ".wpl" files are parsed as WPL XML;
// anything else as M3U, which also covers plain one-source-per-line lists.
// Relative sources resolve against the playlist's directory.
func Parse(path string) (*Playlist, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dir := filepath.Dir(path)
	var pl *Playlist
	if strings.EqualFold(filepath.Ext(path), ".wpl") {
		pl, err = ParseWPL(f, dir)
	} else {
		pl, err = ParseM3U(f, dir)
	}
	if err != nil {
		return nil, fmt.Errorf("parse playlist %s: %w", path, err)
	}

	pl.Path = path
	if pl.Name == "" {
		pl.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return pl, nil
}

// ParseWPL reads a Windows Media Player playlist.
func ParseWPL(r io.Reader, baseDir string) (*Playlist, error) {
	var wpl WPL
	if err := xml.NewDecoder(r).Decode(&wpl); err != nil {
		return nil, err
	}

	pl := &Playlist{Name: strings.TrimSpace(wpl.Head.Title)}
	for _, media := range wpl.Body.Seq.Media {
		if src := Resolve(media.Src, baseDir); src != "" {
			pl.Sources = append(pl.Sources, src)
		}
	}
	return pl, nil
}

// ParseM3U reads an M3U or extended M3U playlist. Comment and directive
// lines are skipped; "#PLAYLIST:" names the list.
func ParseM3U(r io.Reader, baseDir string) (*Playlist, error) {
	pl := &Playlist{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), "\uFEFF"))
		if name, ok := strings.CutPrefix(line, "#PLAYLIST:"); ok {
			pl.Name = strings.TrimSpace(name)
			continue
		}
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if src := Resolve(line, baseDir); src != "" {
			pl.Sources = append(pl.Sources, src)
		}
	}
	return pl, scanner.Err()
}

// Resolve turns a playlist entry into a cache source. URLs and resource
// keys are kept; Windows separators become slashes. Relative paths join
// baseDir. Absolute paths from another machine (drive letters, UNC shares)
// are looked up by file name in baseDir.
func Resolve(src, baseDir string) string {
	src = strings.TrimSpace(src)
	if src == "" || fetch.IsRemote(src) || strings.HasPrefix(src, "res:") {
		return src
	}

	if rest, ok := strings.CutPrefix(src, "file://"); ok {
		src = rest
	}
	src = strings.ReplaceAll(src, "\\", "/")

	if isForeignAbs(src) {
		return filepath.Join(baseDir, filepath.Base(filepath.FromSlash(src)))
	}
	src = filepath.FromSlash(src)
	if filepath.IsAbs(src) {
		return filepath.Clean(src)
	}
	return filepath.Join(baseDir, src)
}

func isForeignAbs(src string) bool {
	if strings.HasPrefix(src, "//") {
		return true
	}
	return len(src) >= 3 && src[1] == ':' && src[2] == '/' &&
		((src[0] >= 'a' && src[0] <= 'z') || (src[0] >= 'A' && src[0] <= 'Z'))
}
