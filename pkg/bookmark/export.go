package bookmark

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// exportFile is the top-level shape of an exported bookmark file.
type exportFile struct {
	Bookmarks []*Bookmark `yaml:"bookmarks"`
}

// Export writes bookmarks as YAML.
func Export(w io.Writer, bookmarks []*Bookmark) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(exportFile{Bookmarks: bookmarks}); err != nil {
		return fmt.Errorf("encode bookmarks: %w", err)
	}
	return enc.Close()
}

// Import reads bookmarks written by Export.
func Import(r io.Reader) ([]*Bookmark, error) {
	var f exportFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode bookmarks: %w", err)
	}
	for i, b := range f.Bookmarks {
		if b == nil {
			return nil, fmt.Errorf("bookmark %d is empty", i)
		}
	}
	return f.Bookmarks, nil
}

// ExportFile writes bookmarks to path.
func ExportFile(path string, bookmarks []*Bookmark) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := Export(f, bookmarks); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// ImportFile reads bookmarks from path.
func ImportFile(path string) ([]*Bookmark, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return Import(f)
}
