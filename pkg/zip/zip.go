package zip

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"time"
)

// Asset is a single file placed into an archive.
type Asset struct {
	Filename string
	MIME     string
	Data     []byte
	Modified time.Time
}

// ArchiveAssets builds an in-memory archive. Assets that cannot be added are
// skipped.
func ArchiveAssets(assets []Asset) []byte {
	buf := &bytes.Buffer{}
	if err := WriteArchive(buf, assets); err != nil {
		return nil
	}
	return buf.Bytes()
}

// WriteArchive streams assets into w as a zip archive. Videos are stored
// without recompression.
func WriteArchive(w io.Writer, assets []Asset) error {
	zw := zip.NewWriter(w)
	seen := make(map[string]struct{}, len(assets))
	for _, asset := range assets {
		if asset.Filename == "" {
			continue
		}
		if _, dup := seen[asset.Filename]; dup {
			return fmt.Errorf("zip: duplicate entry %q", asset.Filename)
		}
		seen[asset.Filename] = struct{}{}

		header := &zip.FileHeader{Name: asset.Filename, Method: zip.Deflate}
		if isCompressed(asset.MIME) {
			header.Method = zip.Store
		}
		if !asset.Modified.IsZero() {
			header.Modified = asset.Modified
		}
		entry, err := zw.CreateHeader(header)
		if err != nil {
			return fmt.Errorf("zip: create %s: %w", asset.Filename, err)
		}
		if _, err := entry.Write(asset.Data); err != nil {
			return fmt.Errorf("zip: write %s: %w", asset.Filename, err)
		}
	}
	return zw.Close()
}

func isCompressed(mime string) bool {
	switch mime {
	case "video/mp4", "image/png", "image/jpeg", "image/webp":
		return true
	}
	return false
}
