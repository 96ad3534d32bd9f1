// Package media fetches remote images referenced by mapped gallery columns
// and stages them on disk so the record store can attach them.
package media

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"listimport/internal/listing"
)

const fetchTimeout = 5 * time.Second

// Maximum accepted image payload. Larger downloads are cut off and the
// attachment dropped.
const maxImageBytes = 20 * 1024 * 1024

// Importer downloads media into a staging directory.
type Importer struct {
	dir  string
	http *http.Client
}

// NewImporter stages downloads under dir, defaulting to the system temp
// directory.
func NewImporter(dir string) *Importer {
	if dir == "" {
		dir = os.TempDir()
	}
	return &Importer{dir: dir, http: &http.Client{Timeout: fetchTimeout}}
}

// FetchAndAttach downloads one image and returns the staged attachment.
func (m *Importer) FetchAndAttach(ctx context.Context, rawURL string) (listing.Attachment, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return listing.Attachment{}, err
	}
	resp, err := m.http.Do(req)
	if err != nil {
		return listing.Attachment{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return listing.Attachment{}, fmt.Errorf("fetch media: unexpected status %d", resp.StatusCode)
	}

	id := uuid.NewString()
	dst := filepath.Join(m.dir, "media-"+id)
	out, err := os.Create(dst)
	if err != nil {
		return listing.Attachment{}, err
	}
	defer out.Close()
	if _, err := io.Copy(out, io.LimitReader(resp.Body, maxImageBytes)); err != nil {
		os.Remove(dst)
		return listing.Attachment{}, err
	}
	return listing.Attachment{ID: id, URL: rawURL}, nil
}
