package image

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/yshirai/genimage/internal/security"
	"github.com/yshirai/genimage/pkg/models"
)

// maxDownloadSize caps URL downloads. Generated PNGs are a few MB;
// anything larger is a misbehaving endpoint.
const maxDownloadSize = 50 << 20

type Saver struct {
	httpClient *http.Client
	policy     *security.URLPolicy
}

func NewSaver(policy *security.URLPolicy) *Saver {
	if policy == nil {
		policy = security.DefaultURLPolicy()
	}
	return &Saver{
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		policy: policy,
	}
}

// SavedFile records where an image landed and how large it is.
type SavedFile struct {
	Path  string
	Bytes int
}

// Save writes one image to path, downloading it first when the
// provider returned a URL instead of inline data. It returns the
// number of bytes written.
func (s *Saver) Save(ctx context.Context, img *models.GeneratedImage, path string) (int, error) {
	var data []byte
	var err error

	if len(img.Data) > 0 {
		data = img.Data
	} else if img.URL != "" {
		data, err = s.downloadFromURL(ctx, img.URL)
		if err != nil {
			return 0, fmt.Errorf("failed to download image: %w", err)
		}
	} else {
		return 0, fmt.Errorf("no image data available")
	}

	if err := s.ensureDir(path); err != nil {
		return 0, fmt.Errorf("failed to create directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return 0, fmt.Errorf("failed to write file: %w", err)
	}

	img.Filename = path
	return len(data), nil
}

// SaveAll writes every image in the response. With a single image the
// file lands at basePath; with several, an index suffix is appended
// before the extension.
func (s *Saver) SaveAll(ctx context.Context, resp *models.Response, basePath string) ([]SavedFile, error) {
	saved := make([]SavedFile, 0, len(resp.Images))

	for i := range resp.Images {
		path := generatePath(basePath, i, len(resp.Images))
		n, err := s.Save(ctx, &resp.Images[i], path)
		if err != nil {
			return saved, fmt.Errorf("failed to save image %d: %w", i+1, err)
		}
		saved = append(saved, SavedFile{Path: path, Bytes: n})
	}

	return saved, nil
}

func (s *Saver) downloadFromURL(ctx context.Context, url string) ([]byte, error) {
	if err := s.policy.Validate(url); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed with status: %d", resp.StatusCode)
	}
	if resp.ContentLength > maxDownloadSize {
		return nil, fmt.Errorf("image too large: %d bytes (max %d)", resp.ContentLength, maxDownloadSize)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadSize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxDownloadSize {
		return nil, fmt.Errorf("image too large: exceeds %d bytes", maxDownloadSize)
	}
	return data, nil
}

func (s *Saver) ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0755)
}

func generatePath(basePath string, index, total int) string {
	if basePath == "" {
		basePath = "image.png"
	}
	if total == 1 {
		return basePath
	}
	ext := filepath.Ext(basePath)
	base := basePath[:len(basePath)-len(ext)]
	return fmt.Sprintf("%s-%d%s", base, index+1, ext)
}
