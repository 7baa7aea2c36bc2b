package infra

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/disintegration/imaging"
)

// IconDownloader fetches and caches asset icons for the registry.
// Icons are resized to a uniform square so consumers render them directly.
type IconDownloader struct {
	basePath string
	client   *http.Client
}

// NewIconDownloader creates an IconDownloader rooted at the per-user
// application data directory.
func NewIconDownloader() (*IconDownloader, error) {
	path, err := iconsPath()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve icons path: %w", err)
	}

	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create icons directory: %w", err)
	}

	// Optimize HTTP Transport to prevent connection leaks
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConns = 100
	transport.MaxConnsPerHost = 10
	transport.IdleConnTimeout = 30 * time.Second

	return &IconDownloader{
		basePath: path,
		client: &http.Client{
			Timeout:   10 * time.Second,
			Transport: transport,
		},
	}, nil
}

// DownloadIcon downloads the icon for an asset code if not already cached.
// Returns the local file path on success. Images are resized to 32x32.
func (d *IconDownloader) DownloadIcon(code string) (string, error) {
	// Security: sanitize the code to prevent path traversal
	safeCode := sanitizeCode(code)
	if safeCode == "" {
		return "", fmt.Errorf("invalid asset code: %s", code)
	}

	fileName := strings.ToLower(safeCode) + ".png"
	filePath := filepath.Join(d.basePath, fileName)

	// Cache hit
	if _, err := os.Stat(filePath); err == nil {
		return filePath, nil
	}

	url := fmt.Sprintf("https://assets.coincap.io/assets/icons/%s@2x.png", strings.ToLower(safeCode))

	resp, err := d.client.Get(url)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("bad status: %s", resp.Status)
	}

	srcImg, err := imaging.Decode(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to decode image: %w", err)
	}

	resizedImg := imaging.Resize(srcImg, 32, 32, imaging.Lanczos)

	if err := imaging.Save(resizedImg, filePath); err != nil {
		return "", fmt.Errorf("failed to save resized image: %w", err)
	}

	return filePath, nil
}

// IconPath returns the local path an asset's icon would be cached at.
func (d *IconDownloader) IconPath(code string) string {
	return filepath.Join(d.basePath, strings.ToLower(code)+".png")
}

func iconsPath() (string, error) {
	var configDir string
	var err error

	if runtime.GOOS == "windows" {
		configDir = os.Getenv("LOCALAPPDATA")
		if configDir == "" {
			configDir, err = os.UserConfigDir()
		}
	} else {
		configDir, err = os.UserConfigDir()
	}

	if err != nil {
		return "", err
	}

	return filepath.Join(configDir, "LedgerGo", "assets", "icons"), nil
}

func sanitizeCode(code string) string {
	res := make([]rune, 0, len(code))
	for _, r := range code {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			res = append(res, r)
		}
	}
	return string(res)
}
