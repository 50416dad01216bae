// ABOUTME: Artwork downloader for stream art_url metadata (spec §4.E Properties.art_url)
// ABOUTME: Downloads images from URLs and caches them on disk keyed by URL hash; raw art bytes are cached by content hash
package artwork

import (
	"crypto/sha256"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// Downloader manages artwork downloads
type Downloader struct {
	cacheDir    string
	currentPath string
	client      *http.Client
}

// NewDownloader creates a new artwork downloader
func NewDownloader() (*Downloader, error) {
	cacheDir := filepath.Join(os.TempDir(), "relaycast-artwork")
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	return &Downloader{
		cacheDir: cacheDir,
		client:   &http.Client{},
	}, nil
}

// Download fetches artwork from URL and saves to cache
func (d *Downloader) Download(url string) (string, error) {
	if url == "" {
		return "", nil
	}

	// Create a cache key from URL hash
	hash := sha256.Sum256([]byte(url))
	ext := getExtension(url)
	filename := fmt.Sprintf("%x%s", hash[:8], ext)
	cachePath := filepath.Join(d.cacheDir, filename)

	// Check if already cached
	if _, err := os.Stat(cachePath); err == nil {
		log.Printf("Artwork cache hit: %s", cachePath)
		d.currentPath = cachePath
		return cachePath, nil
	}

	// Download
	log.Printf("Downloading artwork: %s", url)
	resp, err := d.client.Get(url)
	if err != nil {
		return "", fmt.Errorf("failed to download artwork: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("artwork download failed: HTTP %d", resp.StatusCode)
	}

	// Save to file
	f, err := os.Create(cachePath)
	if err != nil {
		return "", fmt.Errorf("failed to create cache file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, resp.Body); err != nil {
		os.Remove(cachePath)
		return "", fmt.Errorf("failed to save artwork: %w", err)
	}

	log.Printf("Artwork saved: %s", cachePath)
	d.currentPath = cachePath
	return cachePath, nil
}

// CurrentPath returns the path to the current artwork
func (d *Downloader) CurrentPath() string {
	return d.currentPath
}

// CacheBytes writes raw image bytes (a stream's Properties.art_data) to
// the cache directory, keyed by content hash, and returns a file:// URL
// suitable for Properties.art_url. Per spec §4.E, the raw bytes are
// dropped from outgoing property broadcasts once this URL is assigned.
func (d *Downloader) CacheBytes(data []byte) (string, error) {
	if len(data) == 0 {
		return "", nil
	}

	hash := sha256.Sum256(data)
	ext := extensionForContent(data)
	filename := fmt.Sprintf("%x%s", hash[:8], ext)
	cachePath := filepath.Join(d.cacheDir, filename)

	if _, err := os.Stat(cachePath); err != nil {
		if err := os.WriteFile(cachePath, data, 0o644); err != nil {
			return "", fmt.Errorf("failed to cache artwork bytes: %w", err)
		}
	}
	d.currentPath = cachePath
	return "file://" + cachePath, nil
}

func extensionForContent(data []byte) string {
	switch http.DetectContentType(data) {
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}

// getExtension extracts file extension from URL
func getExtension(url string) string {
	// Remove query string
	url = strings.Split(url, "?")[0]

	// Get extension
	ext := filepath.Ext(url)
	if ext == "" {
		ext = ".jpg" // Default to JPEG
	}

	return ext
}

// Cleanup removes old cached artwork
func (d *Downloader) Cleanup() error {
	return os.RemoveAll(d.cacheDir)
}
