package files

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/farxc/tiss_wrapper/internal/logger"
)

const userAgent = "tiss-wrapper/0.1"

// DefaultClient is used by Collect for remote inputs.
var DefaultClient = &http.Client{Timeout: 5 * time.Minute}

// IsRemote reports whether input is an http(s) URL rather than a local path.
func IsRemote(input string) bool {
	return strings.HasPrefix(input, "http://") || strings.HasPrefix(input, "https://")
}

// Fetch downloads rawURL into destDir and returns the local path. The file
// keeps the URL's .zip extension when it has one and is stored as .xml
// otherwise.
func Fetch(ctx context.Context, client *http.Client, rawURL, destDir string, appLogger *logger.Logger) (string, error) {
	const component = "Downloader"

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid url %s: %w", rawURL, err)
	}
	ext := ".xml"
	if strings.EqualFold(path.Ext(u.Path), ".zip") {
		ext = ".zip"
	}

	appLogger.Debug(component, "Starting download: url=%s", rawURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request for %s: %w", rawURL, err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request to %s failed: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		appLogger.Warn(component, "Non-OK HTTP response: url=%s status=%s", rawURL, resp.Status)
		return "", fmt.Errorf("download %s: unexpected status %s", rawURL, resp.Status)
	}

	out, err := SaveSource(destDir, resp.Body, ext)
	if err != nil {
		return "", err
	}

	appLogger.Info(component, "Download completed: url=%s path=%s", rawURL, out)
	return out, nil
}
