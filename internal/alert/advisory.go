// internal/alert/advisory.go
package alert

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
)

const maxAdvisoryChars = 1500

// AdvisoryFetcher pulls an HTML advisory page and reduces it to a short
// markdown summary suitable for inlining in a notification.
type AdvisoryFetcher struct {
	client *http.Client
}

// NewAdvisoryFetcher creates a fetcher with a bounded timeout.
func NewAdvisoryFetcher() *AdvisoryFetcher {
	return &AdvisoryFetcher{
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

// Summary fetches the URL and converts its HTML to truncated markdown.
func (a *AdvisoryFetcher) Summary(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "ThreatSight/1.0")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch advisory: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP error: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}

	md, err := htmltomarkdown.ConvertString(string(body))
	if err != nil {
		return "", fmt.Errorf("convert to markdown: %w", err)
	}

	if len(md) > maxAdvisoryChars {
		md = md[:maxAdvisoryChars] + "\n\n[Advisory truncated]"
	}
	return md, nil
}
