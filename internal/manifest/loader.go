package manifest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
)

// Load parses a job manifest from a stream.
func Load(r io.Reader) (*JobManifest, error) {
	var m JobManifest
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return &m, nil
}

// LoadFile parses a job manifest from a file on disk.
func LoadFile(path string) (*JobManifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// LoadTaskData parses task data from a stream.
func LoadTaskData(r io.Reader) (TaskData, error) {
	var td TaskData
	if err := json.NewDecoder(r).Decode(&td); err != nil {
		return nil, fmt.Errorf("parse task data: %w", err)
	}
	return td, nil
}

// FetchTaskData retrieves and parses task data from uri.
func FetchTaskData(ctx context.Context, client *http.Client, uri string) (TaskData, error) {
	body, err := FetchBytes(ctx, client, uri)
	if err != nil {
		return nil, err
	}
	return LoadTaskData(strings.NewReader(string(body)))
}

// FetchBytes retrieves the raw bytes behind uri. http(s) URIs go over the
// given client; file URIs and bare paths are read from disk, which is what
// the inline-manifest submission path hands us.
func FetchBytes(ctx context.Context, client *http.Client, uri string) ([]byte, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("parse uri %q: %w", uri, err)
	}

	switch u.Scheme {
	case "http", "https":
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
		if err != nil {
			return nil, fmt.Errorf("build request for %q: %w", uri, err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetch %q: %w", uri, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("fetch %q: unexpected status %d", uri, resp.StatusCode)
		}
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read %q: %w", uri, err)
		}
		return body, nil
	case "file":
		body, err := os.ReadFile(u.Path)
		if err != nil {
			return nil, fmt.Errorf("read %q: %w", uri, err)
		}
		return body, nil
	case "":
		body, err := os.ReadFile(uri)
		if err != nil {
			return nil, fmt.Errorf("read %q: %w", uri, err)
		}
		return body, nil
	default:
		return nil, fmt.Errorf("unsupported uri scheme %q", u.Scheme)
	}
}
