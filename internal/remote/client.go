package remote

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tidwall/gjson"

	"github.com/alexjbarnes/cloudsync/internal/errors"
	"github.com/alexjbarnes/cloudsync/internal/models"
)

const (
	// maxRedirects is the maximum number of HTTP redirects to follow
	// before giving up, matching the default net/http limit.
	maxRedirects = 10

	// httpClientTimeout is the timeout for the default HTTP client used
	// when no custom client is provided.
	httpClientTimeout = 30 * time.Second

	// maxAPIResponseBytes caps response body reads to prevent a
	// misbehaving server from consuming unbounded memory.
	maxAPIResponseBytes = 4 * 1024 * 1024

	// maxPathProbes bounds the collision-free path search. Past this
	// many occupied variants a timestamp suffix guarantees uniqueness.
	maxPathProbes = 100
)

// Client implements Source over the service's JSON API.
type Client struct {
	httpClient *http.Client
	authToken  string
}

// sameHostRedirectPolicy follows redirects only when the target host
// matches the original request host. This prevents the auth token from
// leaking to third-party domains.
func sameHostRedirectPolicy(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return stderrors.New("stopped after 10 redirects")
	}

	if len(via) > 0 {
		origHost := via[0].URL.Host
		if req.URL.Host != origHost {
			return fmt.Errorf("redirect to different host blocked: %s -> %s", origHost, req.URL.Host)
		}
	}

	return nil
}

// NewClient creates an API client authenticating with the given bearer
// token. If httpClient is nil, a client with a 30-second timeout and
// same-host redirect policy is created.
func NewClient(httpClient *http.Client, authToken string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:       httpClientTimeout,
			CheckRedirect: sameHostRedirectPolicy,
		}
	}

	return &Client{
		httpClient: httpClient,
		authToken:  authToken,
	}
}

// sanitizeResponseBody truncates and sanitizes a response body for
// inclusion in error messages. Limits to 256 bytes and replaces
// non-printable characters to prevent log injection.
func sanitizeResponseBody(body []byte) string {
	const maxLen = 256
	if len(body) > maxLen {
		body = body[:maxLen]
	}

	var b strings.Builder

	for len(body) > 0 {
		r, size := utf8.DecodeRune(body)
		if r == utf8.RuneError && size == 1 {
			b.WriteRune('?')
		} else if r == '\n' || r == '\t' || r >= 0x20 {
			b.WriteRune(r)
		} else {
			b.WriteRune('?')
		}

		body = body[size:]
	}

	return b.String()
}

// do executes one API request and returns the response body. Error
// statuses are mapped onto the shared sentinel kinds so callers can
// decide recovery with errors.Is.
func (c *Client) do(ctx context.Context, method, rawURL string, body any) ([]byte, error) {
	var reqBody io.Reader

	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}

		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.authToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAPIResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s %s", errors.ErrNotFound, method, req.URL.Path)
	case resp.StatusCode == http.StatusConflict || resp.StatusCode == http.StatusPreconditionFailed:
		return nil, fmt.Errorf("%w: %s %s", errors.ErrConflict, method, req.URL.Path)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("%w: status %d: %s", errors.ErrAPIRequest, resp.StatusCode, sanitizeResponseBody(data))
	}

	return data, nil
}

// endpoint builds a space-scoped API URL with query parameters.
func endpoint(baseURL, action string, params map[string]string) string {
	q := url.Values{}
	for k, v := range params {
		q.Set(k, v)
	}

	return strings.TrimSuffix(baseURL, "/") + "/" + action + "?" + q.Encode()
}

// ListFolder returns the folder's own metadata followed by its direct
// children.
func (c *Client) ListFolder(ctx context.Context, baseURL, remotePath string) ([]Entry, error) {
	data, err := c.do(ctx, http.MethodGet, endpoint(baseURL, "list", map[string]string{"path": remotePath}), nil)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", remotePath, err)
	}

	files := gjson.GetBytes(data, "files")
	if !files.IsArray() {
		return nil, fmt.Errorf("%w: listing has no files array", errors.ErrAPIResponse)
	}

	var entries []Entry

	files.ForEach(func(_, item gjson.Result) bool {
		entries = append(entries, entryFromJSON(item))
		return true
	})

	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: listing for %s is empty", errors.ErrAPIResponse, remotePath)
	}

	return entries, nil
}

// ReadFile returns the metadata of a single remote file or folder.
func (c *Client) ReadFile(ctx context.Context, baseURL, remotePath string) (*Entry, error) {
	data, err := c.do(ctx, http.MethodGet, endpoint(baseURL, "meta", map[string]string{"path": remotePath}), nil)
	if err != nil {
		return nil, fmt.Errorf("reading metadata of %s: %w", remotePath, err)
	}

	entry := entryFromJSON(gjson.GetBytes(data, "file"))
	if entry.RemotePath == "" {
		return nil, fmt.Errorf("%w: metadata for %s has no path", errors.ErrAPIResponse, remotePath)
	}

	return &entry, nil
}

// CreateFolder creates a remote folder and returns its remote id.
func (c *Client) CreateFolder(ctx context.Context, baseURL, remotePath string) (string, error) {
	data, err := c.do(ctx, http.MethodPost, endpoint(baseURL, "mkdir", nil), map[string]string{"path": remotePath})
	if err != nil {
		return "", fmt.Errorf("creating folder %s: %w", remotePath, err)
	}

	return gjson.GetBytes(data, "id").Str, nil
}

// Copy copies a remote file or folder and returns the copy's remote id.
func (c *Client) Copy(ctx context.Context, baseURL, sourcePath, targetPath string) (string, error) {
	data, err := c.do(ctx, http.MethodPost, endpoint(baseURL, "copy", nil), map[string]string{
		"source":      sourcePath,
		"destination": targetPath,
	})
	if err != nil {
		return "", fmt.Errorf("copying %s to %s: %w", sourcePath, targetPath, err)
	}

	return gjson.GetBytes(data, "id").Str, nil
}

// Move moves a remote file or folder to a new path.
func (c *Client) Move(ctx context.Context, baseURL, sourcePath, targetPath string) error {
	_, err := c.do(ctx, http.MethodPost, endpoint(baseURL, "move", nil), map[string]string{
		"source":      sourcePath,
		"destination": targetPath,
	})
	if err != nil {
		return fmt.Errorf("moving %s to %s: %w", sourcePath, targetPath, err)
	}

	return nil
}

// Rename renames a remote file or folder in place.
func (c *Client) Rename(ctx context.Context, baseURL, oldPath, newPath string) error {
	_, err := c.do(ctx, http.MethodPost, endpoint(baseURL, "rename", nil), map[string]string{
		"source":      oldPath,
		"destination": newPath,
	})
	if err != nil {
		return fmt.Errorf("renaming %s to %s: %w", oldPath, newPath, err)
	}

	return nil
}

// Delete removes a remote file or folder.
func (c *Client) Delete(ctx context.Context, baseURL, remotePath string) error {
	_, err := c.do(ctx, http.MethodDelete, endpoint(baseURL, "files", map[string]string{"path": remotePath}), nil)
	if err != nil {
		return fmt.Errorf("deleting %s: %w", remotePath, err)
	}

	return nil
}

// AvailablePath probes the server for a collision-free variant of the
// candidate path. The candidate itself is returned when free; otherwise
// " (N)" is inserted before the extension (after the name for folders)
// until a free path is found.
func (c *Client) AvailablePath(ctx context.Context, baseURL, candidatePath string, isFolder bool) (string, error) {
	for i := 0; i <= maxPathProbes; i++ {
		probe := pathVariant(candidatePath, isFolder, i)

		_, err := c.ReadFile(ctx, baseURL, probe)
		if stderrors.Is(err, errors.ErrNotFound) {
			return probe, nil
		}

		if err != nil {
			return "", err
		}
	}

	// Give up probing; a timestamp guarantees uniqueness.
	return pathVariantSuffix(candidatePath, isFolder, fmt.Sprintf(" (%d)", time.Now().UnixMilli())), nil
}

// Spaces returns the storage spaces of the authenticated account. The
// server URL here is the account base, not a space base: spaces are
// what base URLs are resolved from.
func (c *Client) Spaces(ctx context.Context, serverURL string) ([]models.Space, error) {
	data, err := c.do(ctx, http.MethodGet, endpoint(serverURL, "spaces", nil), nil)
	if err != nil {
		return nil, fmt.Errorf("listing spaces: %w", err)
	}

	var spaces []models.Space

	gjson.GetBytes(data, "spaces").ForEach(func(_, item gjson.Result) bool {
		spaces = append(spaces, models.Space{
			ID:        item.Get("id").Str,
			Name:      item.Get("name").Str,
			WebDavURL: item.Get("webDavUrl").Str,
		})

		return true
	})

	return spaces, nil
}

func entryFromJSON(item gjson.Result) Entry {
	return Entry{
		RemoteID:   item.Get("id").Str,
		RemotePath: item.Get("path").Str,
		MimeType:   item.Get("mimeType").Str,
		Length:     item.Get("length").Int(),
		ModifiedAt: item.Get("modifiedAt").Int(),
		Etag:       item.Get("etag").Str,
	}
}

// pathVariant returns the i-th collision variant of a path: the path
// itself for i == 0, then " (1)", " (2)", ...
func pathVariant(path string, isFolder bool, i int) string {
	if i == 0 {
		return path
	}

	return pathVariantSuffix(path, isFolder, fmt.Sprintf(" (%d)", i))
}

func pathVariantSuffix(path string, isFolder bool, suffix string) string {
	if isFolder {
		return strings.TrimSuffix(path, models.PathSeparator) + suffix + models.PathSeparator
	}

	dir := models.PathParent(path)
	base := models.PathFileName(path)

	ext := ""
	if idx := strings.LastIndex(base, "."); idx > 0 {
		ext = base[idx:]
		base = base[:idx]
	}

	return dir + base + suffix + ext
}
