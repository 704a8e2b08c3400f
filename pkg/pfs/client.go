package pfs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/pkg/errors"
	"github.com/rs/xid"
	log "github.com/sirupsen/logrus"
)

// Client talks to a pachd gateway over HTTP. One client is shared by every
// storage configuration targeting the same address; the protocol is
// stateless per call, so clients are never closed.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient constructs a client for the given gateway address. The
// underlying transport does not retry; retry policy belongs to callers.
func NewClient(address string) (*Client, error) {
	u, err := url.Parse(address)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse pachd address %q", address)
	}
	if u.Scheme == "" {
		u.Scheme = "http"
	}
	return &Client{
		baseURL:    strings.TrimRight(u.String(), "/"),
		httpClient: cleanhttp.DefaultPooledClient(),
	}, nil
}

// FileInfo describes one entry of a commit's file tree.
type FileInfo struct {
	Path      string `json:"path"`
	FileType  string `json:"file_type"`
	SizeBytes int64  `json:"size_bytes"`
}

// escapePath escapes every segment of a file path for use in a request
// URL, keeping the separators. Keys may carry characters like "?" or "#"
// that would otherwise terminate the path.
func escapePath(path string) string {
	segments := strings.Split(strings.TrimPrefix(path, "/"), "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return strings.Join(segments, "/")
}

type listFilesResponse struct {
	Files         []FileInfo `json:"files"`
	NextPageToken string     `json:"next_page_token"`
}

type branchInfo struct {
	Name string `json:"name"`
	Head string `json:"head"`
}

// ResolveCommit looks up the head commit of a branch. It returns ErrNotFound
// if the repository or branch does not exist.
func (c *Client) ResolveCommit(ctx context.Context, ref Ref) (string, error) {
	var info branchInfo
	err := c.getJSON(ctx, fmt.Sprintf("/projects/%s/repos/%s/branches/%s",
		url.PathEscape(ref.Project), url.PathEscape(ref.Repository), url.PathEscape(ref.Branch)), &info)
	if err != nil {
		if IsNotFound(err) {
			return "", errors.Wrapf(ErrNotFound, "branch %s of repo %s", ref.Branch, ref.Repository)
		}
		return "", err
	}
	if info.Head == "" {
		return "", errors.Wrapf(ErrNotFound, "branch %s of repo %s has no head commit", ref.Branch, ref.Repository)
	}
	return info.Head, nil
}

// CommitExists checks whether the given commit exists in the repository.
func (c *Client) CommitExists(ctx context.Context, ref Ref, commit string) (bool, error) {
	err := c.getJSON(ctx, fmt.Sprintf("/projects/%s/repos/%s/commits/%s",
		url.PathEscape(ref.Project), url.PathEscape(ref.Repository), url.PathEscape(commit)), &struct{}{})
	if err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ListFiles enumerates the regular files reachable under path in the given
// commit, following the gateway's pagination. The listing is a snapshot of
// one immutable commit, so a single pass sees each path exactly once.
func (c *Client) ListFiles(ctx context.Context, ref Ref, commit, path string) ([]FileInfo, error) {
	var files []FileInfo
	pageToken := ""
	for {
		endpoint := fmt.Sprintf("/projects/%s/repos/%s/commits/%s/files?path=%s",
			url.PathEscape(ref.Project), url.PathEscape(ref.Repository), url.PathEscape(commit), url.QueryEscape(path))
		if pageToken != "" {
			endpoint += "&page_token=" + url.QueryEscape(pageToken)
		}
		var page listFilesResponse
		if err := c.getJSON(ctx, endpoint, &page); err != nil {
			return nil, err
		}
		for _, fi := range page.Files {
			if fi.FileType == "file" {
				files = append(files, fi)
			}
		}
		if page.NextPageToken == "" {
			return files, nil
		}
		pageToken = page.NextPageToken
	}
}

// GetFile streams the contents of one file in the given commit. The caller
// owns the returned reader.
func (c *Client) GetFile(ctx context.Context, ref Ref, commit, path string) (io.ReadCloser, error) {
	endpoint := fmt.Sprintf("%s/projects/%s/repos/%s/commits/%s/files/%s",
		c.baseURL, url.PathEscape(ref.Project), url.PathEscape(ref.Repository), url.PathEscape(commit),
		escapePath(path))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build get file request")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get file %s", path)
	}
	if resp.StatusCode/100 != 2 {
		defer resp.Body.Close()
		return nil, statusError("get file", endpoint, resp)
	}
	return resp.Body, nil
}

// PendingCommit is an open write transaction against a branch. Files put
// into it become visible to readers only once Finish succeeds; abandoning
// it leaves the branch at its previous head.
type PendingCommit struct {
	client *Client
	ref    Ref
	id     string
}

// ID returns the open commit's identifier.
func (p *PendingCommit) ID() string {
	return p.id
}

// OpenCommit starts a new commit on the ref's branch.
func (c *Client) OpenCommit(ctx context.Context, ref Ref) (*PendingCommit, error) {
	var created struct {
		ID string `json:"id"`
	}
	endpoint := fmt.Sprintf("/projects/%s/repos/%s/branches/%s/commits",
		url.PathEscape(ref.Project), url.PathEscape(ref.Repository), url.PathEscape(ref.Branch))
	if err := c.doJSON(ctx, http.MethodPost, endpoint, nil, &created); err != nil {
		return nil, errors.Wrapf(err, "failed to open commit on %s", ref.URI())
	}
	log.WithField("ref", ref.URI()).WithField("commit", created.ID).Debug("Opened commit")
	return &PendingCommit{client: c, ref: ref, id: created.ID}, nil
}

// PutFile writes one file into the open commit, replacing any existing file
// at the same path.
func (p *PendingCommit) PutFile(ctx context.Context, path string, data io.Reader) error {
	endpoint := fmt.Sprintf("%s/projects/%s/repos/%s/commits/%s/files/%s",
		p.client.baseURL, url.PathEscape(p.ref.Project), url.PathEscape(p.ref.Repository),
		url.PathEscape(p.id), escapePath(path))
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, data)
	if err != nil {
		return errors.Wrap(err, "failed to build put file request")
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("X-Request-Id", xid.New().String())
	resp, err := p.client.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "failed to put file %s", path)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return statusError("put file", endpoint, resp)
	}
	return nil
}

// Finish closes the open commit, making its contents visible atomically.
func (p *PendingCommit) Finish(ctx context.Context) error {
	endpoint := fmt.Sprintf("/projects/%s/repos/%s/commits/%s/_finish",
		url.PathEscape(p.ref.Project), url.PathEscape(p.ref.Repository), url.PathEscape(p.id))
	if err := p.client.doJSON(ctx, http.MethodPost, endpoint, nil, nil); err != nil {
		return errors.Wrapf(err, "failed to finish commit %s", p.id)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	return c.doJSON(ctx, http.MethodGet, endpoint, nil, out)
}

func (c *Client) doJSON(ctx context.Context, method, endpoint string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "failed to marshal request body")
		}
		body = bytes.NewReader(buf)
	}
	fullURL := c.baseURL + endpoint
	req, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		return errors.Wrap(err, "failed to build request")
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method != http.MethodGet {
		req.Header.Set("X-Request-Id", xid.New().String())
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "request to %s failed", fullURL)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return statusError(method+" "+endpoint, fullURL, resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "failed to decode response from %s", fullURL)
	}
	return nil
}

func statusError(op, fullURL string, resp *http.Response) error {
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &StatusError{
		Op:     op,
		URL:    fullURL,
		Code:   resp.StatusCode,
		Detail: strings.TrimSpace(string(detail)),
	}
}
