package mountserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/pkg/errors"

	"github.com/labelworks/pachstore/pkg/pfs"
)

// Mount modes accepted by the control plane.
const (
	ModeRead      = "r"
	ModeReadWrite = "rw"
)

// MountStatus is the mount element of a branch in the control plane's
// repository listing.
type MountStatus struct {
	Name       string `json:"name"`
	Mode       string `json:"mode"`
	State      string `json:"state"`
	Status     string `json:"status"`
	Mountpoint string `json:"mountpoint"`
}

// Branch is one branch of a repository as reported by the control plane.
// The mount field is a list; only the first element is meaningful.
type Branch struct {
	Name  string        `json:"name"`
	Mount []MountStatus `json:"mount"`
}

// Repo is one repository as reported by GET /repos. Fetched per call and
// never cached.
type Repo struct {
	Name     string            `json:"name"`
	Branches map[string]Branch `json:"branches"`
}

// Client talks to the mount-server's local HTTP control plane.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: cleanhttp.DefaultPooledClient(),
	}
}

// Repos returns the deserialized response of GET /repos. It doubles as the
// readiness probe: the mount-server answers it as soon as it is up.
func (c *Client) Repos(ctx context.Context) (map[string]Repo, error) {
	endpoint := c.baseURL + "/repos"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build repos request")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list repos")
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, newStatusError("list repos", endpoint, resp)
	}
	repos := make(map[string]Repo)
	if err := json.NewDecoder(resp.Body).Decode(&repos); err != nil {
		return nil, errors.Wrap(err, "failed to decode repos response")
	}
	return repos, nil
}

// MountRepo asks the control plane to mount the ref's branch under the
// ref's "repo@branch" name. Mounting an already mounted name with the same
// mode is idempotent on the server side.
func (c *Client) MountRepo(ctx context.Context, ref pfs.Ref, mode string) error {
	endpoint := fmt.Sprintf("%s/repos/%s/%s/_mount?%s",
		c.baseURL, url.PathEscape(ref.Repository), url.PathEscape(ref.Branch),
		mountQuery(ref.String(), mode))
	return c.put(ctx, "mount repo", endpoint)
}

// UnmountRepo asks the control plane to unmount the ref's branch.
func (c *Client) UnmountRepo(ctx context.Context, ref pfs.Ref) error {
	endpoint := fmt.Sprintf("%s/repos/%s/%s/_unmount?%s",
		c.baseURL, url.PathEscape(ref.Repository), url.PathEscape(ref.Branch),
		mountQuery(ref.String(), ""))
	return c.put(ctx, "unmount repo", endpoint)
}

func (c *Client) put(ctx context.Context, op, endpoint string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, nil)
	if err != nil {
		return errors.Wrapf(err, "failed to build %s request", op)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "failed to %s", op)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return newStatusError(op, endpoint, resp)
	}
	return nil
}

// mountQuery builds the query string by hand: the mount-server expects the
// "@" in the name parameter unescaped.
func mountQuery(name, mode string) string {
	q := "name=" + name
	if mode != "" {
		q += "&mode=" + mode
	}
	return q
}

func newStatusError(op, endpoint string, resp *http.Response) error {
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &pfs.StatusError{
		Op:     op,
		URL:    endpoint,
		Code:   resp.StatusCode,
		Detail: strings.TrimSpace(string(detail)),
	}
}
