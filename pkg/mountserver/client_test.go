package mountserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	. "github.com/onsi/gomega"
	"github.com/pkg/errors"

	"github.com/labelworks/pachstore/pkg/pfs"
)

const reposPayload = `{
  "images": {
    "name": "images",
    "branches": {
      "master": {
        "name": "master",
        "mount": [
          {"name": "images@master", "mode": "r", "state": "mounted", "status": "", "mountpoint": "/pfs/images@master"}
        ]
      }
    }
  }
}`

func TestReposDecodesListing(t *testing.T) {
	g := NewWithT(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g.Expect(r.URL.Path).To(Equal("/repos"))
		_, _ = w.Write([]byte(reposPayload))
	}))
	defer server.Close()

	repos, err := NewClient(server.URL).Repos(context.Background())
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(repos).To(HaveKey("images"))

	branch := repos["images"].Branches["master"]
	g.Expect(branch.Mount).To(HaveLen(1))
	g.Expect(branch.Mount[0].State).To(Equal("mounted"))
	g.Expect(branch.Mount[0].Mountpoint).To(Equal("/pfs/images@master"))
}

func TestMountRepoRequest(t *testing.T) {
	g := NewWithT(t)

	var gotPath, gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g.Expect(r.Method).To(Equal(http.MethodPut))
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
	}))
	defer server.Close()

	ref := pfs.ParseRef("images@dev")
	err := NewClient(server.URL).MountRepo(context.Background(), ref, ModeReadWrite)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(gotPath).To(Equal("/repos/images/dev/_mount"))
	g.Expect(gotQuery).To(Equal("name=images@dev&mode=rw"))
}

func TestUnmountRepoRequest(t *testing.T) {
	g := NewWithT(t)

	var gotPath, gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
	}))
	defer server.Close()

	ref := pfs.ParseRef("images@dev")
	err := NewClient(server.URL).UnmountRepo(context.Background(), ref)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(gotPath).To(Equal("/repos/images/dev/_unmount"))
	g.Expect(gotQuery).To(Equal("name=images@dev"))
}

func TestControlPlaneErrorPropagates(t *testing.T) {
	g := NewWithT(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "repo does not exist", http.StatusNotFound)
	}))
	defer server.Close()

	err := NewClient(server.URL).MountRepo(context.Background(), pfs.ParseRef("gone@master"), ModeRead)
	var statusErr *pfs.StatusError
	g.Expect(errors.As(err, &statusErr)).To(BeTrue())
	g.Expect(statusErr.Code).To(Equal(http.StatusNotFound))
}
