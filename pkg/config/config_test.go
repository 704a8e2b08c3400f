package config

import (
	"os"
	"path/filepath"
	"testing"

	. "github.com/onsi/gomega"

	"github.com/labelworks/pachstore/common"
)

func TestLoadConfigDefaults(t *testing.T) {
	g := NewWithT(t)

	cfg, err := LoadConfig("")
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(cfg.MountRoot).To(Equal(common.DefaultMountRoot))
	g.Expect(cfg.MountServerURL).To(Equal(common.DefaultMountServerURL))
	g.Expect(cfg.DatabasePath).To(Equal("pachstore.db"))
	g.Expect(cfg.ReadyTimeoutSec).To(Equal(30))
	g.Expect(cfg.MountWaitSec).To(Equal(30))
}

func TestLoadConfigFile(t *testing.T) {
	g := NewWithT(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	g.Expect(os.WriteFile(path, []byte(`
mount_root: /mnt/pfs
pachd_address: http://pachd.example.com:80
mount_wait_sec: 5
`), 0644)).To(Succeed())

	cfg, err := LoadConfig(path)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(cfg.MountRoot).To(Equal("/mnt/pfs"))
	g.Expect(cfg.PachdAddress).To(Equal("http://pachd.example.com:80"))
	g.Expect(cfg.MountWaitSec).To(Equal(5))

	// unset fields keep their defaults
	g.Expect(cfg.MountServerURL).To(Equal(common.DefaultMountServerURL))
	g.Expect(cfg.ReadyTimeoutSec).To(Equal(30))
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	g := NewWithT(t)

	t.Setenv("PACHD_ADDRESS", "http://other:80")
	t.Setenv("MOUNT_SERVER_URL", "http://localhost:9999")

	path := filepath.Join(t.TempDir(), "config.yaml")
	g.Expect(os.WriteFile(path, []byte("pachd_address: http://file:80\n"), 0644)).To(Succeed())

	cfg, err := LoadConfig(path)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(cfg.PachdAddress).To(Equal("http://other:80"))
	g.Expect(cfg.MountServerURL).To(Equal("http://localhost:9999"))
}

func TestLoadConfigMissingFile(t *testing.T) {
	g := NewWithT(t)

	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	g.Expect(err).To(HaveOccurred())
}
