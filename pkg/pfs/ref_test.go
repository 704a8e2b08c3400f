package pfs

import (
	"testing"

	. "github.com/onsi/gomega"
)

func TestParseRefRoundTrip(t *testing.T) {
	g := NewWithT(t)

	for _, raw := range []string{"images@master", "videos@dev", "a@b"} {
		ref := ParseRef(raw)
		g.Expect(ref.String()).To(Equal(raw))
	}
}

func TestParseRefDefaults(t *testing.T) {
	g := NewWithT(t)

	ref := ParseRef("images")
	g.Expect(ref.Repository).To(Equal("images"))
	g.Expect(ref.Branch).To(Equal("master"))
	g.Expect(ref.Project).To(Equal("default"))
	g.Expect(ref.String()).To(Equal("images@master"))
}

func TestParseRefWithProject(t *testing.T) {
	g := NewWithT(t)

	ref := ParseRef("video/clips@dev")
	g.Expect(ref.Project).To(Equal("video"))
	g.Expect(ref.Repository).To(Equal("clips"))
	g.Expect(ref.Branch).To(Equal("dev"))
	g.Expect(ref.URI()).To(Equal("video/clips@dev"))
}

func TestRefPinned(t *testing.T) {
	g := NewWithT(t)

	ref := ParseRef("images@master").Pinned("abc123")
	g.Expect(ref.Commit).To(Equal("abc123"))
	g.Expect(ref.URI()).To(Equal("default/images@abc123"))
	// the canonical mount name stays branch-based
	g.Expect(ref.String()).To(Equal("images@master"))
}

func TestRefEqualIgnoresCommit(t *testing.T) {
	g := NewWithT(t)

	a := ParseRef("images@master")
	b := a.Pinned("abc123")
	g.Expect(a.Equal(b)).To(BeTrue())
	g.Expect(a.Equal(ParseRef("images@dev"))).To(BeFalse())
}
