package client

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/billsnap/internal/identity"
)

var _ = Describe("Session", func() {
	var (
		session *Session
		user    identity.User
	)

	BeforeEach(func() {
		session = NewSession()
		user = identity.User{UID: "uid-1", Email: "asha@example.com"}
	})

	It("starts signed out", func() {
		_, ok := session.Current()
		Expect(ok).To(BeFalse())
		Expect(session.Token()).To(BeEmpty())
	})

	It("reports the signed-in user", func() {
		session.SignIn(user, "token-1", time.Now().Add(time.Hour))
		current, ok := session.Current()
		Expect(ok).To(BeTrue())
		Expect(current).To(Equal(user))
		Expect(session.Token()).To(Equal("token-1"))
	})

	It("treats an expired session as signed out", func() {
		session.SignIn(user, "token-1", time.Now().Add(-time.Minute))
		_, ok := session.Current()
		Expect(ok).To(BeFalse())
		Expect(session.Token()).To(BeEmpty())
	})

	Describe("Observe", func() {
		var seen []*identity.User

		BeforeEach(func() {
			seen = nil
		})

		It("reports the current user immediately and every change after", func() {
			unobserve := session.Observe(func(u *identity.User) {
				seen = append(seen, u)
			})

			session.SignIn(user, "token-1", time.Time{})
			session.SignOut()
			unobserve()
			session.SignIn(user, "token-2", time.Time{})

			Expect(seen).To(HaveLen(3))
			Expect(seen[0]).To(BeNil())
			Expect(*seen[1]).To(Equal(user))
			Expect(seen[2]).To(BeNil())
		})

		It("does not report signing out twice", func() {
			session.Observe(func(u *identity.User) {
				seen = append(seen, u)
			})
			session.SignOut()
			Expect(seen).To(HaveLen(1))
		})
	})

	Describe("Save and Load", func() {
		var path string

		BeforeEach(func() {
			path = filepath.Join(GinkgoT().TempDir(), "billsnap", "session.json")
		})

		It("round trips a signed-in session", func() {
			expiresAt := time.Now().Add(time.Hour).Truncate(time.Second)
			session.SignIn(user, "token-1", expiresAt)
			Expect(session.Save(path)).To(Succeed())

			info, err := os.Stat(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(info.Mode().Perm()).To(Equal(os.FileMode(0600)))

			restored := NewSession()
			Expect(restored.Load(path)).To(Succeed())
			current, ok := restored.Current()
			Expect(ok).To(BeTrue())
			Expect(current).To(Equal(user))
			Expect(restored.Token()).To(Equal("token-1"))
		})

		It("removes the file when signed out", func() {
			session.SignIn(user, "token-1", time.Time{})
			Expect(session.Save(path)).To(Succeed())
			session.SignOut()
			Expect(session.Save(path)).To(Succeed())
			_, err := os.Stat(path)
			Expect(os.IsNotExist(err)).To(BeTrue())
		})

		It("leaves the session signed out when there is no file", func() {
			Expect(session.Load(path)).To(Succeed())
			_, ok := session.Current()
			Expect(ok).To(BeFalse())
		})

		It("fails on a corrupt file", func() {
			Expect(os.MkdirAll(filepath.Dir(path), 0700)).To(Succeed())
			Expect(os.WriteFile(path, []byte("{"), 0600)).To(Succeed())
			Expect(session.Load(path)).NotTo(Succeed())
		})
	})
})
