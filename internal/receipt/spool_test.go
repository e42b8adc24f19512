package receipt

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// failingReader returns an error on the first read
type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("connection reset")
}

var _ = Describe("LocalSpool", func() {
	var (
		tmpDir string
		spool  *LocalSpool
	)

	BeforeEach(func() {
		tmpDir = filepath.Join(GinkgoT().TempDir(), "spool")
		var err error
		spool, err = NewLocalSpool(tmpDir)
		Expect(err).NotTo(HaveOccurred())
	})

	It("creates the directory", func() {
		Expect(tmpDir).To(BeADirectory())
	})

	Describe("Create", func() {
		It("writes the upload and keeps the extension", func() {
			path, err := spool.Create("My Receipt (1).JPG", strings.NewReader("data"))
			Expect(err).NotTo(HaveOccurred())
			Expect(filepath.Dir(path)).To(Equal(tmpDir))
			Expect(path).To(HaveSuffix("My_Receipt_1.jpg"))

			data, err := os.ReadFile(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(Equal("data"))
		})

		It("gives each upload its own file", func() {
			a, err := spool.Create("r.png", strings.NewReader("a"))
			Expect(err).NotTo(HaveOccurred())
			b, err := spool.Create("r.png", strings.NewReader("b"))
			Expect(err).NotTo(HaveOccurred())
			Expect(a).NotTo(Equal(b))
		})

		It("leaves nothing behind when the upload fails", func() {
			_, err := spool.Create("r.png", failingReader{})
			Expect(err).To(MatchError(ContainSubstring("connection reset")))
			entries, readErr := os.ReadDir(tmpDir)
			Expect(readErr).NotTo(HaveOccurred())
			Expect(entries).To(BeEmpty())
		})
	})

	Describe("Remove", func() {
		It("deletes the file", func() {
			path, err := spool.Create("r.png", strings.NewReader("a"))
			Expect(err).NotTo(HaveOccurred())
			Expect(spool.Remove(path)).To(Succeed())
			Expect(path).NotTo(BeAnExistingFile())
		})

		It("returns an error for a missing file", func() {
			Expect(spool.Remove(filepath.Join(tmpDir, "nope"))).To(HaveOccurred())
		})
	})
})

var _ = DescribeTable("sanitizeFilename",
	func(input, expected string) {
		Expect(sanitizeFilename(input)).To(Equal(expected))
	},
	Entry("simple", "receipt.pdf", "receipt.pdf"),
	Entry("path components", "../../etc/passwd.png", "passwd.png"),
	Entry("special characters", "kuitti #1 (ä).PNG", "kuitti_1.png"),
	Entry("empty base", "$$$.jpg", "receipt.jpg"),
	Entry("long name", strings.Repeat("a", 80)+".jpeg", strings.Repeat("a", 50)+".jpeg"),
)
