package scanning

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func samplePNG() []byte {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.Black)
	var buf bytes.Buffer
	Expect(png.Encode(&buf, img)).To(Succeed())
	return buf.Bytes()
}

func sampleJPEG() []byte {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	var buf bytes.Buffer
	Expect(jpeg.Encode(&buf, img, nil)).To(Succeed())
	return buf.Bytes()
}

var _ = Describe("isHEICFormat", func() {
	It("detects the heic brand", func() {
		data := append([]byte{0, 0, 0, 24}, []byte("ftypheic0000")...)
		Expect(isHEICFormat(data)).To(BeTrue())
	})

	It("ignores short payloads", func() {
		Expect(isHEICFormat([]byte("ftyp"))).To(BeFalse())
	})

	It("ignores other ftyp brands", func() {
		data := append([]byte{0, 0, 0, 24}, []byte("ftypmp42")...)
		Expect(isHEICFormat(data)).To(BeFalse())
	})
})

var _ = Describe("detectMimeType", func() {
	It("normalizes a declared content type", func() {
		Expect(detectMimeType(nil, " Image/JPEG; charset=binary")).To(Equal("image/jpeg"))
	})

	It("sniffs PNG data when no type is declared", func() {
		Expect(detectMimeType(samplePNG(), "")).To(Equal("image/png"))
	})

	It("sniffs JPEG data sent as octet-stream", func() {
		Expect(detectMimeType(sampleJPEG(), "application/octet-stream")).To(Equal("image/jpeg"))
	})
})

var _ = Describe("prepareImageData", func() {
	When("the engine accepts the format", func() {
		It("returns the data unchanged", func() {
			data := sampleJPEG()
			out, mimeType, err := prepareImageData(data, "image/jpeg", acceptsCommonPhotos)
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(Equal(data))
			Expect(mimeType).To(Equal("image/jpeg"))
		})
	})

	When("the engine only accepts PNG", func() {
		It("converts JPEG to PNG", func() {
			out, mimeType, err := prepareImageData(sampleJPEG(), "", acceptsPNGOnly)
			Expect(err).NotTo(HaveOccurred())
			Expect(mimeType).To(Equal("image/png"))
			_, format, decodeErr := image.Decode(bytes.NewReader(out))
			Expect(decodeErr).NotTo(HaveOccurred())
			Expect(format).To(Equal("png"))
		})
	})

	When("the data is not an image", func() {
		It("returns an error", func() {
			_, _, err := prepareImageData([]byte("definitely not an image"), "image/jpeg", acceptsPNGOnly)
			Expect(err).To(HaveOccurred())
		})
	})
})
