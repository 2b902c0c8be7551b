package scanning

import (
	"context"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

var _ = Describe("Ollama", func() {
	var (
		server     *ghttp.Server
		recognizer *Ollama
		imageData  []byte
		mimeType   string
		text       string
		err        error
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		recognizer, err = NewOllama(server.URL(), "qwen2.5vl")
		Expect(err).NotTo(HaveOccurred())
		imageData = samplePNG()
		mimeType = "image/png"
	})

	AfterEach(func() {
		server.Close()
	})

	JustBeforeEach(func() {
		text, err = recognizer.RecognizeText(context.Background(), imageData, mimeType)
	})

	When("the model returns a transcript", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodPost, "/api/chat"),
				ghttp.VerifyContentType("application/json"),
				func(w http.ResponseWriter, r *http.Request) {
					var req ollamaChatRequest
					Expect(decodeJSON(r, &req)).To(Succeed())
					Expect(req.Model).To(Equal("qwen2.5vl"))
					Expect(req.Stream).To(BeFalse())
					Expect(req.Messages).To(HaveLen(2))
					Expect(req.Messages[1].Images).To(HaveLen(1))
				},
				ghttp.RespondWithJSONEncoded(http.StatusOK, ollamaChatResponse{
					Message: ollamaMessage{Role: "assistant", Content: "```\nSUBTOTAL 200\nGRAND TOTAL 236.00\n```"},
					Done:    true,
				}),
			))
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("returns the cleaned transcript", func() {
			Expect(text).To(Equal("SUBTOTAL 200\nGRAND TOTAL 236.00"))
		})
	})

	When("the API returns an error status", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusInternalServerError, "model not loaded"))
		})

		It("returns a recognition failure", func() {
			Expect(err).To(MatchError(ErrRecognitionFailed))
		})

		It("keeps the upstream detail for logging", func() {
			Expect(err.Error()).To(ContainSubstring("model not loaded"))
		})
	})

	When("the image cannot be decoded", func() {
		BeforeEach(func() {
			imageData = []byte("not an image")
			mimeType = "image/jpeg"
		})

		It("returns a recognition failure without calling the API", func() {
			Expect(err).To(MatchError(ErrRecognitionFailed))
			Expect(server.ReceivedRequests()).To(BeEmpty())
		})
	})
})
