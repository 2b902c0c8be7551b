package client

import (
	"context"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
	"github.com/shopspring/decimal"

	"github.com/zombor/billsnap/internal/account"
	"github.com/zombor/billsnap/internal/bill"
	"github.com/zombor/billsnap/internal/identity"
)

var _ = Describe("Remote", func() {
	var (
		ctx     context.Context
		server  *ghttp.Server
		session *Session
		remote  *Remote
	)

	BeforeEach(func() {
		ctx = context.Background()
		server = ghttp.NewServer()
		session = NewSession()
		remote = NewRemote(server.URL()+"/", session)
	})

	AfterEach(func() {
		server.Close()
	})

	signIn := func() {
		session.SignIn(identity.User{UID: "uid-1", Email: "asha@example.com"}, "token-1", time.Time{})
	}

	Describe("SignIn", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest("POST", "/api/auth/signin"),
				ghttp.VerifyJSONRepresenting(map[string]string{"email": "asha@example.com", "password": "secret1"}),
				ghttp.RespondWith(http.StatusOK, `{
					"token": "token-1",
					"expiresAt": "2030-01-01T00:00:00Z",
					"user": {"uid": "uid-1", "name": "Asha", "email": "asha@example.com", "balance": 120.50}
				}`),
			))
		})

		It("signs the session in", func() {
			result, err := remote.SignIn(ctx, "asha@example.com", "secret1")
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Account.Balance.StringFixed(2)).To(Equal("120.50"))

			current, ok := session.Current()
			Expect(ok).To(BeTrue())
			Expect(current.UID).To(Equal("uid-1"))
			Expect(session.Token()).To(Equal("token-1"))
		})
	})

	Describe("SignUp", func() {
		When("the email is registered", func() {
			BeforeEach(func() {
				server.AppendHandlers(ghttp.CombineHandlers(
					ghttp.VerifyRequest("POST", "/api/auth/signup"),
					ghttp.RespondWith(http.StatusConflict, `{"error":"This email is already registered."}`),
				))
			})

			It("returns the server's message", func() {
				_, err := remote.SignUp(ctx, "Asha", "asha@example.com", "secret1", "secret1")
				Expect(err).To(MatchError(identity.ErrEmailInUse))

				var apiErr *APIError
				Expect(err).To(BeAssignableToTypeOf(apiErr))
				Expect(err.(*APIError).Message).To(Equal("This email is already registered."))
				_, ok := session.Current()
				Expect(ok).To(BeFalse())
			})
		})
	})

	Describe("ExtractBillTotal", func() {
		It("sends the callable envelope with the token", func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest("POST", "/api/extractBillTotal"),
				ghttp.VerifyHeaderKV("Authorization", "Bearer token-1"),
				ghttp.VerifyJSON(`{"data":{"image":"aW1n"}}`),
				ghttp.RespondWith(http.StatusOK, `{"result":{"totalAmount":236.00}}`),
			))

			result, err := remote.ExtractBillTotal(ctx, "token-1", "aW1n")
			Expect(err).NotTo(HaveOccurred())
			Expect(result.TotalAmount.StringFixed(2)).To(Equal("236.00"))
		})

		It("returns a nil total when none was found", func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusOK, `{"result":{"totalAmount":null}}`))

			result, err := remote.ExtractBillTotal(ctx, "token-1", "aW1n")
			Expect(err).NotTo(HaveOccurred())
			Expect(result.TotalAmount).To(BeNil())
		})

		DescribeTable("maps error envelopes to kinds",
			func(code int, status string, kind bill.Kind) {
				server.AppendHandlers(ghttp.RespondWith(code, `{"error":{"status":"`+status+`","message":"nope"}}`))

				_, err := remote.ExtractBillTotal(ctx, "token-1", "aW1n")
				Expect(bill.KindOf(err)).To(Equal(kind))
				Expect(err.(*bill.Error).Message).To(Equal("nope"))
			},
			Entry("unauthenticated", http.StatusUnauthorized, "UNAUTHENTICATED", bill.KindUnauthenticated),
			Entry("invalid argument", http.StatusBadRequest, "INVALID_ARGUMENT", bill.KindInvalidArgument),
			Entry("internal", http.StatusInternalServerError, "INTERNAL", bill.KindInternal),
		)

		It("treats an unreadable response as internal", func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusBadGateway, "<html>bad gateway</html>"))

			_, err := remote.ExtractBillTotal(ctx, "token-1", "aW1n")
			Expect(err).To(HaveOccurred())
			Expect(bill.KindOf(err)).To(Equal(bill.KindInternal))
		})
	})

	Describe("UpdateBalance", func() {
		BeforeEach(func() {
			signIn()
		})

		It("records a negative delta as an expense", func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest("POST", "/api/account/expense"),
				ghttp.VerifyHeaderKV("Authorization", "Bearer token-1"),
				ghttp.VerifyJSON(`{"amount":236}`),
				ghttp.RespondWith(http.StatusOK, `{"balance":764.00}`),
			))

			balance, err := remote.UpdateBalance(ctx, "uid-1", amount("-236.00"))
			Expect(err).NotTo(HaveOccurred())
			Expect(balance.StringFixed(2)).To(Equal("764.00"))
		})

		It("records a positive delta as income", func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest("POST", "/api/account/income"),
				ghttp.RespondWith(http.StatusOK, `{"balance":500.00}`),
			))

			_, err := remote.UpdateBalance(ctx, "uid-1", amount("500"))
			Expect(err).NotTo(HaveOccurred())
		})

		It("maps an insufficient balance response", func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusConflict, `{"error":"Insufficient balance"}`))

			_, err := remote.UpdateBalance(ctx, "uid-1", amount("-236.00"))
			Expect(err).To(MatchError(account.ErrInsufficientBalance))
		})

		It("refuses another user's account", func() {
			_, err := remote.UpdateBalance(ctx, "uid-2", amount("-1"))
			Expect(err).To(MatchError(ErrNotSignedIn))
			Expect(server.ReceivedRequests()).To(BeEmpty())
		})
	})

	Describe("GetUserByID", func() {
		BeforeEach(func() {
			signIn()
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest("GET", "/api/account"),
				ghttp.RespondWith(http.StatusOK, `{"uid":"uid-1","name":"Asha","email":"asha@example.com","balance":"42.00"}`),
			))
		})

		It("returns the signed-in account", func() {
			user, err := remote.GetUserByID(ctx, "uid-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(user.Balance.StringFixed(2)).To(Equal("42.00"))
		})

		It("does not return another uid", func() {
			_, err := remote.GetUserByID(ctx, "uid-2")
			Expect(err).To(MatchError(account.ErrUserNotFound))
		})
	})

	Describe("StreamBalance", func() {
		BeforeEach(func() {
			signIn()
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest("GET", "/api/account/balance/stream"),
				ghttp.RespondWith(http.StatusOK,
					"event: balance\ndata: {\"balance\":10.00}\n\nevent: balance\ndata: {\"balance\":4.50}\n\n",
					http.Header{"Content-Type": []string{"text/event-stream"}},
				),
			))
		})

		It("reports each balance until the stream ends", func() {
			var balances []string
			err := remote.StreamBalance(ctx, func(balance decimal.Decimal) {
				balances = append(balances, balance.StringFixed(2))
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(balances).To(Equal([]string{"10.00", "4.50"}))
		})
	})

	It("maps 401 responses to ErrUnauthorized", func() {
		server.AppendHandlers(ghttp.RespondWith(http.StatusUnauthorized, `{"error":"Login required"}`))

		_, err := remote.Account(ctx)
		Expect(err).To(MatchError(ErrUnauthorized))
	})
})
