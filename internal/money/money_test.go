package money

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
)

func TestMoney(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Money Suite")
}

var _ = Describe("Parse", func() {
	DescribeTable("reading receipt tokens",
		func(token string, expected string) {
			d, err := Parse(token)
			Expect(err).NotTo(HaveOccurred())
			Expect(d.StringFixed(2)).To(Equal(expected))
		},
		Entry("plain integer", "345", "345.00"),
		Entry("rupee glyph with grouping", "₹1,234.50", "1234.50"),
		Entry("glyph followed by space", "₹ 236.00", "236.00"),
		Entry("dollar sign", "$42.75", "42.75"),
		Entry("Rs. prefix", "Rs. 99", "99.00"),
		Entry("INR prefix", "INR 1,00,000", "100000.00"),
		Entry("comma is never a decimal marker", "12,50", "1250.00"),
		Entry("rounds to two places", "10.005", "10.01"),
		Entry("negative value", "-5", "-5.00"),
		Entry("sign after glyph", "₹-5", "-5.00"),
	)

	DescribeTable("rejecting tokens that are not numbers",
		func(token string) {
			_, err := Parse(token)
			Expect(err).To(MatchError(ErrInvalidAmount))
		},
		Entry("letters", "abc"),
		Entry("empty", ""),
		Entry("only a glyph", "₹"),
		Entry("two decimal points", "1.2.3"),
		Entry("exponent", "1e5"),
		Entry("two minus signs", "-₹-5"),
		Entry("doubled sign", "--5"),
	)
})

var _ = Describe("ParsePositive", func() {
	It("accepts positive amounts", func() {
		d, err := ParsePositive("0.01")
		Expect(err).NotTo(HaveOccurred())
		Expect(d.Equal(decimal.RequireFromString("0.01"))).To(BeTrue())
	})

	It("rejects zero", func() {
		_, err := ParsePositive("0.00")
		Expect(err).To(MatchError(ErrInvalidAmount))
	})

	It("rejects negative amounts", func() {
		_, err := ParsePositive("-12")
		Expect(err).To(MatchError(ErrInvalidAmount))
	})
})

var _ = Describe("Format", func() {
	It("renders two fractional digits with the symbol", func() {
		Expect(Format(decimal.NewFromInt(236), DefaultSymbol)).To(Equal("₹236.00"))
	})

	It("puts the sign before the symbol", func() {
		Expect(Format(decimal.RequireFromString("-236.5"), "$")).To(Equal("-$236.50"))
	})
})
