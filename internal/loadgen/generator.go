// Package loadgen produces synthetic transaction traffic for local
// environments and demos.
package loadgen

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mbd888/txsentinel/internal/transactions"
)

// DefaultSuspiciousRate is the share of generated transactions shaped to
// look like a large first transfer from a new sender.
const DefaultSuspiciousRate = 0.1

const (
	alnum   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	dateFmt = "2006-01-02"
)

var (
	channels         = []string{"APP", "WEB", "AGENT"}
	sendingCountries = []string{"US", "UK", "CA", "AU"}
	payoutCountries  = []string{"IN", "PK", "BD", "NG"}
	currencies       = []string{"USD", "GBP", "CAD", "AUD"}
	paymentMethods   = []string{"CARD", "BANK", "CASH"}
)

// Generator builds random transaction inputs. It is not safe for
// concurrent use.
type Generator struct {
	rng            *rand.Rand
	now            func() time.Time
	suspiciousRate float64
}

// NewGenerator creates a generator seeded with seed. The same seed and
// clock yield the same sequence.
func NewGenerator(seed uint64, suspiciousRate float64) *Generator {
	return &Generator{
		rng:            rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		now:            time.Now,
		suspiciousRate: suspiciousRate,
	}
}

// WithClock replaces the time source. Used by tests.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Next returns a new transaction input. Ordinary traffic reuses a small
// pool of senders so their history grows; suspicious traffic comes from a
// fresh sender with a large amount.
func (g *Generator) Next() *transactions.Input {
	now := g.now().UTC()

	senderID := fmt.Sprintf("TEST%d", g.between(1000, 9999))
	amount := g.amount(100, 5000)
	if g.rng.Float64() < g.suspiciousRate {
		senderID = fmt.Sprintf("NEW%d", g.between(10000, 99999))
		amount = g.amount(8000, 15000)
	}

	sendingCountry := g.pick(sendingCountries)
	payoutCountry := g.pick(payoutCountries)
	return &transactions.Input{
		SenderID:              senderID,
		SenderName:            "Test Sender " + senderID,
		SenderMobile:          fmt.Sprintf("+1%d", g.between(1000000000, 9999999999)),
		SenderCountry:         sendingCountry,
		BeneficiaryID:         fmt.Sprintf("BEN%d", g.between(1000, 9999)),
		BeneficiaryName:       fmt.Sprintf("Beneficiary %d", g.between(1000, 9999)),
		BeneficiaryCountry:    payoutCountry,
		MTN:                   g.code(8),
		Channel:               g.pick(channels),
		Amount:                &amount,
		Currency:              g.pick(currencies),
		PaymentMethod:         g.pick(paymentMethods),
		SendingCountry:        sendingCountry,
		PayoutCountry:         payoutCountry,
		SendingDate:           now.AddDate(0, 0, -g.between(0, 30)).Format(dateFmt),
		ComplianceReleaseDate: now.AddDate(0, 0, -g.between(0, 10)).Format(dateFmt),
	}
}

// between returns a uniform integer in [lo, hi].
func (g *Generator) between(lo, hi int) int {
	return lo + g.rng.IntN(hi-lo+1)
}

// amount returns a uniform amount in [lo, hi) rounded to cents.
func (g *Generator) amount(lo, hi float64) decimal.Decimal {
	return decimal.NewFromFloat(lo + g.rng.Float64()*(hi-lo)).Round(2)
}

func (g *Generator) pick(options []string) string {
	return options[g.rng.IntN(len(options))]
}

func (g *Generator) code(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = alnum[g.rng.IntN(len(alnum))]
	}
	return string(b)
}
