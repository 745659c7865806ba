// Package ordercode issues the human-readable codes customers use to track
// orders, and the payment references derived from them.
package ordercode

import (
	"fmt"
	"math/rand/v2"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var adjectives = [...]string{
	"MATCHA", "SWIFT", "CALM", "PURE", "FRESH", "BRIGHT", "SMOOTH", "BOLD",
	"SWEET", "CRISP", "SOFT", "RICH", "LIGHT", "DEEP", "WARM", "COOL",
}

var nouns = [...]string{
	"GLOW", "ZEST", "VIBE", "FLOW", "WAVE", "BLOOM", "SPARK", "DREAM",
	"BLISS", "CHARM", "GRACE", "SPIRIT", "ENERGY", "PEACE", "JOY", "SOUL",
}

const (
	minNumber = 100
	maxNumber = 999

	// ReferencePrefix starts every payment reference sent to the provider.
	ReferencePrefix = "JM"
)

var pattern = regexp.MustCompile(`^[A-Z]+-[A-Z]+-\d{3}$`)

// Generator draws order codes of the form ADJECTIVE-NOUN-NNN.
type Generator struct {
	intN func(n int) int
}

// NewGenerator returns a Generator backed by the global random source.
func NewGenerator() *Generator {
	return &Generator{intN: rand.IntN}
}

// NewSeededGenerator returns a deterministic Generator, used by tests and
// tooling that needs reproducible codes.
func NewSeededGenerator(seed1, seed2 uint64) *Generator {
	r := rand.New(rand.NewPCG(seed1, seed2))
	return &Generator{intN: r.IntN}
}

// Generate returns a fresh code. Results are independent across calls and
// collisions are possible; see Registry for screening.
func (g *Generator) Generate() string {
	adj := adjectives[g.intN(len(adjectives))]
	noun := nouns[g.intN(len(nouns))]
	num := minNumber + g.intN(maxNumber-minNumber+1)
	return adj + "-" + noun + "-" + strconv.Itoa(num)
}

// Valid reports whether code is shaped like a generated order code.
func Valid(code string) bool {
	if !pattern.MatchString(code) {
		return false
	}
	n, err := strconv.Atoi(code[strings.LastIndexByte(code, '-')+1:])
	return err == nil && n >= minNumber && n <= maxNumber
}

// Normalize upper-cases and trims a code typed in by a customer.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// PaymentReference derives the provider correlation token for one checkout
// attempt. The millisecond suffix keeps retries of the same order distinct.
func PaymentReference(code string, at time.Time) string {
	return fmt.Sprintf("%s-%s-%d", ReferencePrefix, code, at.UnixMilli())
}

// CodeFromReference extracts the order code from a payment reference.
func CodeFromReference(ref string) (string, bool) {
	rest, ok := strings.CutPrefix(ref, ReferencePrefix+"-")
	if !ok {
		return "", false
	}
	i := strings.LastIndexByte(rest, '-')
	if i <= 0 {
		return "", false
	}
	code := rest[:i]
	return code, Valid(code)
}
