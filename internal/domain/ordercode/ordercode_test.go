package ordercode

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var codePattern = regexp.MustCompile(`^[A-Z]+-[A-Z]+-\d{3}$`)

func TestGenerate_Format(t *testing.T) {
	gen := NewGenerator()
	for range 2000 {
		code := gen.Generate()
		require.Regexp(t, codePattern, code)

		parts := strings.Split(code, "-")
		require.Len(t, parts, 3)
		assert.Contains(t, adjectives[:], parts[0])
		assert.Contains(t, nouns[:], parts[1])

		n, err := strconv.Atoi(parts[2])
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, 100)
		assert.LessOrEqual(t, n, 999)
	}
}

func TestGenerate_Bounds(t *testing.T) {
	lowest := &Generator{intN: func(int) int { return 0 }}
	assert.Equal(t, "MATCHA-GLOW-100", lowest.Generate())

	highest := &Generator{intN: func(n int) int { return n - 1 }}
	assert.Equal(t, "COOL-SOUL-999", highest.Generate())
}

func TestGenerate_Seeded(t *testing.T) {
	a := NewSeededGenerator(1, 2)
	b := NewSeededGenerator(1, 2)
	for range 10 {
		assert.Equal(t, a.Generate(), b.Generate())
	}
}

func TestValid(t *testing.T) {
	tests := []struct {
		code string
		want bool
	}{
		{"MATCHA-GLOW-482", true},
		{"CALM-VIBE-100", true},
		{"CALM-VIBE-999", true},
		{"CALM-VIBE-099", false},
		{"CALM-VIBE-1000", false},
		{"calm-vibe-204", false},
		{"CALM-204", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.want, Valid(tt.code))
		})
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "SWIFT-ZEST-913", Normalize("  swift-zest-913 "))
}

func TestPaymentReference(t *testing.T) {
	at := time.UnixMilli(1700000000123)
	ref := PaymentReference("SWIFT-ZEST-913", at)
	assert.Equal(t, "JM-SWIFT-ZEST-913-1700000000123", ref)

	code, ok := CodeFromReference(ref)
	require.True(t, ok)
	assert.Equal(t, "SWIFT-ZEST-913", code)

	// Retrying the same order a millisecond later yields a distinct reference.
	assert.NotEqual(t, ref, PaymentReference("SWIFT-ZEST-913", at.Add(time.Millisecond)))
}

func TestCodeFromReference_Invalid(t *testing.T) {
	for _, ref := range []string{"", "XX-SWIFT-ZEST-913-1", "JM-", "JM-garbage-1"} {
		_, ok := CodeFromReference(ref)
		assert.False(t, ok, ref)
	}
}

// --- Registry ---

type mockStore struct {
	existing map[string]bool
	checks   int
	err      error
}

func (m *mockStore) CodeExists(_ context.Context, code string) (bool, error) {
	m.checks++
	return m.existing[code], m.err
}

func (m *mockStore) ListCodes(_ context.Context) ([]string, error) {
	codes := make([]string, 0, len(m.existing))
	for c := range m.existing {
		codes = append(codes, c)
	}
	return codes, m.err
}

// sequence returns a generator that yields the given codes in order.
func sequence(t *testing.T, codes ...string) *Generator {
	t.Helper()
	var draws []int
	for _, c := range codes {
		parts := strings.Split(c, "-")
		n, err := strconv.Atoi(parts[2])
		require.NoError(t, err)
		draws = append(draws, indexOf(adjectives[:], parts[0]), indexOf(nouns[:], parts[1]), n-minNumber)
	}
	i := 0
	return &Generator{intN: func(int) int {
		v := draws[i%len(draws)]
		i++
		return v
	}}
}

func indexOf(words []string, w string) int {
	for i, x := range words {
		if x == w {
			return i
		}
	}
	return -1
}

func TestRegistry_IssueFresh(t *testing.T) {
	store := &mockStore{existing: map[string]bool{}}
	reg := NewRegistry(sequence(t, "CALM-VIBE-204"), store)

	code, err := reg.Issue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "CALM-VIBE-204", code)
	assert.Zero(t, store.checks, "unseen code must not hit the store")
}

func TestRegistry_RetriesOnCollision(t *testing.T) {
	store := &mockStore{existing: map[string]bool{"CALM-VIBE-204": true}}
	reg := NewRegistry(sequence(t, "CALM-VIBE-204", "BOLD-JOY-777"), store)

	n, err := reg.Warm(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	code, err := reg.Issue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "BOLD-JOY-777", code)
	assert.Equal(t, 1, store.checks)
}

func TestRegistry_Exhausted(t *testing.T) {
	store := &mockStore{existing: map[string]bool{"CALM-VIBE-204": true}}
	reg := NewRegistry(sequence(t, "CALM-VIBE-204"), store)
	_, err := reg.Warm(context.Background())
	require.NoError(t, err)

	_, err = reg.Issue(context.Background())
	require.ErrorIs(t, err, ErrCodeSpaceExhausted)
	assert.Equal(t, defaultMaxAttempts, store.checks)
}

func TestRegistry_StoreError(t *testing.T) {
	store := &mockStore{existing: map[string]bool{}}
	reg := NewRegistry(sequence(t, "CALM-VIBE-204"), store)
	reg.Commit("CALM-VIBE-204")
	store.err = errors.New("db down")

	_, err := reg.Issue(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "check code")
}

func TestRegistry_ReservedCodeIsNotReissued(t *testing.T) {
	store := &mockStore{existing: map[string]bool{}}
	reg := NewRegistry(sequence(t, "CALM-VIBE-204", "CALM-VIBE-204", "BOLD-JOY-777"), store)

	first, err := reg.Issue(context.Background())
	require.NoError(t, err)
	second, err := reg.Issue(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "CALM-VIBE-204", first)
	assert.Equal(t, "BOLD-JOY-777", second)
	assert.Zero(t, store.checks)
}

func TestRegistry_ReleasedCodeIsReusable(t *testing.T) {
	store := &mockStore{existing: map[string]bool{}}
	reg := NewRegistry(sequence(t, "CALM-VIBE-204"), store)

	code, err := reg.Issue(context.Background())
	require.NoError(t, err)
	reg.Release(code)

	again, err := reg.Issue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, code, again)
	assert.Zero(t, store.checks, "a released code never reached the filter")
}

func TestRegistry_CommittedCodeIsScreened(t *testing.T) {
	store := &mockStore{existing: map[string]bool{}}
	reg := NewRegistry(sequence(t, "CALM-VIBE-204", "CALM-VIBE-204", "BOLD-JOY-777"), store)

	code, err := reg.Issue(context.Background())
	require.NoError(t, err)
	reg.Commit(code)
	store.existing[code] = true

	next, err := reg.Issue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "BOLD-JOY-777", next)
	assert.Equal(t, 1, store.checks)
}
