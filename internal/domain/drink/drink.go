// Package drink holds the in-progress drink customization and the builder
// that mutates it.
package drink

import (
	"slices"

	"github.com/go-faster/errors"
)

// Size is the cup size of a drink.
type Size string

const (
	SizeSmall  Size = "small"
	SizeMedium Size = "medium"
	SizeLarge  Size = "large"
)

// Ice is the amount of ice in a drink.
type Ice string

const (
	IceNone    Ice = "no-ice"
	IceLight   Ice = "light"
	IceRegular Ice = "regular"
	IceExtra   Ice = "extra"
)

var (
	// ErrUnknownSize is returned when parsing a size outside small|medium|large.
	ErrUnknownSize = errors.New("unknown size")
	// ErrUnknownIce is returned when parsing an ice level outside the fixed set.
	ErrUnknownIce = errors.New("unknown ice level")
)

// Sizes lists every size in menu order.
var Sizes = []Size{SizeSmall, SizeMedium, SizeLarge}

// ParseSize validates s as a Size.
func ParseSize(s string) (Size, error) {
	switch v := Size(s); v {
	case SizeSmall, SizeMedium, SizeLarge:
		return v, nil
	default:
		return "", errors.Wrapf(ErrUnknownSize, "%q", s)
	}
}

// ParseIce validates s as an Ice level.
func ParseIce(s string) (Ice, error) {
	switch v := Ice(s); v {
	case IceNone, IceLight, IceRegular, IceExtra:
		return v, nil
	default:
		return "", errors.Wrapf(ErrUnknownIce, "%q", s)
	}
}

// Customization is one drink configuration.
//
// MatchaLevel is the percentage of milk, not matcha: 0 is pure matcha and
// 100 is the most milk. Extras keep insertion order for display.
type Customization struct {
	MatchaLevel int
	Size        Size
	Ice         Ice
	Extras      []string
}

// Default returns the starting customization of every builder.
func Default() Customization {
	return Customization{
		MatchaLevel: 50,
		Size:        SizeMedium,
		Ice:         IceRegular,
		Extras:      []string{},
	}
}

// Clone returns a deep copy, safe to store as a snapshot.
func (c Customization) Clone() Customization {
	c.Extras = slices.Clone(c.Extras)
	if c.Extras == nil {
		c.Extras = []string{}
	}
	return c
}

// HasExtra reports whether name is among the extras.
func (c Customization) HasExtra(name string) bool {
	return slices.Contains(c.Extras, name)
}
