package drink

import "slices"

// Builder owns the single active customization of a session. It is not safe
// for concurrent use; the owning session serializes access.
type Builder struct {
	c Customization
}

// NewBuilder returns a Builder holding the default customization.
func NewBuilder() *Builder {
	return &Builder{c: Default()}
}

// Current returns a copy of the active customization.
func (b *Builder) Current() Customization {
	return b.c.Clone()
}

// SetMatchaLevel stores level unchanged. Callers restrict input to [0,100];
// the builder never clamps.
func (b *Builder) SetMatchaLevel(level int) Customization {
	b.c.MatchaLevel = level
	return b.Current()
}

// SetSize replaces the size.
func (b *Builder) SetSize(s Size) Customization {
	b.c.Size = s
	return b.Current()
}

// SetIce replaces the ice level.
func (b *Builder) SetIce(i Ice) Customization {
	b.c.Ice = i
	return b.Current()
}

// AddExtra appends name unless it is already present.
func (b *Builder) AddExtra(name string) Customization {
	if !slices.Contains(b.c.Extras, name) {
		b.c.Extras = append(b.c.Extras, name)
	}
	return b.Current()
}

// RemoveExtra deletes every occurrence of name.
func (b *Builder) RemoveExtra(name string) Customization {
	b.c.Extras = slices.DeleteFunc(b.c.Extras, func(e string) bool { return e == name })
	return b.Current()
}

// Reset restores the default customization.
func (b *Builder) Reset() Customization {
	b.c = Default()
	return b.Current()
}

// Restore replaces the active customization, e.g. when rehydrating a session.
func (b *Builder) Restore(c Customization) Customization {
	b.c = c.Clone()
	return b.Current()
}
