package cart

import "sync/atomic"

// BadgeNotifier receives the cart item count after every persisted change.
type BadgeNotifier interface {
	UpdateBadge(count int)
}

// BadgeFunc adapts a plain function to BadgeNotifier.
type BadgeFunc func(count int)

func (f BadgeFunc) UpdateBadge(count int) { f(count) }

// Badge holds the last count pushed by the store for the UI to read.
type Badge struct {
	count atomic.Int64
}

func (b *Badge) UpdateBadge(count int) {
	b.count.Store(int64(count))
}

func (b *Badge) Count() int {
	return int(b.count.Load())
}

// Visible reports whether the indicator should be shown at all.
func (b *Badge) Visible() bool {
	return b.Count() > 0
}

type noopBadge struct{}

func (noopBadge) UpdateBadge(int) {}
