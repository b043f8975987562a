package cart

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/fjod/go_cart/cart-local/internal/domain"
	"github.com/fjod/go_cart/cart-local/internal/storage"
	"github.com/fjod/go_cart/cart-local/pkg/logger"
)

const (
	DefaultStorageKey = "modatec_cart"

	msgNothingToSync = "no items to sync"
	msgSynced        = "cart synced successfully"
	msgSyncFailed    = "failed to sync cart"

	syncFlightKey = "sync"

	clearAfterSyncTimeout = 5 * time.Second
)

// Syncer hands the cart over to the server-side cart.
type Syncer interface {
	Sync(ctx context.Context, items []domain.ServerItem) error
}

// Recorder observes store activity. Implemented by metrics.Metrics.
type Recorder interface {
	ObserveMutation(op string)
	ObserveStorageError(op string)
	ObserveSync(result string)
	SetItems(n int)
}

// Store is the guest cart. All reads and writes go through the storage port
// under a single key; nothing else may write that key.
type Store struct {
	storage storage.Storage
	syncer  Syncer
	key     string
	badge   BadgeNotifier
	log     *logger.Logger
	rec     Recorder
	now     func() time.Time

	mu  sync.Mutex
	sfg singleflight.Group // overlapping syncs share one request
}

type Option func(*Store)

func WithStorageKey(key string) Option {
	return func(s *Store) { s.key = key }
}

func WithBadge(b BadgeNotifier) Option {
	return func(s *Store) { s.badge = b }
}

func WithLogger(l *logger.Logger) Option {
	return func(s *Store) { s.log = l }
}

func WithRecorder(r Recorder) Option {
	return func(s *Store) { s.rec = r }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func NewStore(st storage.Storage, syncer Syncer, opts ...Option) *Store {
	s := &Store{
		storage: st,
		syncer:  syncer,
		key:     DefaultStorageKey,
		badge:   noopBadge{},
		log:     logger.Nop(),
		rec:     noopRecorder{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetCart returns the stored items. Missing, unreadable or corrupted state yields an empty cart.
func (s *Store) GetCart(ctx context.Context) []domain.LineItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

// SaveCart replaces the stored items and refreshes the badge. It reports false if the write failed.
// Items with a quantity of zero or less are dropped and repeated products are merged
// into their first occurrence.
func (s *Store) SaveCart(ctx context.Context, items []domain.LineItem) bool {
	kept := make([]domain.LineItem, 0, len(items))
	for _, item := range items {
		if item.Quantity <= 0 {
			continue
		}
		if i := indexOf(kept, item.ProductID); i >= 0 {
			kept[i].Quantity = addQuantity(kept[i].Quantity, item.Quantity)
			continue
		}
		kept = append(kept, item)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(ctx, kept)
}

// AddItem appends a new line item or increases the quantity of an existing one.
func (s *Store) AddItem(ctx context.Context, item domain.NewItem) bool {
	quantity := item.Quantity
	if quantity <= 0 {
		quantity = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	items := s.load(ctx)
	if i := indexOf(items, item.ProductID); i >= 0 {
		items[i].Quantity = addQuantity(items[i].Quantity, quantity)
	} else {
		discount := item.Discount
		if discount < 0 {
			discount = 0
		}
		if discount > 100 {
			discount = 100
		}
		items = append(items, domain.LineItem{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Price:       item.Price,
			Discount:    discount,
			ImageURL:    item.ImageURL,
			Quantity:    quantity,
			AddedAt:     s.now().UTC(),
		})
	}

	if s.save(ctx, items) {
		s.rec.ObserveMutation("add")
	}
	return true
}

// UpdateQuantity sets the quantity of an item; zero or less removes it.
// It reports false when the product is not in the cart.
func (s *Store) UpdateQuantity(ctx context.Context, productID int64, quantity int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := s.load(ctx)
	i := indexOf(items, productID)
	if i < 0 {
		return false
	}
	if quantity <= 0 {
		return s.remove(ctx, productID)
	}

	items[i].Quantity = quantity
	if s.save(ctx, items) {
		s.rec.ObserveMutation("update")
	}
	return true
}

// RemoveItem drops the item if present. Removing an absent item is not an error.
func (s *Store) RemoveItem(ctx context.Context, productID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remove(ctx, productID)
}

// ClearCart deletes the stored cart.
func (s *Store) ClearCart(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clear(ctx)
	return true
}

func (s *Store) TotalItems(ctx context.Context) int {
	return countItems(s.GetCart(ctx))
}

// Total is the sum of effective price times quantity, unrounded.
func (s *Store) Total(ctx context.Context) float64 {
	total := decimal.Zero
	for _, item := range s.GetCart(ctx) {
		total = total.Add(item.Subtotal())
	}
	return total.InexactFloat64()
}

// CartForServer projects the cart to what the sync endpoint accepts.
func (s *Store) CartForServer(ctx context.Context) []domain.ServerItem {
	items := s.GetCart(ctx)
	out := make([]domain.ServerItem, 0, len(items))
	for _, item := range items {
		out = append(out, item.ToServerItem())
	}
	return out
}

// SyncWithServer hands the cart to the server and clears it on success.
// On failure the local cart is left as it was. Concurrent calls share one request.
func (s *Store) SyncWithServer(ctx context.Context) domain.SyncResult {
	v, _, _ := s.sfg.Do(syncFlightKey, func() (interface{}, error) {
		return s.syncOnce(ctx), nil
	})
	return v.(domain.SyncResult)
}

func (s *Store) syncOnce(ctx context.Context) domain.SyncResult {
	items := s.CartForServer(ctx)
	if len(items) == 0 {
		s.rec.ObserveSync("empty")
		return domain.SyncResult{Success: true, Message: msgNothingToSync}
	}

	if err := s.syncer.Sync(ctx, items); err != nil {
		s.rec.ObserveSync("failure")

		var msgErr interface{ Message() string }
		if errors.As(err, &msgErr) {
			s.log.Warn(ctx).Err(err).Int("items", len(items)).Msg("server rejected cart sync")
			return domain.SyncResult{Success: false, Message: msgErr.Message()}
		}
		s.log.Error(ctx, err).Int("items", len(items)).Msg("cart sync failed")
		return domain.SyncResult{Success: false, Message: msgSyncFailed}
	}

	// The server owns these items now; clear them even if the caller has given up.
	clearCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), clearAfterSyncTimeout)
	defer cancel()
	s.ClearCart(clearCtx)
	s.rec.ObserveSync("success")
	s.log.Info(ctx).Int("items", len(items)).Msg("cart synced with server")
	return domain.SyncResult{Success: true, Message: msgSynced}
}

func (s *Store) load(ctx context.Context) []domain.LineItem {
	raw, err := s.storage.Get(ctx, s.key)
	if errors.Is(err, storage.ErrNotFound) {
		return []domain.LineItem{}
	}
	if err != nil {
		s.rec.ObserveStorageError("get")
		s.log.Error(ctx, err).Str("key", s.key).Msg("failed to read cart")
		return []domain.LineItem{}
	}

	var items []domain.LineItem
	if err := json.Unmarshal(raw, &items); err != nil {
		s.rec.ObserveStorageError("decode")
		s.log.Error(ctx, err).Str("key", s.key).Msg("stored cart is corrupted")
		return []domain.LineItem{}
	}
	if items == nil {
		items = []domain.LineItem{}
	}
	return items
}

func (s *Store) save(ctx context.Context, items []domain.LineItem) bool {
	if items == nil {
		items = []domain.LineItem{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		s.rec.ObserveStorageError("encode")
		s.log.Error(ctx, err).Msg("failed to encode cart")
		return false
	}
	if err := s.storage.Set(ctx, s.key, raw); err != nil {
		s.rec.ObserveStorageError("set")
		s.log.Error(ctx, err).Str("key", s.key).Msg("failed to save cart")
		return false
	}

	count := countItems(items)
	s.badge.UpdateBadge(count)
	s.rec.SetItems(count)
	return true
}

func (s *Store) remove(ctx context.Context, productID int64) bool {
	items := s.load(ctx)
	kept := items[:0]
	for _, item := range items {
		if item.ProductID != productID {
			kept = append(kept, item)
		}
	}
	if s.save(ctx, kept) {
		s.rec.ObserveMutation("remove")
	}
	return true
}

func (s *Store) clear(ctx context.Context) {
	if err := s.storage.Delete(ctx, s.key); err != nil {
		s.rec.ObserveStorageError("delete")
		s.log.Error(ctx, err).Str("key", s.key).Msg("failed to clear cart")
		return
	}
	s.badge.UpdateBadge(0)
	s.rec.SetItems(0)
	s.rec.ObserveMutation("clear")
}

func indexOf(items []domain.LineItem, productID int64) int {
	for i := range items {
		if items[i].ProductID == productID {
			return i
		}
	}
	return -1
}

// addQuantity saturates at math.MaxInt instead of wrapping to a negative quantity.
func addQuantity(a, b int) int {
	if a > math.MaxInt-b {
		return math.MaxInt
	}
	return a + b
}

func countItems(items []domain.LineItem) int {
	total := 0
	for _, item := range items {
		total = addQuantity(total, item.Quantity)
	}
	return total
}

type noopRecorder struct{}

func (noopRecorder) ObserveMutation(string)     {}
func (noopRecorder) ObserveStorageError(string) {}
func (noopRecorder) ObserveSync(string)         {}
func (noopRecorder) SetItems(int)               {}
