package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mstgnz/vpos/provider"
)

// MemoryStore keeps everything in process memory. Records are copied in
// and out so callers never share state with the store.
type MemoryStore struct {
	mu           sync.RWMutex
	transactions map[string]*provider.Transaction
	terminals    map[string]*provider.Terminal
	overrides    map[string]*provider.CommissionOverride
	bins         map[string]*provider.BinInfo
	seq          int
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		transactions: make(map[string]*provider.Transaction),
		terminals:    make(map[string]*provider.Terminal),
		overrides:    make(map[string]*provider.CommissionOverride),
		bins:         make(map[string]*provider.BinInfo),
	}
}

func (m *MemoryStore) CreateTransaction(_ context.Context, tx *provider.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.transactions[tx.ID]; exists {
		return ErrDuplicate
	}
	m.transactions[tx.ID] = clone(tx)
	return nil
}

func (m *MemoryStore) GetTransaction(_ context.Context, id string) (*provider.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tx, ok := m.transactions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(tx), nil
}

func (m *MemoryStore) UpdateTransaction(_ context.Context, id string, expect provider.Status, upd TransactionUpdate) (*provider.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, ok := m.transactions[id]
	if !ok {
		return nil, ErrNotFound
	}
	if expect != "" && tx.Status != expect {
		return nil, ErrStatusConflict
	}
	upd.Apply(tx, time.Now().UTC())
	return clone(tx), nil
}

func (m *MemoryStore) ClaimCallback(_ context.Context, id string, at time.Time) (*provider.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, ok := m.transactions[id]
	if !ok {
		return nil, ErrNotFound
	}
	if tx.Status != provider.StatusProcessing {
		return nil, ErrStatusConflict
	}
	if tx.CallbackAt != nil {
		return nil, ErrAlreadyClaimed
	}
	tx.CallbackAt = &at
	return clone(tx), nil
}

func (m *MemoryStore) ClaimChild(_ context.Context, parentID, slot, childID string) (*provider.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, ok := m.transactions[parentID]
	if !ok {
		return nil, ErrNotFound
	}
	if err := claimChild(tx, slot, childID, time.Now().UTC()); err != nil {
		return nil, err
	}
	return clone(tx), nil
}

func (m *MemoryStore) ReleaseChild(_ context.Context, parentID, slot, childID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, ok := m.transactions[parentID]
	if !ok {
		return ErrNotFound
	}
	releaseChild(tx, slot, childID, time.Now().UTC())
	return nil
}

func (m *MemoryStore) ListChildren(_ context.Context, parentID string) ([]*provider.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var children []*provider.Transaction
	for _, tx := range m.transactions {
		if tx.ParentID == parentID {
			children = append(children, clone(tx))
		}
	}
	sort.SliceStable(children, func(i, j int) bool {
		return children[i].CreatedAt.Before(children[j].CreatedAt)
	})
	return children, nil
}

func (m *MemoryStore) SaveTerminal(_ context.Context, t *provider.Terminal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var siblings []*provider.Terminal
	for _, other := range m.terminals {
		if other.PartnerID == t.PartnerID {
			siblings = append(siblings, other)
		}
	}
	if err := checkTerminal(t, siblings); err != nil {
		return err
	}

	stored := clone(t)
	if existing, ok := m.terminals[t.ID]; ok {
		stored.Position = existing.Position
	} else {
		m.seq++
		stored.Position = m.seq
	}
	t.Position = stored.Position
	m.terminals[t.ID] = stored
	return nil
}

func (m *MemoryStore) GetTerminal(_ context.Context, id string) (*provider.Terminal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.terminals[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(t), nil
}

func (m *MemoryStore) ListTerminals(_ context.Context, partnerID string) ([]*provider.Terminal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*provider.Terminal
	for _, t := range m.terminals {
		if t.PartnerID == partnerID {
			out = append(out, clone(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (m *MemoryStore) SaveOverride(_ context.Context, o *provider.CommissionOverride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides[o.ID] = clone(o)
	return nil
}

func (m *MemoryStore) FindOverrides(_ context.Context, partnerID, currency string) ([]*provider.CommissionOverride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*provider.CommissionOverride
	for _, o := range m.overrides {
		if o.PartnerID == partnerID && o.Currency == currency && o.Active {
			out = append(out, clone(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) GetBinRecord(_ context.Context, prefix string) (*provider.BinInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	info, ok := m.bins[prefix]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(info), nil
}

func (m *MemoryStore) SaveBinRecord(_ context.Context, info *provider.BinInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bins[info.Bin] = clone(info)
	return nil
}

func (m *MemoryStore) Ping(_ context.Context) error {
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}
