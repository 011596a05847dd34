// Package ledgertest provides an in-memory ledger repository for service
// tests. Transactions are staged on a copy and only committed on success so
// tests can assert rollback behaviour.
package ledgertest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/stocklane/stocklane/internal/ledger"
)

// MemoryRepo implements ledger.RepositoryPort backed by maps.
type MemoryRepo struct {
	mu             sync.Mutex
	locations      map[int64]int64 // location id -> warehouse id
	locationCodes  map[int64]string
	balances       map[string]ledger.Balance
	movements      []ledger.Movement
	nextBalanceID  int64
	nextMovementID int64
}

// NewMemoryRepo constructs an empty repo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		locations:     make(map[int64]int64),
		locationCodes: make(map[int64]string),
		balances:      make(map[string]ledger.Balance),
	}
}

func key(productID, locationID int64, batch string) string {
	return fmt.Sprintf("%d:%d:%s", productID, locationID, batch)
}

// AddLocation registers a location in a warehouse for warehouse-scoped queries.
func (r *MemoryRepo) AddLocation(locationID, warehouseID int64, code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.locations[locationID] = warehouseID
	r.locationCodes[locationID] = code
}

// SeedBalance installs a balance row directly, bypassing the movement log.
func (r *MemoryRepo) SeedBalance(productID, locationID int64, batch string, quantity, reserved float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextBalanceID++
	k := key(productID, locationID, batch)
	r.balances[k] = ledger.Balance{
		ID:         r.nextBalanceID,
		ProductID:  productID,
		LocationID: locationID,
		Batch:      batch,
		Quantity:   quantity,
		Reserved:   reserved,
		UpdatedAt:  time.Now().UTC(),
	}
}

// Balance returns the current row for assertions, zero row when absent.
func (r *MemoryRepo) Balance(productID, locationID int64, batch string) ledger.Balance {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.balances[key(productID, locationID, batch)]
}

// Movements returns a copy of the movement log.
func (r *MemoryRepo) Movements() []ledger.Movement {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ledger.Movement, len(r.movements))
	copy(out, r.movements)
	return out
}

// WithTx stages changes and commits them only when fn succeeds.
func (r *MemoryRepo) WithTx(ctx context.Context, fn func(context.Context, ledger.TxRepository) error) error {
	r.mu.Lock()
	tx := &memoryTx{
		repo:           r,
		balances:       make(map[string]ledger.Balance, len(r.balances)),
		movements:      append([]ledger.Movement(nil), r.movements...),
		nextBalanceID:  r.nextBalanceID,
		nextMovementID: r.nextMovementID,
	}
	for k, v := range r.balances {
		tx.balances[k] = v
	}
	r.mu.Unlock()

	if err := fn(ctx, tx); err != nil {
		return err
	}

	r.mu.Lock()
	r.balances = tx.balances
	r.movements = tx.movements
	r.nextBalanceID = tx.nextBalanceID
	r.nextMovementID = tx.nextMovementID
	r.mu.Unlock()
	return nil
}

// FindBalance implements ledger.RepositoryPort. Company scoping is a no-op
// here, the maps hold a single tenant.
func (r *MemoryRepo) FindBalance(ctx context.Context, companyID, productID, locationID int64, batch string) (ledger.Balance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if bal, ok := r.balances[key(productID, locationID, batch)]; ok {
		return bal, nil
	}
	return ledger.Balance{ProductID: productID, LocationID: locationID, Batch: batch}, ledger.ErrBalanceNotFound
}

// ListBalances implements ledger.RepositoryPort.
func (r *MemoryRepo) ListBalances(ctx context.Context, filter ledger.BalanceFilter) ([]ledger.Balance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []ledger.Balance
	for _, b := range r.balances {
		if filter.ProductID != 0 && b.ProductID != filter.ProductID {
			continue
		}
		if filter.LocationID != 0 && b.LocationID != filter.LocationID {
			continue
		}
		if filter.WarehouseID != 0 && r.locations[b.LocationID] != filter.WarehouseID {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListMovements implements ledger.RepositoryPort, newest first.
func (r *MemoryRepo) ListMovements(ctx context.Context, filter ledger.MovementFilter) ([]ledger.Movement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []ledger.Movement
	for i := len(r.movements) - 1; i >= 0; i-- {
		m := r.movements[i]
		if filter.ProductID != 0 && m.ProductID != filter.ProductID {
			continue
		}
		if filter.LocationID != 0 && m.FromLocationID != filter.LocationID && m.ToLocationID != filter.LocationID {
			continue
		}
		if filter.Type != "" && m.Type != filter.Type {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// MovementsForBalance implements ledger.RepositoryPort, oldest first.
func (r *MemoryRepo) MovementsForBalance(ctx context.Context, productID, locationID int64) ([]ledger.Movement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []ledger.Movement
	for _, m := range r.movements {
		if m.ProductID != productID {
			continue
		}
		if m.FromLocationID != locationID && m.ToLocationID != locationID {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

type memoryTx struct {
	repo           *MemoryRepo
	balances       map[string]ledger.Balance
	movements      []ledger.Movement
	nextBalanceID  int64
	nextMovementID int64
}

func (tx *memoryTx) LockBalance(ctx context.Context, productID, locationID int64, batch string) (ledger.Balance, error) {
	if bal, ok := tx.balances[key(productID, locationID, batch)]; ok {
		return bal, nil
	}
	return ledger.Balance{ProductID: productID, LocationID: locationID, Batch: batch}, ledger.ErrBalanceNotFound
}

func (tx *memoryTx) LockOrCreateBalance(ctx context.Context, productID, locationID int64, batch string, expiry *time.Time) (ledger.Balance, error) {
	k := key(productID, locationID, batch)
	if bal, ok := tx.balances[k]; ok {
		return bal, nil
	}
	tx.nextBalanceID++
	bal := ledger.Balance{
		ID:         tx.nextBalanceID,
		ProductID:  productID,
		LocationID: locationID,
		Batch:      batch,
		Expiry:     expiry,
		UpdatedAt:  time.Now().UTC(),
	}
	tx.balances[k] = bal
	return bal, nil
}

func (tx *memoryTx) LockWarehouseBalances(ctx context.Context, productID, warehouseID int64) ([]ledger.Balance, error) {
	var out []ledger.Balance
	for _, b := range tx.balances {
		if b.ProductID != productID || b.Quantity <= 0 {
			continue
		}
		if tx.repo.locations[b.LocationID] != warehouseID {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		ci, cj := tx.repo.locationCodes[out[i].LocationID], tx.repo.locationCodes[out[j].LocationID]
		if ci != cj {
			return ci < cj
		}
		return out[i].Batch < out[j].Batch
	})
	return out, nil
}

func (tx *memoryTx) LocationWarehouse(ctx context.Context, locationID int64) (int64, error) {
	if warehouseID, ok := tx.repo.locations[locationID]; ok {
		return warehouseID, nil
	}
	return 0, ledger.ErrLocationNotFound
}

func (tx *memoryTx) UpdateBalance(ctx context.Context, id int64, quantity, reserved float64) error {
	for k, b := range tx.balances {
		if b.ID == id {
			b.Quantity = quantity
			b.Reserved = reserved
			b.UpdatedAt = time.Now().UTC()
			tx.balances[k] = b
			return nil
		}
	}
	return ledger.ErrBalanceNotFound
}

func (tx *memoryTx) InsertMovement(ctx context.Context, m ledger.Movement) (ledger.Movement, error) {
	tx.nextMovementID++
	m.ID = tx.nextMovementID
	tx.movements = append(tx.movements, m)
	return m, nil
}
