package inventory

import (
	"fmt"
	"time"
)

const DefaultWarehouse = "MAIN_WAREHOUSE"

// Key addresses one stock record.
type Key struct {
	SKU       string
	Warehouse string
}

func NewKey(sku, warehouse string) Key {
	if warehouse == "" {
		warehouse = DefaultWarehouse
	}
	return Key{SKU: sku, Warehouse: warehouse}
}

func (k Key) String() string { return k.SKU + "@" + k.Warehouse }

// StockRecord is the per-SKU, per-warehouse quantity ledger entry.
// Total always equals Available + Reserved once an operation completes.
type StockRecord struct {
	Key
	Total           int
	Available       int
	Reserved        int
	MinimumLevel    int
	MaximumLevel    int
	ReorderPoint    int
	ReorderQuantity int
	Version         int64
	UpdatedAt       time.Time
}

// Levels holds the replenishment thresholds of a record.
type Levels struct {
	Minimum         int
	Maximum         int
	ReorderPoint    int
	ReorderQuantity int
}

func NewStockRecord(key Key, quantity int, levels Levels) (*StockRecord, error) {
	if quantity < 0 {
		return nil, fmt.Errorf("%w: initial quantity %d", ErrInvalidQuantity, quantity)
	}
	return &StockRecord{
		Key:             key,
		Total:           quantity,
		Available:       quantity,
		MinimumLevel:    levels.Minimum,
		MaximumLevel:    levels.Maximum,
		ReorderPoint:    levels.ReorderPoint,
		ReorderQuantity: levels.ReorderQuantity,
		Version:         1,
		UpdatedAt:       time.Now().UTC(),
	}, nil
}

func (s *StockRecord) IsLowStock() bool   { return s.Available <= s.MinimumLevel }
func (s *StockRecord) IsOutOfStock() bool { return s.Available <= 0 }
func (s *StockRecord) NeedsReorder() bool { return s.Available <= s.ReorderPoint }

// Reserve moves quantity from available to reserved.
func (s *StockRecord) Reserve(quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	if s.Available < quantity {
		return &InsufficientStockError{Key: s.Key, Requested: quantity, Available: s.Available}
	}
	s.Available -= quantity
	s.Reserved += quantity
	return s.bump()
}

// Release moves quantity from reserved back to available.
func (s *StockRecord) Release(quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	if s.Reserved < quantity {
		return fmt.Errorf("%w: release %d of %d reserved on %s", ErrInvariant, quantity, s.Reserved, s.Key)
	}
	s.Reserved -= quantity
	s.Available += quantity
	return s.bump()
}

// Confirm removes reserved quantity from the ledger for good.
func (s *StockRecord) Confirm(quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	if s.Reserved < quantity {
		return fmt.Errorf("%w: confirm %d of %d reserved on %s", ErrInvariant, quantity, s.Reserved, s.Key)
	}
	s.Reserved -= quantity
	s.Total -= quantity
	return s.bump()
}

// Adjust applies an administrative correction to total and available alike.
func (s *StockRecord) Adjust(delta int) error {
	if delta == 0 {
		return ErrInvalidQuantity
	}
	if s.Available+delta < 0 {
		return &InsufficientStockError{Key: s.Key, Requested: -delta, Available: s.Available}
	}
	s.Total += delta
	s.Available += delta
	return s.bump()
}

// CheckInvariant verifies total == available + reserved with no negative side.
func (s *StockRecord) CheckInvariant() error {
	if s.Available < 0 || s.Reserved < 0 || s.Total != s.Available+s.Reserved {
		return fmt.Errorf("%w: %s total=%d available=%d reserved=%d",
			ErrInvariant, s.Key, s.Total, s.Available, s.Reserved)
	}
	return nil
}

func (s *StockRecord) Clone() *StockRecord {
	if s == nil {
		return nil
	}
	clone := *s
	return &clone
}

func (s *StockRecord) bump() error {
	if err := s.CheckInvariant(); err != nil {
		return err
	}
	s.Version++
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// Availability aggregates a SKU across warehouses.
type Availability struct {
	SKU        string
	Total      int
	Available  int
	Reserved   int
	LowStock   bool
	Warehouses []*StockRecord
}

// Aggregate sums records of one SKU. Low-stock uses the first record's minimum,
// matching how per-SKU thresholds are configured.
func Aggregate(sku string, records []*StockRecord) Availability {
	out := Availability{SKU: sku, Warehouses: records}
	for _, r := range records {
		out.Total += r.Total
		out.Available += r.Available
		out.Reserved += r.Reserved
	}
	if len(records) > 0 {
		out.LowStock = out.Available <= records[0].MinimumLevel
	}
	return out
}
