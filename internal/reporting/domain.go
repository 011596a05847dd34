// Package reporting serves read-only stock views: per-location stock levels
// with product and warehouse context, and products that have fallen below
// their minimum stock. Reads are cached in Redis with a short TTL; writes to
// the ledger bump the cache version.
package reporting

// StockLevel is one balance row joined with its product and location.
type StockLevel struct {
	ProductID     int64   `json:"product_id"`
	SKU           string  `json:"sku"`
	ProductName   string  `json:"product_name"`
	Unit          string  `json:"unit"`
	WarehouseID   int64   `json:"warehouse_id"`
	WarehouseName string  `json:"warehouse_name"`
	LocationID    int64   `json:"location_id"`
	LocationCode  string  `json:"location_code"`
	Batch         string  `json:"batch,omitempty"`
	Quantity      float64 `json:"quantity"`
	Reserved      float64 `json:"reserved"`
	Available     float64 `json:"available"`
}

// StockLevelFilter narrows the stock level listing.
type StockLevelFilter struct {
	CompanyID   int64
	ProductID   int64
	WarehouseID int64
	LocationID  int64
	Page        int
	Limit       int
}

// LowStockItem is a product whose total on-hand quantity is below its
// configured minimum.
type LowStockItem struct {
	ProductID int64   `json:"product_id"`
	SKU       string  `json:"sku"`
	Name      string  `json:"name"`
	Unit      string  `json:"unit"`
	MinStock  float64 `json:"min_stock"`
	OnHand    float64 `json:"on_hand"`
	Deficit   float64 `json:"deficit"`
}

// Overview is the aggregate stock picture for a company.
type Overview struct {
	Products      int     `json:"products"`
	Warehouses    int     `json:"warehouses"`
	TotalQuantity float64 `json:"total_quantity"`
	TotalReserved float64 `json:"total_reserved"`
	LowStockCount int     `json:"low_stock_count"`
}
