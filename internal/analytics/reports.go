// Package analytics builds the ERP reports on top of the aggregation
// pipeline: stock rollups, low-stock alerts, sales and purchasing totals.
package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/buildcore/erp-core/internal/engine"
	"github.com/buildcore/erp-core/internal/service"
	"github.com/buildcore/erp-core/pkg/logger"
)

// Report names.
const (
	InventoryStatus     = "inventory-status"
	LowStock            = "low-stock"
	SalesByCustomer     = "sales-by-customer"
	PurchasesBySupplier = "purchases-by-supplier"
)

// Collections read by the reports.
const (
	colInventory = "inventory"
	colOrders    = "orders"
	colPurchases = "purchases"
)

var ErrUnknownReport = errors.New("unknown report")

// Report is a computed report.
type Report struct {
	Name        string            `json:"name"`
	GeneratedAt time.Time         `json:"generatedAt"`
	Rows        []engine.Document `json:"rows"`
}

// Cache stores reports keyed by the versions of the collections they read.
type Cache interface {
	Key(ctx context.Context, report string, collections ...string) (string, error)
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any) error
}

// Exporter uploads report snapshots and hands out download links.
type Exporter interface {
	UploadBytes(ctx context.Context, key string, data []byte, contentType string) error
	GetPresignedURL(ctx context.Context, key string, expires time.Duration) (string, error)
}

// Reporter computes reports through a data service.
type Reporter struct {
	svc        service.Service
	cache      Cache
	exporter   Exporter
	presignTTL time.Duration
	now        func() time.Time
}

type Option func(*Reporter)

func WithCache(c Cache) Option { return func(r *Reporter) { r.cache = c } }

func WithExporter(e Exporter, presignTTL time.Duration) Option {
	return func(r *Reporter) {
		r.exporter = e
		r.presignTTL = presignTTL
	}
}

func WithClock(now func() time.Time) Option { return func(r *Reporter) { r.now = now } }

func New(svc service.Service, opts ...Option) *Reporter {
	r := &Reporter{svc: svc, presignTTL: 15 * time.Minute, now: func() time.Time { return time.Now().UTC() }}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Names lists the available reports.
func Names() []string {
	return []string{InventoryStatus, LowStock, SalesByCustomer, PurchasesBySupplier}
}

// Run computes the named report. limit caps the number of rows for the
// ranking reports; 0 means all.
func (r *Reporter) Run(ctx context.Context, name string, limit int) (*Report, error) {
	switch name {
	case InventoryStatus:
		return r.InventoryStatus(ctx)
	case LowStock:
		return r.LowStock(ctx)
	case SalesByCustomer:
		return r.SalesByCustomer(ctx, limit)
	case PurchasesBySupplier:
		return r.PurchasesBySupplier(ctx, limit)
	}
	return nil, fmt.Errorf("%q: %w", name, ErrUnknownReport)
}

// InventoryStatus counts stock records and units per stock status.
func (r *Reporter) InventoryStatus(ctx context.Context) (*Report, error) {
	return r.cached(ctx, InventoryStatus, []string{colInventory}, func() ([]engine.Document, error) {
		return r.svc.Aggregate(ctx, colInventory, engine.Pipeline{
			engine.GroupStage{
				Key: engine.GroupByField{Field: "status"},
				Fields: []engine.Accumulator{
					{Name: "items", Kind: engine.AccCount},
					{Name: "units", Kind: engine.AccSum, Field: "quantity"},
				},
			},
			engine.SortStage{Spec: engine.SortSpec{{Field: "_id", Dir: engine.Asc}}},
		})
	})
}

// LowStock lists stock records that are low or out of stock, lowest quantity
// first, with the shortfall against the minimum stock level.
func (r *Reporter) LowStock(ctx context.Context) (*Report, error) {
	return r.cached(ctx, LowStock, []string{colInventory}, func() ([]engine.Document, error) {
		q := engine.Query{engine.Where("status", engine.In{Values: []any{"low_stock", "out_of_stock"}})}
		docs, err := r.svc.Find(ctx, colInventory, q, engine.FindOptions{
			Sort: engine.SortSpec{{Field: "quantity", Dir: engine.Asc}, {Field: engine.FieldID, Dir: engine.Asc}},
			Projection: engine.Projection{
				"productId": 1, "warehouse": 1, "quantity": 1, "minimumStock": 1, "status": 1,
			},
		})
		if err != nil {
			return nil, err
		}
		for _, d := range docs {
			qty, _ := number(d["quantity"])
			minimum, _ := number(d["minimumStock"])
			d["shortfall"] = max(minimum-qty, 0)
		}
		return docs, nil
	})
}

// SalesByCustomer ranks customers by revenue from orders that were not cancelled.
func (r *Reporter) SalesByCustomer(ctx context.Context, limit int) (*Report, error) {
	return r.ranking(ctx, SalesByCustomer, colOrders, "customerId", "revenue", limit)
}

// PurchasesBySupplier ranks suppliers by spend on purchase orders that were not cancelled.
func (r *Reporter) PurchasesBySupplier(ctx context.Context, limit int) (*Report, error) {
	return r.ranking(ctx, PurchasesBySupplier, colPurchases, "supplierId", "spend", limit)
}

func (r *Reporter) ranking(ctx context.Context, name, collection, keyField, amountField string, limit int) (*Report, error) {
	cacheName := name
	if limit > 0 {
		cacheName += ":top" + strconv.Itoa(limit)
	}
	return r.cached(ctx, cacheName, []string{collection}, func() ([]engine.Document, error) {
		p := engine.Pipeline{
			engine.MatchStage{Query: engine.Query{engine.Where("status", engine.Ne{Value: "cancelled"})}},
			engine.GroupStage{
				Key: engine.GroupByField{Field: engine.FieldRef(keyField)},
				Fields: []engine.Accumulator{
					{Name: amountField, Kind: engine.AccSum, Field: "total"},
					{Name: "count", Kind: engine.AccCount},
					{Name: "average", Kind: engine.AccAvg, Field: "total"},
					{Name: "largest", Kind: engine.AccMax, Field: "total"},
					{Name: "smallest", Kind: engine.AccMin, Field: "total"},
				},
			},
			engine.SortStage{Spec: engine.SortSpec{{Field: amountField, Dir: engine.Desc}, {Field: "_id", Dir: engine.Asc}}},
		}
		if limit > 0 {
			p = append(p, engine.LimitStage{N: limit})
		}
		return r.svc.Aggregate(ctx, collection, p)
	})
}

func (r *Reporter) cached(ctx context.Context, name string, collections []string, compute func() ([]engine.Document, error)) (*Report, error) {
	var key string
	if r.cache != nil {
		k, err := r.cache.Key(ctx, name, collections...)
		if err != nil {
			logger.Warnf("report %s: %v", name, err)
		} else {
			key = k
			var rep Report
			hit, err := r.cache.Get(ctx, key, &rep)
			if err != nil {
				logger.Warnf("report %s: %v", name, err)
			}
			if hit {
				return &rep, nil
			}
		}
	}

	rows, err := compute()
	if err != nil {
		return nil, fmt.Errorf("report %s: %w", name, err)
	}
	rep := &Report{Name: name, GeneratedAt: r.now(), Rows: rows}
	if key != "" {
		if err := r.cache.Set(ctx, key, rep); err != nil {
			logger.Warnf("report %s: %v", name, err)
		}
	}
	return rep, nil
}

// Export is the location of an uploaded report snapshot.
type Export struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

var ErrExportDisabled = errors.New("report export is not configured")

// Export computes a report, uploads it as JSON and returns a presigned link.
func (r *Reporter) Export(ctx context.Context, name string, limit int) (*Export, error) {
	if r.exporter == nil {
		return nil, ErrExportDisabled
	}
	rep, err := r.Run(ctx, name, limit)
	if err != nil {
		return nil, err
	}
	body, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode report %s: %w", name, err)
	}
	key := fmt.Sprintf("reports/%s/%s.json", name, r.now().Format("20060102T150405Z"))
	if err := r.exporter.UploadBytes(ctx, key, body, "application/json"); err != nil {
		return nil, err
	}
	url, err := r.exporter.GetPresignedURL(ctx, key, r.presignTTL)
	if err != nil {
		return nil, err
	}
	logger.Infof("report %s exported to %s", name, key)
	return &Export{Key: key, URL: url}, nil
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	}
	return 0, false
}
