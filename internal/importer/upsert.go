package importer

import (
	"context"
	"log/slog"
	"strings"

	"github.com/mberg/product-importer/internal/catalog"
)

// CatalogStore is the persistence surface the upsert engine needs.
type CatalogStore interface {
	// LookupBySKUs resolves existing products for the given SKUs. The
	// returned map is keyed by lowercased SKU; absent keys mean no match.
	LookupBySKUs(ctx context.Context, skus []string) (map[string]catalog.Product, error)

	// ApplyBatch persists all inserts and updates in a single transaction.
	// Either everything lands or nothing does.
	ApplyBatch(ctx context.Context, inserts, updates []catalog.Product) error
}

// Engine turns parsed records into catalog writes. SKU matching is
// case-insensitive and an existing product keeps its stored casing;
// duplicate SKUs within one batch collapse to the last occurrence.
type Engine struct {
	store CatalogStore
	log   *slog.Logger
}

func NewEngine(store CatalogStore, log *slog.Logger) *Engine {
	return &Engine{store: store, log: log}
}

type stagedProduct struct {
	product catalog.Product
	update  bool
}

// ProcessBatch validates, dedupes and persists one batch. It returns the
// number of rows applied and per-row validation errors. A lookup or
// commit failure fails the whole batch: zero rows applied plus a single
// row error at row 0 carrying the classified message.
func (e *Engine) ProcessBatch(ctx context.Context, batch Batch) (int, []catalog.RowError) {
	var rowErrs []catalog.RowError

	skus := make([]string, 0, len(batch.Records))
	seen := make(map[string]struct{}, len(batch.Records))
	for _, rec := range batch.Records {
		sku := strings.TrimSpace(rec.SKU)
		if sku == "" {
			continue
		}
		key := strings.ToLower(sku)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		skus = append(skus, sku)
	}

	existing := map[string]catalog.Product{}
	if len(skus) > 0 {
		var err error
		existing, err = e.store.LookupBySKUs(ctx, skus)
		if err != nil {
			e.log.Error("batch sku lookup failed", "batch", batch.Index, "error", err)
			return 0, []catalog.RowError{{Row: 0, Message: Classify(err).Message}}
		}
	}

	staged := make(map[string]*stagedProduct, len(batch.Records))
	order := make([]string, 0, len(batch.Records))
	applied := 0

	for _, rec := range batch.Records {
		sku := strings.TrimSpace(rec.SKU)
		if sku == "" {
			rowErrs = append(rowErrs, catalog.RowError{Row: rec.RowNumber, Message: "SKU is required"})
			continue
		}
		name := strings.TrimSpace(rec.Name)
		if name == "" {
			rowErrs = append(rowErrs, catalog.RowError{Row: rec.RowNumber, Message: "Name is required"})
			continue
		}
		key := strings.ToLower(sku)

		if st, ok := staged[key]; ok {
			// Same SKU seen earlier in this batch: last write wins.
			st.product.Name = name
			st.product.Description = descriptionPtr(rec.Description)
			applied++
			continue
		}

		st := &stagedProduct{}
		if cur, ok := existing[key]; ok {
			st.update = true
			st.product = cur
			st.product.Name = name
		} else {
			st.product = catalog.Product{SKU: sku, Name: name}
		}
		st.product.Description = descriptionPtr(rec.Description)
		staged[key] = st
		order = append(order, key)
		applied++
	}

	if len(order) == 0 {
		return 0, rowErrs
	}

	var inserts, updates []catalog.Product
	for _, key := range order {
		st := staged[key]
		if st.update {
			updates = append(updates, st.product)
		} else {
			inserts = append(inserts, st.product)
		}
	}

	if err := e.store.ApplyBatch(ctx, inserts, updates); err != nil {
		e.log.Error("batch apply failed",
			"batch", batch.Index,
			"inserts", len(inserts),
			"updates", len(updates),
			"error", err,
		)
		rowErrs = append(rowErrs, catalog.RowError{Row: 0, Message: Classify(err).Message})
		return 0, rowErrs
	}

	return applied, rowErrs
}

func descriptionPtr(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
