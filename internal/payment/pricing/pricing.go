// Package pricing turns a package and boost selection into an itemized service fee.
package pricing

import (
	"fmt"

	"github.com/cuongbtq/servicefee/internal/payment/domain"
	"github.com/shopspring/decimal"
)

// TaxMode selects how VAT appears in a breakdown
type TaxMode string

const (
	// TaxModeInclusive prices already include VAT; no tax line is shown
	TaxModeInclusive TaxMode = "inclusive"
	// TaxModeExclusive adds VAT on top of the subtotal
	TaxModeExclusive TaxMode = "exclusive"
)

// TaxConfig is the tax input to ComputeFee
type TaxConfig struct {
	Mode    TaxMode
	VATRate float64 // percent, used only in exclusive mode
}

// Validate checks that the tax configuration is usable
func (t TaxConfig) Validate() error {
	switch t.Mode {
	case TaxModeInclusive:
		return nil
	case TaxModeExclusive:
		if t.VATRate <= 0 || t.VATRate >= 100 {
			return fmt.Errorf("vat rate must be between 0 and 100 in exclusive mode, got %v", t.VATRate)
		}
		return nil
	default:
		return fmt.Errorf("unknown tax mode %q", t.Mode)
	}
}

// ComputeFee prices a package plus boosts. It has no side effects and depends only
// on its arguments.
func ComputeFee(catalog *Catalog, packageID string, boostIDs []string, tax TaxConfig) (domain.FeeBreakdown, error) {
	if err := tax.Validate(); err != nil {
		return domain.FeeBreakdown{}, domain.NewValidationError("tax", err.Error())
	}

	if packageID == "" {
		return domain.FeeBreakdown{}, domain.NewValidationError("package_id", "package is required")
	}

	pkg, ok := catalog.Package(packageID)
	if !ok {
		return domain.FeeBreakdown{}, domain.NewValidationError("package_id", fmt.Sprintf("unknown package %q", packageID))
	}

	lines := make([]domain.ServiceLine, 0, 1+len(boostIDs))
	lines = append(lines, line(pkg))

	seen := make(map[string]struct{}, len(boostIDs))
	for _, id := range boostIDs {
		if _, dup := seen[id]; dup {
			return domain.FeeBreakdown{}, domain.NewValidationError("boost_ids", fmt.Sprintf("boost %q selected more than once", id))
		}
		seen[id] = struct{}{}

		boost, ok := catalog.Boost(id)
		if !ok {
			return domain.FeeBreakdown{}, domain.NewValidationError("boost_ids", fmt.Sprintf("unknown boost %q", id))
		}
		lines = append(lines, line(boost))
	}

	var subtotal int64
	for _, l := range lines {
		subtotal += l.TotalFee
	}

	b := domain.FeeBreakdown{
		Subtotal:       subtotal,
		TotalBeforeTax: subtotal,
		Services:       lines,
	}

	if tax.Mode == TaxModeExclusive {
		b.VATEnabled = true
		b.TaxRate = tax.VATRate
		b.TaxAmount = vatAmount(subtotal, tax.VATRate)
	}
	b.TotalServiceFee = b.TotalBeforeTax + b.TaxAmount

	if err := b.Validate(); err != nil {
		return domain.FeeBreakdown{}, err
	}

	return b, nil
}

// vatAmount rounds half away from zero to whole baht
func vatAmount(subtotal int64, rate float64) int64 {
	return decimal.NewFromInt(subtotal).
		Mul(decimal.NewFromFloat(rate)).
		Div(decimal.NewFromInt(100)).
		Round(0).
		IntPart()
}

func line(it Item) domain.ServiceLine {
	return domain.ServiceLine{
		ServiceID:   it.ID,
		ServiceName: it.Name,
		UnitFee:     it.Fee,
		TotalFee:    it.Fee,
	}
}

// Engine binds a catalog to the configured tax mode
type Engine struct {
	catalog *Catalog
	tax     TaxConfig
}

// NewEngine validates the tax configuration once at startup
func NewEngine(catalog *Catalog, tax TaxConfig) (*Engine, error) {
	if catalog == nil {
		return nil, fmt.Errorf("catalog is required")
	}
	if err := tax.Validate(); err != nil {
		return nil, err
	}
	return &Engine{catalog: catalog, tax: tax}, nil
}

// Quote prices a selection with the engine's catalog and tax configuration
func (e *Engine) Quote(packageID string, boostIDs []string) (domain.FeeBreakdown, error) {
	return ComputeFee(e.catalog, packageID, boostIDs, e.tax)
}

// Snapshot freezes the purchased package and boosts for storage on the payment
func (e *Engine) Snapshot(b domain.FeeBreakdown) (domain.ServiceSnapshot, []domain.ServiceSnapshot) {
	if len(b.Services) == 0 {
		return domain.ServiceSnapshot{}, nil
	}

	toSnap := func(l domain.ServiceLine) domain.ServiceSnapshot {
		return domain.ServiceSnapshot{ServiceID: l.ServiceID, Name: l.ServiceName, Fee: l.TotalFee}
	}

	extras := make([]domain.ServiceSnapshot, 0, len(b.Services)-1)
	for _, l := range b.Services[1:] {
		extras = append(extras, toSnap(l))
	}
	return toSnap(b.Services[0]), extras
}
