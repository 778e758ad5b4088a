package pricing

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/cuongbtq/servicefee/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var inclusive = TaxConfig{Mode: TaxModeInclusive}

func TestComputeFee_StandardWithFeatured(t *testing.T) {
	b, err := ComputeFee(DefaultCatalog(), "standard", []string{"featured"}, inclusive)
	require.NoError(t, err)

	assert.Equal(t, int64(298), b.TotalServiceFee)
	assert.Equal(t, int64(298), b.Subtotal)
	assert.Equal(t, int64(0), b.TaxAmount)
	assert.False(t, b.VATEnabled)
	require.Len(t, b.Services, 2)
	assert.Equal(t, "standard", b.Services[0].ServiceID)
	assert.Equal(t, "featured", b.Services[1].ServiceID)
}

func TestComputeFee_Exclusive(t *testing.T) {
	b, err := ComputeFee(DefaultCatalog(), "standard", []string{"featured"}, TaxConfig{Mode: TaxModeExclusive, VATRate: 7})
	require.NoError(t, err)

	// 298 * 7% = 20.86 -> 21
	assert.True(t, b.VATEnabled)
	assert.Equal(t, 7.0, b.TaxRate)
	assert.Equal(t, int64(21), b.TaxAmount)
	assert.Equal(t, int64(298), b.TotalBeforeTax)
	assert.Equal(t, int64(319), b.TotalServiceFee)
}

func TestComputeFee_SummationInvariant(t *testing.T) {
	catalog := DefaultCatalog()
	boosts := catalog.Boosts()
	taxes := []TaxConfig{inclusive, {Mode: TaxModeExclusive, VATRate: 7}, {Mode: TaxModeExclusive, VATRate: 10}}

	for _, pkg := range catalog.Packages() {
		// every subset of boosts
		for mask := 0; mask < 1<<len(boosts); mask++ {
			var ids []string
			for i, b := range boosts {
				if mask&(1<<i) != 0 {
					ids = append(ids, b.ID)
				}
			}

			for _, tax := range taxes {
				b, err := ComputeFee(catalog, pkg.ID, ids, tax)
				require.NoError(t, err)
				assert.Equal(t, b.TotalBeforeTax+b.TaxAmount, b.TotalServiceFee, "pkg=%s boosts=%v", pkg.ID, ids)
				assert.Equal(t, b.Subtotal, b.TotalBeforeTax)
			}
		}
	}
}

func TestComputeFee_IsDeterministic(t *testing.T) {
	tax := TaxConfig{Mode: TaxModeExclusive, VATRate: 7}

	first, err := ComputeFee(DefaultCatalog(), "premium", []string{"urgent", "featured"}, tax)
	require.NoError(t, err)
	second, err := ComputeFee(DefaultCatalog(), "premium", []string{"urgent", "featured"}, tax)
	require.NoError(t, err)

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestComputeFee_Rejects(t *testing.T) {
	tests := []struct {
		name     string
		pkg      string
		boosts   []string
		tax      TaxConfig
		errField string
	}{
		{name: "empty package", pkg: "", tax: inclusive, errField: "package_id"},
		{name: "unknown package", pkg: "gold", tax: inclusive, errField: "package_id"},
		{name: "unknown boost", pkg: "basic", boosts: []string{"rocket"}, tax: inclusive, errField: "boost_ids"},
		{name: "duplicate boost", pkg: "basic", boosts: []string{"urgent", "urgent"}, tax: inclusive, errField: "boost_ids"},
		{name: "exclusive without rate", pkg: "basic", tax: TaxConfig{Mode: TaxModeExclusive}, errField: "tax"},
		{name: "unknown mode", pkg: "basic", tax: TaxConfig{Mode: "mixed"}, errField: "tax"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ComputeFee(DefaultCatalog(), tt.pkg, tt.boosts, tt.tax)
			require.Error(t, err)

			var ve *domain.ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.errField, ve.Field)
		})
	}
}

func TestNewCatalog(t *testing.T) {
	_, err := NewCatalog(nil, nil)
	assert.Error(t, err)

	_, err = NewCatalog([]Item{{ID: "a", Name: "A", Fee: 1}, {ID: "a", Name: "A2", Fee: 2}}, nil)
	assert.ErrorContains(t, err, "duplicate package")

	_, err = NewCatalog([]Item{{ID: "a", Name: "A", Fee: 0}}, nil)
	assert.ErrorContains(t, err, "must be positive")
}

func TestEngine_Snapshot(t *testing.T) {
	engine, err := NewEngine(DefaultCatalog(), inclusive)
	require.NoError(t, err)

	b, err := engine.Quote("standard", []string{"featured", "urgent"})
	require.NoError(t, err)

	pkg, extras := engine.Snapshot(b)
	assert.Equal(t, domain.ServiceSnapshot{ServiceID: "standard", Name: "Standard Listing", Fee: 199}, pkg)
	require.Len(t, extras, 2)
	assert.Equal(t, "urgent", extras[1].ServiceID)
}
