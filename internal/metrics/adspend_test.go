package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"shop-analytics/internal/domain"
)

func TestAllocateAdSpend_ByGrossShare(t *testing.T) {
	a := &domain.MetricsDocument{Revenue: domain.RevenueMetrics{GrossRevenue: 75}, Orders: domain.OrderMetrics{TotalOrders: 1}}
	b := &domain.MetricsDocument{Revenue: domain.RevenueMetrics{GrossRevenue: 25}, Orders: domain.OrderMetrics{TotalOrders: 1}}
	empty := &domain.MetricsDocument{}

	AllocateAdSpend(40, []*domain.MetricsDocument{a, b, empty, nil})

	assert.InDelta(t, 30.0, a.Costs.AdSpend, 1e-9)
	assert.InDelta(t, 10.0, b.Costs.AdSpend, 1e-9)
	assert.Zero(t, empty.Costs.AdSpend)
	assert.InDelta(t, a.Profit.GrossProfit-30, a.Profit.NetProfit, 1e-9)
}

func TestAllocateAdSpend_NoListingRevenue(t *testing.T) {
	a := &domain.MetricsDocument{}
	AllocateAdSpend(40, []*domain.MetricsDocument{a})
	assert.Zero(t, a.Costs.AdSpend)
}
