package refdata

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	weightCSV = "OTTOKOD;DESİ\nW-100;1,2\nW-101;0,8\nG-200;abc\n"
	zonesCSV  = "FEDEX;;\nCountry;Country_Code;Zone\nGermany;DE;5\nJapan;JP;7\nBroken;BR;x\n"
	pricesCSV = "FEDEX INTERNATIONAL PRIORITY;;;\nAğırlık;1.Bölge;5.Bölge;7.Bölge\n0,5 kg;10;12,5;14\n1 kg;11;15;17\n2 kg;13;20;24\n"
	usCSV     = "SKU;DESİ-KG;INVOICE ÜRÜN BEDELİ;US FEDEX KARGO ÜCRETİ;FEDEX İŞLEM ÜCRETİ;DUTY OTAN;DUTY;VERGİ ORANI;VERGİ\n" +
		"OT-Widget;1,2;$25;$6,20;$1,00;8%;$2,00;;$0,50\n" +
		"Gadget;0,5;$10;$5 & $7;;;$1,00;;\n"
)

func TestWeightIndex(t *testing.T) {
	w, err := BuildWeightIndex(strings.NewReader(weightCSV))
	require.NoError(t, err)

	v, ok := w.Weight("W-100")
	require.True(t, ok)
	assert.InDelta(t, 1.2, v, 1e-9)

	_, ok = w.Weight("G-200")
	assert.False(t, ok, "unparseable weight is skipped")
	assert.Equal(t, 2, w.Len())
}

func TestZoneIndex(t *testing.T) {
	z, err := BuildZoneIndex(strings.NewReader(zonesCSV))
	require.NoError(t, err)

	assert.Equal(t, 5, z.Zone("DE"))
	assert.Equal(t, 5, z.Zone("de"))
	assert.Equal(t, 7, z.Zone("Japan"), "country names resolve too")
	assert.Equal(t, DefaultZone, z.Zone("BR"), "bad zone cell falls back")
	assert.Equal(t, DefaultZone, z.Zone("ZZ"))

	var nilZones *ZoneIndex
	assert.Equal(t, DefaultZone, nilZones.Zone("DE"))
}

func TestPriceMatrix(t *testing.T) {
	pm, err := BuildPriceMatrix(strings.NewReader(pricesCSV))
	require.NoError(t, err)
	require.Equal(t, []float64{0.5, 1, 2}, pm.Tiers())

	tests := []struct {
		name   string
		weight float64
		zone   int
		want   float64
	}{
		{"exact tier", 0.5, 5, 12.5},
		{"rounds up to next tier", 1.2, 7, 24},
		{"below first tier", 0.1, 1, 10},
		{"above max clamps", 30, 5, 20},
		{"unknown zone prices zero", 1, 3, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, pm.Price(tt.weight, tt.zone), 1e-9)
		})
	}

	var empty *PriceMatrix
	assert.Equal(t, 0.0, empty.Price(1, 5))
}

func TestUSTable(t *testing.T) {
	us, err := BuildUSTable(strings.NewReader(usCSV))
	require.NoError(t, err)

	r, ok := us.Rate("Widget")
	require.True(t, ok, "normalized lookup matches OT- spelling")
	assert.InDelta(t, 6.20, r.FedexCharge, 1e-9)
	assert.InDelta(t, 1.00, r.ProcessingFee, 1e-9)
	assert.InDelta(t, 0.08, r.DutyRate, 1e-9)
	assert.InDelta(t, 2.00, r.DutyAmount, 1e-9)
	assert.Equal(t, 0.0, r.TaxRate)
	assert.InDelta(t, 0.50, r.TaxAmount, 1e-9)

	g, ok := us.Rate("gadget")
	require.True(t, ok)
	assert.InDelta(t, 6.0, g.FedexCharge, 1e-9, "ranges are averaged")
}

func TestIsUSDestination(t *testing.T) {
	for _, c := range []string{"US", "usa", "United States", "", " us "} {
		assert.True(t, IsUSDestination(c), c)
	}
	for _, c := range []string{"DE", "GB", "USSR"} {
		assert.False(t, IsUSDestination(c), c)
	}
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoad_AllTables(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "cost.csv", costCSV)
	writeFile(t, dir, "desi.csv", weightCSV)
	writeFile(t, dir, "zones.csv", zonesCSV)
	writeFile(t, dir, "prices.csv", pricesCSV)
	writeFile(t, dir, "us.csv", usCSV)

	log, _ := test.NewNullLogger()
	ix := Load(Paths{
		BaseDir:   dir,
		Cost:      "cost.csv",
		Weights:   "desi.csv",
		Zones:     "zones.csv",
		Prices:    "prices.csv",
		USRates:   "us.csv",
		CostYears: []int{2024, 2025},
	}, log)

	assert.Equal(t, 3, ix.Costs.Len())
	assert.InDelta(t, 1.2, ix.WeightForSKU("OT-Widget"), 1e-9)
	assert.InDelta(t, 0.8, ix.WeightForSKU("OT-Widget-Red"), 1e-9, "normalized sku joins through product code")
	assert.InDelta(t, DefaultWeightKg, ix.WeightForSKU("ZSTK-Gadget"), 1e-9, "unparseable weight defaults")
	assert.InDelta(t, DefaultWeightKg, ix.WeightForSKU("Unknown"), 1e-9)
	assert.Equal(t, 5, ix.Zones.Zone("DE"))
	assert.Len(t, ix.Prices.Tiers(), 3)
	assert.Equal(t, 2, ix.USRates.Len())
}

func TestLoad_MissingFilesDegrade(t *testing.T) {
	log, hook := test.NewNullLogger()
	ix := Load(Paths{BaseDir: t.TempDir(), Cost: "absent.csv", Zones: "absent.csv"}, log)

	require.NotNil(t, ix.Costs)
	assert.Equal(t, 0, ix.Costs.Len())
	assert.Equal(t, DefaultZone, ix.Zones.Zone("DE"))
	assert.Equal(t, 0.0, ix.Prices.Price(1, 5))
	assert.InDelta(t, DefaultWeightKg, ix.WeightForSKU("X"), 1e-9)

	warnings := 0
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			warnings++
		}
	}
	assert.Equal(t, 5, warnings, "one warning per degraded table")
}
