package model

import "strings"

// TestDefinition is the static metadata for one diagnostic test code.
type TestDefinition struct {
	Code            string `json:"code"`
	Name            string `json:"name"`
	RequiresFasting bool   `json:"requires_fasting"`
}

var testCatalog = map[string]TestDefinition{
	"FBS":       {Code: "FBS", Name: "Fasting Blood Sugar", RequiresFasting: true},
	"PPBS":      {Code: "PPBS", Name: "Post Prandial Blood Sugar"},
	"LIPID":     {Code: "LIPID", Name: "Lipid Profile", RequiresFasting: true},
	"INSULIN_F": {Code: "INSULIN_F", Name: "Fasting Insulin", RequiresFasting: true},
	"HOMA_IR":   {Code: "HOMA_IR", Name: "HOMA-IR", RequiresFasting: true},
	"HBA1C":     {Code: "HBA1C", Name: "Glycated Haemoglobin"},
	"CBC":       {Code: "CBC", Name: "Complete Blood Count"},
	"TSH":       {Code: "TSH", Name: "Thyroid Stimulating Hormone"},
	"T3T4":      {Code: "T3T4", Name: "Thyroid Profile"},
	"VITD":      {Code: "VITD", Name: "Vitamin D (25-OH)"},
	"VITB12":    {Code: "VITB12", Name: "Vitamin B12"},
	"FERRITIN":  {Code: "FERRITIN", Name: "Serum Ferritin"},
	"TESTO":     {Code: "TESTO", Name: "Total Testosterone"},
	"DHEAS":     {Code: "DHEAS", Name: "DHEA Sulphate"},
	"LH_FSH":    {Code: "LH_FSH", Name: "LH / FSH Ratio"},
	"PROLACTIN": {Code: "PROLACTIN", Name: "Prolactin"},
	"LFT":       {Code: "LFT", Name: "Liver Function Test"},
	"KFT":       {Code: "KFT", Name: "Kidney Function Test"},
}

// LookupTest returns the catalog entry for code.
func LookupTest(code string) (TestDefinition, bool) {
	def, ok := testCatalog[strings.ToUpper(strings.TrimSpace(code))]
	return def, ok
}

// PanelRequiresFasting reports whether any test in the panel needs fasting.
func PanelRequiresFasting(codes []string) bool {
	for _, code := range codes {
		if def, ok := LookupTest(code); ok && def.RequiresFasting {
			return true
		}
	}
	return false
}
