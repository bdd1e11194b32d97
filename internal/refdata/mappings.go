// Package refdata loads the code-mapping reference tables used to
// standardize vendor, product, and department identifiers, and to resolve
// action keys into routing decisions.
package refdata

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/zavaops/ticketflow/constants"
)

// VendorInfo maps a vendor display name to its standardized code.
type VendorInfo struct {
	VendorCode string `json:"vendorCode"`
	Approved   bool   `json:"approved"`
}

// PriceRange bounds the expected unit price for a product.
type PriceRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// ProductInfo maps a raw product code to its standardized form.
type ProductInfo struct {
	StandardCode       string      `json:"standardCode"`
	Category           string      `json:"category"`
	ExpectedPriceRange *PriceRange `json:"expectedPriceRange,omitempty"`
}

// DeptInfo maps a product category to the owning department.
type DeptInfo struct {
	DepartmentCode string `json:"departmentCode"`
	CostCenter     string `json:"costCenter"`
}

// ActionInfo resolves an action key into a routing decision.
type ActionInfo struct {
	NextAction  string `json:"nextAction"`
	Description string `json:"description"`
}

// Mappings is the full reference data set.
type Mappings struct {
	Vendors     map[string]VendorInfo
	Products    map[string]ProductInfo
	Departments map[string]DeptInfo
	Actions     map[string]ActionInfo
}

// mappingsFile mirrors the on-disk JSON layout: each table sits under a
// typed key with its entries in a "mappings" object.
type mappingsFile struct {
	VendorCodes struct {
		Mappings map[string]VendorInfo `json:"mappings"`
	} `json:"vendor_codes"`
	ProductCodes struct {
		Mappings map[string]ProductInfo `json:"mappings"`
	} `json:"product_codes"`
	DepartmentCodes struct {
		Mappings map[string]DeptInfo `json:"mappings"`
	} `json:"department_codes"`
	ActionCodes struct {
		Mappings map[string]ActionInfo `json:"mappings"`
	} `json:"action_codes"`
}

// Load reads a code-mappings JSON file. Missing tables come back empty, not
// nil, so lookups always behave the same.
func Load(path string) (*Mappings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read code mappings: %w", err)
	}
	var f mappingsFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse code mappings: %w", err)
	}
	m := &Mappings{
		Vendors:     f.VendorCodes.Mappings,
		Products:    f.ProductCodes.Mappings,
		Departments: f.DepartmentCodes.Mappings,
		Actions:     f.ActionCodes.Mappings,
	}
	m.ensure()
	return m, nil
}

// LoadOrDefault loads the file at path, falling back to the built-in table
// when path is empty or unreadable.
func LoadOrDefault(path string) *Mappings {
	if path != "" {
		if m, err := Load(path); err == nil {
			return m
		}
	}
	return Default()
}

func (m *Mappings) ensure() {
	if m.Vendors == nil {
		m.Vendors = map[string]VendorInfo{}
	}
	if m.Products == nil {
		m.Products = map[string]ProductInfo{}
	}
	if m.Departments == nil {
		m.Departments = map[string]DeptInfo{}
	}
	if m.Actions == nil {
		m.Actions = map[string]ActionInfo{}
	}
}

// Vendor looks up a vendor by display name. Unknown vendors are treated as
// approved with a sentinel code so they do not block the pipeline outright.
func (m *Mappings) Vendor(name string) VendorInfo {
	if v, ok := m.Vendors[name]; ok {
		return v
	}
	return VendorInfo{VendorCode: "UNKNOWN-000", Approved: true}
}

// Product looks up a raw product code. Unknown codes get a synthesized
// standard code and the General category.
func (m *Mappings) Product(rawCode string) ProductInfo {
	if p, ok := m.Products[rawCode]; ok {
		return p
	}
	return ProductInfo{
		StandardCode: fmt.Sprintf("ZAVA-%s-STD", rawCode),
		Category:     "General",
	}
}

// Department looks up the owning department for a product category.
func (m *Mappings) Department(category string) DeptInfo {
	if d, ok := m.Departments[category]; ok {
		return d
	}
	return DeptInfo{DepartmentCode: "PROC-GEN-000", CostCenter: "CC-0000"}
}

// Action resolves an action key. Unknown keys route to invoice processing.
func (m *Mappings) Action(key string) ActionInfo {
	if a, ok := m.Actions[key]; ok {
		return a
	}
	return ActionInfo{NextAction: constants.NextActionInvoiceProcessing, Description: key}
}

// Default returns the built-in reference data used when no mappings file is
// configured. It covers the vendors and products in the sample invoice set.
func Default() *Mappings {
	return &Mappings{
		Vendors: map[string]VendorInfo{
			"Contoso Chemical Supply":  {VendorCode: "VEND-CHEM-001", Approved: true},
			"Fabrikam Freight Lines":   {VendorCode: "VEND-FRT-002", Approved: true},
			"Northwind Lab Equipment":  {VendorCode: "VEND-LAB-003", Approved: true},
			"Tailspin Industrial Gas":  {VendorCode: "VEND-GAS-004", Approved: true},
			"Adventure Works Supply":   {VendorCode: "VEND-SUP-005", Approved: false},
			"Wingtip Transport Co":     {VendorCode: "VEND-FRT-006", Approved: true},
		},
		Products: map[string]ProductInfo{
			"CHEM-SA-55": {
				StandardCode:       "ZAVA-CHEM-SA-55-STD",
				Category:           "Chemicals",
				ExpectedPriceRange: &PriceRange{Min: 200, Max: 450},
			},
			"CHEM-HCL-20": {
				StandardCode:       "ZAVA-CHEM-HCL-20-STD",
				Category:           "Chemicals",
				ExpectedPriceRange: &PriceRange{Min: 80, Max: 180},
			},
			"FRT-STD-100": {
				StandardCode:       "ZAVA-FRT-STD-100-STD",
				Category:           "Freight",
				ExpectedPriceRange: &PriceRange{Min: 500, Max: 2500},
			},
			"LAB-SPEC-01": {
				StandardCode:       "ZAVA-LAB-SPEC-01-STD",
				Category:           "Lab Equipment",
				ExpectedPriceRange: &PriceRange{Min: 1200, Max: 9000},
			},
			"GAS-N2-CYL": {
				StandardCode:       "ZAVA-GAS-N2-CYL-STD",
				Category:           "Industrial Gas",
				ExpectedPriceRange: &PriceRange{Min: 30, Max: 120},
			},
		},
		Departments: map[string]DeptInfo{
			"Chemicals":      {DepartmentCode: "PROC-CHEM-100", CostCenter: "CC-4100"},
			"Freight":        {DepartmentCode: "PROC-LOG-200", CostCenter: "CC-4200"},
			"Lab Equipment":  {DepartmentCode: "PROC-LAB-300", CostCenter: "CC-4300"},
			"Industrial Gas": {DepartmentCode: "PROC-GAS-400", CostCenter: "CC-4400"},
		},
		Actions: map[string]ActionInfo{
			constants.ActionAllChecksPass: {
				NextAction:  constants.NextActionInvoiceProcessing,
				Description: "All checks passed, route to invoice processing",
			},
			constants.ActionVendorNotApproved: {
				NextAction:  constants.NextActionVendorApproval,
				Description: "Vendor is not on the approved list, route to vendor approval",
			},
			constants.ActionAmountDiscrepancy: {
				NextAction:  constants.NextActionManualReview,
				Description: "Amounts do not reconcile, route to manual review",
			},
			constants.ActionHazardousPresent: {
				NextAction:  constants.NextActionManualReview,
				Description: "Hazardous materials present, EHS review required",
			},
			constants.ActionPastDue: {
				NextAction:  constants.NextActionInvoiceProcessing,
				Description: "Invoice past due, expedite payment",
			},
		},
	}
}
