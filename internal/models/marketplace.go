package models

import "time"

// Data categories a seller can list.
const (
	DataTypeLocation    = "Location"
	DataTypeDiagnostics = "Diagnostics"
	DataTypePerformance = "Performance"
	DataTypeFuel        = "Fuel"
)

// DataTypes lists every listing category.
var DataTypes = []string{DataTypeLocation, DataTypeDiagnostics, DataTypePerformance, DataTypeFuel}

// MarketplaceListing is a data bundle offered for sale.
type MarketplaceListing struct {
	ID        string          `json:"id"`
	Seller    string          `json:"seller"`
	DataType  string          `json:"dataType"`
	Price     float64         `json:"price"`
	Rating    int             `json:"rating"`
	Reviews   int             `json:"reviews"`
	Sample    TelemetryRecord `json:"sample"`
	CreatedAt time.Time       `json:"createdAt"`
}
