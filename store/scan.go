package store

// ScanRiskLevel is the overall assessment of a scan.
type ScanRiskLevel string

const (
	ScanRiskLow     ScanRiskLevel = "Low Risk"
	ScanRiskCaution ScanRiskLevel = "Caution"
	ScanRiskHigh    ScanRiskLevel = "High Risk"
)

// Valid reports whether the scan risk level is one of the constrained values.
func (r ScanRiskLevel) Valid() bool {
	switch r {
	case ScanRiskLow, ScanRiskCaution, ScanRiskHigh:
		return true
	}
	return false
}

// Scan records one completed risk assessment for a user.
type Scan struct {
	UID              string // external identifier returned to clients
	UserID           string
	OverallRiskLevel ScanRiskLevel
	IngredientsFound []string
	Detail           string   // JSON blob: risky ingredients and explanation
	RiskScore        *float64 // optional numeric score in [0, 1]
	ID               int64
	CreatedTs        int64
}

// FindScan specifies the conditions for finding scans.
type FindScan struct {
	ID     *int64
	UID    *string
	UserID *string
	Limit  int
	Offset int
}

// CreateScan specifies the data for recording a scan.
type CreateScan struct {
	UID              string
	UserID           string
	OverallRiskLevel ScanRiskLevel
	IngredientsFound []string
	Detail           string
	RiskScore        *float64
}

// DeleteScan specifies the conditions for deleting scans.
type DeleteScan struct {
	ID     *int64
	UserID *string
}
