package models

import (
	"slices"
	"time"
)

// ============================================================================
// Semantic Types
// ============================================================================

// SemanticType is the inferred business meaning of a column, detected by the
// profiler's layered rules (declared type, name pattern, value pattern,
// cardinality fallback).
type SemanticType string

const (
	SemanticID          SemanticType = "id"
	SemanticUUID        SemanticType = "uuid"
	SemanticEmail       SemanticType = "email"
	SemanticPhone       SemanticType = "phone"
	SemanticURL         SemanticType = "url"
	SemanticIPAddress   SemanticType = "ip_address"
	SemanticCurrency    SemanticType = "currency"
	SemanticPercentage  SemanticType = "percentage"
	SemanticQuantity    SemanticType = "quantity"
	SemanticDate        SemanticType = "date"
	SemanticDatetime    SemanticType = "datetime"
	SemanticYear        SemanticType = "year"
	SemanticBoolean     SemanticType = "boolean"
	SemanticStatus      SemanticType = "status"
	SemanticCategory    SemanticType = "category"
	SemanticCountry     SemanticType = "country"
	SemanticPostalCode  SemanticType = "postal_code"
	SemanticName        SemanticType = "name"
	SemanticDescription SemanticType = "description"
	SemanticJSON        SemanticType = "json"
	SemanticNumeric     SemanticType = "numeric"
	SemanticText        SemanticType = "text"
)

// ValidSemanticTypes contains all valid semantic type values.
var ValidSemanticTypes = []SemanticType{
	SemanticID, SemanticUUID, SemanticEmail, SemanticPhone, SemanticURL,
	SemanticIPAddress, SemanticCurrency, SemanticPercentage, SemanticQuantity,
	SemanticDate, SemanticDatetime, SemanticYear, SemanticBoolean,
	SemanticStatus, SemanticCategory, SemanticCountry, SemanticPostalCode,
	SemanticName, SemanticDescription, SemanticJSON, SemanticNumeric,
	SemanticText,
}

// IsValidSemanticType checks if the given type is valid.
func IsValidSemanticType(t SemanticType) bool {
	return slices.Contains(ValidSemanticTypes, t)
}

// ============================================================================
// Anomalies
// ============================================================================

// AnomalyKind identifies a class of data-quality anomaly.
type AnomalyKind string

const (
	AnomalyNullSpike      AnomalyKind = "null_spike"      // null share above 50%
	AnomalyOutlierCluster AnomalyKind = "outlier_cluster" // values outside 1.5x IQR fences
	AnomalyDominantValue  AnomalyKind = "dominant_value"  // top value above 90% share
)

// Anomaly is one detected data-quality issue on a column.
type Anomaly struct {
	Kind        AnomalyKind `json:"kind"`
	Description string      `json:"description"`
	Severity    float64     `json:"severity"` // 0.0 - 1.0
}

// ============================================================================
// Profiles
// ============================================================================

// ValueCount is one entry of a top-N value histogram.
type ValueCount struct {
	Value string `json:"value"`
	Count int64  `json:"count"`
}

// ColumnProfile holds the statistics computed for one column from a capped
// row sample.
type ColumnProfile struct {
	Name          string       `json:"name"`
	DataType      string       `json:"data_type"`
	SemanticType  SemanticType `json:"semantic_type"`
	NullRate      float64      `json:"null_rate"` // 0.0 - 1.0
	DistinctCount int64        `json:"distinct_count"`

	// Numeric statistics, absent for non-numeric columns.
	Min    *float64 `json:"min,omitempty"`
	Max    *float64 `json:"max,omitempty"`
	Mean   *float64 `json:"mean,omitempty"`
	Median *float64 `json:"median,omitempty"`
	StdDev *float64 `json:"std_dev,omitempty"`

	TopValues []ValueCount `json:"top_values,omitempty"`
	Anomalies []Anomaly    `json:"anomalies,omitempty"`
}

// TableProfile is the full profiling result for one table. Profiles are
// created fresh on each profiler run and cached to disk keyed by database
// name with no automatic expiry.
type TableProfile struct {
	Table       string          `json:"table"`
	SchemaName  string          `json:"schema_name,omitempty"`
	RowCount    int64           `json:"row_count"`
	SampledRows int             `json:"sampled_rows"`
	Columns     []ColumnProfile `json:"columns"`
	ProfiledAt  time.Time       `json:"profiled_at"`
}
