package profiler

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lumina-bi/lumina-engine/pkg/models"
)

func TestDetectSemanticTypeDeclaredTypeWins(t *testing.T) {
	cases := []struct {
		name     string
		dataType string
		want     models.SemanticType
	}{
		{"session_token", "uuid", models.SemanticUUID},
		{"is_active", "boolean", models.SemanticBoolean},
		{"payload", "jsonb", models.SemanticJSON},
		{"created", "timestamp with time zone", models.SemanticDatetime},
		{"birth", "date", models.SemanticDate},
		{"list_price", "money", models.SemanticCurrency},
	}
	for _, tc := range cases {
		col := models.ColumnInfo{Name: tc.name, DataType: tc.dataType}
		assert.Equal(t, tc.want, DetectSemanticType(&col, nil, 0, 0), tc.name)
	}
}

func TestDetectSemanticTypeNamePatterns(t *testing.T) {
	cases := []struct {
		name string
		want models.SemanticType
	}{
		{"customer_id", models.SemanticID},
		{"email_address", models.SemanticEmail},
		{"phone", models.SemanticPhone},
		{"website_url", models.SemanticURL},
		{"unit_price", models.SemanticCurrency},
		{"discount_pct", models.SemanticPercentage},
		{"qty", models.SemanticQuantity},
		{"fiscal_year", models.SemanticYear},
		{"order_status", models.SemanticStatus},
		{"product_category", models.SemanticCategory},
		{"country", models.SemanticCountry},
		{"zip_code", models.SemanticPostalCode},
		{"first_name", models.SemanticName},
		{"description", models.SemanticDescription},
		{"shipped_at", models.SemanticDatetime},
	}
	for _, tc := range cases {
		col := models.ColumnInfo{Name: tc.name, DataType: "varchar(100)"}
		assert.Equal(t, tc.want, DetectSemanticType(&col, nil, 0, 0), tc.name)
	}
}

func TestDetectSemanticTypeFromValues(t *testing.T) {
	col := models.ColumnInfo{Name: "contact", DataType: "varchar(254)"}
	values := []string{"a@example.com", "b@example.com", "c@example.com", "d@example.com"}
	assert.Equal(t, models.SemanticEmail, DetectSemanticType(&col, values, 4, 4))

	col = models.ColumnInfo{Name: "ref", DataType: "char(36)"}
	values = []string{
		"a3bb189e-8bf9-3888-9912-ace4e6543002",
		"b4cc290f-9c0a-4999-aa23-bdf5f7654113",
	}
	assert.Equal(t, models.SemanticUUID, DetectSemanticType(&col, values, 2, 2))
}

func TestDetectSemanticTypeValueThresholdNotMet(t *testing.T) {
	// Half the values look like emails; below the 90% bar the column stays text.
	col := models.ColumnInfo{Name: "contact", DataType: "text"}
	values := []string{"a@example.com", "call the office", "b@example.com", "unknown"}
	assert.Equal(t, models.SemanticText, DetectSemanticType(&col, values, 4, 4))
}

func TestDetectSemanticTypeFallbacks(t *testing.T) {
	numeric := models.ColumnInfo{Name: "reading", DataType: "double precision"}
	assert.Equal(t, models.SemanticNumeric, DetectSemanticType(&numeric, nil, 0, 0))

	lowCard := models.ColumnInfo{Name: "region_code", DataType: "varchar(5)"}
	values := make([]string, 50)
	for i := range values {
		values[i] = fmt.Sprintf("R%d", i%5)
	}
	assert.Equal(t, models.SemanticCategory, DetectSemanticType(&lowCard, values, 5, 50))

	freeText := models.ColumnInfo{Name: "misc", DataType: "text"}
	assert.Equal(t, models.SemanticText, DetectSemanticType(&freeText, []string{"various", "free", "form"}, 3, 3))
}
