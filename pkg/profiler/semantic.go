package profiler

import (
	"regexp"
	"strings"

	"github.com/lumina-bi/lumina-engine/pkg/models"
)

// Semantic typing is a layered, first-match-wins rule table: declared-type
// rules first, then name patterns, then value patterns over a small sample,
// then a cardinality fallback. The rules live in data so they can be
// extended without touching the matching loop.

type typeRule struct {
	match func(dataType, name string) bool
	tag   models.SemanticType
}

func typeContains(substrs ...string) func(string, string) bool {
	return func(dataType, _ string) bool {
		dt := strings.ToLower(dataType)
		for _, s := range substrs {
			if strings.Contains(dt, s) {
				return true
			}
		}
		return false
	}
}

func nameMatches(pattern string) func(string, string) bool {
	re := regexp.MustCompile(pattern)
	return func(_, name string) bool {
		return re.MatchString(name)
	}
}

// declaredTypeRules classify from the declared SQL type alone.
var declaredTypeRules = []typeRule{
	{typeContains("uuid"), models.SemanticUUID},
	{typeContains("bool"), models.SemanticBoolean},
	{typeContains("json"), models.SemanticJSON},
	{typeContains("timestamp", "datetime"), models.SemanticDatetime},
	{typeContains("date"), models.SemanticDate},
	{typeContains("money"), models.SemanticCurrency},
}

// namePatternRules classify from the column name.
var namePatternRules = []typeRule{
	{nameMatches(`(?i)(^|_)(id|pk|key)$`), models.SemanticID},
	{nameMatches(`(?i)(^|_)(uuid|guid)($|_)`), models.SemanticUUID},
	{nameMatches(`(?i)e?mail`), models.SemanticEmail},
	{nameMatches(`(?i)(^|_)(phone|mobile|fax|tel)($|_)`), models.SemanticPhone},
	{nameMatches(`(?i)(^|_)(url|link|website|href)($|_)`), models.SemanticURL},
	{nameMatches(`(?i)(^|_)ip(_addr.*)?$`), models.SemanticIPAddress},
	{nameMatches(`(?i)(price|amount|cost|salary|revenue|balance|fee|total)`), models.SemanticCurrency},
	{nameMatches(`(?i)(percent|pct|rate|ratio)`), models.SemanticPercentage},
	{nameMatches(`(?i)(quantity|qty|units|stock)`), models.SemanticQuantity},
	{nameMatches(`(?i)(^|_)year($|_)`), models.SemanticYear},
	{nameMatches(`(?i)(status|state|stage|phase)`), models.SemanticStatus},
	{nameMatches(`(?i)(category|type|kind|class|group)($|_name$)`), models.SemanticCategory},
	{nameMatches(`(?i)(country|nation)`), models.SemanticCountry},
	{nameMatches(`(?i)(zip|postal|postcode)`), models.SemanticPostalCode},
	{nameMatches(`(?i)(^|_)(first_?name|last_?name|full_?name|name)$`), models.SemanticName},
	{nameMatches(`(?i)(description|comment|notes?|remarks?|summary)`), models.SemanticDescription},
	{nameMatches(`(?i)(_at|_date|_time|_on)$`), models.SemanticDatetime},
}

// Value patterns run against a capped sample of observed values.
var (
	uuidValuePattern  = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
	emailValuePattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	urlValuePattern   = regexp.MustCompile(`^https?://`)
	ipValuePattern    = regexp.MustCompile(`^(\d{1,3}\.){3}\d{1,3}$`)
	phoneValuePattern = regexp.MustCompile(`^\+?[\d\s().-]{7,20}$`)
	yearValuePattern  = regexp.MustCompile(`^(19|20)\d{2}$`)
)

var valuePatternRules = []struct {
	pattern *regexp.Regexp
	tag     models.SemanticType
}{
	{uuidValuePattern, models.SemanticUUID},
	{emailValuePattern, models.SemanticEmail},
	{urlValuePattern, models.SemanticURL},
	{ipValuePattern, models.SemanticIPAddress},
	{yearValuePattern, models.SemanticYear},
	{phoneValuePattern, models.SemanticPhone},
}

// valueSampleCap bounds the per-column value-pattern sample.
const valueSampleCap = 25

// valuePatternThreshold is the share of sampled values that must match a
// pattern for it to win.
const valuePatternThreshold = 0.9

// categoryCardinalityCeiling is the distinct-count ceiling for the
// low-cardinality category fallback.
const categoryCardinalityCeiling = 20

// DetectSemanticType runs the layered rules for one column.
func DetectSemanticType(col *models.ColumnInfo, values []string, distinctCount, sampleSize int64) models.SemanticType {
	for _, rule := range declaredTypeRules {
		if rule.match(col.DataType, col.Name) {
			return rule.tag
		}
	}
	for _, rule := range namePatternRules {
		if rule.match(col.DataType, col.Name) {
			return rule.tag
		}
	}

	if len(values) > 0 {
		sample := values
		if len(sample) > valueSampleCap {
			sample = sample[:valueSampleCap]
		}
		for _, rule := range valuePatternRules {
			matched := 0
			for _, v := range sample {
				if rule.pattern.MatchString(v) {
					matched++
				}
			}
			if float64(matched)/float64(len(sample)) >= valuePatternThreshold {
				return rule.tag
			}
		}
	}

	// Cardinality fallback.
	numeric := typeContains("int", "numeric", "decimal", "float", "double", "real")(col.DataType, "")
	if numeric {
		return models.SemanticNumeric
	}
	if distinctCount > 0 && distinctCount <= categoryCardinalityCeiling && sampleSize > distinctCount*2 {
		return models.SemanticCategory
	}
	return models.SemanticText
}
