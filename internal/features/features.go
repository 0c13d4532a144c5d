// Package features rebuilds a case's BorrowerFeatureVector from its
// ExtractedFields and Case manual overrides (spec.md §4.5). Rebuilding is
// always idempotent and total: callers can invoke it as often as they like
// and always get the same vector for the same inputs.
package features

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"casepilot/internal/store"
)

// lowConfidenceFloor is the extraction-confidence threshold below which a
// candidate is used only as a last resort (spec.md §4.5).
const lowConfidenceFloor = 0.5

// candidate is one resolved value for a target attribute, carrying enough
// provenance to apply the resolution rule.
type candidate struct {
	value      string
	source     store.ExtractedFieldSource
	confidence float64
}

// resolve picks the winning candidate for one attribute from manual,
// external, and extraction candidates, per spec.md §4.5:
//   - manual wins whenever present.
//   - otherwise external wins over extraction when both exist.
//   - otherwise the highest-confidence extraction ≥ 0.5 wins.
//   - otherwise (nothing else available) the best low-confidence extraction
//     is used as a last resort.
func resolve(manual, external *candidate, extractions []candidate) (string, bool) {
	if manual != nil {
		return manual.value, true
	}
	if external != nil {
		return external.value, true
	}
	var best *candidate
	for i := range extractions {
		c := &extractions[i]
		if c.confidence < lowConfidenceFloor {
			continue
		}
		if best == nil || c.confidence > best.confidence {
			best = c
		}
	}
	if best != nil {
		return best.value, true
	}
	// Last resort: best available low-confidence extraction, if any.
	for i := range extractions {
		c := &extractions[i]
		if best == nil || c.confidence > best.confidence {
			best = c
		}
	}
	if best != nil {
		return best.value, true
	}
	return "", false
}

// attributeBag groups every candidate observed for one field_name.
type attributeBag struct {
	manual      *candidate
	external    *candidate
	extractions []candidate
}

func groupByField(fields []store.ExtractedField, manualOverrides map[string]string) map[string]*attributeBag {
	bags := make(map[string]*attributeBag)
	bagFor := func(name string) *attributeBag {
		b, ok := bags[name]
		if !ok {
			b = &attributeBag{}
			bags[name] = b
		}
		return b
	}

	for _, f := range fields {
		b := bagFor(f.FieldName)
		c := candidate{value: f.FieldValue, source: f.Source, confidence: f.Confidence}
		switch f.Source {
		case store.SourceManual:
			if b.manual == nil {
				b.manual = &c
			}
		case store.SourceExternal:
			if b.external == nil {
				b.external = &c
			}
		case store.SourceExtraction, store.SourceComputed:
			b.extractions = append(b.extractions, c)
		}
	}
	for name, value := range manualOverrides {
		b := bagFor(name)
		c := candidate{value: value, source: store.SourceManual, confidence: 1.0}
		b.manual = &c
	}
	return bags
}

// trackedAttributeCount is the number of BorrowerFeatureVector attributes
// that count toward feature_completeness (spec.md §4.5, §3).
const trackedAttributeCount = 19

// AssembleForCase is the entry point callers use: it loads the Case's
// ExtractedFields, resolves every tracked attribute, and upserts the vector.
// Safe to call repeatedly for the same case (spec.md §4.5: "Save is an
// upsert").
func AssembleForCase(db *gorm.DB, c store.Case) error {
	var fields []store.ExtractedField
	if err := db.Where("case_id = ?", c.ID).Find(&fields).Error; err != nil {
		return err
	}
	manual := map[string]string{}
	if len(c.ManualOverrides) > 0 {
		_ = json.Unmarshal(c.ManualOverrides, &manual)
	}
	vec := build(c.ID, fields, manual)
	return db.Save(&vec).Error
}

func build(caseID uuid.UUID, fields []store.ExtractedField, manual map[string]string) store.BorrowerFeatureVector {
	bags := groupByField(fields, manual)
	filled := 0
	get := func(name string) (string, bool) {
		b, ok := bags[name]
		if !ok {
			return "", false
		}
		v, ok := resolve(b.manual, b.external, b.extractions)
		if ok {
			filled++
		}
		return v, ok
	}

	vec := store.BorrowerFeatureVector{CaseID: caseID}

	if v, ok := get("full_name"); ok {
		vec.FullName = v
	}
	if v, ok := get("pan"); ok {
		vec.PAN = v
	}
	if v, ok := get("aadhaar"); ok {
		vec.Aadhaar = v
	}
	if v, ok := get("dob"); ok {
		if t, err := time.Parse("2006-01-02", v); err == nil {
			vec.DOB = &t
		} else {
			filled--
		}
	}
	if v, ok := get("entity_type"); ok {
		vec.EntityType = v
	}
	if v, ok := get("gstin"); ok {
		vec.GSTIN = v
	}
	if v, ok := get("pincode"); ok {
		vec.Pincode = v
	}
	if v, ok := get("business_vintage_years"); ok {
		vec.BusinessVintageYears = parseFloatOrZero(v, &filled)
	}
	if v, ok := get("annual_turnover"); ok {
		vec.AnnualTurnover = parseFloatOrZero(v, &filled)
	}
	if v, ok := get("monthly_turnover"); ok {
		vec.MonthlyTurnover = parseFloatOrZero(v, &filled)
	}
	if v, ok := get("avg_monthly_balance"); ok {
		vec.AvgMonthlyBalance = parseFloatOrZero(v, &filled)
	}
	if v, ok := get("monthly_credit_avg"); ok {
		vec.MonthlyCreditAvg = parseFloatOrZero(v, &filled)
	}
	if v, ok := get("bounces_12m"); ok {
		vec.Bounces12M = parseIntOrZero(v, &filled)
	}
	if v, ok := get("cash_deposit_ratio"); ok {
		vec.CashDepositRatio = parseFloatOrZero(v, &filled)
	}
	if v, ok := get("existing_emis"); ok {
		vec.ExistingEMIs = parseFloatOrZero(v, &filled)
	}
	if v, ok := get("cibil_score"); ok {
		vec.CIBILScore = parseIntOrZero(v, &filled)
	}
	if v, ok := get("active_loans"); ok {
		vec.ActiveLoans = parseIntOrZero(v, &filled)
	}
	if v, ok := get("overdues"); ok {
		vec.Overdues = parseIntOrZero(v, &filled)
	}
	if v, ok := get("enquiries_12m"); ok {
		vec.Enquiries12M = parseIntOrZero(v, &filled)
	}

	// annual_turnover defaults to 12 x monthly_turnover when not
	// independently extracted (spec.md §4.5).
	if vec.AnnualTurnover == 0 && vec.MonthlyTurnover > 0 {
		vec.AnnualTurnover = 12 * vec.MonthlyTurnover
		filled++
	}

	vec.FeatureCompleteness = 100 * float64(filled) / float64(trackedAttributeCount)
	if vec.FeatureCompleteness > 100 {
		vec.FeatureCompleteness = 100
	}
	vec.UpdatedAt = time.Now()
	return vec
}

// parseFloatOrZero parses a decimal attribute; on failure it decrements
// filled (the caller's get() already counted it present) so unparseable
// values do not count toward feature_completeness, per spec.md §4.5.
func parseFloatOrZero(v string, filled *int) float64 {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		*filled--
		return 0
	}
	return f
}

func parseIntOrZero(v string, filled *int) int {
	n, err := strconv.Atoi(v)
	if err != nil {
		*filled--
		return 0
	}
	return n
}
