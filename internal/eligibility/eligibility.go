// Package eligibility implements the three-layer lender-matching engine
// (spec.md §4.7): hard filters, a weighted score, and ranking/output fields.
package eligibility

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"casepilot/internal/store"
)

// MaxSkippedFilters is the Open-Question decision (SPEC_FULL.md §4.7):
// a case may skip at most this many hard filters due to missing data and
// still PASS, provided every non-skipped filter passes.
const MaxSkippedFilters = 2

// Score-component weights (spec.md §4.7 Layer 2).
const (
	weightCIBIL      = 0.25
	weightTurnover   = 0.20
	weightVintage    = 0.15
	weightBanking    = 0.20
	weightFOIR       = 0.10
	weightDocuments  = 0.10
	minComponentsForScore = 3
)

// Run scores every eligible LenderProduct against a case's feature vector
// and writes the results atomically under a single run_id (spec.md §4.7:
// "Write all rows atomically under a run_id").
func Run(db *gorm.DB, caseID uuid.UUID, now time.Time) (runID uuid.UUID, err error) {
	runID = uuid.New()
	err = db.Transaction(func(tx *gorm.DB) error {
		var feature store.BorrowerFeatureVector
		if err := tx.First(&feature, "case_id = ?", caseID).Error; err != nil {
			return fmt.Errorf("load feature vector: %w", err)
		}
		var c store.Case
		if err := tx.First(&c, "id = ?", caseID).Error; err != nil {
			return fmt.Errorf("load case: %w", err)
		}

		var products []store.LenderProduct
		q := tx.Where("is_active = ? AND policy_available = ?", true, true)
		if c.ProgramType != "" {
			q = q.Where("program_type = ? OR program_type = ''", c.ProgramType)
		}
		if err := q.Find(&products).Error; err != nil {
			return fmt.Errorf("load lender products: %w", err)
		}

		classifiedDocTypes, err := loadClassifiedDocTypes(tx, caseID)
		if err != nil {
			return err
		}

		nameByProduct := make(map[uuid.UUID]string, len(products))
		results := make([]*store.EligibilityResult, 0, len(products))
		for _, product := range products {
			geoOK := !product.EnforcesGeo || geoMatches(tx, product.LenderName, feature.Pincode)
			result := evaluateProduct(product, feature, classifiedDocTypes, geoOK, now)
			result.ID = uuid.New()
			result.CaseID = caseID
			result.LenderProductID = product.ID
			result.RunID = runID
			result.CreatedAt = now
			results = append(results, result)
			nameByProduct[product.ID] = product.LenderName
		}

		rankResults(results, nameByProduct)

		for _, r := range results {
			if err := tx.Create(r).Error; err != nil {
				return fmt.Errorf("create eligibility result: %w", err)
			}
		}

		if err := tx.Model(&c).Update("status", store.CaseStatusEligibilityScored).Error; err != nil {
			return fmt.Errorf("advance case status: %w", err)
		}
		return nil
	})
	if err != nil {
		return uuid.Nil, err
	}
	return runID, nil
}

func loadClassifiedDocTypes(tx *gorm.DB, caseID uuid.UUID) (map[string]bool, error) {
	var docs []store.Document
	if err := tx.Where("case_id = ? AND doc_type IS NOT NULL", caseID).Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("load documents: %w", err)
	}
	present := make(map[string]bool, len(docs))
	for _, d := range docs {
		if d.DocType != nil {
			present[*d.DocType] = true
		}
	}
	return present, nil
}

func geoMatches(tx *gorm.DB, lenderName, pincode string) bool {
	if pincode == "" {
		return false
	}
	var count int64
	tx.Model(&store.LenderPincode{}).Where("lender_name = ? AND pincode = ?", lenderName, pincode).Count(&count)
	return count > 0
}

// filterOutcome records one hard filter's verdict.
type filterOutcome struct {
	name   string
	passed bool
	skipped bool
	reason string
}

func evaluateProduct(product store.LenderProduct, f store.BorrowerFeatureVector, classifiedDocTypes map[string]bool, geoOK bool, now time.Time) *store.EligibilityResult {
	outcomes := runHardFilters(product, f, geoOK, now)

	skippedCount := 0
	allPassed := true
	details := make(map[string]string, len(outcomes))
	for _, o := range outcomes {
		if o.skipped {
			skippedCount++
			details[o.name] = "skipped: data missing"
			continue
		}
		if !o.passed {
			allPassed = false
		}
		details[o.name] = o.reason
	}

	detailsJSON, _ := json.Marshal(details)

	if !allPassed || skippedCount > MaxSkippedFilters {
		return &store.EligibilityResult{
			HardFilterStatus:  store.HardFilterFail,
			HardFilterDetails: detailsJSON,
		}
	}

	score, components := weightedScore(product, f, classifiedDocTypes)
	if score == nil {
		return &store.EligibilityResult{
			HardFilterStatus:  store.HardFilterFail,
			HardFilterDetails: mustMarshal(map[string]string{"score": "insufficient data"}),
		}
	}

	probability := approvalProbability(*score)
	ticketMin, ticketMax := expectedTicketRange(product, f, *score)
	missing := missingForImprovement(components, product, classifiedDocTypes)

	return &store.EligibilityResult{
		HardFilterStatus:      store.HardFilterPass,
		HardFilterDetails:     detailsJSON,
		EligibilityScore:      score,
		ApprovalProbability:   probability,
		ExpectedTicketMin:     ticketMin,
		ExpectedTicketMax:     ticketMax,
		Confidence:            f.FeatureCompleteness / 100,
		MissingForImprovement: mustMarshal(missing),
	}
}

func mustMarshal(v any) []byte {
	b, _ := json.Marshal(v)
	return b
}

// runHardFilters evaluates Layer 1 (spec.md §4.7).
func runHardFilters(p store.LenderProduct, f store.BorrowerFeatureVector, geoOK bool, now time.Time) []filterOutcome {
	var outcomes []filterOutcome

	if p.EnforcesGeo {
		if f.Pincode == "" {
			outcomes = append(outcomes, filterOutcome{name: "pincode", skipped: true})
		} else {
			reason := ""
			if !geoOK {
				reason = fmt.Sprintf("pincode %q not serviceable by %s", f.Pincode, p.LenderName)
			}
			outcomes = append(outcomes, filterOutcome{name: "pincode", passed: geoOK, reason: reason})
		}
	}

	if f.CIBILScore == 0 {
		outcomes = append(outcomes, filterOutcome{name: "cibil_score", skipped: true})
	} else {
		ok := f.CIBILScore >= p.MinCIBILScore
		reason := ""
		if !ok {
			reason = fmt.Sprintf("CIBIL %d < required %d", f.CIBILScore, p.MinCIBILScore)
		}
		outcomes = append(outcomes, filterOutcome{name: "cibil_score", passed: ok, reason: reason})
	}

	if f.EntityType == "" {
		outcomes = append(outcomes, filterOutcome{name: "entity_type", skipped: true})
	} else {
		var eligible []string
		_ = json.Unmarshal(p.EligibleEntityTypes, &eligible)
		ok := containsString(eligible, f.EntityType)
		reason := ""
		if !ok {
			reason = fmt.Sprintf("entity type %q not eligible", f.EntityType)
		}
		outcomes = append(outcomes, filterOutcome{name: "entity_type", passed: ok, reason: reason})
	}

	if f.BusinessVintageYears == 0 {
		outcomes = append(outcomes, filterOutcome{name: "vintage", skipped: true})
	} else {
		ok := f.BusinessVintageYears >= p.MinVintageYears
		reason := ""
		if !ok {
			reason = fmt.Sprintf("vintage %.1fy < required %.1fy", f.BusinessVintageYears, p.MinVintageYears)
		}
		outcomes = append(outcomes, filterOutcome{name: "vintage", passed: ok, reason: reason})
	}

	if f.AnnualTurnover == 0 {
		outcomes = append(outcomes, filterOutcome{name: "turnover", skipped: true})
	} else {
		ok := f.AnnualTurnover >= p.MinTurnoverAnnual
		reason := ""
		if !ok {
			reason = fmt.Sprintf("turnover %.0f < required %.0f", f.AnnualTurnover, p.MinTurnoverAnnual)
		}
		outcomes = append(outcomes, filterOutcome{name: "turnover", passed: ok, reason: reason})
	}

	if f.DOB == nil {
		outcomes = append(outcomes, filterOutcome{name: "age", skipped: true})
	} else {
		age := ageYears(*f.DOB, now)
		ok := age >= p.AgeMin && age <= p.AgeMax
		reason := ""
		if !ok {
			reason = fmt.Sprintf("age %d outside [%d,%d]", age, p.AgeMin, p.AgeMax)
		}
		outcomes = append(outcomes, filterOutcome{name: "age", passed: ok, reason: reason})
	}

	if f.AvgMonthlyBalance == 0 {
		outcomes = append(outcomes, filterOutcome{name: "abb", skipped: true})
	} else {
		ok := f.AvgMonthlyBalance >= p.MinABB
		reason := ""
		if !ok {
			reason = fmt.Sprintf("ABB %.0f < required %.0f", f.AvgMonthlyBalance, p.MinABB)
		}
		outcomes = append(outcomes, filterOutcome{name: "abb", passed: ok, reason: reason})
	}

	return outcomes
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func ageYears(dob, now time.Time) int {
	years := now.Year() - dob.Year()
	if now.YearDay() < dob.YearDay() {
		years--
	}
	return years
}

// componentScore is one weighted-average input, with weight renormalized
// among whatever components are actually available.
type componentScore struct {
	name   string
	weight float64
	score  float64
	avail  bool
}

// weightedScore computes Layer 2 (spec.md §4.7). Returns nil when fewer
// than minComponentsForScore components are available.
func weightedScore(p store.LenderProduct, f store.BorrowerFeatureVector, classifiedDocTypes map[string]bool) (*float64, []componentScore) {
	components := []componentScore{
		cibilBandComponent(f),
		turnoverBandComponent(p, f),
		vintageComponent(f),
		bankingStrengthComponent(f),
		foirComponent(f),
		documentationComponent(p, classifiedDocTypes),
	}

	available := 0
	var weightedSum, weightSum float64
	for _, c := range components {
		if !c.avail {
			continue
		}
		available++
		weightedSum += c.weight * c.score
		weightSum += c.weight
	}
	if available < minComponentsForScore || weightSum == 0 {
		return nil, components
	}
	score := weightedSum / weightSum
	return &score, components
}

func cibilBandComponent(f store.BorrowerFeatureVector) componentScore {
	if f.CIBILScore == 0 {
		return componentScore{name: "cibil_band", weight: weightCIBIL}
	}
	var s float64
	switch {
	case f.CIBILScore >= 750:
		s = 100
	case f.CIBILScore >= 725:
		s = 90
	case f.CIBILScore >= 700:
		s = 75
	case f.CIBILScore >= 675:
		s = 60
	case f.CIBILScore >= 650:
		s = 40
	default:
		s = 20
	}
	return componentScore{name: "cibil_band", weight: weightCIBIL, score: s, avail: true}
}

func turnoverBandComponent(p store.LenderProduct, f store.BorrowerFeatureVector) componentScore {
	if f.AnnualTurnover == 0 || p.MinTurnoverAnnual == 0 {
		return componentScore{name: "turnover_band", weight: weightTurnover}
	}
	ratio := f.AnnualTurnover / p.MinTurnoverAnnual
	var s float64
	switch {
	case ratio > 3:
		s = 100
	case ratio >= 2:
		s = 80
	case ratio >= 1.5:
		s = 60
	case ratio >= 1:
		s = 40
	default:
		s = 0
	}
	return componentScore{name: "turnover_band", weight: weightTurnover, score: s, avail: true}
}

func vintageComponent(f store.BorrowerFeatureVector) componentScore {
	if f.BusinessVintageYears == 0 {
		return componentScore{name: "vintage", weight: weightVintage}
	}
	var s float64
	switch {
	case f.BusinessVintageYears >= 5:
		s = 100
	case f.BusinessVintageYears >= 3:
		s = 80
	case f.BusinessVintageYears >= 2:
		s = 60
	case f.BusinessVintageYears >= 1:
		s = 40
	default:
		s = 20
	}
	return componentScore{name: "vintage", weight: weightVintage, score: s, avail: true}
}

func bankingStrengthComponent(f store.BorrowerFeatureVector) componentScore {
	if f.AvgMonthlyBalance == 0 {
		return componentScore{name: "banking_strength", weight: weightBanking}
	}
	abbBucket := turnoverLikeBucket(f.AvgMonthlyBalance)
	var bounceBucket float64
	switch {
	case f.Bounces12M == 0:
		bounceBucket = 100
	case f.Bounces12M <= 2:
		bounceBucket = 70
	default:
		bounceBucket = 30
	}
	var cashBucket float64
	switch {
	case f.CashDepositRatio < 0.20:
		cashBucket = 100
	case f.CashDepositRatio <= 0.40:
		cashBucket = 60
	default:
		cashBucket = 30
	}
	s := (abbBucket + bounceBucket + cashBucket) / 3
	return componentScore{name: "banking_strength", weight: weightBanking, score: s, avail: true}
}

// turnoverLikeBucket is a generic "ratio to a reference" bucket reused for
// the ABB component of banking strength, where the reference is implicit
// in absolute balance health rather than a lender threshold.
func turnoverLikeBucket(abb float64) float64 {
	switch {
	case abb >= 500000:
		return 100
	case abb >= 200000:
		return 80
	case abb >= 100000:
		return 60
	case abb >= 50000:
		return 40
	default:
		return 20
	}
}

// foirComponent scores existing EMIs against monthly income. Monthly income
// is monthly_credit_avg, falling back to monthly_turnover when no credit
// average was extracted; with neither, the component is unavailable.
func foirComponent(f store.BorrowerFeatureVector) componentScore {
	income := f.MonthlyCreditAvg
	if income == 0 {
		income = f.MonthlyTurnover
	}
	if income == 0 {
		return componentScore{name: "foir", weight: weightFOIR}
	}
	ratio := f.ExistingEMIs / income
	var s float64
	switch {
	case ratio < 0.30:
		s = 100
	case ratio < 0.45:
		s = 75
	case ratio < 0.55:
		s = 50
	case ratio < 0.65:
		s = 30
	default:
		s = 0
	}
	return componentScore{name: "foir", weight: weightFOIR, score: s, avail: true}
}

func documentationComponent(p store.LenderProduct, classifiedDocTypes map[string]bool) componentScore {
	var required []string
	_ = json.Unmarshal(p.RequiredDocuments, &required)
	if len(required) == 0 {
		return componentScore{name: "documentation", weight: weightDocuments}
	}
	present := 0
	for _, r := range required {
		if classifiedDocTypes[r] {
			present++
		}
	}
	s := 100 * float64(present) / float64(len(required))
	return componentScore{name: "documentation", weight: weightDocuments, score: s, avail: true}
}

func approvalProbability(score float64) store.ApprovalProbability {
	switch {
	case score >= 75:
		return store.ApprovalHigh
	case score >= 50:
		return store.ApprovalMedium
	default:
		return store.ApprovalLow
	}
}

// expectedTicketRange clamps the lender's max_ticket_size against a
// turnover-derived band, biasing the upper bound toward 0.25x turnover when
// the score is strong (spec.md §4.7).
func expectedTicketRange(p store.LenderProduct, f store.BorrowerFeatureVector, score float64) (min, max float64) {
	if f.AnnualTurnover == 0 {
		return 0, 0
	}
	min = 0.10 * f.AnnualTurnover
	upperFactor := 0.18
	if score >= 75 {
		upperFactor = 0.25
	}
	max = upperFactor * f.AnnualTurnover
	if p.MaxTicketSize > 0 && max > p.MaxTicketSize {
		max = p.MaxTicketSize
	}
	if p.MaxTicketSize > 0 && min > p.MaxTicketSize {
		min = p.MaxTicketSize
	}
	return min, max
}

// missingForImprovement lists weak components (score < 50) and absent
// required documents, in that order (spec.md §4.7).
func missingForImprovement(components []componentScore, p store.LenderProduct, classifiedDocTypes map[string]bool) []string {
	var missing []string
	for _, c := range components {
		if c.avail && c.score < 50 {
			missing = append(missing, c.name)
		}
	}
	var required []string
	_ = json.Unmarshal(p.RequiredDocuments, &required)
	for _, r := range required {
		if !classifiedDocTypes[r] {
			missing = append(missing, "missing_document:"+r)
		}
	}
	return missing
}

// rankResults assigns dense rank over PASS rows by descending score, ties
// broken by lender_name ascending (spec.md §4.7). FAIL rows stay unranked.
func rankResults(results []*store.EligibilityResult, nameByProduct map[uuid.UUID]string) {
	type indexed struct {
		result *store.EligibilityResult
		score  float64
		name   string
	}
	var passing []indexed
	for _, r := range results {
		if r.HardFilterStatus == store.HardFilterPass && r.EligibilityScore != nil {
			passing = append(passing, indexed{result: r, score: *r.EligibilityScore, name: nameByProduct[r.LenderProductID]})
		}
	}
	sort.SliceStable(passing, func(i, j int) bool {
		if passing[i].score != passing[j].score {
			return passing[i].score > passing[j].score
		}
		return passing[i].name < passing[j].name
	})
	rank := 1
	for i, p := range passing {
		if i > 0 && p.score < passing[i-1].score {
			rank++
		}
		r := rank
		p.result.Rank = &r
	}
}
