// Package extract pulls typed fields out of OCR text per DocumentType
// (spec.md §4.4). Per the REDESIGN FLAGS guidance, DocumentType extraction
// rules are data: a dispatch table maps each classify.DocumentType to a
// plain extraction function instead of a class hierarchy.
package extract

import (
	"regexp"
	"strconv"
	"strings"

	"casepilot/internal/classify"
)

// Field is one extracted (field_name, value, confidence) candidate. Caller
// assigns source/document_id when persisting as a store.ExtractedField.
type Field struct {
	Name       string
	Value      string
	Confidence float64
}

// extractorFunc produces every candidate field found in ocrText, in reading
// order (first match for a given field first).
type extractorFunc func(ocrText string) []Field

var dispatch = map[classify.DocumentType]extractorFunc{
	classify.TypePAN:           extractPANDoc,
	classify.TypeAadhaar:       extractAadhaarDoc,
	classify.TypeGSTCertificate: extractGSTINDoc,
	classify.TypeGSTReturns:    extractGSTINDoc,
	classify.TypeCIBILReport:   extractCIBILDoc,
	classify.TypeBankStatement: extractBankStatementDoc,
	classify.TypeITR:           extractITRDoc,
}

// Extract dispatches to the extraction function registered for docType.
// An unsupported or unknown DocumentType yields no fields; this is not an
// error (spec.md §4.4).
func Extract(docType classify.DocumentType, ocrText string) []Field {
	fn, ok := dispatch[docType]
	if !ok {
		return nil
	}
	return fn(ocrText)
}

var panPattern = regexp.MustCompile(`[A-Z]{5}[0-9]{4}[A-Z]`)

// validPANEntityLetters are the 4th-character holder-type codes PAN numbers
// actually use (Individual, HUF, Firm, Company/AOP/BOI/Government/Trust/
// Local-authority/Artificial-juridical-person/Government).
var validPANEntityLetters = map[byte]bool{
	'P': true, 'C': true, 'H': true, 'F': true, 'A': true,
	'T': true, 'B': true, 'L': true, 'J': true, 'G': true,
}

// extractPAN finds every PAN-shaped token in text and scores it per
// spec.md §4.4: base 0.95 on format match, halved if the entity-type letter
// (4th character) is not a recognized holder-type code.
func extractPAN(text string) []Field {
	matches := panPattern.FindAllString(text, -1)
	fields := make([]Field, 0, len(matches))
	for _, m := range matches {
		confidence := 0.95
		if len(m) >= 4 && !validPANEntityLetters[m[3]] {
			confidence *= 0.5
		}
		fields = append(fields, Field{Name: "pan", Value: m, Confidence: confidence})
	}
	return fields
}

func extractPANDoc(text string) []Field { return extractPAN(text) }

var aadhaarPattern = regexp.MustCompile(`\b(\d{4})[\s-]?(\d{4})[\s-]?(\d{4})\b`)

// extractAadhaar finds 12-digit Aadhaar numbers, rejecting numbers whose
// first digit is 0 or 1 (spec.md §4.4: "reject obviously invalid").
func extractAadhaar(text string) []Field {
	var fields []Field
	for _, m := range aadhaarPattern.FindAllStringSubmatch(text, -1) {
		digits := m[1] + m[2] + m[3]
		if digits[0] == '0' || digits[0] == '1' {
			continue
		}
		fields = append(fields, Field{Name: "aadhaar", Value: digits, Confidence: 0.90})
	}
	return fields
}

func extractAadhaarDoc(text string) []Field { return extractAadhaar(text) }

var gstinPattern = regexp.MustCompile(`[0-9]{2}[A-Z]{5}[0-9]{4}[A-Z][0-9][A-Z][0-9A-Z]`)

// extractGSTIN finds GSTIN-shaped tokens and cross-checks the embedded PAN
// (characters 3-12) against any PAN found elsewhere in the same document
// text, per spec.md §4.4. PAN matches that fall entirely inside a GSTIN's
// own span are excluded from the cross-check set: the embedded substring of
// a GSTIN always happens to match the PAN shape by construction, and that
// trivial self-match must not be confused with a genuinely separate PAN
// printed on the document.
func extractGSTIN(text string) []Field {
	gstinSpans := gstinPattern.FindAllStringIndex(text, -1)
	if len(gstinSpans) == 0 {
		return nil
	}

	panSet := make(map[string]bool)
	for _, span := range panPattern.FindAllStringIndex(text, -1) {
		if !withinAnySpan(span, gstinSpans) {
			panSet[text[span[0]:span[1]]] = true
		}
	}

	fields := make([]Field, 0, len(gstinSpans))
	for _, span := range gstinSpans {
		g := text[span[0]:span[1]]
		confidence := 0.70
		if len(g) >= 12 {
			embeddedPAN := g[2:12]
			if panSet[embeddedPAN] {
				confidence = 0.95
			}
		}
		fields = append(fields, Field{Name: "gstin", Value: g, Confidence: confidence})
	}
	return fields
}

// withinAnySpan reports whether span falls entirely inside one of outer.
func withinAnySpan(span []int, outer [][]int) bool {
	for _, o := range outer {
		if span[0] >= o[0] && span[1] <= o[1] {
			return true
		}
	}
	return false
}

func extractGSTINDoc(text string) []Field {
	fields := extractGSTIN(text)
	fields = append(fields, extractPAN(text)...)
	return fields
}

var cibilAnchorPattern = regexp.MustCompile(`(?i)(?:cibil|credit score)\D{0,15}?(\d{3})`)

// extractCIBILScore finds an integer near a CIBIL/credit-score anchor and
// validates it falls in the valid bureau-score range (spec.md §4.4).
func extractCIBILScore(text string) []Field {
	var fields []Field
	for _, m := range cibilAnchorPattern.FindAllStringSubmatch(text, -1) {
		score, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		confidence := 0.90
		if score < 300 || score > 900 {
			confidence *= 0.5
		}
		fields = append(fields, Field{Name: "cibil_score", Value: m[1], Confidence: confidence})
	}
	return fields
}

func extractCIBILDoc(text string) []Field { return extractCIBILScore(text) }

var (
	dateSlashPattern = regexp.MustCompile(`\b(\d{2})/(\d{2})/(\d{4})\b`)
	dateDashPattern  = regexp.MustCompile(`\b(\d{2})-(\d{2})-(\d{4})\b`)
)

// extractDates finds dd/mm/yyyy and dd-mm-yyyy dates (spec.md §4.4) and
// normalizes them to yyyy-mm-dd.
func extractDates(text string) []Field {
	var fields []Field
	for _, m := range dateSlashPattern.FindAllStringSubmatch(text, -1) {
		fields = append(fields, Field{Name: "date", Value: m[3] + "-" + m[2] + "-" + m[1], Confidence: 0.85})
	}
	for _, m := range dateDashPattern.FindAllStringSubmatch(text, -1) {
		fields = append(fields, Field{Name: "date", Value: m[3] + "-" + m[2] + "-" + m[1], Confidence: 0.85})
	}
	return fields
}

var indianAmountPattern = regexp.MustCompile(`(?:₹|Rs\.?|INR)\s?([0-9]{1,3}(?:(?:,[0-9]{2})*,[0-9]{3})?(?:\.[0-9]{1,2})?)`)

// extractAmounts parses Indian digit-grouped currency amounts (e.g.
// 12,34,567.50) into their plain decimal string form.
func extractAmounts(text string) []Field {
	var fields []Field
	for _, m := range indianAmountPattern.FindAllStringSubmatch(text, -1) {
		plain := strings.ReplaceAll(m[1], ",", "")
		fields = append(fields, Field{Name: "amount", Value: plain, Confidence: 0.80})
	}
	return fields
}

func extractBankStatementDoc(text string) []Field {
	fields := extractAmounts(text)
	fields = append(fields, extractDates(text)...)
	return fields
}

func extractITRDoc(text string) []Field {
	fields := extractAmounts(text)
	fields = append(fields, extractDates(text)...)
	return fields
}

// DedupeFirstByName applies the spec.md §4.4 multiple-match policy: the
// first match in reading order wins as the primary candidate for its field
// name; later matches remain in the result but are not the caller's
// "primary" pick. The input must already be in reading order (regexp
// FindAll* preserves source order, so callers that build Field slices via
// this package's extractors satisfy that automatically).
func DedupeFirstByName(fields []Field) (primary map[string]Field, all []Field) {
	primary = make(map[string]Field)
	for _, f := range fields {
		if _, seen := primary[f.Name]; !seen {
			primary[f.Name] = f
		}
	}
	all = make([]Field, len(fields))
	copy(all, fields)
	return primary, all
}
