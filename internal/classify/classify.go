// Package classify assigns a DocumentType to a Document from its filename
// and OCR text (spec.md §4.3). Rules are data — a filename regex table and
// a keyword-pattern table per type — dispatched through plain functions
// rather than a class hierarchy, per the REDESIGN FLAGS guidance to model
// per-type behavior as a sum type plus a dispatch table.
package classify

import (
	"regexp"
	"strings"
)

// DocumentType is the closed set of document categories the pipeline
// recognizes (spec.md §4.3).
type DocumentType string

const (
	TypePAN                DocumentType = "PAN"
	TypeAadhaar            DocumentType = "AADHAAR"
	TypeGSTCertificate     DocumentType = "GST_CERTIFICATE"
	TypeGSTReturns         DocumentType = "GST_RETURNS"
	TypeCIBILReport        DocumentType = "CIBIL_REPORT"
	TypeBankStatement      DocumentType = "BANK_STATEMENT"
	TypeITR                DocumentType = "ITR"
	TypeUdyamShopLicense   DocumentType = "UDYAM_SHOP_LICENSE"
	TypeFinancialStatement DocumentType = "FINANCIAL_STATEMENT"
	TypeUnknown            DocumentType = "UNKNOWN"
)

// Method records which classification stage produced the final answer.
type Method string

const (
	MethodFilename Method = "filename"
	MethodKeyword  Method = "keyword"
	MethodModel    Method = "model"
	MethodHybrid   Method = "hybrid"
)

// shortOCRThreshold is the character count under which OCR text is treated
// as too sparse to keyword-score (spec.md §4.3 step 2).
const shortOCRThreshold = 30

// modelAcceptThreshold is the minimum ML-model confidence accepted without
// falling through to keyword scoring (spec.md §4.3 step 3).
const modelAcceptThreshold = 0.75

// hybridConfidence is the boosted confidence when filename and keyword
// results agree (spec.md §4.3 step 5).
const hybridConfidence = 0.95

// filenameConfidence is the confidence assigned to any filename-table hit.
const filenameConfidence = 0.90

type filenameRule struct {
	pattern *regexp.Regexp
	docType DocumentType
}

var filenameTable = []filenameRule{
	{regexp.MustCompile(`(?i)pan[-_ ]?card|pan[-_ ]?no`), TypePAN},
	{regexp.MustCompile(`(?i)aadhaar|aadhar|uidai`), TypeAadhaar},
	{regexp.MustCompile(`(?i)gst[-_ ]?certificate|gst[-_ ]?reg`), TypeGSTCertificate},
	{regexp.MustCompile(`(?i)gstr[-_]?[139]b?`), TypeGSTReturns},
	{regexp.MustCompile(`(?i)cibil|credit[-_ ]?report|credit[-_ ]?score`), TypeCIBILReport},
	{regexp.MustCompile(`(?i)financial[-_ ]?statement|balance[-_ ]?sheet|p&l|profit[-_ ]?and[-_ ]?loss`), TypeFinancialStatement},
	{regexp.MustCompile(`(?i)bank[-_ ]?stat|passbook|statement`), TypeBankStatement},
	{regexp.MustCompile(`(?i)(^|[^a-z])itr([^a-z]|$)|income[-_ ]?tax[-_ ]?return`), TypeITR},
	{regexp.MustCompile(`(?i)udyam|shop[-_ ]?license|shop[-_ ]?act`), TypeUdyamShopLicense},
}

// keywordRule is one case-insensitive pattern contributing to a type's
// keyword score.
type keywordRule struct {
	pattern *regexp.Regexp
}

// keywordTable maps DocumentType to its pattern list and acceptance
// threshold (fraction of patterns matched, spec.md §4.3 step 4).
var keywordTable = map[DocumentType]struct {
	patterns  []keywordRule
	threshold float64
}{
	TypePAN: {
		patterns: mustCompileAll(`permanent account number`, `income tax department`, `[A-Z]{5}[0-9]{4}[A-Z]`),
		threshold: 0.35,
	},
	TypeAadhaar: {
		patterns: mustCompileAll(`unique identification authority`, `aadhaar`, `government of india`, `\d{4}\s?\d{4}\s?\d{4}`),
		threshold: 0.35,
	},
	TypeGSTCertificate: {
		patterns: mustCompileAll(`goods and services tax`, `certificate of registration`, `gstin`),
		threshold: 0.40,
	},
	TypeGSTReturns: {
		patterns: mustCompileAll(`gstr`, `outward supplies`, `return period`, `taxable value`),
		threshold: 0.35,
	},
	TypeCIBILReport: {
		patterns: mustCompileAll(`cibil`, `credit score`, `credit information report`, `transunion`),
		threshold: 0.35,
	},
	TypeBankStatement: {
		patterns: mustCompileAll(`statement of account`, `opening balance`, `closing balance`, `ifsc`, `transaction date`),
		threshold: 0.40,
	},
	TypeITR: {
		patterns: mustCompileAll(`income tax return`, `acknowledgement number`, `assessment year`, `gross total income`),
		threshold: 0.35,
	},
	TypeUdyamShopLicense: {
		patterns: mustCompileAll(`udyam registration`, `shop and establishment`, `micro small and medium`),
		threshold: 0.35,
	},
	TypeFinancialStatement: {
		patterns: mustCompileAll(`balance sheet`, `profit and loss`, `total assets`, `total liabilities`),
		threshold: 0.35,
	},
}

func mustCompileAll(patterns ...string) []keywordRule {
	rules := make([]keywordRule, 0, len(patterns))
	for _, p := range patterns {
		rules = append(rules, keywordRule{pattern: regexp.MustCompile("(?i)" + p)})
	}
	return rules
}

// Result is the classifier's decision for one Document.
type Result struct {
	DocType    DocumentType
	Confidence float64
	Method     Method
}

// Model is an optional pluggable ML classifier. No concrete implementation
// ships in this module; callers wire one in if they have a trained model.
type Model interface {
	Predict(ocrText string) (DocumentType, float64)
}

// Classify implements the full decision sequence from spec.md §4.3: filename
// match, short-text short-circuit, optional model, keyword scoring, hybrid
// boost.
func Classify(filename, ocrText string, model Model) Result {
	filenameResult, filenameHit := matchFilename(filename)

	if len(strings.TrimSpace(ocrText)) < shortOCRThreshold {
		if filenameHit {
			return Result{DocType: filenameResult, Confidence: filenameConfidence, Method: MethodFilename}
		}
		return Result{DocType: TypeUnknown, Confidence: 0.0, Method: MethodFilename}
	}

	if model != nil {
		if docType, confidence := model.Predict(ocrText); confidence >= modelAcceptThreshold {
			return Result{DocType: docType, Confidence: confidence, Method: MethodModel}
		}
	}

	keywordResult, keywordScore, keywordHit := scoreKeywords(ocrText)

	switch {
	case keywordHit && filenameHit && keywordResult == filenameResult:
		return Result{DocType: keywordResult, Confidence: hybridConfidence, Method: MethodHybrid}
	case keywordHit:
		return Result{DocType: keywordResult, Confidence: keywordScore, Method: MethodKeyword}
	case filenameHit:
		return Result{DocType: filenameResult, Confidence: filenameConfidence, Method: MethodFilename}
	default:
		return Result{DocType: TypeUnknown, Confidence: 0.0, Method: MethodKeyword}
	}
}

func matchFilename(filename string) (DocumentType, bool) {
	for _, rule := range filenameTable {
		if rule.pattern.MatchString(filename) {
			return rule.docType, true
		}
	}
	return TypeUnknown, false
}

// scoreKeywords evaluates every DocumentType's keyword table against text
// and returns the highest-scoring type that clears its own threshold.
func scoreKeywords(text string) (DocumentType, float64, bool) {
	var bestType DocumentType
	var bestScore float64
	found := false

	for docType, cfg := range keywordTable {
		matched := 0
		for _, rule := range cfg.patterns {
			if rule.pattern.MatchString(text) {
				matched++
			}
		}
		score := float64(matched) / float64(len(cfg.patterns))
		if score >= cfg.threshold && score > bestScore {
			bestType = docType
			bestScore = score
			found = true
		}
	}
	return bestType, bestScore, found
}
