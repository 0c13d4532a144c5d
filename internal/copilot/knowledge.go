package copilot

import "strings"

// knowledgeBase answers KNOWLEDGE-type queries without touching the
// database (spec.md §4.9 step 2: "skipped for KNOWLEDGE"). Keys are
// lower-cased, trailing-punctuation-stripped query text or glossary terms.
var knowledgeBase = map[string]string{
	"foir":                "FOIR (Fixed Obligation to Income Ratio) is the ratio of a borrower's fixed monthly obligations — EMIs, rent, recurring loan payments — to their monthly income. Lenders cap it, typically 50-65%, to judge repayment capacity.",
	"what is foir":         "FOIR (Fixed Obligation to Income Ratio) is the ratio of a borrower's fixed monthly obligations — EMIs, rent, recurring loan payments — to their monthly income. Lenders cap it, typically 50-65%, to judge repayment capacity.",
	"cibil score":          "A CIBIL score is a 3-digit number (300-900) summarizing a borrower's credit history, issued by TransUnion CIBIL. Higher scores indicate lower default risk; most MSME lenders require 650-750+.",
	"abb":                  "ABB (Average Bank Balance) is the average daily or monthly closing balance across a borrower's bank accounts over a review period, used to judge liquidity and repayment buffer.",
	"cash ratio":           "Cash-deposit ratio is the share of total bank credits that arrive as cash deposits rather than digital/cheque transfers. A high ratio signals unverifiable income and raises risk.",
	"dpd":                  "DPD (Days Past Due) counts how many days a loan installment remained unpaid after its due date. 30+/60+/90+ DPD buckets are standard credit-bureau risk markers.",
	"udyam registration":   "Udyam Registration is the Indian government's MSME registration certificate, replacing the earlier Udyog Aadhaar scheme, used to classify a business as micro/small/medium.",
	"gst certificate":      "A GST Certificate is the registration proof issued on GSTIN allotment, showing legal name, trade name, constitution of business, and principal place of business.",
	"entity type":          "Entity type classifies the borrower's legal structure — Proprietorship, Partnership, LLP, Private Limited, etc. — which determines required KYC documents and eligible lender products.",
	"vintage years":        "Business vintage is the number of years since incorporation or GST registration, used as a proxy for operational stability.",
	"hard filter":          "A hard filter is a binary eligibility gate (e.g. minimum CIBIL, minimum vintage) that a case must pass before it is scored; failing a required hard filter excludes the lender from the results.",
	"soft score":           "The soft (weighted) score ranks lenders a case has passed hard filters for, combining CIBIL band, turnover band, vintage, banking strength, FOIR, and documentation completeness.",
}

// LookupKnowledge returns the canned definition for queryText, if any.
func LookupKnowledge(queryText string) (string, bool) {
	key := strings.ToLower(strings.TrimSpace(strings.TrimRight(queryText, "?.")))
	if answer, ok := knowledgeBase[key]; ok {
		return answer, true
	}
	return "", false
}

// unavailableNotice is the canned response spec.md §4.9 step 6 requires
// for KNOWLEDGE queries when the LLM cannot be reached and no canned
// definition exists.
func unavailableNotice(queryText string) string {
	return "I can't reach the language model right now, and I don't have a canned definition for \"" + queryText +
		"\". Try rephrasing as a short term, e.g. \"FOIR\" or \"CIBIL score\"."
}
