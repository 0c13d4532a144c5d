package classify

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassifyFilenameTableMeetsConfidenceFloor(t *testing.T) {
	cases := []struct {
		filename string
		want     DocumentType
	}{
		{"pan-card-scan.jpg", TypePAN},
		{"aadhaar_front.png", TypeAadhaar},
		{"gst-certificate.pdf", TypeGSTCertificate},
		{"GSTR3B_jul2026.pdf", TypeGSTReturns},
		{"cibil-report.pdf", TypeCIBILReport},
		{"bank-statement-jun.pdf", TypeBankStatement},
		{"ITR_ack_2025.pdf", TypeITR},
		{"udyam-registration.pdf", TypeUdyamShopLicense},
		{"financial-statement-fy25.pdf", TypeFinancialStatement},
	}
	for _, tc := range cases {
		result := Classify(tc.filename, "", nil)
		require.Equal(t, tc.want, result.DocType, tc.filename)
		require.GreaterOrEqual(t, result.Confidence, 0.90)
		require.Equal(t, MethodFilename, result.Method)
	}
}

func TestClassifyShortOCRTextFallsBackToFilenameOrUnknown(t *testing.T) {
	result := Classify("unlabeled.jpg", "too short", nil)
	require.Equal(t, TypeUnknown, result.DocType)
	require.Equal(t, 0.0, result.Confidence)

	result = Classify("pan-card.jpg", "too short", nil)
	require.Equal(t, TypePAN, result.DocType)
	require.Equal(t, filenameConfidence, result.Confidence)
}

func TestClassifyKeywordScoringWithoutFilenameHit(t *testing.T) {
	text := "UNIQUE IDENTIFICATION AUTHORITY OF INDIA Government of India Aadhaar 1234 5678 9012"
	result := Classify("scan0001.jpg", text, nil)
	require.Equal(t, TypeAadhaar, result.DocType)
	require.Equal(t, MethodKeyword, result.Method)
	require.GreaterOrEqual(t, result.Confidence, 0.35)
}

func TestClassifyHybridBoostWhenFilenameAndKeywordAgree(t *testing.T) {
	text := "PERMANENT ACCOUNT NUMBER Income Tax Department Govt of India ABCDE1234F"
	result := Classify("pan-card.jpg", text, nil)
	require.Equal(t, TypePAN, result.DocType)
	require.Equal(t, MethodHybrid, result.Method)
	require.Equal(t, hybridConfidence, result.Confidence)
}

type stubModel struct {
	docType    DocumentType
	confidence float64
}

func (m stubModel) Predict(string) (DocumentType, float64) { return m.docType, m.confidence }

func TestClassifyModelAcceptedAboveThreshold(t *testing.T) {
	longText := "some long body of unrelated ocr text that exceeds the short threshold by far"
	result := Classify("scan.jpg", longText, stubModel{docType: TypeBankStatement, confidence: 0.80})
	require.Equal(t, TypeBankStatement, result.DocType)
	require.Equal(t, MethodModel, result.Method)
	require.Equal(t, 0.80, result.Confidence)
}

func TestClassifyModelBelowThresholdFallsThroughToKeywords(t *testing.T) {
	text := "STATEMENT OF ACCOUNT Opening Balance Closing Balance IFSC Transaction Date"
	result := Classify("scan.jpg", text, stubModel{docType: TypeUnknown, confidence: 0.5})
	require.Equal(t, TypeBankStatement, result.DocType)
	require.Equal(t, MethodKeyword, result.Method)
}
