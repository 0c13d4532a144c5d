package extract

import (
	"testing"

	"github.com/stretchr/testify/require"

	"casepilot/internal/classify"
)

func fieldValue(t *testing.T, fields []Field, name string) (Field, bool) {
	t.Helper()
	for _, f := range fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

func TestExtractPANValidEntityLetter(t *testing.T) {
	fields := Extract(classify.TypePAN, "Name: Jane Doe PAN: ABCPE1234F issued by Income Tax Dept")
	f, ok := fieldValue(t, fields, "pan")
	require.True(t, ok)
	require.Equal(t, "ABCPE1234F", f.Value)
	require.Equal(t, 0.95, f.Confidence)
}

func TestExtractPANInvalidEntityLetterHalvesConfidence(t *testing.T) {
	fields := Extract(classify.TypePAN, "PAN: ABCQE1234F")
	f, ok := fieldValue(t, fields, "pan")
	require.True(t, ok)
	require.Equal(t, 0.475, f.Confidence)
}

func TestExtractAadhaarRejectsLeadingZeroOrOne(t *testing.T) {
	fields := Extract(classify.TypeAadhaar, "Aadhaar No: 0123 4567 8901")
	_, ok := fieldValue(t, fields, "aadhaar")
	require.False(t, ok)

	fields = Extract(classify.TypeAadhaar, "Aadhaar No: 2345 6789 0123")
	f, ok := fieldValue(t, fields, "aadhaar")
	require.True(t, ok)
	require.Equal(t, "234567890123", f.Value)
	require.Equal(t, 0.90, f.Confidence)
}

func TestExtractGSTINEmbeddedPANCrossCheck(t *testing.T) {
	text := "PAN: ABCPE1234F GSTIN: 27ABCPE1234F1Z5"
	fields := Extract(classify.TypeGSTCertificate, text)
	f, ok := fieldValue(t, fields, "gstin")
	require.True(t, ok)
	require.Equal(t, 0.95, f.Confidence)
}

func TestExtractGSTINMismatchedPANLowersConfidence(t *testing.T) {
	text := "GSTIN: 27ZZZZZ9999Z1Z5"
	fields := Extract(classify.TypeGSTCertificate, text)
	f, ok := fieldValue(t, fields, "gstin")
	require.True(t, ok)
	require.Equal(t, 0.70, f.Confidence)
}

func TestExtractCIBILScoreValidRange(t *testing.T) {
	fields := Extract(classify.TypeCIBILReport, "CIBIL Score: 742 as of last update")
	f, ok := fieldValue(t, fields, "cibil_score")
	require.True(t, ok)
	require.Equal(t, "742", f.Value)
	require.Equal(t, 0.90, f.Confidence)
}

func TestExtractCIBILScoreOutOfRangeHalvesConfidence(t *testing.T) {
	fields := Extract(classify.TypeCIBILReport, "credit score 950 reported")
	f, ok := fieldValue(t, fields, "cibil_score")
	require.True(t, ok)
	require.Equal(t, 0.45, f.Confidence)
}

func TestExtractBankStatementDatesAndAmounts(t *testing.T) {
	text := "Opening Balance on 01/07/2026 Rs. 1,23,456.50 Closing Balance 31-07-2026 Rs. 2,00,000"
	fields := Extract(classify.TypeBankStatement, text)

	date, ok := fieldValue(t, fields, "date")
	require.True(t, ok)
	require.Equal(t, "2026-07-01", date.Value)

	amount, ok := fieldValue(t, fields, "amount")
	require.True(t, ok)
	require.Equal(t, "123456.50", amount.Value)
}

func TestExtractUnknownDocTypeYieldsNoFields(t *testing.T) {
	fields := Extract(classify.TypeUnknown, "anything at all")
	require.Nil(t, fields)
}

func TestDedupeFirstByNameKeepsFirstAsPrimary(t *testing.T) {
	fields := []Field{
		{Name: "pan", Value: "ABCPE1234F", Confidence: 0.95},
		{Name: "pan", Value: "ZZZPE9999F", Confidence: 0.95},
	}
	primary, all := DedupeFirstByName(fields)
	require.Equal(t, "ABCPE1234F", primary["pan"].Value)
	require.Len(t, all, 2)
}
