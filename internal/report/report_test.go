package report

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"casepilot/internal/store"
)

func TestBuildDerivesStrengthsAndRiskFlags(t *testing.T) {
	c := store.Case{CaseNumber: "CASE-20260731-0001", BorrowerName: "Jane Doe"}
	f := store.BorrowerFeatureVector{
		CIBILScore:           760,
		BusinessVintageYears: 6,
		CashDepositRatio:     0.45,
		Bounces12M:           4,
		Overdues:             2,
		FeatureCompleteness:  60,
	}
	d := Build(c, f, nil, nil, nil, nil)

	require.Contains(t, d.Strengths, "Strong CIBIL score (750+)")
	require.Contains(t, d.Strengths, "Established business vintage (5+ years)")
	require.Contains(t, d.RiskFlags, "4 cheque/ECS bounces in the last 12 months")
	require.Contains(t, d.RiskFlags, "High cash-deposit ratio (>40%)")
	require.Contains(t, d.RiskFlags, "2 overdue accounts on credit report")
	require.NotEmpty(t, d.MissingDataAdvisory)
}

func TestBuildTopMatchesSortedByRank(t *testing.T) {
	c := store.Case{CaseNumber: "CASE-20260731-0002"}
	f := store.BorrowerFeatureVector{FeatureCompleteness: 90}

	productA, productB := uuid.New(), uuid.New()
	rank1, rank2 := 1, 2
	scoreA, scoreB := 88.0, 70.0
	results := []store.EligibilityResult{
		{LenderProductID: productB, HardFilterStatus: store.HardFilterPass, Rank: &rank2, EligibilityScore: &scoreB},
		{LenderProductID: productA, HardFilterStatus: store.HardFilterPass, Rank: &rank1, EligibilityScore: &scoreA},
	}
	names := map[uuid.UUID]string{productA: "Lender A", productB: "Lender B"}

	d := Build(c, f, nil, results, nil, names)
	require.Len(t, d.TopMatches, 2)
	require.Equal(t, "Lender A", d.TopMatches[0].LenderName)
	require.Equal(t, "Lender B", d.TopMatches[1].LenderName)
}

func TestRenderPDFProducesNonEmptyBytes(t *testing.T) {
	d := Data{CaseNumber: "CASE-20260731-0001", BorrowerName: "Jane Doe"}
	bytes, err := RenderPDF(d)
	require.NoError(t, err)
	require.NotEmpty(t, bytes)
	require.Equal(t, "%PDF", string(bytes[:4]))
}

func TestRenderWhatsAppSummaryIncludesKeyFields(t *testing.T) {
	d := Data{
		CaseNumber:   "CASE-20260731-0001",
		BorrowerName: "Jane Doe",
		EntityType:   "Proprietorship",
		CIBILScore:   742,
		TopMatches:   []LenderMatch{{LenderName: "Lender A", Score: 88}},
	}
	summary := RenderWhatsApp(d)
	require.Contains(t, summary, "CASE-20260731-0001")
	require.Contains(t, summary, "Jane Doe")
	require.Contains(t, summary, "Lender A")
}
