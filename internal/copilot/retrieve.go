package copilot

import (
	"regexp"
	"strconv"

	"gorm.io/gorm"

	"casepilot/internal/store"
)

var (
	scorePattern   = regexp.MustCompile(`\b([3-8][0-9]{2})\b`)
	pincodePattern = regexp.MustCompile(`\b([1-9][0-9]{5})\b`)
)

// Retrieve runs the parameterized-SQL lookup spec.md §4.9 step 2 describes
// for the detected query type. KNOWLEDGE queries never reach this function
// (the caller skips retrieval for them).
func Retrieve(db *gorm.DB, queryType QueryType, queryText string) ([]store.LenderProduct, error) {
	switch queryType {
	case QueryCIBIL:
		return retrieveByCIBIL(db, queryText)
	case QueryPincode:
		return retrieveByPincode(db, queryText)
	case QueryTurnover:
		return retrieveAvailableProducts(db)
	case QueryVintage:
		return retrieveAvailableProducts(db)
	case QueryEntity:
		return retrieveAvailableProducts(db)
	case QueryTicket:
		return retrieveAvailableProducts(db)
	case QueryRequirement:
		return retrieveAvailableProducts(db)
	case QueryLenderSpecific, QueryComparison:
		return retrieveAvailableProducts(db)
	default:
		return nil, nil
	}
}

func retrieveAvailableProducts(db *gorm.DB) ([]store.LenderProduct, error) {
	var products []store.LenderProduct
	err := db.Where("is_active = ? AND policy_available = ?", true, true).Find(&products).Error
	return products, err
}

// retrieveByCIBIL extracts a 3-digit score from queryText and returns
// products whose min_cibil_score is at or below it. Absent a parsed score,
// it returns every active, policy-available product.
func retrieveByCIBIL(db *gorm.DB, queryText string) ([]store.LenderProduct, error) {
	match := scorePattern.FindString(queryText)
	if match == "" {
		return retrieveAvailableProducts(db)
	}
	score, err := strconv.Atoi(match)
	if err != nil {
		return retrieveAvailableProducts(db)
	}
	var products []store.LenderProduct
	err = db.Where("is_active = ? AND policy_available = ? AND min_cibil_score <= ?", true, true, score).
		Order("min_cibil_score desc").Find(&products).Error
	return products, err
}

// retrieveByPincode extracts a 6-digit pincode from queryText and joins
// through LenderPincode to find serviceable products.
func retrieveByPincode(db *gorm.DB, queryText string) ([]store.LenderProduct, error) {
	match := pincodePattern.FindString(queryText)
	if match == "" {
		return retrieveAvailableProducts(db)
	}
	var products []store.LenderProduct
	err := db.Joins("JOIN lender_pincodes ON lender_pincodes.lender_name = lender_products.lender_name").
		Where("lender_pincodes.pincode = ? AND lender_products.is_active = ? AND lender_products.policy_available = ?", match, true, true).
		Find(&products).Error
	return products, err
}
