// Command lenderctl loads a lender policy/pincode reference bundle into
// casepilot's store (SPEC_FULL.md §4: "ingestion utility loading lender
// policy and pincode CSVs", implemented here as a YAML bundle). Loading
// replaces the full lender_products/lender_pincodes tables in one
// transaction — a staged swap, not a row-by-row upsert, per spec.md §5's
// "ingestion tools take a table-level lock or perform a staged swap".
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"casepilot/internal/config"
	"casepilot/internal/store"
)

// bundle is the YAML shape an operator hand-edits or exports from a lender
// agreement spreadsheet.
type bundle struct {
	Products []productEntry `yaml:"products"`
	Pincodes []pincodeEntry `yaml:"pincodes"`
}

type productEntry struct {
	LenderName          string   `yaml:"lender_name"`
	ProductName         string   `yaml:"product_name"`
	ProgramType         string   `yaml:"program_type"`
	IsActive            bool     `yaml:"is_active"`
	PolicyAvailable     bool     `yaml:"policy_available"`
	MinCIBILScore       int      `yaml:"min_cibil_score"`
	MinVintageYears     float64  `yaml:"min_vintage_years"`
	MinTurnoverAnnual   float64  `yaml:"min_turnover_annual"`
	MinABB              float64  `yaml:"min_abb"`
	AgeMin              int      `yaml:"age_min"`
	AgeMax              int      `yaml:"age_max"`
	MaxTicketSize       float64  `yaml:"max_ticket_size"`
	MaxDPD30Plus        int      `yaml:"max_dpd_30_plus"`
	EligibleEntityTypes []string `yaml:"eligible_entity_types"`
	RequiredDocuments   []string `yaml:"required_documents"`
	EnforcesGeo         bool     `yaml:"enforces_geo"`
}

type pincodeEntry struct {
	LenderName string `yaml:"lender_name"`
	Pincode    string `yaml:"pincode"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "lenderctl:", err)
		os.Exit(1)
	}
}

func run() error {
	bundlePath := flag.String("bundle", "", "path to the lender policy/pincode YAML bundle")
	dryRun := flag.Bool("dry-run", false, "parse and validate the bundle without writing")
	flag.Parse()

	if *bundlePath == "" {
		return fmt.Errorf("-bundle is required")
	}

	raw, err := os.ReadFile(*bundlePath)
	if err != nil {
		return fmt.Errorf("read bundle: %w", err)
	}
	var b bundle
	if err := yaml.Unmarshal(raw, &b); err != nil {
		return fmt.Errorf("parse bundle: %w", err)
	}
	if len(b.Products) == 0 {
		return fmt.Errorf("bundle has no products")
	}
	fmt.Printf("parsed %d products, %d pincodes\n", len(b.Products), len(b.Pincodes))
	if *dryRun {
		return nil
	}

	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	db, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	if err := store.AutoMigrate(db); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}

	now := time.Now()
	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&store.LenderPincode{}).Error; err != nil {
			return fmt.Errorf("clear pincodes: %w", err)
		}
		if err := tx.Where("1 = 1").Delete(&store.LenderProduct{}).Error; err != nil {
			return fmt.Errorf("clear products: %w", err)
		}

		for _, p := range b.Products {
			entityTypes, err := json.Marshal(p.EligibleEntityTypes)
			if err != nil {
				return err
			}
			requiredDocs, err := json.Marshal(p.RequiredDocuments)
			if err != nil {
				return err
			}
			row := store.LenderProduct{
				ID:                  uuid.New(),
				LenderName:          p.LenderName,
				ProductName:         p.ProductName,
				ProgramType:         p.ProgramType,
				IsActive:            p.IsActive,
				PolicyAvailable:     p.PolicyAvailable,
				MinCIBILScore:       p.MinCIBILScore,
				MinVintageYears:     p.MinVintageYears,
				MinTurnoverAnnual:   p.MinTurnoverAnnual,
				MinABB:              p.MinABB,
				AgeMin:              p.AgeMin,
				AgeMax:              p.AgeMax,
				MaxTicketSize:       p.MaxTicketSize,
				MaxDPD30Plus:        p.MaxDPD30Plus,
				EligibleEntityTypes: entityTypes,
				RequiredDocuments:   requiredDocs,
				EnforcesGeo:         p.EnforcesGeo,
				CreatedAt:           now,
				UpdatedAt:           now,
			}
			if err := tx.Create(&row).Error; err != nil {
				return fmt.Errorf("insert product %s/%s: %w", p.LenderName, p.ProductName, err)
			}
		}

		for _, pc := range b.Pincodes {
			row := store.LenderPincode{ID: uuid.New(), LenderName: pc.LenderName, Pincode: pc.Pincode}
			if err := tx.Create(&row).Error; err != nil {
				return fmt.Errorf("insert pincode %s/%s: %w", pc.LenderName, pc.Pincode, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	fmt.Printf("loaded %d products, %d pincodes\n", len(b.Products), len(b.Pincodes))
	return nil
}
