/*
Package factory provides JSON to Go catalog conversion.

PURPOSE:
  Converts JSON catalog definitions into a ledger.PackageCatalog and a
  content.Library. This enables storefront configuration without code
  changes - the catalog file is deployed next to the binary, and the
  factory builds the immutable in-process structures at startup.

JSON SCHEMA:
  {
    "packages": [
      {
        "package_id": "starter",
        "name": "Starter Pack",
        "product_id": "com.fable.credits.starter",
        "credits": 600,
        "one_time_offer": true,
        "price": "4.99"
      }
    ],
    "books": [
      {
        "id": "book1",
        "title": "The Glass Orchard",
        "chapters": 120,
        "chapter_cost": 50
      }
    ]
  }

KEY FEATURES:
  - Validates ids, credit amounts, chapter counts
  - Prices parsed with shopspring/decimal (display-only, never arithmetic
    against credits)
  - DefaultCatalogJSON ships a working dev/demo catalog

USAGE:
  catalog, library, err := factory.ParseCatalog(jsonBytes)

SEE ALSO:
  - ledger/catalog.go: PackageCatalog type
  - content/library.go: Library type
*/
package factory

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/fable/credit-engine/content"
	"github.com/fable/credit-engine/ledger"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// CatalogJSON is the top-level catalog definition.
type CatalogJSON struct {
	Packages []PackageJSON `json:"packages"`
	Books    []BookJSON    `json:"books"`
}

// PackageJSON is the JSON representation of a credit package.
type PackageJSON struct {
	PackageID    string `json:"package_id"`
	Name         string `json:"name"`
	ProductID    string `json:"product_id"`
	Credits      int64  `json:"credits"`
	OneTimeOffer bool   `json:"one_time_offer,omitempty"`
	Price        string `json:"price,omitempty"` // decimal string, e.g. "4.99"
}

// BookJSON is the JSON representation of a content item.
type BookJSON struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Chapters    int    `json:"chapters"`
	ChapterCost int64  `json:"chapter_cost"`
}

// =============================================================================
// PARSING
// =============================================================================

// ParseCatalog converts a JSON catalog definition into the immutable
// runtime structures.
func ParseCatalog(data []byte) (*ledger.PackageCatalog, *content.Library, error) {
	var def CatalogJSON
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, nil, fmt.Errorf("parse catalog json: %w", err)
	}

	packages := make([]ledger.CreditPackage, 0, len(def.Packages))
	for _, p := range def.Packages {
		price := decimal.Zero
		if p.Price != "" {
			parsed, err := decimal.NewFromString(p.Price)
			if err != nil {
				return nil, nil, fmt.Errorf("package %q: invalid price %q: %w", p.PackageID, p.Price, err)
			}
			price = parsed
		}
		packages = append(packages, ledger.CreditPackage{
			PackageID:         p.PackageID,
			Name:              p.Name,
			PurchaseProductID: p.ProductID,
			TotalCredits:      p.Credits,
			IsOneTimeOffer:    p.OneTimeOffer,
			Price:             price,
		})
	}

	catalog, err := ledger.NewPackageCatalog(packages)
	if err != nil {
		return nil, nil, fmt.Errorf("build package catalog: %w", err)
	}

	books := make([]content.Book, 0, len(def.Books))
	for _, b := range def.Books {
		if b.ID == "" {
			return nil, nil, fmt.Errorf("book with empty id")
		}
		if b.Chapters < 1 {
			return nil, nil, fmt.Errorf("book %q: chapter count must be positive, got %d", b.ID, b.Chapters)
		}
		if b.ChapterCost < 0 {
			return nil, nil, fmt.Errorf("book %q: chapter cost cannot be negative, got %d", b.ID, b.ChapterCost)
		}
		books = append(books, content.Book{
			ID:           b.ID,
			Title:        b.Title,
			ChapterCount: b.Chapters,
			ChapterCost:  b.ChapterCost,
		})
	}

	return catalog, content.NewLibrary(books...), nil
}

// =============================================================================
// DEFAULT CATALOG
// =============================================================================

// DefaultCatalogJSON is the built-in dev/demo catalog used when no catalog
// file is supplied.
const DefaultCatalogJSON = `{
  "packages": [
    {
      "package_id": "starter",
      "name": "Starter Pack",
      "product_id": "com.fable.credits.starter",
      "credits": 600,
      "one_time_offer": true,
      "price": "0.99"
    },
    {
      "package_id": "standard",
      "name": "Standard Pack",
      "product_id": "com.fable.credits.standard",
      "credits": 1500,
      "price": "4.99"
    },
    {
      "package_id": "binge",
      "name": "Binge Pack",
      "product_id": "com.fable.credits.binge",
      "credits": 4000,
      "price": "9.99"
    }
  ],
  "books": [
    {
      "id": "book1",
      "title": "The Glass Orchard",
      "chapters": 120,
      "chapter_cost": 50
    },
    {
      "id": "book2",
      "title": "Saltwater Letters",
      "chapters": 80,
      "chapter_cost": 40
    }
  ]
}`
