/*
catalog.go - Immutable credit package catalog

PURPOSE:
  Holds the purchasable credit packages, indexed by the store's product id
  (the join key to receipts) and by package id (for listing). Constructed
  once at process start and passed by reference into the crediting engine;
  never mutated afterwards.

SEE ALSO:
  - factory/catalog.go: Builds catalogs from JSON definitions
  - credit.go: Looks packages up by receipt-asserted product id
*/
package ledger

import (
	"fmt"
	"sort"
)

// PackageCatalog is an immutable lookup structure over credit packages.
type PackageCatalog struct {
	byProductID map[string]CreditPackage
	byPackageID map[string]CreditPackage
}

// NewPackageCatalog builds a catalog from the given packages. Product ids
// and package ids must be unique and non-empty; credits must be positive.
func NewPackageCatalog(packages []CreditPackage) (*PackageCatalog, error) {
	c := &PackageCatalog{
		byProductID: make(map[string]CreditPackage, len(packages)),
		byPackageID: make(map[string]CreditPackage, len(packages)),
	}
	for _, p := range packages {
		if p.PackageID == "" || p.PurchaseProductID == "" {
			return nil, fmt.Errorf("package %q: package id and product id are required", p.PackageID)
		}
		if p.TotalCredits <= 0 {
			return nil, fmt.Errorf("package %q: credits must be positive, got %d", p.PackageID, p.TotalCredits)
		}
		if _, dup := c.byPackageID[p.PackageID]; dup {
			return nil, fmt.Errorf("duplicate package id %q", p.PackageID)
		}
		if _, dup := c.byProductID[p.PurchaseProductID]; dup {
			return nil, fmt.Errorf("duplicate product id %q", p.PurchaseProductID)
		}
		c.byPackageID[p.PackageID] = p
		c.byProductID[p.PurchaseProductID] = p
	}
	return c, nil
}

// ByProductID looks a package up by the store's product identifier.
func (c *PackageCatalog) ByProductID(productID string) (CreditPackage, bool) {
	p, ok := c.byProductID[productID]
	return p, ok
}

// ByPackageID looks a package up by its catalog id.
func (c *PackageCatalog) ByPackageID(packageID string) (CreditPackage, bool) {
	p, ok := c.byPackageID[packageID]
	return p, ok
}

// List returns all packages ordered by package id.
func (c *PackageCatalog) List() []CreditPackage {
	out := make([]CreditPackage, 0, len(c.byPackageID))
	for _, p := range c.byPackageID {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PackageID < out[j].PackageID })
	return out
}
