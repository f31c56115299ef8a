package catalog

import (
	_ "embed"
	"fmt"
	"io/fs"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

var (
	defaultOnce sync.Once
	defaultCat  *Catalog
	defaultErr  error
)

// Default returns the embedded catalog. It panics if the embedded file is
// invalid, which the package tests rule out.
func Default() *Catalog {
	defaultOnce.Do(func() {
		defaultCat, defaultErr = Parse(defaultCatalog)
	})
	if defaultErr != nil {
		panic(fmt.Sprintf("embedded catalog: %v", defaultErr))
	}
	return defaultCat
}

// Load reads and validates a catalog file from fsys.
func Load(fsys fs.FS, path string) (*Catalog, error) {
	data, err := fs.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

type fileProduct struct {
	SKU             string          `yaml:"sku"`
	Slug            string          `yaml:"slug"`
	Name            string          `yaml:"name"`
	Category        string          `yaml:"category"`
	Summary         string          `yaml:"summary"`
	Description     string          `yaml:"description"`
	RetailCents     int64           `yaml:"retail_cents"`
	ContractorCents int64           `yaml:"contractor_cents"`
	ContractorOnly  bool            `yaml:"contractor_only"`
	Discontinued    bool            `yaml:"discontinued"`
	WeightOz        int             `yaml:"weight_oz"`
	Dimensions      Dimensions      `yaml:"dimensions"`
	Image           string          `yaml:"image"`
	Features        []string        `yaml:"features"`
	Compatibility   []string        `yaml:"compatibility"`
	Prices          map[Tier]string `yaml:"prices"`
	Setup           []SetupStep     `yaml:"setup"`
}

type file struct {
	Products []fileProduct `yaml:"products"`
}

// Parse decodes and validates catalog YAML.
func Parse(data []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if len(f.Products) == 0 {
		return nil, fmt.Errorf("catalog has no products")
	}

	c := &Catalog{
		bySKU:    make(map[string]int, len(f.Products)),
		bySlug:   make(map[string]int, len(f.Products)),
		byPrice:  make(map[string]PriceMapping),
		priceIDs: make(map[string]map[Tier]string, len(f.Products)),
	}
	for i, fp := range f.Products {
		p, err := fp.product()
		if err != nil {
			return nil, fmt.Errorf("product %d: %w", i, err)
		}
		if _, dup := c.bySKU[p.SKU]; dup {
			return nil, fmt.Errorf("duplicate sku %s", p.SKU)
		}
		if _, dup := c.bySlug[p.Slug]; dup {
			return nil, fmt.Errorf("duplicate slug %s", p.Slug)
		}
		c.bySKU[p.SKU] = i
		c.bySlug[p.Slug] = i

		c.priceIDs[p.SKU] = make(map[Tier]string, len(fp.Prices))
		for tier, priceID := range fp.Prices {
			if tier != TierRetail && tier != TierContractor {
				return nil, fmt.Errorf("%s: unknown price tier %q", p.SKU, tier)
			}
			if _, ok := p.PriceCents(tier); !ok && p.Active {
				return nil, fmt.Errorf("%s: price id for %s tier without a %s price", p.SKU, tier, tier)
			}
			priceID = strings.TrimSpace(priceID)
			if priceID == "" {
				return nil, fmt.Errorf("%s: empty %s price id", p.SKU, tier)
			}
			if existing, dup := c.byPrice[priceID]; dup {
				return nil, fmt.Errorf("price id %s used by %s and %s", priceID, existing.SKU, p.SKU)
			}
			c.byPrice[priceID] = PriceMapping{PriceID: priceID, SKU: p.SKU, Tier: tier}
			c.priceIDs[p.SKU][tier] = priceID
		}
		c.products = append(c.products, p)
	}
	return c, nil
}

func (fp fileProduct) product() (Product, error) {
	p := Product{
		SKU:             normalizeSKU(fp.SKU),
		Slug:            strings.ToLower(strings.TrimSpace(fp.Slug)),
		Name:            strings.TrimSpace(fp.Name),
		Category:        fp.Category,
		Summary:         strings.TrimSpace(fp.Summary),
		Description:     strings.TrimSpace(fp.Description),
		RetailCents:     fp.RetailCents,
		ContractorCents: fp.ContractorCents,
		ContractorOnly:  fp.ContractorOnly,
		WeightOz:        fp.WeightOz,
		Dimensions:      fp.Dimensions,
		ImageAssetID:    fp.Image,
		Features:        fp.Features,
		Compatibility:   fp.Compatibility,
		Active:          !fp.Discontinued,
		SetupGuide:      fp.Setup,
	}
	switch {
	case p.SKU == "":
		return p, fmt.Errorf("sku is required")
	case p.Slug == "":
		return p, fmt.Errorf("%s: slug is required", p.SKU)
	case p.Name == "":
		return p, fmt.Errorf("%s: name is required", p.SKU)
	case p.WeightOz <= 0:
		return p, fmt.Errorf("%s: weight must be positive", p.SKU)
	case p.RetailCents < 0 || p.ContractorCents < 0:
		return p, fmt.Errorf("%s: prices must not be negative", p.SKU)
	case p.ContractorCents == 0:
		return p, fmt.Errorf("%s: contractor price is required", p.SKU)
	case !p.ContractorOnly && p.RetailCents == 0:
		return p, fmt.Errorf("%s: retail price is required", p.SKU)
	case p.ContractorOnly && p.RetailCents != 0:
		return p, fmt.Errorf("%s: contractor-only product has a retail price", p.SKU)
	}
	if err := validateSetup(p.SKU, p.SetupGuide); err != nil {
		return p, err
	}
	return p, nil
}

// validateSetup requires unique step ids whose prerequisites are earlier
// steps of the same guide, which also rules out cycles.
func validateSetup(sku string, steps []SetupStep) error {
	seen := make(map[string]struct{}, len(steps))
	for _, step := range steps {
		if strings.TrimSpace(step.ID) == "" {
			return fmt.Errorf("%s: setup step without id", sku)
		}
		if _, dup := seen[step.ID]; dup {
			return fmt.Errorf("%s: duplicate setup step %s", sku, step.ID)
		}
		for _, req := range step.Requires {
			if _, ok := seen[req]; !ok {
				return fmt.Errorf("%s: step %s requires %s, which is not an earlier step", sku, step.ID, req)
			}
		}
		seen[step.ID] = struct{}{}
	}
	return nil
}
