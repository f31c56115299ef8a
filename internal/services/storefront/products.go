package storefront

import (
	"net/http"
	"strings"

	apperrors "github.com/acdrainwiz/drainwiz/internal/platform/errors"
	"github.com/acdrainwiz/drainwiz/internal/platform/money"
	"github.com/acdrainwiz/drainwiz/internal/services/catalog"
	"github.com/samber/lo"
)

type productView struct {
	SKU            string             `json:"sku"`
	Slug           string             `json:"slug"`
	Name           string             `json:"name"`
	Category       string             `json:"category"`
	Summary        string             `json:"summary"`
	Description    string             `json:"description,omitempty"`
	Tier           catalog.Tier       `json:"tier"`
	PriceCents     int64              `json:"price_cents"`
	PriceDisplay   string             `json:"price_display"`
	ContractorOnly bool               `json:"contractor_only"`
	WeightOz       int                `json:"weight_oz"`
	Dimensions     catalog.Dimensions `json:"dimensions"`
	Features       []string           `json:"features"`
	Compatibility  []string           `json:"compatibility"`
	ThumbURL       string             `json:"thumb_url,omitempty"`
	ImageURL       string             `json:"image_url,omitempty"`
	SetupSteps     int                `json:"setup_steps"`
}

func (h *handler) view(p catalog.Product, tier catalog.Tier, detail bool) productView {
	cents, _ := p.PriceCents(tier)
	v := productView{
		SKU:            p.SKU,
		Slug:           p.Slug,
		Name:           p.Name,
		Category:       p.Category,
		Summary:        p.Summary,
		Tier:           tier,
		PriceCents:     cents,
		PriceDisplay:   money.FormatUSD(cents),
		ContractorOnly: p.ContractorOnly,
		WeightOz:       p.WeightOz,
		Dimensions:     p.Dimensions,
		Features:       p.Features,
		Compatibility:  p.Compatibility,
		ThumbURL:       p.ImageURL(h.CDN, catalog.ImageThumbWidth),
		SetupSteps:     len(p.SetupGuide),
	}
	if detail {
		v.Description = p.Description
		v.ImageURL = p.ImageURL(h.CDN, catalog.ImageDetailWidth)
	}
	return v
}

func (h *handler) handleProducts(w http.ResponseWriter, r *http.Request) {
	tier, _ := h.tier(r)
	products := h.Catalog.Search(r.URL.Query().Get("q"), tier)
	h.writeJSON(w, r, http.StatusOK, map[string]any{
		"tier": tier,
		"products": lo.Map(products, func(p catalog.Product, _ int) productView {
			return h.view(p, tier, false)
		}),
	})
}

// lookup resolves a SKU or slug to a product the tier may see.
func (h *handler) lookup(r *http.Request, tier catalog.Tier) (catalog.Product, error) {
	key := r.PathValue("sku")
	product, err := h.Catalog.Product(key)
	if apperrors.HasCode(err, apperrors.CodeNotFound) {
		product, err = h.Catalog.ProductBySlug(key)
	}
	if err != nil {
		return catalog.Product{}, err
	}
	if !product.VisibleTo(tier) {
		return catalog.Product{}, apperrors.WithMetadata(apperrors.CodeNotFound, "product hidden from tier", map[string]string{"sku": product.SKU})
	}
	return product, nil
}

func (h *handler) handleProduct(w http.ResponseWriter, r *http.Request) {
	tier, _ := h.tier(r)
	product, err := h.lookup(r, tier)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, h.view(product, tier, true))
}

// handleSetup accepts completed step ids as repeated or comma-separated
// "completed" query values.
func (h *handler) handleSetup(w http.ResponseWriter, r *http.Request) {
	tier, _ := h.tier(r)
	product, err := h.lookup(r, tier)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var completed []string
	for _, value := range r.URL.Query()["completed"] {
		for _, id := range strings.Split(value, ",") {
			if id = strings.TrimSpace(id); id != "" {
				completed = append(completed, id)
			}
		}
	}
	progress, err := h.Catalog.NextSetupSteps(product.SKU, completed)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, progress)
}
