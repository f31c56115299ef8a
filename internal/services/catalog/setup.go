package catalog

import (
	"github.com/samber/lo"
)

// SetupProgress summarizes a product's setup guide against completed steps.
type SetupProgress struct {
	SKU       string      `json:"sku"`
	Completed []string    `json:"completed"`
	Available []SetupStep `json:"available"`
	Remaining int         `json:"remaining"`
	Done      bool        `json:"done"`
}

// NextSetupSteps returns the steps of sku that are not completed and whose
// prerequisites are all completed. Unknown step ids in completed are
// ignored.
func (c *Catalog) NextSetupSteps(sku string, completed []string) (SetupProgress, error) {
	product, err := c.Product(sku)
	if err != nil {
		return SetupProgress{}, err
	}

	known := lo.SliceToMap(product.SetupGuide, func(s SetupStep) (string, struct{}) {
		return s.ID, struct{}{}
	})
	done := make(map[string]struct{}, len(completed))
	for _, id := range completed {
		if _, ok := known[id]; ok {
			done[id] = struct{}{}
		}
	}

	progress := SetupProgress{
		SKU:       product.SKU,
		Completed: lo.Filter(lo.Uniq(completed), func(id string, _ int) bool { _, ok := done[id]; return ok }),
		Available: []SetupStep{},
	}
	for _, step := range product.SetupGuide {
		if _, ok := done[step.ID]; ok {
			continue
		}
		progress.Remaining++
		ready := lo.EveryBy(step.Requires, func(req string) bool {
			_, ok := done[req]
			return ok
		})
		if ready {
			progress.Available = append(progress.Available, step)
		}
	}
	progress.Done = progress.Remaining == 0
	return progress, nil
}
