package catalog

import "github.com/acdrainwiz/drainwiz/internal/platform/assets/imagecdn"

// Image sizes used by the storefront.
const (
	ImageThumbWidth  = 320
	ImageDetailWidth = 1200
)

// ImageURL returns the product image bounded to widthPX, or "" when the
// product has no image.
func (p Product) ImageURL(cdn imagecdn.CDN, widthPX int) string {
	url, err := cdn.URL(imagecdn.Request{
		AssetID:   p.ImageAssetID,
		Extension: ".png",
		Delivery:  &imagecdn.Delivery{WidthPX: widthPX},
	})
	if err != nil {
		return ""
	}
	return url
}
