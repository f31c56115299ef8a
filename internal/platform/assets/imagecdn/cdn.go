// Package imagecdn builds delivery URLs for product images. Cloudinary
// bases get crop and resize transforms; any other base is treated as a flat
// file CDN and transforms are ignored.
package imagecdn

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrAssetIDRequired is returned when a request has no asset id.
var ErrAssetIDRequired = errors.New("asset id is required")

// Crop selects a region of the source image in pixels.
type Crop struct {
	X        int
	Y        int
	WidthPX  int
	HeightPX int
}

// Delivery bounds the delivered image size.
type Delivery struct {
	WidthPX  int
	HeightPX int
}

// Request describes one image URL.
type Request struct {
	AssetID   string
	Extension string
	Crop      *Crop
	Delivery  *Delivery
}

// CDN resolves image URLs against a base.
type CDN struct {
	base       string
	cloudinary bool
}

// New returns a CDN for base. Hosts under res.cloudinary.com enable
// transforms.
func New(base string) CDN {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	cloudinary := false
	if parsed, err := url.Parse(base); err == nil {
		cloudinary = strings.EqualFold(parsed.Host, "res.cloudinary.com")
	}
	return CDN{base: base, cloudinary: cloudinary}
}

// URL returns the delivery URL for req.
func (c CDN) URL(req Request) (string, error) {
	assetID := strings.Trim(strings.TrimSpace(req.AssetID), "/")
	if assetID == "" {
		return "", ErrAssetIDRequired
	}
	ext := strings.TrimSpace(req.Extension)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	file := assetID + ext

	parts := []string{c.base}
	if c.cloudinary {
		if req.Crop != nil && req.Crop.WidthPX > 0 && req.Crop.HeightPX > 0 {
			parts = append(parts, fmt.Sprintf("c_crop,w_%d,h_%d,x_%d,y_%d",
				req.Crop.WidthPX, req.Crop.HeightPX, req.Crop.X, req.Crop.Y))
		}
		if req.Delivery != nil {
			parts = append(parts, deliveryTransform(*req.Delivery))
		}
	}
	parts = append(parts, file)
	if c.base == "" {
		parts = parts[1:]
	}
	return strings.Join(parts, "/"), nil
}

func deliveryTransform(d Delivery) string {
	segments := []string{"f_auto", "q_auto", "dpr_auto", "c_limit"}
	if d.WidthPX > 0 {
		segments = append(segments, fmt.Sprintf("w_%d", d.WidthPX))
	}
	if d.HeightPX > 0 {
		segments = append(segments, fmt.Sprintf("h_%d", d.HeightPX))
	}
	return strings.Join(segments, ",")
}
