// Package storefront serves the public JSON API, the magic-link landing
// page and static assets for the AC Drain Wiz site.
package storefront
