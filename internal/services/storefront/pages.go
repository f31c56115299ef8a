package storefront

// landingParams drive the magic-link result page.
type landingParams struct {
	Name    string
	Pending bool
	Error   string
}
