package botdefense

import (
	"context"
	"fmt"
	"net/http"
	"net/netip"
	"net/url"
	"strings"

	"github.com/acdrainwiz/drainwiz/internal/platform/timeouts"
	"github.com/acdrainwiz/drainwiz/internal/platform/upstream"
)

// RecaptchaResult is the siteverify response.
type RecaptchaResult struct {
	Success    bool     `json:"success"`
	Score      float64  `json:"score"`
	Action     string   `json:"action"`
	Hostname   string   `json:"hostname"`
	ErrorCodes []string `json:"error-codes"`
}

// Verifier checks a reCAPTCHA v3 token. An error means the verifier could
// not be reached, not that the token is bad.
type Verifier interface {
	Verify(ctx context.Context, token string, ip netip.Addr) (RecaptchaResult, error)
}

// SiteVerifier calls Google's siteverify endpoint.
type SiteVerifier struct {
	secret string
	client *upstream.Client
}

// NewSiteVerifier builds a verifier for secret. It makes one attempt per
// submission.
func NewSiteVerifier(secret, baseURL string, hc *http.Client) *SiteVerifier {
	if hc == nil {
		hc = &http.Client{Timeout: timeouts.Upstream}
	}
	return &SiteVerifier{
		secret: secret,
		client: upstream.New("recaptcha", baseURL,
			upstream.WithHTTPClient(hc),
			upstream.WithRetryPolicy(upstream.RetryPolicy{MaxTries: 1}),
		),
	}
}

// Verify implements Verifier.
func (v *SiteVerifier) Verify(ctx context.Context, token string, ip netip.Addr) (RecaptchaResult, error) {
	form := url.Values{}
	form.Set("secret", v.secret)
	form.Set("response", token)
	if ip.IsValid() {
		form.Set("remoteip", ip.String())
	}
	var out RecaptchaResult
	if err := v.client.DoForm(ctx, "/siteverify", form.Encode(), &out); err != nil {
		return RecaptchaResult{}, err
	}
	return out, nil
}

// RecaptchaAction is the action name a form's page executes with.
func RecaptchaAction(form string) string {
	return strings.ReplaceAll(form, "-", "_")
}

func checkRecaptcha(ctx context.Context, v Verifier, minScore float64, sub Submission) Signal {
	if v == nil {
		return Pass(CheckRecaptcha)
	}
	token := strings.TrimSpace(sub.RecaptchaToken)
	if token == "" {
		return Block(CheckRecaptcha, "missing recaptcha token")
	}
	res, err := v.Verify(ctx, token, sub.IP)
	if err != nil {
		return Suspicious(CheckRecaptcha, 0.4, "recaptcha unavailable")
	}
	if !res.Success {
		return Block(CheckRecaptcha, "recaptcha rejected: "+strings.Join(res.ErrorCodes, ","))
	}
	if res.Score < minScore {
		return Block(CheckRecaptcha, fmt.Sprintf("recaptcha score %.2f below %.2f", res.Score, minScore))
	}
	if want := RecaptchaAction(sub.Form); res.Action != want {
		return Block(CheckRecaptcha, fmt.Sprintf("recaptcha action %q, want %q", res.Action, want))
	}
	return Pass(CheckRecaptcha)
}
