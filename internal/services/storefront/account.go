package storefront

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/a-h/templ"
	apperrors "github.com/acdrainwiz/drainwiz/internal/platform/errors"
	"github.com/acdrainwiz/drainwiz/internal/platform/httpx"
	"github.com/acdrainwiz/drainwiz/internal/platform/sessioncookie"
	"github.com/acdrainwiz/drainwiz/internal/services/account"
	accountservice "github.com/acdrainwiz/drainwiz/internal/services/account/service"
	"github.com/acdrainwiz/drainwiz/internal/services/botdefense"
	"github.com/acdrainwiz/drainwiz/internal/services/catalog"
)

type signupBody struct {
	Email          string `json:"email" validate:"required,email,max=254"`
	Name           string `json:"name" validate:"required,max=120"`
	Company        string `json:"company" validate:"required,max=160"`
	Phone          string `json:"phone" validate:"omitempty,max=40"`
	State          string `json:"state" validate:"required,len=2,alpha"`
	LicenseNumber  string `json:"license_number" validate:"required,max=40"`
	CSRFToken      string `json:"csrf_token"`
	RecaptchaToken string `json:"recaptcha_token"`
	Interactions   int    `json:"interactions" validate:"min=0"`
	// Honeypots rendered hidden on the signup page.
	Website    string `json:"website"`
	CompanyURL string `json:"company_url"`
	FaxNumber  string `json:"fax_number"`
}

func (h *handler) handleSignup(w http.ResponseWriter, r *http.Request) {
	var body signupBody
	// Field validation runs after the bot pipeline so junk signups still
	// count against the sender's reputation.
	if err := httpx.DecodeJSONBody(w, r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}
	verdict := h.Bots.Evaluate(r.Context(), botdefense.Submission{
		Form:           account.SignupForm,
		IP:             h.Proxies.ClientIP(r),
		Token:          body.CSRFToken,
		RecaptchaToken: body.RecaptchaToken,
		Fields: map[string]string{
			"email":          body.Email,
			"name":           body.Name,
			"company":        body.Company,
			"phone":          body.Phone,
			"state":          body.State,
			"license_number": body.LicenseNumber,
			"website":        body.Website,
			"company_url":    body.CompanyURL,
			"fax_number":     body.FaxNumber,
		},
		Email:        body.Email,
		Text:         body.Name + "\n" + body.Company,
		Interactions: body.Interactions,
	})
	if !verdict.Allowed {
		h.writeError(w, r, apperrors.New(apperrors.CodeSubmissionRejected, "signup rejected"))
		return
	}
	if err := httpx.ValidateStruct(&body); err != nil {
		h.writeError(w, r, err)
		return
	}
	contractor, err := h.Accounts.Signup(r.Context(), account.SignupRequest{
		Email:         body.Email,
		Name:          body.Name,
		Company:       body.Company,
		Phone:         body.Phone,
		State:         body.State,
		LicenseNumber: body.LicenseNumber,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusAccepted, map[string]string{
		"id":     contractor.ID,
		"status": string(contractor.Status),
	})
}

type magicLinkBody struct {
	Email string `json:"email" validate:"required,email,max=254"`
}

// handleMagicLinkRequest answers 202 whether or not the address belongs to
// an account.
func (h *handler) handleMagicLinkRequest(w http.ResponseWriter, r *http.Request) {
	var body magicLinkBody
	if err := httpx.DecodeJSON(w, r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.Accounts.RequestMagicLink(r.Context(), body.Email); err != nil {
		h.requestLog(r).WithError(err).Warn("magic link request failed")
	}
	h.writeJSON(w, r, http.StatusAccepted, map[string]string{"status": "sent"})
}

func (h *handler) handleMagicLink(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Referrer-Policy", "no-referrer")
	signIn, err := h.Accounts.ConsumeMagicLink(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		status := apperrors.HTTPStatus(err)
		if status >= http.StatusInternalServerError {
			h.requestLog(r).WithError(err).Error("magic link sign-in failed")
		}
		templ.Handler(landingPage(landingParams{Error: apperrors.PublicMessage(err)}), templ.WithStatus(status)).ServeHTTP(w, r)
		return
	}
	h.startSession(w, r, signIn)
	templ.Handler(landingPage(landingParams{Name: signIn.Contractor.Name, Pending: !signIn.Contractor.Approved()})).ServeHTTP(w, r)
}

func (h *handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	sessioncookie.Clear(w, h.Proxies.IsHTTPS(r))
	w.WriteHeader(http.StatusNoContent)
}

type meView struct {
	Contractor account.Contractor `json:"contractor"`
	Tier       catalog.Tier       `json:"tier"`
}

func (h *handler) handleMe(w http.ResponseWriter, r *http.Request) {
	contractor, err := h.authenticate(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	tier := catalog.TierRetail
	if contractor.Approved() {
		tier = catalog.TierContractor
	}
	w.Header().Set("Cache-Control", "no-store")
	h.writeJSON(w, r, http.StatusOK, meView{Contractor: contractor, Tier: tier})
}

// authenticate requires a valid session cookie.
func (h *handler) authenticate(r *http.Request) (account.Contractor, error) {
	token, ok := sessioncookie.Read(r)
	if !ok {
		return account.Contractor{}, apperrors.New(apperrors.CodeUnauthenticated, "no session cookie")
	}
	return h.Accounts.Authenticate(r.Context(), token)
}

func (h *handler) startSession(w http.ResponseWriter, r *http.Request, signIn accountservice.SignIn) {
	ttl := time.Until(signIn.ExpiresAt)
	if ttl <= 0 {
		ttl = h.Accounts.SessionTTL()
	}
	sessioncookie.Write(w, signIn.Token, ttl, h.Proxies.IsHTTPS(r))
	h.requestLog(r).WithField("contractor_id", signIn.Contractor.ID).Info("contractor signed in")
}

type passkeyFinishBody struct {
	SessionID  string          `json:"session_id" validate:"required,max=100"`
	Credential json.RawMessage `json:"credential" validate:"required"`
}

func (h *handler) handlePasskeyRegisterBegin(w http.ResponseWriter, r *http.Request) {
	contractor, err := h.authenticate(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ceremony, err := h.Accounts.BeginPasskeyRegistration(r.Context(), contractor.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, ceremony)
}

func (h *handler) handlePasskeyRegisterFinish(w http.ResponseWriter, r *http.Request) {
	contractor, err := h.authenticate(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var body passkeyFinishBody
	if err := httpx.DecodeJSON(w, r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}
	credentialID, err := h.Accounts.FinishPasskeyRegistration(r.Context(), contractor.ID, strings.TrimSpace(body.SessionID), body.Credential)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusCreated, map[string]string{"credential_id": credentialID})
}

func (h *handler) handlePasskeyLoginBegin(w http.ResponseWriter, r *http.Request) {
	ceremony, err := h.Accounts.BeginPasskeyLogin(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, ceremony)
}

func (h *handler) handlePasskeyLoginFinish(w http.ResponseWriter, r *http.Request) {
	var body passkeyFinishBody
	if err := httpx.DecodeJSON(w, r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}
	signIn, err := h.Accounts.FinishPasskeyLogin(r.Context(), strings.TrimSpace(body.SessionID), body.Credential)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.startSession(w, r, signIn)
	h.writeJSON(w, r, http.StatusOK, map[string]any{
		"contractor": signIn.Contractor,
		"expires_at": signIn.ExpiresAt,
	})
}
