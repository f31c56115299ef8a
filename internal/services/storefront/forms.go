package storefront

import (
	"mime"
	"net/http"
	"strconv"
	"strings"

	apperrors "github.com/acdrainwiz/drainwiz/internal/platform/errors"
	"github.com/acdrainwiz/drainwiz/internal/platform/httpx"
	"github.com/acdrainwiz/drainwiz/internal/services/account"
	"github.com/acdrainwiz/drainwiz/internal/services/forms"
)

// Reserved submission keys that carry bot-defense inputs rather than form
// fields.
const (
	keyCSRFToken      = "csrf_token"
	keyRecaptchaToken = "recaptcha_token"
	keyInteractions   = "interactions"
)

type formBody struct {
	CSRFToken      string            `json:"csrf_token"`
	RecaptchaToken string            `json:"recaptcha_token"`
	Interactions   int               `json:"interactions" validate:"min=0"`
	Fields         map[string]string `json:"fields" validate:"max=40"`
}

// handleFormToken issues the CSRF token a form page embeds. The contractor
// signup form shares the pipeline without being a stored form.
func (h *handler) handleFormToken(w http.ResponseWriter, r *http.Request) {
	form := r.PathValue("form")
	var (
		token string
		err   error
	)
	ttl := h.Bots.TokenTTL()
	if form == account.SignupForm {
		token, err = h.Bots.IssueToken(form)
	} else {
		token, ttl, err = h.Forms.IssueToken(form)
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	h.writeJSON(w, r, http.StatusOK, map[string]any{
		"token":      token,
		"expires_in": int(ttl.Seconds()),
	})
}

func (h *handler) handleFormSubmit(w http.ResponseWriter, r *http.Request) {
	body, err := decodeFormBody(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	id, err := h.Forms.Submit(r.Context(), forms.Input{
		Form:           r.PathValue("form"),
		Values:         body.Fields,
		IP:             h.Proxies.ClientIP(r),
		UserAgent:      r.UserAgent(),
		Token:          body.CSRFToken,
		RecaptchaToken: body.RecaptchaToken,
		Interactions:   body.Interactions,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusAccepted, map[string]string{"id": id})
}

// decodeFormBody accepts a JSON body or a urlencoded/multipart form post.
func decodeFormBody(w http.ResponseWriter, r *http.Request) (formBody, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var body formBody
		if err := httpx.DecodeJSON(w, r, &body); err != nil {
			return formBody{}, err
		}
		if body.Fields == nil {
			body.Fields = map[string]string{}
		}
		return body, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, httpx.MaxBodyBytes)
	var err error
	if mediaType == "multipart/form-data" {
		err = r.ParseMultipartForm(httpx.MaxBodyBytes)
	} else {
		err = r.ParseForm()
	}
	if err != nil {
		return formBody{}, apperrors.Wrap(apperrors.CodeInvalidArgument, "parse form body", err)
	}
	body := formBody{Fields: map[string]string{}}
	for key, values := range r.PostForm {
		if len(values) == 0 {
			continue
		}
		value := values[0]
		switch key {
		case keyCSRFToken:
			body.CSRFToken = value
		case keyRecaptchaToken:
			body.RecaptchaToken = value
		case keyInteractions:
			n, err := strconv.Atoi(strings.TrimSpace(value))
			if err == nil && n > 0 {
				body.Interactions = n
			}
		default:
			body.Fields[key] = value
		}
	}
	if len(body.Fields) > 40 {
		return formBody{}, apperrors.New(apperrors.CodeInvalidArgument, "too many fields")
	}
	return body, nil
}
