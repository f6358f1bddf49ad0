package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/vlourenco/atalho/internal/config"
	"github.com/vlourenco/atalho/internal/constants"
	"github.com/vlourenco/atalho/internal/infrastructure/logger"
	appvalidation "github.com/vlourenco/atalho/internal/infrastructure/validation"
	"github.com/vlourenco/atalho/internal/processing/links"
	"github.com/vlourenco/atalho/internal/transport/http/middleware"
	"github.com/vlourenco/atalho/pkg/httputils"
	"go.uber.org/zap"
)

type LinksHandler struct {
	cfg       *config.Config
	svc       *links.Service
	adminKeys map[string]struct{}
}

func NewLinksHandler(cfg *config.Config, svc *links.Service) *LinksHandler {
	admin := make(map[string]struct{}, len(cfg.Security.AdminAPIKeys))
	for _, k := range cfg.Security.AdminAPIKeys {
		k = strings.TrimSpace(k)
		if k != "" {
			admin[k] = struct{}{}
		}
	}

	return &LinksHandler{
		cfg:       cfg,
		svc:       svc,
		adminKeys: admin,
	}
}

type createLinkRequest struct {
	Target        string     `json:"target" validate:"required,notblank,http_url"`
	CustomAddress string     `json:"customAddress,omitempty" validate:"omitempty,shortcode"`
	Password      string     `json:"password,omitempty" validate:"omitempty,min=3,max=64"`
	Description   string     `json:"description,omitempty" validate:"omitempty,max=2048"`
	ExpireIn      *time.Time `json:"expireIn,omitempty" validate:"omitempty,future"`
	Domain        string     `json:"domain,omitempty"`
}

type linkResponse struct {
	Address     string     `json:"address"`
	Target      string     `json:"target"`
	ShortURL    string     `json:"shortUrl"`
	Description string     `json:"description,omitempty"`
	Protected   bool       `json:"protected"`
	Banned      bool       `json:"banned,omitempty"`
	VisitCount  int64      `json:"visitCount"`
	ExpireIn    *time.Time `json:"expireIn,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

func (h *LinksHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputils.WriteAPIError(w, r, constants.ErrInvalidRequestBody)
		return
	}
	if err := appvalidation.Validate(req); err != nil {
		httputils.WriteAPIError(w, r, createValidationError(err))
		return
	}

	userID := ""
	if user, ok := middleware.UserFrom(r.Context()); ok {
		userID = user.ID
	}

	link, err := h.svc.CreateLink(r.Context(), links.CreateLinkInput{
		Target:        req.Target,
		CustomAddress: req.CustomAddress,
		Password:      req.Password,
		Description:   req.Description,
		ExpireIn:      req.ExpireIn,
		DomainHost:    req.Domain,
		UserID:        userID,
		SourceIP:      middleware.ClientIP(r, h.cfg.Security.TrustProxyHeaders),
	})
	if err != nil {
		switch {
		case errors.Is(err, links.ErrInvalidURL):
			httputils.WriteAPIError(w, r, constants.ErrInvalidURL)
		case errors.Is(err, links.ErrBannedTarget):
			httputils.WriteAPIError(w, r, constants.ErrBannedTarget)
		case errors.Is(err, links.ErrPasswordNotAllowed):
			httputils.WriteAPIError(w, r, constants.ErrUnauthorized.WithMessage("Only registered users can set a password"))
		case errors.Is(err, links.ErrRateLimited):
			httputils.WriteAPIError(w, r, constants.ErrRateLimited)
		case errors.Is(err, links.ErrDomainNotFound):
			httputils.WriteAPIError(w, r, constants.ErrDomainNotFound)
		case errors.Is(err, links.ErrAddressTaken):
			httputils.WriteAPIError(w, r, constants.ErrAddressTaken)
		default:
			logger.Error("failed to create link", zap.Error(err))
			httputils.WriteAPIError(w, r, constants.ErrInternalError)
		}
		return
	}

	httputils.WriteAPISuccess(w, r, constants.SuccessLinkCreated, h.toResponse(link, req.Domain))
}

type updateLinkRequest struct {
	Target      *string    `json:"target,omitempty" validate:"omitempty,notblank,http_url"`
	Description *string    `json:"description,omitempty" validate:"omitempty,max=2048"`
	ExpireIn    *time.Time `json:"expireIn,omitempty" validate:"omitempty,future"`
	Password    *string    `json:"password,omitempty" validate:"omitempty,max=64"`
}

func (h *LinksHandler) Update(w http.ResponseWriter, r *http.Request) {
	address := r.PathValue("address")
	domain := r.URL.Query().Get("domain")

	if _, ok := h.authorize(w, r, domain, address); !ok {
		return
	}

	var req updateLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputils.WriteAPIError(w, r, constants.ErrInvalidRequestBody)
		return
	}
	if err := appvalidation.Validate(req); err != nil {
		httputils.WriteAPIError(w, r, createValidationError(err))
		return
	}

	link, err := h.svc.UpdateLink(r.Context(), domain, address, links.UpdateLinkInput{
		Target:      req.Target,
		Description: req.Description,
		ExpireIn:    req.ExpireIn,
		Password:    req.Password,
	})
	if err != nil {
		switch {
		case errors.Is(err, links.ErrNotFound):
			httputils.WriteAPIError(w, r, constants.ErrLinkNotFound)
		case errors.Is(err, links.ErrInvalidURL):
			httputils.WriteAPIError(w, r, constants.ErrInvalidURL)
		case errors.Is(err, links.ErrBannedTarget):
			httputils.WriteAPIError(w, r, constants.ErrBannedTarget)
		default:
			logger.Error("failed to update link", zap.Error(err), zap.String("address", address))
			httputils.WriteAPIError(w, r, constants.ErrInternalError)
		}
		return
	}

	httputils.WriteAPISuccess(w, r, constants.SuccessLinkUpdated, h.toResponse(link, domain))
}

func (h *LinksHandler) Delete(w http.ResponseWriter, r *http.Request) {
	address := r.PathValue("address")
	domain := r.URL.Query().Get("domain")

	if _, ok := h.authorize(w, r, domain, address); !ok {
		return
	}

	if err := h.svc.DeleteLink(r.Context(), domain, address); err != nil {
		switch {
		case errors.Is(err, links.ErrNotFound):
			httputils.WriteAPIError(w, r, constants.ErrLinkNotFound)
		default:
			logger.Error("failed to delete link", zap.Error(err), zap.String("address", address))
			httputils.WriteAPIError(w, r, constants.ErrInternalError)
		}
		return
	}

	httputils.WriteAPISuccess(w, r, constants.SuccessLinkDeleted, map[string]string{"address": address})
}

type statsResponse struct {
	Address   string           `json:"address"`
	Total     int64            `json:"total"`
	Browsers  map[string]int64 `json:"browsers"`
	Systems   map[string]int64 `json:"systems"`
	Countries map[string]int64 `json:"countries"`
	Referrers map[string]int64 `json:"referrers"`
}

func (h *LinksHandler) Stats(w http.ResponseWriter, r *http.Request) {
	address := r.PathValue("address")
	domain := r.URL.Query().Get("domain")

	if _, ok := h.authorize(w, r, domain, address); !ok {
		return
	}

	stats, err := h.svc.GetStats(r.Context(), domain, address)
	if err != nil {
		switch {
		case errors.Is(err, links.ErrNotFound):
			httputils.WriteAPIError(w, r, constants.ErrLinkNotFound)
		case errors.Is(err, links.ErrDomainNotFound):
			httputils.WriteAPIError(w, r, constants.ErrDomainNotFound)
		default:
			logger.Error("failed to fetch stats", zap.Error(err), zap.String("address", address))
			httputils.WriteAPIError(w, r, constants.ErrInternalError)
		}
		return
	}

	httputils.WriteAPISuccess(w, r, constants.SuccessStatsFound, statsResponse{
		Address:   address,
		Total:     stats.Total,
		Browsers:  stats.Browsers,
		Systems:   stats.Systems,
		Countries: stats.Countries,
		Referrers: stats.Referrers,
	})
}

// Ban marks a link as banned. The route itself sits behind the admin key
// middleware; the acting admin's user id is recorded when one is attached.
func (h *LinksHandler) Ban(w http.ResponseWriter, r *http.Request) {
	address := r.PathValue("address")
	domain := r.URL.Query().Get("domain")

	bannedByID := ""
	if user, ok := middleware.UserFrom(r.Context()); ok {
		bannedByID = user.ID
	}

	link, err := h.svc.BanLink(r.Context(), domain, address, bannedByID)
	if err != nil {
		switch {
		case errors.Is(err, links.ErrNotFound):
			httputils.WriteAPIError(w, r, constants.ErrLinkNotFound)
		case errors.Is(err, links.ErrDomainNotFound):
			httputils.WriteAPIError(w, r, constants.ErrDomainNotFound)
		default:
			logger.Error("failed to ban link", zap.Error(err), zap.String("address", address))
			httputils.WriteAPIError(w, r, constants.ErrInternalError)
		}
		return
	}

	httputils.WriteAPISuccess(w, r, constants.SuccessLinkBanned, h.toResponse(link, domain))
}

// authorize loads the link and checks that the caller owns it. Admin keys
// bypass ownership, which also covers anonymous links that have no owner.
func (h *LinksHandler) authorize(w http.ResponseWriter, r *http.Request, domain, address string) (*links.Link, bool) {
	link, err := h.svc.GetLink(r.Context(), domain, address)
	if err != nil {
		switch {
		case errors.Is(err, links.ErrNotFound):
			httputils.WriteAPIError(w, r, constants.ErrLinkNotFound)
		case errors.Is(err, links.ErrDomainNotFound):
			httputils.WriteAPIError(w, r, constants.ErrDomainNotFound)
		default:
			logger.Error("failed to load link", zap.Error(err), zap.String("address", address))
			httputils.WriteAPIError(w, r, constants.ErrInternalError)
		}
		return nil, false
	}

	if h.isAdmin(r) {
		return link, true
	}

	user, ok := middleware.UserFrom(r.Context())
	if !ok || link.UserID == "" || link.UserID != user.ID {
		httputils.WriteAPIError(w, r, constants.ErrUnauthorized)
		return nil, false
	}

	return link, true
}

func (h *LinksHandler) isAdmin(r *http.Request) bool {
	key := strings.TrimSpace(r.Header.Get(middleware.APIKeyHeader))
	if key == "" {
		return false
	}
	_, ok := h.adminKeys[key]
	return ok
}

func (h *LinksHandler) toResponse(link *links.Link, domainHost string) linkResponse {
	base := strings.TrimRight(h.cfg.Shortener.BaseURL, "/")
	if host := strings.TrimSpace(domainHost); host != "" {
		base = "https://" + host
	}

	return linkResponse{
		Address:     link.Address,
		Target:      link.Target,
		ShortURL:    base + "/" + link.Address,
		Description: link.Description,
		Protected:   link.Protected(),
		Banned:      link.Banned,
		VisitCount:  link.VisitCount,
		ExpireIn:    link.ExpireIn,
		CreatedAt:   link.CreatedAt,
		UpdatedAt:   link.UpdatedAt,
	}
}

func createValidationError(err error) constants.APIError {
	apiErr := constants.ErrInvalidRequestBody
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return apiErr
	}
	for _, e := range validationErrs {
		switch {
		case e.Field() == "target" || e.Tag() == "http_url":
			return constants.ErrInvalidURL
		case e.Tag() == "shortcode":
			return apiErr.WithMessage("customAddress may only contain letters, digits, '-' and '_'")
		case e.Tag() == "future":
			return apiErr.WithMessage("expireIn must be in the future")
		case e.Field() == "password":
			return apiErr.WithMessage("password must be between 3 and 64 characters")
		}
	}
	return apiErr
}
