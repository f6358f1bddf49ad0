package http

import (
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/vlourenco/atalho/internal/config"
	"github.com/vlourenco/atalho/internal/constants"
	"github.com/vlourenco/atalho/internal/infrastructure/logger"
	appvalidation "github.com/vlourenco/atalho/internal/infrastructure/validation"
	"github.com/vlourenco/atalho/internal/processing/links"
	"github.com/vlourenco/atalho/internal/transport/http/middleware"
	"github.com/vlourenco/atalho/pkg/httputils"
	"go.uber.org/zap"
)

var redirectOutcomes = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "redirect_outcomes_total",
		Help: "Resolution outcomes served on the redirect routes",
	},
	[]string{"outcome"},
)

// RedirectHandler serves the public short-link routes.
type RedirectHandler struct {
	cfg      *config.Config
	resolver *links.Resolver
}

func NewRedirectHandler(cfg *config.Config, resolver *links.Resolver) *RedirectHandler {
	return &RedirectHandler{cfg: cfg, resolver: resolver}
}

func (h *RedirectHandler) Redirect(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, r.PathValue("address"))
}

// Homepage handles bare-domain hits: custom domains may redirect to their
// configured homepage, everything else is a miss.
func (h *RedirectHandler) Homepage(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "")
}

func (h *RedirectHandler) serve(w http.ResponseWriter, r *http.Request, address string) {
	outcome, err := h.resolver.Resolve(r.Context(), r.Host, address, "", h.requestMeta(r))
	if err != nil {
		logger.Error("failed to resolve address", zap.Error(err), zap.String("address", address))
		httputils.WriteAPIError(w, r, constants.ErrInternalError)
		return
	}

	switch o := outcome.(type) {
	case links.Redirect:
		redirectOutcomes.WithLabelValues("redirect").Inc()
		http.Redirect(w, r, o.Target, h.cfg.Shortener.RedirectStatus)
	case links.NotFound:
		redirectOutcomes.WithLabelValues("not_found").Inc()
		httputils.WriteAPIError(w, r, constants.ErrLinkNotFound)
	case links.Expired:
		// Expired links are indistinguishable from missing ones.
		redirectOutcomes.WithLabelValues("expired").Inc()
		httputils.WriteAPIError(w, r, constants.ErrLinkNotFound)
	case links.Banned:
		redirectOutcomes.WithLabelValues("banned").Inc()
		httputils.WriteAPIError(w, r, constants.ErrBanned)
	case links.PasswordRequired:
		redirectOutcomes.WithLabelValues("password_required").Inc()
		httputils.WriteAPIError(w, r, constants.ErrPasswordRequired)
	default:
		logger.Error("unhandled resolution outcome", zap.String("address", address))
		httputils.WriteAPIError(w, r, constants.ErrInternalError)
	}
}

type protectedRequest struct {
	Password string `json:"password" validate:"required,notblank"`
}

type protectedResponse struct {
	Target string `json:"target"`
}

// Protected exchanges a link password for the target URL. The target is
// returned in the body rather than as a redirect so clients do not leak the
// password through intermediary caches.
func (h *RedirectHandler) Protected(w http.ResponseWriter, r *http.Request) {
	address := r.PathValue("address")

	var req protectedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputils.WriteAPIError(w, r, constants.ErrInvalidRequestBody)
		return
	}
	if err := appvalidation.Validate(req); err != nil {
		httputils.WriteAPIError(w, r, constants.ErrInvalidRequestBody.WithMessage("password is required"))
		return
	}

	outcome, err := h.resolver.Resolve(r.Context(), r.Host, address, req.Password, h.requestMeta(r))
	if err != nil {
		logger.Error("failed to resolve protected address", zap.Error(err), zap.String("address", address))
		httputils.WriteAPIError(w, r, constants.ErrInternalError)
		return
	}

	switch o := outcome.(type) {
	case links.Redirect:
		redirectOutcomes.WithLabelValues("redirect").Inc()
		httputils.WriteAPISuccess(w, r, constants.SuccessTargetFound, protectedResponse{Target: o.Target})
	case links.NotFound:
		redirectOutcomes.WithLabelValues("not_found").Inc()
		httputils.WriteAPIError(w, r, constants.ErrLinkNotFound)
	case links.Expired:
		redirectOutcomes.WithLabelValues("expired").Inc()
		httputils.WriteAPIError(w, r, constants.ErrLinkNotFound)
	case links.Banned:
		redirectOutcomes.WithLabelValues("banned").Inc()
		httputils.WriteAPIError(w, r, constants.ErrBanned)
	case links.PasswordRequired:
		redirectOutcomes.WithLabelValues("password_mismatch").Inc()
		if o.Mismatch {
			httputils.WriteAPIError(w, r, constants.ErrPasswordMismatch)
			return
		}
		httputils.WriteAPIError(w, r, constants.ErrPasswordRequired)
	default:
		logger.Error("unhandled resolution outcome", zap.String("address", address))
		httputils.WriteAPIError(w, r, constants.ErrInternalError)
	}
}

func (h *RedirectHandler) requestMeta(r *http.Request) links.RequestMeta {
	return links.RequestMeta{
		UserAgent: r.UserAgent(),
		Referrer:  r.Referer(),
		RemoteIP:  middleware.ClientIP(r, h.cfg.Security.TrustProxyHeaders),
	}
}
