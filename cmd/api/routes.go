package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/jose-hbf/homebaseflights-sub001/internal/domain"
	httpinfra "github.com/jose-hbf/homebaseflights-sub001/internal/infra/http"
	"github.com/jose-hbf/homebaseflights-sub001/internal/infra/metrics"
	"github.com/jose-hbf/homebaseflights-sub001/internal/usecase/alerts"
	"github.com/jose-hbf/homebaseflights-sub001/internal/usecase/deals"
	"github.com/jose-hbf/homebaseflights-sub001/internal/usecase/reminders"
	"github.com/jose-hbf/homebaseflights-sub001/internal/usecase/subscribers"
)

type dealsUsecase interface {
	Preview(ctx context.Context, airport string, opts deals.FilterOptions) ([]domain.RawDeal, error)
	Cached(ctx context.Context, airport string, opts deals.FilterOptions) ([]domain.RawDeal, error)
	FetchAll(ctx context.Context, airports []string) deals.FetchReport
	CurateAirport(ctx context.Context, airport string, limit int) (deals.CurationReport, error)
}

type alertsUsecase interface {
	SendAlertsForAirport(ctx context.Context, airport string, opts alerts.Options) (alerts.Result, error)
	SendAllAlerts(ctx context.Context, opts alerts.Options) alerts.Report
}

type remindersUsecase interface {
	TrialReminders(ctx context.Context, now time.Time) (reminders.Result, error)
	ExpireTrials(ctx context.Context, now time.Time) (int64, error)
	SendNurture(ctx context.Context, now time.Time) (reminders.Result, error)
}

type subscribersUsecase interface {
	Signup(ctx context.Context, req subscribers.SignupRequest) (subscribers.SignupResult, error)
	Unsubscribe(ctx context.Context, email, token string) error
	PortalURL(ctx context.Context, email, token string) (string, error)
	StartCheckout(ctx context.Context, email string) (string, error)
	CompleteCheckout(ctx context.Context, sessionID string) (domain.Subscriber, error)
	HandlePaymentEvent(ctx context.Context, ev domain.PaymentEvent) error
	AdminUpsert(ctx context.Context, in subscribers.AdminSubscriber) (domain.Subscriber, error)
}

type webhookParser interface {
	ParseWebhook(payload []byte, signature string) (domain.PaymentEvent, error)
}

type handlers struct {
	deals       dealsUsecase
	alerts      alertsUsecase
	reminders   remindersUsecase
	subscribers subscribersUsecase
	webhooks    webhookParser
	notify      func(ctx context.Context, text string)
	log         zerolog.Logger
	baseURL     string
	now         func() time.Time
}

func (h *handlers) routes(r chi.Router, cronSecret string, limiter *httpinfra.RateLimiter) {
	r.Group(func(public chi.Router) {
		if limiter != nil {
			public.Use(limiter.Middleware())
		}
		public.Get("/deals/{airport}", h.liveDeals)
		public.Get("/cached-deals/{airport}", h.cachedDeals)
		public.Post("/subscribers", h.signup)
		public.Post("/unsubscribe", h.unsubscribe)
		public.Post("/portal", h.portal)
		public.Get("/checkout", h.checkoutRedirect)
		public.Post("/checkout", h.checkout)
		public.Get("/checkout-callback", h.checkoutCallback)
	})

	r.Post("/webhooks/stripe", h.stripeWebhook)

	r.Group(func(cron chi.Router) {
		cron.Use(httpinfra.CronAuthMiddleware(cronSecret))
		cron.Get("/cron/fetch-deals", h.cronFetchDeals)
		cron.Post("/cron/fetch-deals", h.cronFetchDeals)
		cron.Get("/cron/send-alerts", h.cronSendAlerts)
		cron.Post("/cron/send-alerts", h.cronSendAlerts)
		cron.Get("/cron/trial-reminders", h.cronTrialReminders)
		cron.Post("/cron/trial-reminders", h.cronTrialReminders)
		cron.Get("/cron/curate-deals", h.cronCurateDeals)
		cron.Post("/cron/curate-deals", h.cronCurateDeals)
		cron.Get("/cron/expire-trials", h.cronExpireTrials)
		cron.Post("/cron/expire-trials", h.cronExpireTrials)
		cron.Get("/cron/nurture", h.cronNurture)
		cron.Post("/cron/nurture", h.cronNurture)
		cron.Post("/admin/subscribers", h.adminUpsert)
	})
}

type dealView struct {
	Destination string     `json:"destination"`
	City        string     `json:"city"`
	Country     string     `json:"country"`
	Price       float64    `json:"price"`
	Currency    string     `json:"currency"`
	DepartDate  *time.Time `json:"departDate,omitempty"`
	ReturnDate  *time.Time `json:"returnDate,omitempty"`
	Airline     string     `json:"airline,omitempty"`
	Stops       int        `json:"stops"`
	Duration    int        `json:"durationMinutes,omitempty"`
	BookingURL  string     `json:"bookingUrl,omitempty"`
	Savings     float64    `json:"savings"`
	FetchedAt   time.Time  `json:"fetchedAt"`
}

func viewDeals(in []domain.RawDeal) []dealView {
	out := make([]dealView, 0, len(in))
	for _, d := range in {
		out = append(out, dealView{
			Destination: d.DestinationCode,
			City:        d.DestinationCity,
			Country:     d.DestinationCountry,
			Price:       d.Price,
			Currency:    d.Currency,
			DepartDate:  d.DepartDate,
			ReturnDate:  d.ReturnDate,
			Airline:     d.Airline,
			Stops:       d.Stops,
			Duration:    d.DurationMinutes,
			BookingURL:  d.BookingURL,
			Savings:     domain.Savings(d),
			FetchedAt:   d.FetchedAt,
		})
	}
	return out
}

func (h *handlers) liveDeals(w http.ResponseWriter, r *http.Request) {
	h.serveDeals(w, r, deals.LiveDefaults, h.deals.Preview)
}

func (h *handlers) cachedDeals(w http.ResponseWriter, r *http.Request) {
	h.serveDeals(w, r, deals.CachedDefaults, h.deals.Cached)
}

func (h *handlers) serveDeals(w http.ResponseWriter, r *http.Request, defaults deals.FilterOptions,
	load func(context.Context, string, deals.FilterOptions) ([]domain.RawDeal, error)) {
	airport := chi.URLParam(r, "airport")
	if !domain.IsAirportSupported(airport) {
		writeUnsupportedAirport(w, airport)
		return
	}
	opts, err := deals.ParseFilterOptions(r.URL.Query(), defaults)
	if err != nil {
		httpinfra.WriteDomainError(w, err)
		return
	}
	found, err := load(r.Context(), airport, opts)
	if err != nil {
		h.log.Error().Err(err).Str("airport", airport).Msg("api: не удалось получить сделки")
		httpinfra.WriteDomainError(w, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"airport": domain.NormalizeAirport(airport),
		"filters": opts,
		"count":   len(found),
		"deals":   viewDeals(found),
	})
}

func writeUnsupportedAirport(w http.ResponseWriter, airport string) {
	httpinfra.WriteJSON(w, http.StatusBadRequest, map[string]any{
		"success":           false,
		"error":             domain.UnsupportedAirportError(airport).Error(),
		"supportedAirports": domain.SupportedAirports(),
	})
}

func (h *handlers) signup(w http.ResponseWriter, r *http.Request) {
	var req subscribers.SignupRequest
	if err := httpinfra.DecodeJSON(r, &req); err != nil {
		httpinfra.WriteDomainError(w, err)
		return
	}
	res, err := h.subscribers.Signup(r.Context(), req)
	if res.AlreadyExists {
		httpinfra.WriteJSON(w, http.StatusConflict, map[string]any{
			"success":       false,
			"alreadyExists": true,
			"error":         "this email is already subscribed",
		})
		return
	}
	if err != nil {
		if domain.KindOf(err) == domain.KindUnsupportedAirport {
			writeUnsupportedCity(w, err)
			return
		}
		h.writeFailure(w, "signup", err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"reactivated":  res.Reactivated,
		"subscriberId": res.Subscriber.ID,
		"airport":      res.Subscriber.HomeAirport,
		"trialEndsAt":  res.Subscriber.TrialEndsAt,
	})
}

func writeUnsupportedCity(w http.ResponseWriter, err error) {
	cities := make([]string, 0, len(domain.SupportedAirports()))
	for _, code := range domain.SupportedAirports() {
		if a, ok := domain.LookupAirport(code); ok {
			cities = append(cities, a.CitySlug)
		}
	}
	httpinfra.WriteJSON(w, http.StatusBadRequest, map[string]any{
		"success":         false,
		"error":           err.Error(),
		"supportedCities": cities,
	})
}

type tokenRequest struct {
	Email string `json:"email"`
	Token string `json:"token"`
}

func (h *handlers) unsubscribe(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := httpinfra.DecodeJSON(r, &req); err != nil {
		httpinfra.WriteDomainError(w, err)
		return
	}
	if err := h.subscribers.Unsubscribe(r.Context(), req.Email, req.Token); err != nil {
		h.writeFailure(w, "unsubscribe", err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *handlers) portal(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := httpinfra.DecodeJSON(r, &req); err != nil {
		httpinfra.WriteDomainError(w, err)
		return
	}
	link, err := h.subscribers.PortalURL(r.Context(), req.Email, req.Token)
	if err != nil {
		h.writeFailure(w, "portal", err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "url": link})
}

func (h *handlers) checkout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := httpinfra.DecodeJSON(r, &req); err != nil {
		httpinfra.WriteDomainError(w, err)
		return
	}
	link, err := h.subscribers.StartCheckout(r.Context(), req.Email)
	if err != nil {
		h.writeFailure(w, "checkout", err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "url": link})
}

// checkoutRedirect обслуживает ссылки из писем.
func (h *handlers) checkoutRedirect(w http.ResponseWriter, r *http.Request) {
	link, err := h.subscribers.StartCheckout(r.Context(), r.URL.Query().Get("email"))
	if err != nil {
		h.log.Warn().Err(err).Msg("api: checkout из письма не создан")
		http.Redirect(w, r, h.baseURL+"/pricing", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, link, http.StatusSeeOther)
}

func (h *handlers) checkoutCallback(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		httpinfra.WriteDomainError(w, domain.ValidationError("session_id is required", nil))
		return
	}
	sub, err := h.subscribers.CompleteCheckout(r.Context(), sessionID)
	if err != nil {
		h.log.Error().Err(err).Str("session", sessionID).Msg("api: не удалось завершить оплату")
		http.Redirect(w, r, h.baseURL+"/pricing?checkout=failed", http.StatusSeeOther)
		return
	}
	target := h.baseURL + "/success?email=" + url.QueryEscape(sub.Email)
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (h *handlers) stripeWebhook(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<16))
	if err != nil {
		httpinfra.WriteDomainError(w, domain.ValidationError("failed to read body", err))
		return
	}
	ev, err := h.webhooks.ParseWebhook(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		h.writeFailure(w, "stripe webhook", err)
		return
	}
	if err := h.subscribers.HandlePaymentEvent(r.Context(), ev); err != nil {
		h.writeFailure(w, "stripe webhook", err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, map[string]any{"received": true})
}

func (h *handlers) adminUpsert(w http.ResponseWriter, r *http.Request) {
	var req subscribers.AdminSubscriber
	if err := httpinfra.DecodeJSON(r, &req); err != nil {
		httpinfra.WriteDomainError(w, err)
		return
	}
	sub, err := h.subscribers.AdminUpsert(r.Context(), req)
	if err != nil {
		h.writeFailure(w, "admin upsert", err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"subscriberId": sub.ID,
		"status":       sub.Status,
		"plan":         sub.Plan,
		"frequency":    sub.Frequency,
	})
}

func (h *handlers) writeFailure(w http.ResponseWriter, op string, err error) {
	if httpinfra.StatusFor(err) >= http.StatusInternalServerError {
		h.log.Error().Err(err).Str("op", op).Msg("api: ошибка обработки запроса")
	}
	httpinfra.WriteDomainError(w, err)
}

// cronRun измеряет запуск, пишет метрики и при сбоях сообщает в служебный чат.
// run возвращает тело ответа, признак частичных сбоев и ошибку, помешавшую запуску.
func (h *handlers) cronRun(w http.ResponseWriter, r *http.Request, job string, run func(ctx context.Context) (map[string]any, bool, error)) {
	start := h.now()
	body, partial, err := run(r.Context())
	metrics.ObserveCronRun(job, start, err)
	elapsed := h.now().Sub(start).Milliseconds()

	if err != nil {
		h.log.Error().Err(err).Str("job", job).Msg("api: cron завершился ошибкой")
		h.notify(r.Context(), fmt.Sprintf("cron %s failed: %v", job, err))
		httpinfra.WriteJSON(w, httpinfra.StatusFor(err), map[string]any{
			"success":    false,
			"durationMs": elapsed,
			"error":      err.Error(),
		})
		return
	}
	if partial {
		h.notify(r.Context(), fmt.Sprintf("cron %s finished with failures", job))
	}
	if body == nil {
		body = map[string]any{}
	}
	body["success"] = true
	body["durationMs"] = elapsed
	h.log.Info().Str("job", job).Int64("duration_ms", elapsed).Bool("partial", partial).Msg("api: cron выполнен")
	httpinfra.WriteJSON(w, http.StatusOK, body)
}

func (h *handlers) cronFetchDeals(w http.ResponseWriter, r *http.Request) {
	h.cronRun(w, r, "fetch_deals", func(ctx context.Context) (map[string]any, bool, error) {
		report := h.deals.FetchAll(ctx, nil)
		return map[string]any{"summary": report.Summary, "details": report.Details}, report.Failed(), nil
	})
}

func (h *handlers) cronSendAlerts(w http.ResponseWriter, r *http.Request) {
	airport := r.URL.Query().Get("airport")
	if airport != "" && !domain.IsAirportSupported(airport) {
		writeUnsupportedAirport(w, airport)
		return
	}
	opts := alerts.OptionsFor(h.now())
	if raw := r.URL.Query().Get("frequency"); raw != "" {
		freqs, err := alerts.ParseFrequencies(raw)
		if err != nil {
			httpinfra.WriteDomainError(w, err)
			return
		}
		opts.Frequencies = freqs
	}
	h.cronRun(w, r, "send_alerts", func(ctx context.Context) (map[string]any, bool, error) {
		var report alerts.Report
		if airport == "" {
			report = h.alerts.SendAllAlerts(ctx, opts)
		} else {
			code := domain.NormalizeAirport(airport)
			res, err := h.alerts.SendAlertsForAirport(ctx, code, opts)
			item := alerts.AirportResult{Airport: code, Result: res}
			if err != nil {
				item.Error = err.Error()
			}
			report = alerts.Report{Airports: []alerts.AirportResult{item}, Totals: res}
		}
		partial := report.Totals.Failed > 0
		for _, a := range report.Airports {
			if a.Error != "" {
				partial = true
			}
		}
		return map[string]any{"airports": report.Airports, "totals": report.Totals}, partial, nil
	})
}

func (h *handlers) cronTrialReminders(w http.ResponseWriter, r *http.Request) {
	h.cronRun(w, r, "trial_reminders", func(ctx context.Context) (map[string]any, bool, error) {
		res, err := h.reminders.TrialReminders(ctx, h.now())
		if err != nil {
			return nil, false, err
		}
		return map[string]any{"checked": res.Checked, "sent": res.Sent, "failed": res.Failed}, res.Failed > 0, nil
	})
}

func (h *handlers) cronCurateDeals(w http.ResponseWriter, r *http.Request) {
	airport := r.URL.Query().Get("airport")
	if airport != "" && !domain.IsAirportSupported(airport) {
		writeUnsupportedAirport(w, airport)
		return
	}
	h.cronRun(w, r, "curate_deals", func(ctx context.Context) (map[string]any, bool, error) {
		report, err := h.deals.CurateAirport(ctx, airport, 0)
		if err != nil {
			return nil, false, err
		}
		return map[string]any{"report": report}, report.Errors > 0, nil
	})
}

func (h *handlers) cronExpireTrials(w http.ResponseWriter, r *http.Request) {
	h.cronRun(w, r, "expire_trials", func(ctx context.Context) (map[string]any, bool, error) {
		n, err := h.reminders.ExpireTrials(ctx, h.now())
		if err != nil {
			return nil, false, err
		}
		return map[string]any{"expired": n}, false, nil
	})
}

func (h *handlers) cronNurture(w http.ResponseWriter, r *http.Request) {
	h.cronRun(w, r, "nurture", func(ctx context.Context) (map[string]any, bool, error) {
		res, err := h.reminders.SendNurture(ctx, h.now())
		if err != nil {
			return nil, false, err
		}
		return map[string]any{"checked": res.Checked, "sent": res.Sent, "failed": res.Failed}, res.Failed > 0, nil
	})
}
