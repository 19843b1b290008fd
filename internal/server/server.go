package server

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/larderapp/larder/internal/billing"
	"github.com/larderapp/larder/internal/email"
	"github.com/larderapp/larder/internal/entitlement"
	"github.com/larderapp/larder/internal/handler"
	"github.com/larderapp/larder/internal/middleware"
	"github.com/larderapp/larder/internal/model"
	"github.com/larderapp/larder/internal/push"
	"github.com/larderapp/larder/internal/reconcile"
	"github.com/larderapp/larder/internal/roster"
	"github.com/larderapp/larder/internal/store"
	ws "github.com/larderapp/larder/internal/websocket"
)

type Server struct {
	db  *sql.DB
	hub *ws.Hub

	authH        *handler.AuthHandler
	householdH   *handler.HouseholdHandler
	itemH        *handler.ItemHandler
	shoppingH    *handler.ShoppingHandler
	suggestH     *handler.SuggestHandler
	wasteH       *handler.WasteHandler
	noticeH      *handler.NoticeHandler
	entitlementH *handler.EntitlementHandler
	pushH        *handler.PushHandler
	webhookH     *handler.WebhookHandler

	sessionStore   *store.SessionStore
	authCodeStore  *store.AuthCodeStore
	householdStore *store.HouseholdStore
	pushStore      *store.PushStore

	resolver    *entitlement.Resolver
	rateLimiter *middleware.RateLimiter
	pushService *push.Service
	logger      *slog.Logger
}

func New(db *sql.DB, emailClient *email.Client, billingClient *billing.Client, pushSvc *push.Service, secureCookies bool, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))

	userStore := store.NewUserStore(db)
	profileStore := store.NewProfileStore(db)
	subscriptionStore := store.NewSubscriptionStore(db)
	householdStore := store.NewHouseholdStore(db)
	sessionStore := store.NewSessionStore(db)
	authCodeStore := store.NewAuthCodeStore(db)
	itemStore := store.NewItemStore(db)
	shoppingStore := store.NewShoppingStore(db)
	noticeStore := store.NewNoticeStore(db)
	pushStore := store.NewPushStore(db)

	resolver := entitlement.NewResolver(subscriptionStore, householdStore, logger.With("component", "entitlement"))
	loader := roster.NewLoader(householdStore, profileStore, resolver, logger.With("component", "roster"))
	reconciler := reconcile.NewReconciler(householdStore, profileStore, noticeStore, store.DeactivateNewestFirst, logger.With("component", "reconcile"))

	// A confirmed premium-to-free transition kicks off reconciliation.
	// Each notice the run produces fans out over websocket and push.
	reconciler.OnNotice(func(n *model.DowngradeNotice) {
		hub.BroadcastUser(n.UserID, ws.NoticeEvent(n.ID, n.HouseholdName))
		deliverPush(pushStore, pushSvc, n.UserID, push.DowngradePayload(n), logger)
	})
	householdH := handler.NewHouseholdHandler(householdStore, profileStore, sessionStore, userStore, loader, resolver, reconciler, hub, emailClient, logger.With("component", "household"))
	householdH.OnInvite(func(userID int64, householdName string) {
		hub.BroadcastUser(userID, ws.InviteEvent(householdName))
		deliverPush(pushStore, pushSvc, userID, push.InvitePayload(householdName), logger)
	})

	resolver.OnDowngrade(func(userID int64) {
		if _, err := reconciler.Run(userID); err != nil {
			logger.Error("reconcile after downgrade", "user_id", userID, "error", err)
			return
		}
		hub.BroadcastUser(userID, ws.EntitlementEvent(false))
	})

	var webhookH *handler.WebhookHandler
	if billingClient != nil {
		processor := billing.NewProcessor(subscriptionStore, logger.With("component", "billing"), func(userID int64) {
			if _, err := resolver.Refresh(userID, true); err != nil {
				logger.Error("refresh after webhook", "user_id", userID, "error", err)
			}
		})
		webhookH = handler.NewWebhookHandler(billingClient, processor, logger.With("component", "webhook"))
	}

	return &Server{
		db:  db,
		hub: hub,

		authH:        handler.NewAuthHandler(userStore, profileStore, sessionStore, authCodeStore, loader, resolver, emailClient, secureCookies, logger.With("component", "auth")),
		householdH:   householdH,
		itemH:        handler.NewItemHandler(itemStore, resolver, hub, logger.With("component", "item")),
		shoppingH:    handler.NewShoppingHandler(shoppingStore, hub, logger.With("component", "shopping")),
		suggestH:     handler.NewSuggestHandler(itemStore, shoppingStore, logger.With("component", "suggest")),
		wasteH:       handler.NewWasteHandler(itemStore, logger.With("component", "waste")),
		noticeH:      handler.NewNoticeHandler(noticeStore, logger.With("component", "notice")),
		entitlementH: handler.NewEntitlementHandler(userStore, subscriptionStore, resolver, billingClient, logger.With("component", "entitlement_handler")),
		pushH:        handler.NewPushHandler(pushStore, pushSvc, logger.With("component", "push_handler")),
		webhookH:     webhookH,

		sessionStore:   sessionStore,
		authCodeStore:  authCodeStore,
		householdStore: householdStore,
		pushStore:      pushStore,

		resolver:    resolver,
		rateLimiter: middleware.NewRateLimiter(),
		pushService: pushSvc,
		logger:      logger,
	}
}

// deliverPush sends a notification to every device the user registered.
// Endpoints the push service reports gone are removed.
func deliverPush(pushStore *store.PushStore, svc *push.Service, userID int64, payload push.Payload, logger *slog.Logger) {
	if svc == nil || !svc.Configured() {
		return
	}
	subs, err := pushStore.ListForUser(userID)
	if err != nil {
		logger.Error("list push subscriptions", "user_id", userID, "error", err)
		return
	}
	for i := range subs {
		err := svc.Send(&subs[i], payload)
		if errors.Is(err, push.ErrExpired) {
			if err := pushStore.DeleteByEndpoint(subs[i].Endpoint); err != nil {
				logger.Error("remove expired push subscription", "error", err)
			}
			continue
		}
		if err != nil {
			logger.Warn("push delivery failed", "user_id", userID, "error", err)
		}
	}
}

// Resolver exposes the entitlement resolver for background loops.
func (s *Server) Resolver() *entitlement.Resolver {
	return s.resolver
}

// SessionStore returns the session store for cleanup tasks.
func (s *Server) SessionStore() *store.SessionStore {
	return s.sessionStore
}

// AuthCodeStore returns the auth code store for cleanup tasks.
func (s *Server) AuthCodeStore() *store.AuthCodeStore {
	return s.authCodeStore
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes (no auth required)
	outerMux.HandleFunc("POST /api/auth/request-code", s.rateLimitedHandler(s.authH.RequestCode))
	outerMux.HandleFunc("POST /api/auth/verify", s.rateLimitedHandler(s.authH.VerifyCode))
	outerMux.HandleFunc("GET /health", s.healthHandler)
	if s.webhookH != nil {
		outerMux.HandleFunc("POST /api/webhooks/stripe", s.webhookH.Stripe)
	}

	// Protected routes — wrapped with RequireAuth middleware
	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	authMiddleware := middleware.RequireAuth(s.sessionStore, s.householdStore)
	outerMux.Handle("/", authMiddleware(protectedMux))

	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	keyFunc := func(r *http.Request) string {
		return middleware.RealIP(r)
	}
	rl := middleware.RateLimit(s.rateLimiter, keyFunc, 10, time.Minute)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(http.HandlerFunc(h)).ServeHTTP(w, r)
	}
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	// Session + onboarding
	mux.HandleFunc("GET /api/me", s.authH.Me)
	mux.HandleFunc("POST /api/onboarding", s.authH.CompleteOnboarding)
	mux.HandleFunc("POST /api/logout", s.authH.Logout)

	// Households
	mux.HandleFunc("GET /api/households", s.householdH.List)
	mux.HandleFunc("POST /api/households", s.householdH.Create)
	mux.HandleFunc("POST /api/households/join", s.householdH.Join)
	mux.HandleFunc("POST /api/households/{id}/invite", s.householdH.Invite)
	mux.HandleFunc("POST /api/households/{id}/switch", s.householdH.Switch)
	mux.HandleFunc("POST /api/households/{id}/leave", s.householdH.Leave)
	mux.HandleFunc("POST /api/households/{id}/transfer", s.householdH.Transfer)
	mux.HandleFunc("PUT /api/households/{id}/settings", s.householdH.UpdateSettings)
	mux.HandleFunc("GET /api/households/{id}/members", s.householdH.Members)
	mux.HandleFunc("POST /api/households/{id}/members/reactivate", s.householdH.Reactivate)
	mux.HandleFunc("POST /api/households/{id}/members/remove", s.householdH.RemoveMember)
	mux.HandleFunc("GET /api/households/{id}/downgrade-status", s.householdH.DowngradeStatus)

	// Pantry items
	mux.HandleFunc("POST /api/items", s.itemH.Create)
	mux.HandleFunc("GET /api/items", s.itemH.List)
	mux.HandleFunc("PUT /api/items/{id}", s.itemH.Update)
	mux.HandleFunc("POST /api/items/{id}/dispose", s.itemH.Dispose)
	mux.HandleFunc("DELETE /api/items/{id}", s.itemH.Delete)

	// Shopping list
	mux.HandleFunc("POST /api/shopping", s.shoppingH.Create)
	mux.HandleFunc("GET /api/shopping", s.shoppingH.List)
	mux.HandleFunc("POST /api/shopping/{id}/check", s.shoppingH.Toggle)
	mux.HandleFunc("DELETE /api/shopping/{id}", s.shoppingH.Delete)
	mux.HandleFunc("POST /api/shopping/clear-checked", s.shoppingH.ClearChecked)

	// Insights
	mux.HandleFunc("GET /api/suggestions", s.suggestH.List)
	mux.HandleFunc("GET /api/waste-report", s.wasteH.Report)

	// Notices
	mux.HandleFunc("GET /api/notices", s.noticeH.List)
	mux.HandleFunc("DELETE /api/notices/{id}", s.noticeH.Dismiss)

	// Entitlement + billing
	mux.HandleFunc("GET /api/entitlement", s.entitlementH.Status)
	mux.HandleFunc("POST /api/entitlement/refresh", s.entitlementH.Refresh)
	mux.HandleFunc("POST /api/entitlement/trial", s.entitlementH.StartTrial)
	mux.HandleFunc("POST /api/billing/checkout", s.entitlementH.Checkout)
	mux.HandleFunc("POST /api/billing/portal", s.entitlementH.Portal)

	// Push notifications
	mux.HandleFunc("GET /api/push/vapid-key", s.pushH.VAPIDKey)
	mux.HandleFunc("POST /api/push/subscribe", s.pushH.Subscribe)
	mux.HandleFunc("DELETE /api/push/subscriptions/{id}", s.pushH.Unsubscribe)

	// WebSocket
	mux.HandleFunc("GET /ws", ws.Handler(s.hub, s.logger.With("component", "websocket")))
}
