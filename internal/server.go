package internal

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"itam-api/internal/auth"
	"itam-api/internal/config"
	"itam-api/internal/handlers"
	"itam-api/internal/models"
	"itam-api/internal/storage"
	"itam-api/internal/support"
	"itam-api/internal/validation"
)

//go:embed openapi
var openapiFS embed.FS

// Role sets allowed to write each group of resources.
var (
	inventoryWriters  = []string{models.RoleOrgAdmin, models.RoleAssetManager}
	purchasingWriters = []string{models.RoleOrgAdmin, models.RoleAssetManager, models.RoleFinance}
	serviceWriters    = []string{models.RoleOrgAdmin, models.RoleAssetManager, models.RoleTechnician}
)

type Server struct {
	DB         *sql.DB
	Pool       *pgxpool.Pool
	Router     *chi.Mux
	JWTManager *auth.JWTManager
	Metrics    *Metrics
	Log        *zap.Logger
	Validator  *validation.Validator
	Store      storage.ObjectStore
	Limiter    auth.LoginLimiter
	Support    *support.Client
	Config     *config.Config

	closers []func() error
}

// Deps are the collaborators a Server is assembled from.
type Deps struct {
	DB      *sql.DB
	Pool    *pgxpool.Pool
	Logger  *zap.Logger
	Store   storage.ObjectStore
	Limiter auth.LoginLimiter
}

// NewServer connects to Postgres, object storage and (optionally) Redis,
// then builds the router.
func NewServer(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Server, error) {
	if cfg.DatabaseDSN == "" {
		return nil, errors.New("DB_DSN is required")
	}

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("database ping: %w", err)
	}

	// The importer streams rows through pgx directly.
	pool, err := pgxpool.New(ctx, cfg.DatabaseDSN)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create pgxpool: %w", err)
	}

	store, err := storage.New(cfg.Storage)
	if err != nil {
		pool.Close()
		db.Close()
		return nil, err
	}

	var limiter auth.LoginLimiter = auth.NopLimiter{}
	var closers []func() error
	if cfg.RedisAddr != "" {
		client, err := auth.NewRedisClient(pingCtx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			pool.Close()
			db.Close()
			return nil, err
		}
		limiter = auth.NewLockout(auth.NewRedisCounter(client), cfg.MaxLoginAttempts, cfg.LockoutDuration)
		closers = append(closers, client.Close)
	} else {
		log.Warn("REDIS_ADDR not set, login lockout disabled")
	}

	s, err := New(cfg, Deps{DB: db, Pool: pool, Logger: log, Store: store, Limiter: limiter})
	if err != nil {
		pool.Close()
		db.Close()
		return nil, err
	}
	s.closers = closers
	return s, nil
}

// New assembles a server from already opened dependencies.
func New(cfg *config.Config, deps Deps) (*Server, error) {
	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTExpiry)
	if err := jwtManager.ValidateConfig(); err != nil {
		return nil, fmt.Errorf("jwt configuration: %w", err)
	}

	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	limiter := deps.Limiter
	if limiter == nil {
		limiter = auth.NopLimiter{}
	}

	s := &Server{
		DB:         deps.DB,
		Pool:       deps.Pool,
		Router:     chi.NewRouter(),
		JWTManager: jwtManager,
		Metrics:    NewMetrics(),
		Log:        log,
		Validator:  validation.New(),
		Store:      deps.Store,
		Limiter:    limiter,
		Support:    support.NewClient(cfg.TodoistBaseURL, cfg.TodoistAPIToken, cfg.TodoistProjectID),
		Config:     cfg,
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	r := s.Router

	r.Use(requestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.Log))
	r.Use(middleware.Recoverer)
	r.Use(cors.New(cors.Options{
		AllowedOrigins: s.Config.CORSAllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", RequestIDHeader},
		ExposedHeaders: []string{RequestIDHeader, "X-Token-Expires-At", "X-Token-Expires-In"},
		MaxAge:         300,
	}).Handler)

	if os.Getenv("ENABLE_METRICS") == "true" {
		r.Use(s.Metrics.Middleware())
		r.Get("/metrics", s.Metrics.Handler().ServeHTTP)
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/dbping", s.dbPing)
	r.Post("/auth/login", s.loginUser)
	r.Post("/auth/signup", s.signup)
	s.mountDocs(r)
	s.mountFiles(r)

	r.Group(func(r chi.Router) {
		r.Use(auth.AuthMiddleware(s.JWTManager))
		r.Use(s.withRLSSession)
		s.mountProtectedRoutes(r)
	})
}

func (s *Server) dbPing(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.DB.PingContext(ctx); err != nil {
		writeError(w, http.StatusServiceUnavailable, "DB_UNAVAILABLE", "database unreachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"db": "ok"})
}

// Close releases the database pools and any cache clients.
func (s *Server) Close() error {
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c())
	}
	if s.Pool != nil {
		s.Pool.Close()
	}
	if s.DB != nil {
		errs = append(errs, s.DB.Close())
	}
	return errors.Join(errs...)
}

// withRLSSession pins a per-request connection scoped to the caller's org.
func (s *Server) withRLSSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, ctx, err := withDBConn(r.Context(), s.DB, auth.OrgIDFromContext(r.Context()))
		if err != nil {
			s.Log.Error("acquire rls connection", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "INTERNAL", "Internal server error")
			return
		}
		if conn != nil {
			defer conn.Close()
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// mountFiles serves locally stored QR images at /files/.
func (s *Server) mountFiles(r chi.Router) {
	local, ok := s.Store.(*storage.LocalStore)
	if !ok {
		return
	}
	fs := http.StripPrefix("/files/", http.FileServer(http.Dir(local.Root())))
	r.Get("/files/*", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Cache-Control", "no-cache")
		fs.ServeHTTP(w, req)
	})
}

// mountDocs serves the OpenAPI document and a Swagger UI page when ENABLE_SWAGGER=true.
func (s *Server) mountDocs(r chi.Router) {
	if os.Getenv("ENABLE_SWAGGER") != "true" {
		return
	}

	r.Get("/openapi.yaml", func(w http.ResponseWriter, _ *http.Request) {
		data, err := openapiFS.ReadFile("openapi/openapi.yaml")
		if err != nil {
			writeError(w, http.StatusInternalServerError, "INTERNAL", "Failed to read OpenAPI spec")
			return
		}
		w.Header().Set("Content-Type", "application/x-yaml")
		_, _ = w.Write(data)
	})

	r.Get("/docs", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(docsPage))
	})
}

const docsPage = `<!doctype html>
<html lang="en">
<head>
    <meta charset="utf-8">
    <title>ITAM API - Documentation</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5.9.0/swagger-ui.css">
</head>
<body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5.9.0/swagger-ui-bundle.js"></script>
    <script>
        window.onload = function() {
            window.ui = SwaggerUIBundle({ url: '/openapi.yaml', dom_id: '#swagger-ui', deepLinking: true });
        };
    </script>
</body>
</html>`

func (s *Server) mountProtectedRoutes(r chi.Router) {
	inventory := auth.MustRole(inventoryWriters...)
	purchasing := auth.MustRole(purchasingWriters...)
	service := auth.MustRole(serviceWriters...)
	admin := auth.MustRole(models.RoleOrgAdmin)

	// Self-service
	r.Post("/auth/logout", s.logout)
	r.Get("/auth/profile", s.getUserProfile)
	r.Put("/auth/profile", s.updateUserProfile)
	r.Put("/auth/change-password", s.changePassword)

	r.Route("/users", func(r chi.Router) {
		r.Use(admin)
		r.Get("/", s.listUsers)
		r.Post("/", s.createUser)
		r.Get("/{id}", s.getUser)
		r.Put("/{id}", s.updateUser)
		r.Delete("/{id}", s.deleteUser)
	})

	r.Route("/organizations", func(r chi.Router) {
		r.Use(admin)
		r.Get("/", s.listOrganizations)
		r.Post("/", s.createOrganization)
		r.Get("/{id}", s.getOrganization)
		r.Get("/{id}/stats", s.getOrganizationStats)
		r.Put("/{id}", s.updateOrganization)
		r.Delete("/{id}", s.deleteOrganization)
	})

	r.Route("/departments", func(r chi.Router) {
		r.Get("/", s.listDepartments)
		r.Get("/{id}", s.getDepartment)
		r.With(inventory).Post("/", s.createDepartment)
		r.With(inventory).Put("/{id}", s.updateDepartment)
		r.With(inventory).Delete("/{id}", s.deleteDepartment)
	})

	r.Route("/people", func(r chi.Router) {
		r.Get("/", s.listPeople)
		r.Get("/managers", s.listManagers)
		r.Get("/{id}", s.getPerson)
		r.With(inventory).Post("/", s.createPerson)
		r.With(inventory).Put("/{id}", s.updatePerson)
		r.With(inventory).Delete("/{id}", s.deactivatePerson)
	})

	for _, lt := range lookupTables {
		r.Route(lt.path, func(r chi.Router) {
			r.Get("/", s.listLookups(lt))
			r.Get("/{id}", s.getLookup(lt))
			r.With(inventory).Post("/", s.createLookup(lt))
			r.With(inventory).Put("/{id}", s.updateLookup(lt))
			r.With(inventory).Delete("/{id}", s.deleteLookup(lt))
		})
	}

	r.Route("/asset-models", func(r chi.Router) {
		r.Get("/", s.listAssetModels)
		r.Get("/{id}", s.getAssetModel)
		r.With(inventory).Post("/", s.createAssetModel)
		r.With(inventory).Put("/{id}", s.updateAssetModel)
		r.With(inventory).Delete("/{id}", s.deleteAssetModel)
	})

	r.Route("/assets", func(r chi.Router) {
		r.Get("/", s.listAssets)
		r.Get("/export", s.exportAssets)
		r.Get("/by-tag/{tag}", s.getAssetByTag)
		r.Post("/scan", s.scanAsset)
		r.Get("/{id}", s.getAsset)
		r.Get("/{id}/qr.png", s.renderAssetQR)
		r.Get("/{id}/assignments", s.listAssetAssignments)
		r.With(inventory).Post("/", s.createAsset)
		r.With(inventory).Put("/{id}", s.updateAsset)
		r.With(inventory).Delete("/{id}", s.deleteAsset)
		r.With(inventory).Post("/{id}/qr", s.regenerateAssetQR)
		r.With(service).Post("/{id}/assignments", s.assignAsset)
		r.With(service).Post("/{id}/return", s.returnAsset)
	})

	importsHandler := handlers.NewImportsHandler(s.Pool, s.Log)
	r.With(inventory).Post("/imports/excel", importsHandler.UploadExcel)

	r.Route("/software", func(r chi.Router) {
		r.Get("/", s.listSoftware)
		r.Get("/{id}", s.getSoftware)
		r.Get("/{id}/assignments", s.listSoftwareAssignments)
		r.With(inventory).Post("/", s.createSoftware)
		r.With(inventory).Put("/{id}", s.updateSoftware)
		r.With(inventory).Delete("/{id}", s.deleteSoftware)
		r.With(inventory).Post("/{id}/licenses", s.addLicenses)
		r.With(inventory).Post("/{id}/assignments", s.assignLicense)
		r.With(inventory).Delete("/{id}/assignments/{assignmentID}", s.revokeLicense)
	})

	r.Route("/purchase-orders", func(r chi.Router) {
		r.Get("/", s.listPurchaseOrders)
		r.Get("/{id}", s.getPurchaseOrder)
		r.With(purchasing).Post("/", s.createPurchaseOrder)
		r.With(purchasing).Put("/{id}", s.updatePurchaseOrder)
		r.With(purchasing).Delete("/{id}", s.deletePurchaseOrder)
		r.With(purchasing).Post("/{id}/lines", s.addPurchaseOrderLine)
		r.With(purchasing).Post("/{id}/receive", s.receivePurchaseOrder)
		r.With(purchasing).Post("/{id}/cancel", s.cancelPurchaseOrder)
	})

	r.Route("/tickets", func(r chi.Router) {
		r.Get("/", s.listTickets)
		r.Get("/{id}", s.getTicket)
		r.Get("/{id}/updates", s.listTicketUpdates)
		r.With(service).Post("/", s.createTicket)
		r.With(service).Put("/{id}", s.updateTicket)
		r.With(service).Delete("/{id}", s.deleteTicket)
		r.With(service).Post("/{id}/updates", s.addTicketUpdate)
	})

	r.Route("/warranties", func(r chi.Router) {
		r.Get("/", s.listWarranties)
		r.Get("/{id}", s.getWarranty)
		r.With(inventory).Post("/", s.createWarranty)
		r.With(inventory).Put("/{id}", s.updateWarranty)
		r.With(inventory).Delete("/{id}", s.deleteWarranty)
	})

	r.Get("/security/roles", s.listRoles)
	r.Post("/support/tickets", s.createSupportTicket)
	r.Get("/dashboard", s.getDashboard)
}
