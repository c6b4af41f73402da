package http

import (
	"database/sql"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"lifevault/internal/handlers"
	"lifevault/internal/indexer"
	"lifevault/internal/service"
	"lifevault/internal/storage"
	"lifevault/internal/vault"
)

// Deps holds dependencies for the HTTP router.
type Deps struct {
	DB      *sql.DB
	Manager *vault.Manager
	Indexer *indexer.Indexer

	Captures     *service.CaptureService
	Entries      *service.EntryService
	Tasks        *service.TaskService
	Conflicts    *service.ConflictService
	Goals        *service.GoalService
	Improvements *service.ImprovementService
	Ideas        *service.IdeaService
	Chats        *service.ChatService
	Search       *service.SearchService

	Runs     *storage.RunRepo
	Insights *storage.InsightRepo
}

// NewRouter creates a new HTTP router with the provided dependencies.
func NewRouter(deps *Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(LoggerMiddleware)
	r.Use(RequestLogger)
	r.Use(CORS)

	captureHandler := handlers.NewCaptureHandler(deps.Captures)
	entriesHandler := handlers.NewEntriesHandler(deps.Entries)
	tasksHandler := handlers.NewTasksHandler(deps.Tasks, deps.Runs)
	conflictsHandler := handlers.NewConflictsHandler(deps.Conflicts)
	goalsHandler := handlers.NewGoalsHandler(deps.Goals)
	improvementsHandler := handlers.NewImprovementsHandler(deps.Improvements)
	ideasHandler := handlers.NewIdeasHandler(deps.Ideas)
	chatsHandler := handlers.NewChatsHandler(deps.Chats)
	searchHandler := handlers.NewSearchHandler(deps.Search)
	adminHandler := handlers.NewAdminHandler(deps.Indexer, deps.Runs, deps.Insights)
	healthHandler := handlers.NewHealthHandler(deps.DB, deps.Manager)

	r.Route("/api", func(r chi.Router) {
		r.Method(http.MethodGet, "/health", healthHandler)
		r.Method(http.MethodPost, "/capture", captureHandler)
		r.Method(http.MethodGet, "/search", searchHandler)

		r.Route("/entries", func(r chi.Router) {
			r.Get("/", entriesHandler.List)
			r.Post("/process", entriesHandler.ProcessInbox)
			r.Get("/{id}", entriesHandler.Get)
			r.Post("/{id}/process", entriesHandler.Process)
		})

		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", tasksHandler.List)
			r.Get("/{id}", tasksHandler.Get)
			r.Get("/{id}/history", tasksHandler.History)
			r.Post("/{id}/complete", tasksHandler.Complete)
			r.Post("/{id}/quick-complete", tasksHandler.QuickComplete)
			r.Put("/{id}/project", tasksHandler.LinkProject)
			r.Delete("/{id}", tasksHandler.Delete)
		})

		r.Route("/conflicts", func(r chi.Router) {
			r.Get("/", conflictsHandler.List)
			r.Post("/detect", conflictsHandler.Detect)
			r.Get("/{id}", conflictsHandler.Get)
			r.Post("/{id}/resolve", conflictsHandler.Resolve)
		})

		r.Route("/goals", func(r chi.Router) {
			r.Get("/", goalsHandler.List)
			r.Get("/{id}", goalsHandler.Get)
		})
		r.Get("/dashboard", goalsHandler.Dashboard)
		r.Get("/reminders", goalsHandler.Reminders)

		r.Route("/improvements", func(r chi.Router) {
			r.Get("/", improvementsHandler.List)
			r.Post("/", improvementsHandler.Create)
			r.Get("/{id}", improvementsHandler.Get)
			r.Post("/{id}/status", improvementsHandler.UpdateStatus)
			r.Post("/{id}/nudge", improvementsHandler.Nudge)
		})

		r.Route("/ideas", func(r chi.Router) {
			r.Get("/", ideasHandler.List)
			r.Post("/", ideasHandler.Create)
			r.Get("/{id}", ideasHandler.Get)
			r.Get("/{id}/history", ideasHandler.History)
			r.Put("/{id}", ideasHandler.Update)
			r.Post("/{id}/convert", ideasHandler.Convert)
			r.Post("/{id}/link", ideasHandler.LinkEntry)
		})

		r.Route("/chats", func(r chi.Router) {
			r.Get("/", chatsHandler.List)
			r.Post("/", chatsHandler.Start)
			r.Get("/{id}", chatsHandler.Get)
			r.Post("/{id}/messages", chatsHandler.Send)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/rebuild", adminHandler.Rebuild)
			r.Get("/runs", adminHandler.ListRuns)
			r.Get("/runs/{id}", adminHandler.GetRun)
			r.Get("/insights", adminHandler.ListInsights)
		})
	})

	return r
}
