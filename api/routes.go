package api

import (
	"github.com/garnizeh/taosdlc/internal/config"
	"github.com/garnizeh/taosdlc/internal/content"
	"github.com/garnizeh/taosdlc/internal/workflow"
	"github.com/garnizeh/taosdlc/pkg/repository"
	"github.com/gorilla/mux"
)

// Deps carries what the handlers need. Jobs may be nil when AI generation is disabled.
type Deps struct {
	Service       *workflow.Service
	Users         repository.UserRepo
	Schemas       *content.Loader
	Jobs          repository.JobRepo
	AIMaxAttempts int
}

func SetupRoutes(cfg *config.Config, version, buildTime string, d Deps) *mux.Router {
	r := mux.NewRouter()

	// Middleware chain
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)
	r.Use(CORSMiddleware)
	r.Use(RecoveryMiddleware)

	// Create handlers
	systemHandler := &SystemHandler{}
	authHandler := NewAuthHandler(d.Users, cfg.JWTSecret, cfg.TokenDuration)
	projectsHandler := NewProjectsHandler(d.Service)
	phasesHandler := NewPhasesHandler(d.Service, d.Jobs, d.AIMaxAttempts)
	approvalsHandler := NewApprovalsHandler(d.Service)
	aiHandler := NewAIHandler(d.Service)

	// Open endpoints
	r.HandleFunc("/version", systemHandler.VersionHandler(version, buildTime)).Methods("GET")
	r.HandleFunc("/health", systemHandler.HealthHandler).Methods("GET")
	r.HandleFunc("/v1/auth/signup", authHandler.Signup).Methods("POST")
	r.HandleFunc("/v1/auth/signin", authHandler.Signin).Methods("POST")

	// API v1 Protected routes
	apiV1 := r.PathPrefix("/v1").Subrouter()
	apiV1.Use(JWTAuthMiddlewareWithSecret(cfg.JWTSecret))

	// Auth endpoints
	authV1 := apiV1.PathPrefix("/auth").Subrouter()
	authV1.HandleFunc("/signout", authHandler.Signout).Methods("POST")
	apiV1.HandleFunc("/users/me", authHandler.Me).Methods("GET")
	apiV1.HandleFunc("/users/{id:[0-9]+}", authHandler.DeleteUser).Methods("DELETE")

	// Projects
	apiV1.HandleFunc("/projects", projectsHandler.CreateProject).Methods("POST")
	apiV1.HandleFunc("/projects", projectsHandler.ListProjects).Methods("GET")
	apiV1.HandleFunc("/projects/{id:[0-9]+}", projectsHandler.GetProject).Methods("GET")
	apiV1.HandleFunc("/projects/{id:[0-9]+}", projectsHandler.DeleteProject).Methods("DELETE")
	apiV1.HandleFunc("/projects/{id:[0-9]+}/overview", projectsHandler.Overview).Methods("GET")
	apiV1.HandleFunc("/projects/{id:[0-9]+}/phases", projectsHandler.ListPhases).Methods("GET")
	apiV1.HandleFunc("/projects/{id:[0-9]+}/stakeholders", projectsHandler.ListStakeholders).Methods("GET")
	apiV1.HandleFunc("/projects/{id:[0-9]+}/stakeholders", projectsHandler.AddStakeholder).Methods("POST")
	apiV1.HandleFunc("/projects/{id:[0-9]+}/stakeholders/{userId:[0-9]+}/{role}", projectsHandler.RemoveStakeholder).Methods("DELETE")

	// Phases
	apiV1.HandleFunc("/phases/{id:[0-9]+}", phasesHandler.GetPhase).Methods("GET")
	apiV1.HandleFunc("/phases/{id:[0-9]+}", phasesHandler.UpdatePhase).Methods("PUT")
	apiV1.HandleFunc("/phases/{id:[0-9]+}/transitions", phasesHandler.Transition).Methods("POST")
	apiV1.HandleFunc("/phases/{id:[0-9]+}/history", phasesHandler.History).Methods("GET")
	apiV1.HandleFunc("/phases/{id:[0-9]+}/outcome", phasesHandler.Outcome).Methods("GET")
	apiV1.HandleFunc("/phases/{id:[0-9]+}/generate", phasesHandler.Generate).Methods("POST")

	// Approvals
	apiV1.HandleFunc("/approvals/phase/{phaseId:[0-9]+}", approvalsHandler.ListByPhase).Methods("GET")
	apiV1.HandleFunc("/approvals/phase/{phaseId:[0-9]+}", approvalsHandler.Request).Methods("POST")
	apiV1.HandleFunc("/approvals/pending/{userId:[0-9]+}", approvalsHandler.Pending).Methods("GET")
	apiV1.HandleFunc("/approvals/{id:[0-9]+}", approvalsHandler.Decide).Methods("PUT")

	// AI interactions
	apiV1.HandleFunc("/ai/interactions", aiHandler.CreateInteraction).Methods("POST")
	apiV1.HandleFunc("/ai/interactions/phase/{phaseId:[0-9]+}", aiHandler.ListByPhase).Methods("GET")
	apiV1.HandleFunc("/ai/interactions/{id:[0-9]+}/accept", aiHandler.Accept).Methods("POST")

	// Phase schemas
	if d.Schemas != nil {
		schemasHandler := NewSchemasHandler(d.Schemas)
		apiV1.HandleFunc("/schemas", schemasHandler.ListSchemas).Methods("GET")
		apiV1.HandleFunc("/schemas/reload", schemasHandler.ReloadSchemas).Methods("POST")
		apiV1.HandleFunc("/schemas/{phaseNumber:[0-9]+}", schemasHandler.PutSchema).Methods("PUT")
		apiV1.HandleFunc("/schemas/{phaseNumber:[0-9]+}", schemasHandler.DeleteSchema).Methods("DELETE")
	}

	return r
}
