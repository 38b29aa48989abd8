package httpx

import (
	"log/slog"
	"net/http"

	"github.com/Shillsphere/market-peak-pilot-sub000/internal/service"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Credentials *service.CredentialService
	Dispatch    *service.DispatchService
	Research    *service.ResearchService
	Logger      *slog.Logger
	// CompressionLevel enables gzip when > 0.
	CompressionLevel int
}

// NewRouter creates and configures the API router.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()

	credentialHandlers := &CredentialHandlers{Svc: services.Credentials}
	distributionHandlers := &DistributionHandlers{Svc: services.Dispatch}
	researchHandlers := &ResearchHandlers{Svc: services.Research}

	mux.HandleFunc("POST /api/credentials/{channel}", credentialHandlers.Save)
	mux.HandleFunc("GET /api/credentials/business/{businessID}", credentialHandlers.ListByBusiness)
	mux.HandleFunc("DELETE /api/credentials/{credentialID}", credentialHandlers.Delete)

	mux.HandleFunc("POST /api/distribute", distributionHandlers.Dispatch)
	mux.HandleFunc("GET /api/distribute/jobs/{jobID}", distributionHandlers.GetJob)

	mux.HandleFunc("POST /api/research", researchHandlers.Create)
	mux.HandleFunc("GET /api/research/{id}", researchHandlers.Get)
	mux.HandleFunc("GET /api/research/{id}/events", researchHandlers.Events)

	mux.Handle("GET /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("HEAD /healthz", http.HandlerFunc(healthHandler))

	var handler http.Handler = mux
	if services.CompressionLevel > 0 {
		handler = Compression(CompressionConfig{
			Level:  services.CompressionLevel,
			Logger: logger,
		})(handler)
	}
	handler = Recover(logger)(handler)
	handler = Logging(logger)(handler)
	return handler
}
