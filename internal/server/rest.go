package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/goevery/callwatch/internal/broadcaster"
	"github.com/goevery/callwatch/internal/handler"
	"github.com/goevery/callwatch/internal/ierr"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

type APIKeyAuthenticator interface {
	AuthenticateAPIKey(apiKey string) error
}

type StatsProvider interface {
	ConnectionStats() broadcaster.Stats
}

// RESTServer is the ingress used by the rest of the application to push
// events and read connection statistics.
type RESTServer struct {
	logger *zap.Logger

	notifyHandler handler.NotifyHandlerInterface
	authenticator APIKeyAuthenticator
	stats         StatsProvider
}

func NewRESTServer(
	logger *zap.Logger,
	notifyHandler handler.NotifyHandlerInterface,
	authenticator APIKeyAuthenticator,
	stats StatsProvider,
) *RESTServer {
	return &RESTServer{
		logger,
		notifyHandler,
		authenticator,
		stats,
	}
}

func (s *RESTServer) Register(router *mux.Router) {
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)

	api := router.NewRoute().Subrouter()
	api.Use(s.requireAPIKey)

	api.HandleFunc("/notify/{target:user|channel|role|agent}", s.handleNotify).
		Methods(http.MethodPost)
	api.HandleFunc("/stats", s.handleStats).
		Methods(http.MethodGet)
}

func (s *RESTServer) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing api key")
			return
		}

		if err := s.authenticator.AuthenticateAPIKey(apiKey); err != nil {
			writeError(w, http.StatusUnauthorized, "invalid api key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *RESTServer) handleNotify(w http.ResponseWriter, r *http.Request) {
	var notifyRequest handler.NotifyRequest
	err := json.NewDecoder(r.Body).Decode(&notifyRequest)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	notifyRequest.Target = mux.Vars(r)["target"]

	notifyResponse, err := s.notifyHandler.Handle(r.Context(), notifyRequest)
	if err != nil {
		if ierr.Is(err, ierr.ErrorCodeInvalidArgument) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		s.logger.Error("failed to handle notify request", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to handle notify request")
		return
	}

	writeJSON(w, http.StatusOK, notifyResponse)
}

func (s *RESTServer) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.stats.ConnectionStats())
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}
