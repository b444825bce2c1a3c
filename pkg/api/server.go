// Package api serves read-only HTTP queries over the books.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/joripage/l2book/pkg/logging"
	"github.com/joripage/l2book/pkg/orderbook"
	"github.com/rs/cors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Config struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type Server struct {
	books   *orderbook.OrderBookManager
	router  *mux.Router
	httpSrv *http.Server
	logger  *zap.Logger
}

// NewServer builds the router. metrics, when not nil, is mounted at /metrics.
func NewServer(cfg Config, books *orderbook.OrderBookManager, metrics http.Handler, logger *zap.Logger) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	if logger == nil {
		logger = zap.L()
	}

	s := &Server{
		books:  books,
		router: mux.NewRouter(),
		logger: logger.Named("api"),
	}
	s.setupRoutes(metrics)

	c := cors.New(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	})
	s.httpSrv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           c.Handler(s.router),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

const requestIDHeader = "X-Request-ID"

func (s *Server) setupRoutes(metrics http.Handler) {
	s.router.Use(s.requestLogger)

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	if metrics != nil {
		s.router.Handle("/metrics", metrics).Methods(http.MethodGet)
	}

	books := s.router.PathPrefix("/books").Subrouter()
	books.HandleFunc("", s.handleListBooks).Methods(http.MethodGet)
	books.HandleFunc("/{symbol}/snapshot", s.handleSnapshot).Methods(http.MethodGet)
	books.HandleFunc("/{symbol}/{side}/depth", s.handleDepth).Methods(http.MethodGet)
	books.HandleFunc("/{symbol}/{side}/top", s.handleTop).Methods(http.MethodGet)
	books.HandleFunc("/{symbol}/{side}/levels", s.handleLevels).Methods(http.MethodGet)
	books.HandleFunc("/{symbol}/{side}/levels/{price}", s.handleLevelSize).Methods(http.MethodGet)
}

// requestLogger puts a request id (from X-Request-ID or a new uuid) and the server
// logger in the request context and logs each request through them.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := logging.WithRequestID(r.Context(), r.Header.Get(requestIDHeader))
		ctx = logging.WithLogger(ctx, s.logger)
		w.Header().Set(requestIDHeader, logging.RequestID(ctx))

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r.WithContext(ctx))

		logging.FromContext(ctx).Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server starting", zap.String("addr", s.httpSrv.Addr))
		errCh <- s.httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleListBooks(w http.ResponseWriter, r *http.Request) {
	symbols := s.books.Symbols()
	if symbols == nil {
		symbols = []string{}
	}
	respondJSON(w, BooksResponse{Symbols: symbols})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	book, ok := s.book(w, r)
	if !ok {
		return
	}
	levels, ok := levelsParam(w, r)
	if !ok {
		return
	}
	respondJSON(w, book.Snapshot(levels))
}

func (s *Server) handleDepth(w http.ResponseWriter, r *http.Request) {
	book, side, ok := s.bookSide(w, r)
	if !ok {
		return
	}
	respondJSON(w, DepthResponse{Symbol: book.Symbol(), Side: side, Depth: book.BookDepth(side)})
}

func (s *Server) handleTop(w http.ResponseWriter, r *http.Request) {
	book, side, ok := s.bookSide(w, r)
	if !ok {
		return
	}
	top := book.TopOfBook(side)
	respondJSON(w, TopResponse{Symbol: book.Symbol(), Side: side, Price: top, Empty: top.IsZero()})
}

func (s *Server) handleLevels(w http.ResponseWriter, r *http.Request) {
	book, side, ok := s.bookSide(w, r)
	if !ok {
		return
	}
	n, ok := levelsParam(w, r)
	if !ok {
		return
	}
	levels := book.Levels(side, n)
	if levels == nil {
		levels = []orderbook.Level{}
	}
	respondJSON(w, levels)
}

func (s *Server) handleLevelSize(w http.ResponseWriter, r *http.Request) {
	book, side, ok := s.bookSide(w, r)
	if !ok {
		return
	}
	price, err := decimal.NewFromString(mux.Vars(r)["price"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid price", err.Error())
		return
	}
	size, err := book.SizeForPriceLevel(side, price)
	if err != nil {
		logging.FromContext(r.Context()).Warn("price does not fit the book scale",
			zap.String("symbol", book.Symbol()), zap.Error(err))
		respondError(w, http.StatusBadRequest, "invalid price", err.Error())
		return
	}
	respondJSON(w, LevelResponse{Symbol: book.Symbol(), Side: side, Price: price, Quantity: size})
}

func (s *Server) book(w http.ResponseWriter, r *http.Request) (*orderbook.OrderBook, bool) {
	symbol := mux.Vars(r)["symbol"]
	book, ok := s.books.Lookup(symbol)
	if !ok {
		respondError(w, http.StatusNotFound, "book not found", symbol)
		return nil, false
	}
	return book, true
}

func (s *Server) bookSide(w http.ResponseWriter, r *http.Request) (*orderbook.OrderBook, orderbook.Side, bool) {
	side := orderbook.Side(strings.ToUpper(mux.Vars(r)["side"]))
	if !side.Valid() {
		respondError(w, http.StatusBadRequest, "invalid side", "side must be BID or ASK")
		return nil, "", false
	}
	book, ok := s.book(w, r)
	return book, side, ok
}

// levelsParam reads ?levels=n, 0 (all levels) when absent.
func levelsParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("levels")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		respondError(w, http.StatusBadRequest, "invalid levels", raw)
		return 0, false
	}
	return n, true
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, errMsg string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:   errMsg,
		Message: message,
	})
}
