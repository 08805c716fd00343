// Package server exposes a captioned video over a small JSON API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/forPelevin/vidqa/internal/logging"
	"github.com/forPelevin/vidqa/internal/types"
	"github.com/forPelevin/vidqa/internal/usecase"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"
)

// HTTPError is returned by handlers to pick the response status.
type HTTPError struct {
	Code    int
	Message string
}

func (e HTTPError) Error() string { return fmt.Sprintf("%d %s", e.Code, e.Message) }

func badRequestf(format string, args ...any) HTTPError {
	return HTTPError{http.StatusBadRequest, fmt.Sprintf(format, args...)}
}

type handlerFunc func(w http.ResponseWriter, r *http.Request, p httprouter.Params) error

type Server struct {
	uc   usecase.Usecase
	caps []types.FrameCaption
	// k is the default number of frames used for search and answers.
	k   int
	log zerolog.Logger
}

func New(uc usecase.Usecase, caps []types.FrameCaption, k int) *Server {
	if k <= 0 {
		k = 5
	}
	return &Server{uc: uc, caps: caps, k: k, log: logging.WithComponent("server")}
}

func (s *Server) Handler() http.Handler {
	router := httprouter.New()
	s.handle(router, http.MethodGet, "/api/timeline", s.httpTimeline)
	s.handle(router, http.MethodPost, "/api/search", s.httpSearch)
	s.handle(router, http.MethodPost, "/api/mcq", s.httpMCQ)
	s.handle(router, http.MethodPost, "/api/ask", s.httpAsk)
	s.handle(router, http.MethodGet, "/api/frames/:index", s.httpFrame)
	router.NotFound = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sendError(w, "not found", http.StatusNotFound)
	})
	return router
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.log.Info().Str("addr", addr).Int("frames", len(s.caps)).Msg("listening")

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

// handle adds a route whose errors and panics become JSON error responses.
func (s *Server) handle(router *httprouter.Router, method, path string, h handlerFunc) {
	router.Handle(method, path, func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		defer func() {
			if rec := recover(); rec != nil {
				s.log.Error().Str("path", r.URL.Path).Interface("panic", rec).Str("stack", string(debug.Stack())).Msg("handler panic")
				sendError(w, "internal error", http.StatusInternalServerError)
			}
		}()
		err := h(w, r, p)
		if err == nil {
			return
		}
		var hErr HTTPError
		if errors.As(err, &hErr) {
			s.log.Info().Str("path", r.URL.Path).Int("code", hErr.Code).Msg(hErr.Message)
			sendError(w, hErr.Message, hErr.Code)
			return
		}
		s.log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		sendError(w, err.Error(), http.StatusBadGateway)
	})
}

func (s *Server) httpTimeline(w http.ResponseWriter, r *http.Request, _ httprouter.Params) error {
	sendJSON(w, usecase.Timeline(s.caps))
	return nil
}

type searchRequest struct {
	Query string `json:"query"`
	K     int    `json:"k"`
}

type searchHit struct {
	Index     int     `json:"index"`
	Timestamp float64 `json:"timestamp"`
	FramePath string  `json:"frame_path"`
	Captions  string  `json:"captions"`
}

func (s *Server) httpSearch(w http.ResponseWriter, r *http.Request, _ httprouter.Params) error {
	var req searchRequest
	if err := readJSON(w, r, &req); err != nil {
		return err
	}
	if strings.TrimSpace(req.Query) == "" {
		return badRequestf("query is required")
	}
	found, err := s.uc.KeyFrames(r.Context(), req.Query, s.caps, s.kOr(req.K))
	if err != nil {
		return err
	}
	hits := make([]searchHit, 0, len(found))
	for _, c := range found {
		hits = append(hits, searchHit{Index: s.indexOf(c), Timestamp: c.Timestamp, FramePath: c.FramePath, Captions: string(c.Captions)})
	}
	sendJSON(w, hits)
	return nil
}

type mcqRequest struct {
	Question string   `json:"question"`
	Choices  []string `json:"choices"`
	Strategy string   `json:"strategy"`
	K        int      `json:"k"`
}

func (s *Server) httpMCQ(w http.ResponseWriter, r *http.Request, _ httprouter.Params) error {
	var req mcqRequest
	if err := readJSON(w, r, &req); err != nil {
		return err
	}
	if strings.TrimSpace(req.Question) == "" {
		return badRequestf("question is required")
	}
	if len(req.Choices) < 2 {
		return badRequestf("at least two choices are required")
	}
	strategy := usecase.StrategyCaptions
	if req.Strategy != "" {
		st, err := usecase.ParseStrategy(req.Strategy)
		if err != nil {
			return badRequestf("%v", err)
		}
		strategy = st
	}
	q := types.Question{Question: req.Question, Choices: req.Choices, Gold: -1}
	res, err := s.uc.Answer(r.Context(), strategy, q, s.caps, s.kOr(req.K))
	if err != nil {
		return err
	}
	sendJSON(w, res)
	return nil
}

type askRequest struct {
	Question string `json:"question"`
	K        int    `json:"k"`
}

func (s *Server) httpAsk(w http.ResponseWriter, r *http.Request, _ httprouter.Params) error {
	var req askRequest
	if err := readJSON(w, r, &req); err != nil {
		return err
	}
	if strings.TrimSpace(req.Question) == "" {
		return badRequestf("question is required")
	}
	res, err := s.uc.AnswerOpen(r.Context(), req.Question, s.caps, s.kOr(req.K))
	if err != nil {
		return err
	}
	sendJSON(w, res)
	return nil
}

func (s *Server) httpFrame(w http.ResponseWriter, r *http.Request, p httprouter.Params) error {
	i, err := strconv.Atoi(p.ByName("index"))
	if err != nil {
		return badRequestf("invalid frame index %q", p.ByName("index"))
	}
	if i < 0 || i >= len(s.caps) {
		return HTTPError{http.StatusNotFound, fmt.Sprintf("frame %d not found", i)}
	}
	path := s.caps[i].FramePath
	if _, err := os.Stat(path); err != nil {
		return HTTPError{http.StatusNotFound, fmt.Sprintf("frame %d image is missing", i)}
	}
	w.Header().Set("Cache-Control", "max-age=3600")
	http.ServeFile(w, r, path)
	return nil
}

func (s *Server) kOr(k int) int {
	if k > 0 {
		return k
	}
	return s.k
}

func (s *Server) indexOf(c types.FrameCaption) int {
	for i, x := range s.caps {
		if x.FramePath == c.FramePath && x.Timestamp == c.Timestamp {
			return i
		}
	}
	return -1
}

const maxBodyBytes = 1 << 20

func readJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return badRequestf("invalid JSON body: %v", err)
	}
	return nil
}

func sendJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger := logging.WithComponent("server")
		logger.Warn().Err(err).Msg("write response")
	}
}

func sendError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
