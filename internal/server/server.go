// Package server exposes the loaded runtime over HTTP: tokenization,
// embedding lookups, a model report and Prometheus metrics.
package server

import (
	"io"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skarn-ml/skarn/internal/logger"
	"github.com/skarn-ml/skarn/internal/model"
)

type Server struct {
	rt  *model.Runtime
	log *logger.Logger
}

func New(rt *model.Runtime) *Server {
	return &Server{
		rt:  rt,
		log: logger.Log.With("server"),
	}
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/healthz", s.handleHealth)
	e.GET("/metrics", s.handleMetrics)
	e.GET("/v1/model", s.handleModel)
	e.POST("/v1/encode", s.handleEncode)
	e.POST("/v1/embed", s.handleEmbed)
}

type encodeRequest struct {
	Text string `json:"text"`
}

type encodeResponse struct {
	Tokens []int32 `json:"tokens"`
}

type embedRequest struct {
	Text   string  `json:"text,omitempty"`
	Tokens []int32 `json:"tokens,omitempty"`
}

type embedResponse struct {
	Dim        int         `json:"dim"`
	Embeddings [][]float32 `json:"embeddings"`
}

type modelResponse struct {
	Dim              int    `json:"dim"`
	HiddenDim        int    `json:"hidden_dim"`
	Layers           int    `json:"layers"`
	Heads            int    `json:"heads"`
	KVHeads          int    `json:"kv_heads"`
	VocabSize        int    `json:"vocab_size"`
	SeqLen           int    `json:"seq_len"`
	SharedClassifier bool   `json:"shared_classifier"`
	Device           string `json:"device"`
}

func (s *Server) handleHealth(c *echo.Context) error {
	if !s.rt.Initialized() {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "loading"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMetrics(c *echo.Context) error {
	promhttp.Handler().ServeHTTP(c.Response(), c.Request())
	return nil
}

func (s *Server) handleModel(c *echo.Context) error {
	cfg := s.rt.Config()
	return c.JSON(http.StatusOK, modelResponse{
		Dim:              cfg.Dim,
		HiddenDim:        cfg.HiddenDim,
		Layers:           cfg.Layers,
		Heads:            cfg.Heads,
		KVHeads:          cfg.KVHeads,
		VocabSize:        cfg.VocabSize,
		SeqLen:           cfg.SeqLen,
		SharedClassifier: cfg.SharedClassifier,
		Device:           s.rt.Device().String(),
	})
}

func (s *Server) handleEncode(c *echo.Context) error {
	req, err := decodeJSON[encodeRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	if req.Text == "" {
		return writeBadRequest(c, "text is required")
	}

	tokens, err := s.rt.Encode(req.Text)
	if err != nil {
		return writeServerError(c, err)
	}
	return c.JSON(http.StatusOK, encodeResponse{Tokens: tokens})
}

func (s *Server) handleEmbed(c *echo.Context) error {
	req, err := decodeJSON[embedRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	if req.Text == "" && len(req.Tokens) == 0 {
		return writeBadRequest(c, "text or tokens is required")
	}
	if req.Text != "" && len(req.Tokens) > 0 {
		return writeBadRequest(c, "text and tokens are mutually exclusive")
	}

	tokens := req.Tokens
	if req.Text != "" {
		tokens, err = s.rt.Encode(req.Text)
		if err != nil {
			return writeServerError(c, err)
		}
	}
	if len(tokens) == 0 {
		return writeBadRequest(c, "input encodes to no tokens")
	}
	if len(tokens) > s.rt.Config().SeqLen {
		return writeBadRequest(c, "input exceeds model sequence length")
	}
	for _, tok := range tokens {
		if tok < 0 || int(tok) >= s.rt.Config().VocabSize {
			return writeBadRequest(c, "token id outside vocabulary")
		}
	}

	if err := s.rt.Forward(tokens, 0); err != nil {
		s.log.Error("embed forward failed", "tokens", len(tokens), "err", err)
		return writeServerError(c, err)
	}
	rows, err := s.rt.EmbeddingRows(len(tokens))
	if err != nil {
		return writeServerError(c, err)
	}
	return c.JSON(http.StatusOK, embedResponse{Dim: s.rt.Config().Dim, Embeddings: rows})
}

func decodeJSON[T any](r io.Reader) (T, error) {
	var v T
	err := json.NewDecoder(r).Decode(&v)
	return v, err
}

func writeBadRequest(c *echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, map[string]any{
		"error": map[string]string{"type": "invalid_request_error", "message": msg},
	})
}

func writeServerError(c *echo.Context, err error) error {
	return c.JSON(http.StatusInternalServerError, map[string]any{
		"error": map[string]string{"type": "server_error", "message": err.Error()},
	})
}
