package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ktsuji/budgetscan/internal/types"
	cfgPkg "github.com/ktsuji/budgetscan/pkg/config"
	"github.com/ktsuji/budgetscan/pkg/extractor"
	"github.com/ktsuji/budgetscan/pkg/mirror"
	"github.com/ktsuji/budgetscan/pkg/pipeline"
	"github.com/ktsuji/budgetscan/pkg/source"
	"github.com/ktsuji/budgetscan/pkg/store"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Be careful with this in production
	},
}

// Message is one frame on the progress socket. Clients send
// {"type":"run","content":"<source dir>"}; the server streams
// status, progress, summary and error frames back.
type Message struct {
	Type    string      `json:"type"`
	Content string      `json:"content"`
	Data    interface{} `json:"data,omitempty"`
}

// Server exposes the batch pipeline over a WebSocket: a connected
// client triggers a run and watches stage and document progress as
// it happens.
type Server struct {
	config *cfgPkg.Config
	logger *slog.Logger

	// one run at a time: the store is single-writer within a run
	runMu sync.Mutex

	// progress callbacks fire from worker goroutines; gorilla
	// connections allow a single writer
	writeMu sync.Mutex
}

func New(config *cfgPkg.Config) *Server {
	return &Server{
		config: config,
		logger: slog.Default().With("component", "server"),
	}
}

// Start serves the WebSocket endpoint on /ws and a health check on
// /health until the listener fails.
func (s *Server) Start(addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	s.logger.Info("starting progress server", "addr", addr)
	return http.ListenAndServe(addr, mux)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			s.logger.Debug("connection closed", "err", err)
			break
		}

		switch msg.Type {
		case "run":
			s.handleRun(conn, msg.Content)
		default:
			s.sendMessage(conn, "error", fmt.Sprintf("unknown message type %q", msg.Type))
		}
	}
}

func (s *Server) handleRun(conn *websocket.Conn, sourceDir string) {
	if sourceDir == "" {
		s.sendMessage(conn, "error", "run requires a source directory")
		return
	}

	if !s.runMu.TryLock() {
		s.sendMessage(conn, "error", "a run is already in progress")
		return
	}
	defer s.runMu.Unlock()

	s.sendMessage(conn, "status", fmt.Sprintf("Processing %s", sourceDir))

	src := source.NewWithConfig(source.SourceConfig{
		OnProgress: func(name string) {
			s.sendMessage(conn, "progress", fmt.Sprintf("Read %s", name))
		},
	})

	ext, err := extractor.NewWithConfig(extractor.ExtractorConfig{
		BaseURL:     s.config.LLM.BaseURL,
		Token:       s.config.LLM.Token,
		Model:       s.config.LLM.Model,
		Temperature: s.config.LLM.Temperature,
		MaxTokens:   s.config.LLM.MaxTokens,
		RateLimit:   s.config.LLM.RateLimit,
		MaxAttempts: s.config.Pipeline.MaxAttempts,
		RetryDelay:  time.Duration(s.config.Pipeline.RetryDelayMS) * time.Millisecond,
		CallTimeout: time.Duration(s.config.Pipeline.CallTimeoutSec) * time.Second,
	})
	if err != nil {
		s.sendMessage(conn, "error", fmt.Sprintf("Failed to initialize extractor: %v", err))
		return
	}

	recordStore, err := store.NewWithConfig(store.StoreConfig{
		ConnString:       s.config.Database.URL,
		MunicipalityID:   s.config.Database.MunicipalityID,
		MunicipalityName: s.config.Database.MunicipalityName,
	})
	if err != nil {
		s.sendMessage(conn, "error", fmt.Sprintf("Failed to initialize store: %v", err))
		return
	}
	defer recordStore.Close()

	var workspaceMirror types.WorkspaceMirror
	if s.config.Notion.Token != "" && s.config.Notion.DatabaseID != "" {
		m, err := mirror.NewWithConfig(mirror.MirrorConfig{Token: s.config.Notion.Token}, recordStore)
		if err != nil {
			s.sendMessage(conn, "error", fmt.Sprintf("Failed to initialize mirror: %v", err))
			return
		}
		workspaceMirror = m
	}

	p, err := pipeline.New(pipeline.PipelineConfig{
		SourceDir:        sourceDir,
		OutputDir:        s.config.Pipeline.OutputDir,
		Workers:          s.config.Pipeline.Workers,
		MirrorDatabaseID: s.config.Notion.DatabaseID,
		OnStage: func(stage pipeline.Stage) {
			s.sendMessage(conn, "stage", stage.String())
		},
		OnProgress: func(stage pipeline.Stage, done, total int) {
			s.sendMessage(conn, "progress",
				fmt.Sprintf("%s %d/%d", stage, done, total))
		},
	}, src, ext, recordStore, workspaceMirror)
	if err != nil {
		s.sendMessage(conn, "error", fmt.Sprintf("Failed to initialize pipeline: %v", err))
		return
	}
	defer p.Release()

	result, err := p.Run(context.Background())
	if err != nil {
		s.sendMessage(conn, "error", fmt.Sprintf("Run failed: %v", err))
		return
	}

	s.send(conn, Message{Type: "summary", Content: "run complete", Data: result})
}

func (s *Server) sendMessage(conn *websocket.Conn, msgType string, content string) {
	s.send(conn, Message{Type: msgType, Content: content})
}

func (s *Server) send(conn *websocket.Conn, msg Message) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := conn.WriteJSON(msg); err != nil {
		s.logger.Error("error sending message", "err", err)
	}
}
