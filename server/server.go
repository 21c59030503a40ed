// Package server exposes chat sessions over a websocket, one session per
// connection.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/xhad/ayurchat/internal/logger"
	"github.com/xhad/ayurchat/internal/types"
	"github.com/xhad/ayurchat/pkg/chat"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // single-user local surface
	},
}

// Message types sent to clients.
const (
	TypeStatus   = "status"
	TypeStream   = "stream"
	TypeResponse = "response"
	TypeError    = "error"
)

type Message struct {
	Type    string      `json:"type"`
	Content string      `json:"content"`
	Data    interface{} `json:"data,omitempty"`
}

type Config struct {
	Addr         string
	Pipeline     types.Pipeline
	SafetySuffix string
	Timeout      time.Duration
	Streaming    bool
	Summary      string
	// WriteTimeout bounds each write to a client.
	WriteTimeout time.Duration
}

const DefaultWriteTimeout = 10 * time.Second

type WSServer struct {
	config Config
}

func NewWSServer(config Config) (*WSServer, error) {
	if config.Pipeline == nil {
		return nil, errors.New("server needs a pipeline")
	}
	if config.Addr == "" {
		config.Addr = ":8080"
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = DefaultWriteTimeout
	}

	return &WSServer{config: config}, nil
}

func (s *WSServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	return mux
}

// ListenAndServe serves until ctx is canceled.
func (s *WSServer) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting websocket server on %s", s.config.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server stopped: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// conn serializes writes to one websocket connection. A client that stops
// reading fails the write after writeTimeout instead of stalling the turn.
type conn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration
	mu           sync.Mutex
}

func (c *conn) send(msgType, content string, data interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	err := c.ws.WriteJSON(Message{Type: msgType, Content: content, Data: data})
	if err != nil {
		logger.Debug("error sending message: %v", err)
	}
	return err
}

func (s *WSServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed: %v", err)
		return
	}
	defer ws.Close()

	session, err := chat.NewSession(chat.SessionConfig{
		Pipeline:     s.config.Pipeline,
		SafetySuffix: s.config.SafetySuffix,
		Timeout:      s.config.Timeout,
	})
	if err != nil {
		logger.Error("failed to start session: %v", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()

	c := &conn{ws: ws, writeTimeout: s.config.WriteTimeout}
	c.send(TypeStatus, "ready", s.config.Summary)

	for {
		var msg Message
		if err := ws.ReadJSON(&msg); err != nil {
			var closeErr *websocket.CloseError
			if !errors.As(err, &closeErr) {
				logger.Debug("error reading message: %v", err)
			}
			return
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handleMessage(ctx, c, session, msg)
		}()
	}
}

func (s *WSServer) handleMessage(ctx context.Context, c *conn, session *chat.Session, msg Message) {
	var stream *chat.Stream
	forwarded := make(chan struct{})

	if s.config.Streaming {
		stream = chat.NewStream(16)
		go func() {
			defer close(forwarded)
			failed := false
			for tok := range stream.Tokens() {
				if failed {
					continue
				}
				if err := c.send(TypeStream, tok, nil); err != nil {
					failed = true
					stream.Stop()
				}
			}
		}()
	} else {
		close(forwarded)
	}

	reply, err := session.Submit(ctx, msg.Content, stream)
	<-forwarded

	if err != nil {
		c.send(TypeError, err.Error(), nil)
		return
	}
	c.send(TypeResponse, reply.Text, map[string]int{"turns": session.Transcript().Len()})
}
