package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/pairly/chat-app/internal/broker"
	"github.com/pairly/chat-app/internal/metrics"
	"github.com/pairly/chat-app/internal/protocol"
	"github.com/pairly/chat-app/internal/videocall"
	"github.com/pairly/chat-app/internal/ws"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("main: no .env file, using process environment")
	}

	config := ws.DefaultServerConfig()

	if addr := os.Getenv("LISTEN_ADDR"); addr != "" {
		config.ListenAddr = addr
	}
	if v := os.Getenv("WORKER_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.WorkerPoolSize = n
		}
	}
	if v := os.Getenv("MAX_CONNECTIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.MaxConnections = n
		}
	}
	if v := os.Getenv("READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.ReadTimeout = d
		}
	}
	if v := os.Getenv("WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.WriteTimeout = d
		}
	}

	redisAddr := "localhost:6379"
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		redisAddr = v
	}

	calls, err := videocall.NewStore(redisAddr)
	if err != nil {
		log.Fatalf("failed to connect to Redis: %v", err)
	}

	log.Printf("Pairly chat server starting")
	log.Printf("  listen_addr:     %s", config.ListenAddr)
	log.Printf("  worker_pool:     %d", config.WorkerPoolSize)
	log.Printf("  max_connections: %d", config.MaxConnections)
	log.Printf("  read_timeout:    %s", config.ReadTimeout)
	log.Printf("  write_timeout:   %s", config.WriteTimeout)
	log.Printf("  redis_addr:      %s", redisAddr)

	dispatcher := ws.NewMessageDispatcher(nil)
	server := ws.NewServer(config, dispatcher.Dispatch)
	dispatcher.SetServer(server)
	server.Handle("/metrics", metrics.Handler())

	controller := broker.NewController(
		broker.NewRegistry(),
		broker.NewPoolSet(),
		broker.NewPairTable(),
		calls,
		broker.NotifierFunc(server.SendMessage),
	)

	server.SetOnConnect(func(conn *ws.Connection) {
		controller.Connect(conn.ID, conn)
	})
	server.SetOnDisconnect(controller.Disconnect)

	// -----------------------------------------------------------------------
	// submit_preferences — (re-)enter matching with a fresh profile
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeSubmitPreferences, func(conn *ws.Connection, msg interface{}) {
		m, ok := msg.(protocol.SubmitPreferencesMsg)
		if !ok {
			return
		}
		controller.Register(conn.ID, broker.Profile{
			Gender:         m.Gender,
			SelectedGender: m.SelectedGender,
			Interest:       m.Interest,
			DisplayName:    m.DisplayName,
			Mode:           m.Mode,
		})
	})

	// -----------------------------------------------------------------------
	// send_message — relay text to the current partner
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeSendMessage, func(conn *ws.Connection, msg interface{}) {
		m, ok := msg.(protocol.SendMessageMsg)
		if !ok {
			return
		}
		controller.RelayChat(conn.ID, m.To, m.Text)
	})

	// -----------------------------------------------------------------------
	// WebRTC signaling — relay opaque payloads to the current partner
	// -----------------------------------------------------------------------
	for _, kind := range []string{protocol.TypeVideoOffer, protocol.TypeVideoAnswer, protocol.TypeIceCandidate} {
		kind := kind
		dispatcher.Register(kind, func(conn *ws.Connection, msg interface{}) {
			m, ok := msg.(protocol.SignalMsg)
			if !ok {
				return
			}
			controller.RelaySignal(conn.ID, m.To, kind, m.Payload)
		})
	}

	// -----------------------------------------------------------------------
	// skip / end_chat / end_call — pairing teardown variants
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeSkip, func(conn *ws.Connection, msg interface{}) {
		m, ok := msg.(protocol.SkipMsg)
		if !ok {
			return
		}
		controller.Skip(conn.ID, m.PartnerID, m.Mode)
	})

	dispatcher.Register(protocol.TypeEndChat, func(conn *ws.Connection, msg interface{}) {
		m, ok := msg.(protocol.EndChatMsg)
		if !ok {
			return
		}
		controller.EndSession(conn.ID, m.PartnerID, m.Mode)
	})

	dispatcher.Register(protocol.TypeEndCall, func(conn *ws.Connection, msg interface{}) {
		m, ok := msg.(protocol.EndCallMsg)
		if !ok {
			return
		}
		controller.EndCall(conn.ID, m.PartnerID)
	})

	ctx, cancel := context.WithCancel(context.Background())
	broker.StartReconciler(ctx, controller)

	go func() {
		if err := server.Start(); err != nil {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Wait for shutdown signal.
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Println("main: shutting down")
	cancel()
	if err := server.Shutdown(); err != nil {
		log.Printf("main: shutdown error: %v", err)
	}
	if err := calls.Close(); err != nil {
		log.Printf("main: redis close error: %v", err)
	}
}
