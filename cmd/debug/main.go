package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"ffchat/internal/app"
	"ffchat/internal/bus"
	"ffchat/internal/client"
	"ffchat/internal/config"
	"ffchat/internal/logging"
	"ffchat/internal/notify"
	"ffchat/internal/persistence"
	"ffchat/internal/projection"
	"ffchat/internal/session"
)

func main() {
	if err := run(); err != nil {
		slog.Error("run debug tool", "error", err)
		os.Exit(1)
	}
}

func run() error {
	host := flag.String("host", "", "server host, e.g. chat.example.com")
	login := flag.String("login", "", "account login")
	password := flag.String("password", "", "account password")
	topic := flag.String("topic", "", "conversation to open after login")
	send := flag.String("send", "", "text message to send to the opened conversation")
	listenFor := flag.Duration("listen-for", 0, "listen duration, e.g. 30s")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	paths, err := app.ResolvePaths()
	if err != nil {
		return fmt.Errorf("resolve paths: %w", err)
	}
	cfg, err := config.Load(paths.ConfigFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if strings.TrimSpace(*host) != "" {
		cfg.Server.Host = strings.TrimSpace(*host)
	}
	if strings.TrimSpace(*login) != "" {
		cfg.Account.Login = strings.TrimSpace(*login)
		cfg.Account.Password = *password
	}
	if strings.TrimSpace(cfg.Server.Host) == "" {
		return fmt.Errorf("missing server host: set --host or save server host in config")
	}
	if strings.TrimSpace(cfg.Account.Login) == "" {
		return fmt.Errorf("missing login: set --login or save credentials in config")
	}

	logMgr := logging.NewManager()
	cfg.Logging.LogToFile = false
	if err := logMgr.Configure(cfg.Logging, paths.LogFile); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer func() {
		if closeErr := logMgr.Close(); closeErr != nil {
			slog.Warn("close log manager", "error", closeErr)
		}
	}()
	logger := logMgr.Logger("cli")
	logger.Info("starting ffchat debug", "version", app.BuildVersion(), "host", cfg.Server.Host)

	db, err := persistence.Open(ctx, paths.DBFile)
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			logger.Warn("close sqlite", "error", closeErr)
		}
	}()

	msgRepo := persistence.NewMessageRepo(db)
	receiptRepo := persistence.NewReceiptRepo(db)

	b := bus.New(logMgr.Logger("bus"))
	defer b.Close()

	writer := persistence.NewWriter(logMgr.Logger("persistence"), 256)
	writer.Start(ctx)

	registry := session.NewRegistry(logMgr.Logger("registry"), func() session.Connection {
		c := client.NewConn(logMgr.Logger("client"), client.Options{
			Host:      cfg.Server.Host,
			UseTLS:    cfg.Server.UseTLS,
			APIKey:    cfg.Server.APIKey,
			Locale:    cfg.Account.Locale,
			UserAgent: "ffchat-debug/" + app.BuildVersion(),
		})
		c.SetAutoLogin(cfg.Account.Login, cfg.Account.Password)
		go c.Run(ctx)

		return c
	})
	conn := registry.Conn()

	projector := projection.NewProjector(
		logMgr.Logger("projection"),
		b,
		conn.Directory(),
		msgRepo,
		receiptRepo,
		conn.MyID,
		cfg.Chat.MessageWindow,
	)

	chat := session.NewChat(
		logMgr.Logger("session"),
		registry, b, msgRepo, receiptRepo, writer, projector, cfg.Chat,
	)

	notifier := notify.NewService(
		b,
		conn.Directory(),
		func() config.AppConfig { return cfg },
		nil,
		notify.NewBeeepSender(logMgr.Logger("notify"), app.Name),
		logMgr.Logger("notify"),
	)
	notifier.Start(ctx)

	watch(ctx, b, logger)

	chat.Start(ctx)
	defer chat.Teardown()

	if strings.TrimSpace(*topic) != "" {
		if !chat.SelectTopic(strings.TrimSpace(*topic)) {
			return fmt.Errorf("cannot open topic %q", *topic)
		}
		if strings.TrimSpace(*send) != "" {
			if err := chat.SendText(*send); err != nil {
				return fmt.Errorf("send message: %w", err)
			}
		}
	}

	if *listenFor > 0 {
		logger.Info("listen mode", "duration", *listenFor)
		select {
		case <-ctx.Done():
		case <-time.After(*listenFor):
		}

		return nil
	}

	logger.Info("listening until interrupt")
	<-ctx.Done()

	return nil
}

func watch(ctx context.Context, b bus.MessageBus, logger *slog.Logger) {
	connSub := b.Subscribe(bus.EventConnectionChange)
	convSub := b.Subscribe(bus.EventConversationChange)
	msgSub := b.Subscribe(bus.EventMessageChange)
	typingSub := b.Subscribe(bus.EventTypingStatus)
	userSub := b.Subscribe(bus.EventSelectedUserChange)
	errSub := b.Subscribe(bus.EventSubscriptionError)

	go func() {
		for {
			select {
			case <-ctx.Done():
				b.Unsubscribe(connSub, bus.EventConnectionChange)
				b.Unsubscribe(convSub, bus.EventConversationChange)
				b.Unsubscribe(msgSub, bus.EventMessageChange)
				b.Unsubscribe(typingSub, bus.EventTypingStatus)
				b.Unsubscribe(userSub, bus.EventSelectedUserChange)
				b.Unsubscribe(errSub, bus.EventSubscriptionError)

				return
			case raw := <-connSub:
				if up, ok := raw.(bool); ok {
					logger.Info("connection", "online", up)
				}
			case raw := <-convSub:
				if list, ok := raw.([]projection.ConversationSummary); ok {
					logger.Info("conversations", "count", len(list))
					for i, conv := range list {
						if i >= 10 {
							logger.Info("conversations truncated", "remaining", len(list)-i)

							break
						}
						logger.Info("conversation", "topic", conv.Topic, "name", conv.Name,
							"unread", conv.Unread, "preview", conv.Preview)
					}
				}
			case raw := <-msgSub:
				if list, ok := raw.([]projection.MessageView); ok {
					logger.Info("messages", "count", len(list))
				}
			case raw := <-typingSub:
				if typing, ok := raw.(bool); ok {
					logger.Info("typing", "active", typing)
				}
			case raw := <-userSub:
				if view, ok := raw.(projection.SelectedUserView); ok {
					logger.Info("selected user", "name", view.Name, "online", view.Online)
				}
			case raw := <-errSub:
				if text, ok := raw.(string); ok {
					logger.Warn("subscription error", "error", text)
				}
			}
		}
	}()
}
