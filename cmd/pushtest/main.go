// pushtest sends a test notification from the command line, either to every device of a user
// or to a single registration given as -platform and -payload.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"splan/backend/internal/config"
	"splan/backend/internal/db"
	devicedomain "splan/backend/internal/device/domain"
	devicerepo "splan/backend/internal/device/repository"
	"splan/backend/internal/logging"
	"splan/backend/internal/notify"
	"splan/backend/internal/notify/fcm"
	"splan/backend/internal/notify/telegram"
	"splan/backend/internal/notify/webpush"
	userrepo "splan/backend/internal/user/repository"
)

func main() {
	username := flag.String("user", "", "Send to all devices of this username")
	platform := flag.String("platform", "", "Single target platform: FCM, WP or TG")
	payload := flag.String("payload", "", "Single target payload (FCM token, subscription JSON or chat id)")
	title := flag.String("title", "Test notification", "Notification title")
	body := flag.String("body", "Push delivery is working.", "Notification body")
	timeout := flag.Duration("timeout", 30*time.Second, "Overall timeout")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log := logging.New(cfg.LogLevel, cfg.Env)

	if (*username == "") == (*platform == "") {
		fmt.Fprintln(os.Stderr, "pushtest: set exactly one of -user or -platform/-payload")
		flag.Usage()
		os.Exit(2)
	}
	if cfg.DatabaseURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		fmt.Fprintln(os.Stderr, "db:", err)
		os.Exit(1)
	}
	defer conn.Close()

	var senders notify.Senders
	if cfg.FCMCredentialsFile != "" {
		client, err := fcm.NewFromFile(ctx, cfg.FCMCredentialsFile, cfg.FCMProjectID)
		if err != nil {
			fmt.Fprintln(os.Stderr, "fcm:", err)
			os.Exit(1)
		}
		senders.FCM = client
	}
	if cfg.VAPIDPublicKey != "" {
		senders.WebPush = webpush.New(cfg.VAPIDSubject, cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey)
	}
	if cfg.TelegramBotToken != "" {
		telegram.SetLogger(log, cfg.TelegramBotToken)
		client, err := telegram.New(cfg.TelegramBotToken, telegram.DefaultPollTimeout)
		if err != nil {
			fmt.Fprintln(os.Stderr, "telegram:", err)
			os.Exit(1)
		}
		senders.Telegram = client
	}

	devices := devicerepo.NewSQLRepository(conn)
	dispatcher, err := notify.NewDispatcher(senders, devices, log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "dispatcher:", err)
		os.Exit(1)
	}

	if *platform != "" {
		if err := dispatcher.Send(ctx, devicedomain.Platform(*platform), *payload, *title, *body); err != nil {
			fmt.Fprintln(os.Stderr, "send:", err)
			os.Exit(1)
		}
		fmt.Println("delivered")
		return
	}

	u, err := userrepo.NewSQLRepository(conn).GetByUsername(ctx, *username)
	if err != nil {
		fmt.Fprintln(os.Stderr, "user lookup:", err)
		os.Exit(1)
	}
	if u == nil {
		fmt.Fprintf(os.Stderr, "pushtest: unknown user %q\n", *username)
		os.Exit(1)
	}
	list, err := devices.ListByUser(ctx, u.ID)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list devices:", err)
		os.Exit(1)
	}
	report := dispatcher.SendBulk(ctx, list, *title, *body)
	fmt.Printf("attempted %d, delivered %d, pruned %d\n", report.Attempted, report.Delivered, report.Pruned)
	for _, f := range report.Failures {
		fmt.Printf("  %s (%s): %v\n", f.DeviceID, f.Platform, f.Err)
	}
	if report.AllFailed() {
		os.Exit(1)
	}
}
