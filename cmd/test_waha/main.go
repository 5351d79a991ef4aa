package main

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"hostel_app/internal/config"
	"hostel_app/internal/services"
)

// Sends one WhatsApp message through the configured WAHA instance
func main() {
	phone := pflag.String("phone", "", "Phone number (e.g. 919812345678)")
	msg := pflag.String("msg", "Test message from the hostel office", "Message body")
	pflag.Parse()

	if *phone == "" {
		log.Fatal("Please provide a phone number using --phone")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	service := services.NewWahaService(cfg.WahaBaseURL, cfg.WahaAPIKey)

	chatID := *phone
	if !strings.HasSuffix(chatID, "@c.us") {
		chatID += "@c.us"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	log.Printf("Sending message to %s: %s", chatID, *msg)
	if err := service.SendMessage(ctx, chatID, *msg); err != nil {
		log.Fatalf("Failed to send message: %v", err)
	}
	log.Println("Message sent successfully!")
}
