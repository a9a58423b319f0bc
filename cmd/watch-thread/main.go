package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"feedbackhub/internal/delivery"
	"feedbackhub/internal/models"
	"feedbackhub/internal/widget"
)

func main() {
	// Parse command line flags
	serverURL := flag.String("server", "http://localhost:8080", "Feedbackhub server URL")
	apiKey := flag.String("api-key", "", "Project API key (follow as the visitor)")
	token := flag.String("token", "", "Operator session token (follow as the operator)")
	threadID := flag.String("thread", "", "Thread ID to follow")
	reply := flag.String("reply", "", "Post this reply before following")
	sender := flag.String("email", "", "Visitor email used for -reply with -api-key")
	identities := flag.String("identities", "", "JSON file remembering the visitor email per API key")
	poll := flag.Duration("poll", delivery.DefaultPollInterval, "Poll interval when the live channel is unavailable")
	noPush := flag.Bool("no-push", false, "Poll only, never open the live channel")
	flag.Parse()

	if *threadID == "" || (*apiKey == "") == (*token == "") {
		fmt.Println("Usage:")
		fmt.Println("  Follow as visitor:   watch-thread -api-key KEY -thread ID")
		fmt.Println("  Follow as operator:  watch-thread -token TOKEN -thread ID")
		fmt.Println("  Reply then follow:   watch-thread -api-key KEY -thread ID -reply 'text' -email a@b.com")
		fmt.Println("  Poll only:           watch-thread -token TOKEN -thread ID -no-push -poll 2s")
		os.Exit(1)
	}

	var httpOpts []delivery.HTTPOption
	if *noPush {
		httpOpts = append(httpOpts, delivery.WithoutPush())
	}

	var src *delivery.HTTPSource
	if *apiKey != "" {
		src = delivery.NewWidgetSource(*serverURL, *apiKey, httpOpts...)
	} else {
		src = delivery.NewOperatorSource(*serverURL, *token, httpOpts...)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	printed := make(map[string]bool)
	adapter := delivery.Open(ctx, src, *threadID,
		delivery.WithPollInterval(*poll),
		delivery.WithOnChange(func(view []models.Reply) {
			for _, r := range view {
				if printed[r.ID] {
					continue
				}
				printed[r.ID] = true
				fmt.Printf("[%s] %s: %s\n", r.CreatedAt.Local().Format(time.Kitchen), r.AuthorLabel, r.Body)
			}
		}),
		delivery.WithOnState(func(s delivery.State) {
			log.Printf("delivery: %s", s)
		}),
	)
	defer adapter.Close()

	if *reply != "" {
		identity := *sender
		if *apiKey != "" && *identities != "" {
			store := widget.NewFileIdentityStore(*identities)
			if identity != "" {
				if err := store.Set(*apiKey, identity); err != nil {
					log.Printf("Failed to remember email: %v", err)
				}
			} else if identity, _ = store.Get(*apiKey); identity == "" {
				log.Fatalf("%v: pass -email", widget.ErrIdentityRequired)
			}
		}
		if _, err := adapter.Send(ctx, *reply, identity); err != nil {
			log.Fatalf("Failed to post reply: %v", err)
		}
	}

	select {
	case <-ctx.Done():
	case <-adapter.Done():
		if err := adapter.Err(); err != nil {
			log.Fatalf("Stopped following thread: %v", err)
		}
	}
}
