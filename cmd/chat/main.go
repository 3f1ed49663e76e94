// Command chat is a terminal client for the CharacterChat backend. It wires
// the message pipeline to the backend's REST API and relay endpoint: pick a
// character, type a line, watch the reply stream in.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"characterchat-backend/internal/characters"
	"characterchat-backend/internal/models"
	"characterchat-backend/internal/pipeline"
)

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "backend base URL")
	token := flag.String("token", os.Getenv("CHAT_TOKEN"), "session token (defaults to CHAT_TOKEN)")
	flag.Parse()

	if *token == "" {
		log.Fatal("FATAL: No session token. Pass -token or set CHAT_TOKEN.")
	}

	ctx := context.Background()
	apiStore := pipeline.NewAPIStore(*baseURL, *token)
	relay := pipeline.NewRelayClient(*baseURL, *token)

	p := pipeline.New(apiStore, relay, func(message string) {
		fmt.Fprintf(os.Stderr, "\n! %s\n", message)
	})
	guard := pipeline.NewProfileGuard(apiStore)
	threads := pipeline.NewThreads(apiStore, p)

	if err := guard.Ensure(ctx); err != nil {
		log.Fatalf("FATAL: %v", err)
	}
	if err := threads.Load(ctx); err != nil {
		log.Fatalf("FATAL: %v", err)
	}

	if threads.Selected() == "" {
		available := threads.AvailableCharacters()
		fmt.Println("Pick a character:")
		for i, c := range available {
			fmt.Printf("  %d) %s\n", i+1, c.Title)
		}
		var choice int
		fmt.Print("> ")
		if _, err := fmt.Scanln(&choice); err != nil || choice < 1 || choice > len(available) {
			log.Fatal("FATAL: Invalid choice.")
		}
		if _, err := threads.StartFromCharacter(ctx, available[choice-1]); err != nil {
			log.Fatalf("FATAL: %v", err)
		}
	}

	threadID := threads.Selected()
	var title, prompt string
	for _, t := range threads.List() {
		if t.ID.String() == threadID {
			title = t.Title
			break
		}
	}
	prompt = characters.PromptForTitle(title)

	// Print streamed assistant content as it grows.
	var printed int
	unsubscribe := p.State().Subscribe(func(tid string, messages []models.Message) {
		if tid != threadID || len(messages) == 0 {
			return
		}
		last := messages[len(messages)-1]
		if last.Role != models.RoleAssistant || last.Status != models.StatusStreaming {
			return
		}
		if len(last.Content) > printed {
			fmt.Print(last.Content[printed:])
			printed = len(last.Content)
		}
	})
	defer unsubscribe()

	fmt.Printf("Chatting with %s. Ctrl-D to quit.\n", title)
	for _, m := range p.Messages(threadID) {
		fmt.Printf("%s: %s\n", m.Role, m.Content)
	}

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("\nyou: ")
		if !scanner.Scan() {
			break
		}
		input := scanner.Text()
		if strings.TrimSpace(input) == "" {
			continue
		}
		printed = 0
		fmt.Printf("%s: ", title)
		p.SendMessage(ctx, input, threadID, prompt)
		fmt.Println()
	}
}
