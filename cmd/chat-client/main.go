package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"gochat/internal/client/conn"
	"gochat/internal/client/session"
	"gochat/internal/config"
)

func main() {
	userID := flag.String("user", "", "local user id")
	name := flag.String("name", "", "display name")
	token := flag.String("token", "", "optional identity token")
	flag.Parse()

	if *userID == "" {
		fmt.Fprintln(os.Stderr, "usage: chat-client -user <id> [-name <display name>] [-token <jwt>]")
		os.Exit(1)
	}
	if *name == "" {
		*name = *userID
	}

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}
	cfg := config.LoadConfig()

	sess := session.New(cfg.Client, conn.WebSocketTransport{}, *userID, *name, *token)
	sess.OnError(func(msg string) { fmt.Printf("\n! %s\n> ", msg) })
	if err := sess.Start(); err != nil {
		log.Fatalf("Failed to start session: %v", err)
	}
	defer sess.Stop()

	fmt.Printf("Connected as %s. Commands: /open <peer>, /msg <peer> <text>, /online, /peers, /list, /activity <label>, /quit\n", *userID)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		cmd, rest, _ := strings.Cut(line, " ")
		switch cmd {
		case "/quit":
			return

		case "/open":
			peer := strings.TrimSpace(rest)
			if peer == "" {
				fmt.Println("usage: /open <peer>")
				continue
			}
			msgs, err := sess.OpenConversation(context.Background(), peer)
			if err != nil {
				fmt.Printf("history unavailable: %v\n", err)
			}
			for _, m := range msgs {
				tag := ""
				if m.Pending {
					tag = " (sending)"
				}
				fmt.Printf("[%s] %s: %s%s\n", m.CreatedAt.Local().Format("15:04"), m.SenderID, m.Content, tag)
			}

		case "/msg":
			peer, text, ok := strings.Cut(strings.TrimSpace(rest), " ")
			if !ok {
				fmt.Println("usage: /msg <peer> <text>")
				continue
			}
			if err := sess.Send(context.Background(), peer, text); err != nil {
				fmt.Printf("send failed: %v\n", err)
			}

		case "/online":
			users, activities := sess.Online()
			for _, u := range users {
				if a := activities[u]; a != "" {
					fmt.Printf("%s (%s)\n", u, a)
				} else {
					fmt.Println(u)
				}
			}

		case "/peers":
			peers, err := sess.Peers(context.Background())
			if err != nil {
				fmt.Printf("peers unavailable: %v\n", err)
				continue
			}
			for _, p := range peers {
				fmt.Println(p)
			}

		case "/list":
			for _, s := range sess.Summaries() {
				unread := "?"
				if s.UnreadKnown {
					unread = fmt.Sprintf("%d", s.Unread)
				}
				fmt.Printf("%s [%s unread] %s: %s\n", s.Peer, unread, s.Last.SenderID, s.Last.Content)
			}

		case "/activity":
			sess.SetActivity(strings.TrimSpace(rest))

		default:
			fmt.Println("unknown command; try /open, /msg, /online, /peers, /list, /activity, /quit")
		}
	}
}
