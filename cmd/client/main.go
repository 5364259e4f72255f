// Command client is a terminal client for a deliberation room. It joins
// over WebSocket, prints the live feed, and exposes the room operations
// as slash commands.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/rikupokkuru/Framework-Design-for-Online-Deliberation-Platforms/internal/api"
	"github.com/rikupokkuru/Framework-Design-for-Online-Deliberation-Platforms/internal/domain"
	"github.com/rikupokkuru/Framework-Design-for-Online-Deliberation-Platforms/internal/realtime"
	"github.com/rikupokkuru/Framework-Design-for-Online-Deliberation-Platforms/internal/view"
	"github.com/rikupokkuru/Framework-Design-for-Online-Deliberation-Platforms/pkg/log"
)

func main() {
	var (
		server   = flag.String("server", "ws://localhost:8080", "server base URL (ws:// or wss://)")
		httpBase = flag.String("http", "http://localhost:8080", "server base URL for HTTP endpoints")
		roomID   = flag.String("room", "", "room to join")
		username = flag.String("user", "", "participant name")
		level    = flag.String("log-level", "warn", "log level")
	)
	flag.Parse()

	if *roomID == "" || *username == "" {
		fmt.Fprintln(os.Stderr, "usage: client -room <room_id> -user <name> [-server ws://...]")
		os.Exit(1)
	}

	log.Init(log.Config{Level: *level, Pretty: true, ServiceName: "deliberation-client"})

	ctx := context.Background()
	room, err := realtime.Join(ctx, *server, *roomID, *username, realtime.Handlers{
		SystemMessage: func(content string) {
			fmt.Printf("\n[システム] %s\n", content)
		},
		Summary: func(content, excelURL string) {
			fmt.Printf("\n===== 議事録 =====\n%s\n", content)
			if excelURL != "" {
				fmt.Printf("ダウンロード: %s\n", excelURL)
			}
		},
		Participants: func(users []string) {
			fmt.Printf("\n[参加者] %s\n", strings.Join(view.Roster(users, *username), ", "))
		},
		SessionClosed: func(err error) {
			if err != nil {
				fmt.Fprintf(os.Stderr, "\nconnection lost: %v\n", err)
			}
			os.Exit(0)
		},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to join: %v\n", err)
		os.Exit(1)
	}
	defer room.Close()

	httpClient := api.NewClient(*httpBase)
	room.SetStance(domain.StanceOpinion)

	fmt.Printf("joined room %s as %s (stance: %s)\n", *roomID, *username, room.Stance())
	fmt.Println("commands: /stance /reply /react /delete /resolve /note /form /post /upload /finish /feed /who /quit")

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "/") {
			if err := room.SendMessage(line, nil); err != nil {
				fmt.Fprintf(os.Stderr, "send failed: %v\n", err)
			}
			continue
		}
		if line == "/quit" {
			return
		}
		runCommand(ctx, room, httpClient, line)
	}
}

func runCommand(ctx context.Context, room *realtime.Room, httpClient *api.Client, line string) {
	parts := strings.SplitN(line, " ", 3)
	cmd := parts[0]
	arg := func(i int) string {
		if i < len(parts) {
			return parts[i]
		}
		return ""
	}

	var err error
	switch cmd {
	case "/stance":
		room.SetStance(arg(1))
		fmt.Printf("stance: %s\n", room.Stance())

	case "/reply":
		err = room.SetReplyTarget(arg(1))

	case "/react":
		err = room.React(arg(1), arg(2))

	case "/delete":
		err = room.DeleteMessage(arg(1))

	case "/resolve":
		err = room.ResolveProposal(arg(1))

	case "/note":
		err = room.Note().SetText(strings.TrimPrefix(line, "/note "))

	case "/form":
		err = formCommand(room, arg(1), arg(2))

	case "/post":
		err = room.PostProposal(nil)

	case "/upload":
		err = upload(ctx, room, httpClient, arg(1))

	case "/finish":
		err = room.Finish()

	case "/feed":
		printFeed(room)

	case "/who":
		for _, user := range view.Roster(room.ParticipantList(), room.Username()) {
			fmt.Println(user)
		}

	default:
		fmt.Printf("unknown command: %s\n", cmd)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
	}
}

func formCommand(room *realtime.Room, sub, rest string) error {
	form := room.Form()
	switch sub {
	case "next":
		form.Navigate(1)
	case "prev":
		form.Navigate(-1)
	case "add":
		return form.Append()
	case "set":
		kv := strings.SplitN(rest, "=", 2)
		if len(kv) != 2 {
			return fmt.Errorf("usage: /form set <q1..q7>=<value>")
		}
		return form.SetField(kv[0], kv[1])
	case "show":
	default:
		return fmt.Errorf("usage: /form next|prev|add|set|show")
	}

	rec, pos := view.ProjectForm(form)
	fmt.Printf("proposal %d/%d\n", pos.Index, pos.Total)
	for _, key := range domain.FieldKeys {
		fmt.Printf("  %s: %s\n", key, rec.Get(key))
	}
	return nil
}

func upload(ctx context.Context, room *realtime.Room, httpClient *api.Client, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	result, err := httpClient.Upload(ctx, path, f)
	if err != nil {
		return err
	}
	return room.SendMessage("", &realtime.Attachment{
		FileURL:          result.FileURL,
		OriginalFilename: result.OriginalFilename,
		GeminiFileRef:    result.GeminiFileRef,
	})
}

func printFeed(room *realtime.Room) {
	for _, m := range view.ProjectFeed(room.Feed().Messages(), room.Username()) {
		status := ""
		if m.IsResolved {
			status = " [解決済み]"
		}
		fmt.Printf("%s <%s> [%s]%s %s\n", view.ShortID(m.MessageID), m.DisplayName, m.StanceLabel, status, m.Content)
		if m.Reply != nil {
			fmt.Printf("    ↳ %s: %s\n", m.Reply.Username, m.Reply.Preview)
		}
	}
}
