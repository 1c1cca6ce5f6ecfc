package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/sereno-app/sereno/internal/api"
	"github.com/sereno-app/sereno/internal/client"
	"github.com/sereno-app/sereno/internal/config"
	"github.com/sereno-app/sereno/internal/session"
	"github.com/sereno-app/sereno/internal/transport"
	qrcode "github.com/skip2/go-qrcode"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	pngFlag := flag.String("png", "", "invite: write the QR code to this PNG file")
	flag.Parse()

	profile, err := session.Active(*profileFlag)
	if err != nil {
		fail(err)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	socketPath := session.SocketPath(profile)
	c, err := client.New(socketPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: cannot connect to daemon for profile %q: %v\n", profile, err)
		os.Exit(1)
	}
	defer func() { _ = c.Close() }()

	if args[0] == "watch" {
		ns := ""
		if len(args) > 1 {
			ns = args[1]
		}
		cmdWatch(c, ns, *jsonFlag)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	out := printer{json: *jsonFlag}
	switch args[0] {
	case "status":
		st, err := c.Status(ctx)
		check(err)
		out.status(st)
	case "open":
		need(args, 2, "open <room>")
		id, err := c.Open(ctx, args[1])
		check(err)
		out.opened(id)
	case "dm":
		need(args, 2, "dm <user> [user...]")
		st, err := c.Status(ctx)
		check(err)
		id, err := c.OpenParticipants(ctx, append([]string{st.SelfID}, args[1:]...)...)
		check(err)
		out.opened(id)
	case "send":
		need(args, 2, "send <text>")
		m, err := c.Send(ctx, strings.Join(args[1:], " "))
		check(err)
		out.message(m)
	case "retry":
		need(args, 2, "retry <message-id>")
		m, err := c.Retry(ctx, args[1])
		check(err)
		out.message(m)
	case "dismiss":
		need(args, 2, "dismiss <message-id>")
		check(c.Dismiss(ctx, args[1]))
	case "close":
		check(c.CloseRoom(ctx))
	case "messages":
		limit := 0
		if len(args) > 1 {
			limit, err = strconv.Atoi(args[1])
			if err != nil || limit < 0 {
				fail(fmt.Errorf("invalid limit %q", args[1]))
			}
		}
		msgs, err := c.ListMessages(ctx, limit)
		check(err)
		out.messages(msgs)
	case "rooms":
		rooms, err := c.ListRooms(ctx, 100, 0)
		check(err)
		out.rooms(rooms)
	case "invite":
		room := ""
		if len(args) > 1 {
			room = args[1]
		} else {
			st, err := c.Status(ctx)
			check(err)
			room = st.Room
		}
		if room == "" {
			fail(fmt.Errorf("no room open; pass a room id"))
		}
		cmdInvite(ctx, profile, room, *pngFlag, out)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: serenoctl [--profile <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status              Show session status")
	fmt.Fprintln(os.Stderr, "  open <room>         Open a room by id")
	fmt.Fprintln(os.Stderr, "  dm <user>...        Open the direct room with users")
	fmt.Fprintln(os.Stderr, "  send <text>         Send a message to the open room")
	fmt.Fprintln(os.Stderr, "  retry <id>          Retry a failed message")
	fmt.Fprintln(os.Stderr, "  dismiss <id>        Drop a failed message")
	fmt.Fprintln(os.Stderr, "  close               Leave the open room")
	fmt.Fprintln(os.Stderr, "  messages [n]        List the last n messages")
	fmt.Fprintln(os.Stderr, "  rooms               List known rooms")
	fmt.Fprintln(os.Stderr, "  watch [namespace]   Stream events until interrupted")
	fmt.Fprintln(os.Stderr, "  invite [room]       Print an invite link and QR code (--png to save it)")
}

func cmdWatch(c *client.Client, namespace string, jsonOut bool) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	events, errc, err := c.Watch(ctx, namespace)
	check(err)
	for env := range events {
		if jsonOut {
			outputJSON(env)
			continue
		}
		at := time.UnixMilli(env.OccurredAtUnixMs).Format("15:04:05.000")
		fmt.Printf("%s %-22s %s\n", at, env.Kind, env.Payload)
	}
	select {
	case err := <-errc:
		check(err)
	default:
	}
}

func cmdInvite(ctx context.Context, profile, room, pngPath string, out printer) {
	if err := config.LoadDotEnv(session.EnvPath(profile), ".env"); err != nil {
		fail(err)
	}
	cfg, err := config.Resolve(ctx, session.ConfigPath())
	check(err)
	link, err := transport.InviteURL(cfg.Server.URL, room)
	check(err)

	if pngPath != "" {
		check(qrcode.WriteFile(link, qrcode.Medium, 256, pngPath))
	}
	if out.json {
		outputJSON(map[string]string{"room": room, "url": link, "png": pngPath})
		return
	}
	qr, err := qrcode.New(link, qrcode.Low)
	check(err)
	fmt.Println(qr.ToSmallString(false))
	fmt.Println(link)
	if pngPath != "" {
		fmt.Printf("QR code written to %s\n", pngPath)
	}
}

type printer struct {
	json bool
}

func (p printer) status(st api.StatusView) {
	if p.json {
		outputJSON(st)
		return
	}
	room := st.Room
	if room == "" {
		room = "-"
	}
	fmt.Printf("Profile: %s\n", st.Profile)
	fmt.Printf("User:    %s\n", st.SelfID)
	fmt.Printf("State:   %s\n", st.State)
	fmt.Printf("Room:    %s\n", room)
	fmt.Printf("Msgs:    %d (%d pending)\n", st.MessageCount, st.PendingCount)
	fmt.Printf("Uptime:  %s\n", (time.Duration(st.UptimeMs) * time.Millisecond).Round(time.Second))
}

func (p printer) opened(room string) {
	if p.json {
		outputJSON(api.OpenResponse{Room: room})
		return
	}
	fmt.Printf("Opened %s\n", room)
}

func (p printer) message(m api.MessageView) {
	if p.json {
		outputJSON(m)
		return
	}
	printMessage(m)
}

func (p printer) messages(msgs []api.MessageView) {
	if p.json {
		outputJSON(msgs)
		return
	}
	if len(msgs) == 0 {
		fmt.Println("No messages.")
		return
	}
	for _, m := range msgs {
		printMessage(m)
	}
}

func printMessage(m api.MessageView) {
	author := m.AuthorName
	if author == "" {
		author = m.AuthorID
	}
	if m.IsOwn() {
		author = "you"
	}
	state := m.Status
	if m.FailReason != "" {
		state += ": " + m.FailReason
	}
	fmt.Printf("%s %-12s %-10s [%s] %s\n", m.CreatedAt.Local().Format("15:04:05"), m.ID, author, state, m.Body)
}

func (p printer) rooms(rooms []api.RoomView) {
	if p.json {
		outputJSON(rooms)
		return
	}
	if len(rooms) == 0 {
		fmt.Println("No rooms found.")
		return
	}
	for _, r := range rooms {
		fmt.Printf("%-30s %5d msgs %3d opens  last active %s\n",
			r.RoomID, r.MessageCount, r.OpenCount, r.LastActivityAt.Local().Format(time.DateTime))
	}
}

func need(args []string, n int, usage string) {
	if len(args) < n {
		fmt.Fprintf(os.Stderr, "usage: serenoctl %s\n", usage)
		os.Exit(1)
	}
}

func check(err error) {
	if err != nil {
		fail(err)
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
