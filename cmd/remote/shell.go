package main

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/ZerkerEOD/krakenhashes/remote/internal/jobs"
	"github.com/ZerkerEOD/krakenhashes/remote/internal/protocol"
	"github.com/ZerkerEOD/krakenhashes/remote/internal/remote"
	"github.com/ZerkerEOD/krakenhashes/remote/internal/session"
	"github.com/ZerkerEOD/krakenhashes/remote/pkg/console"
	"github.com/ZerkerEOD/krakenhashes/remote/pkg/debug"
)

const helpText = `Commands:
  connect                            open a relay connection and wait for a room
  pair <room>                        join an existing room
  mode <code>                        select the hash mode (e.g. 0 for MD5)
  attack <hash> <wordlist> [rules]   start an attack
  sniff <host> <user> <pass>         start a remote packet capture
  stopsniff                          stop the capture
  log | cracked | capture            print the job log, cracked secrets or capture
  status                             show connection state
  qr                                 show the room as a QR code
  help                               show this help
  quit                               exit`

// shell is the line-oriented front-end. It forwards commands to the client
// and prints new job log lines as they arrive.
type shell struct {
	client *remote.Client
	in     io.Reader

	mu      sync.Mutex
	lastSeq uint64

	// readerDone is closed when the input goroutine of run exits
	readerDone chan struct{}
}

func newShell(client *remote.Client, in io.Reader) *shell {
	return &shell{client: client, in: in, readerDone: make(chan struct{})}
}

// run reads commands until quit, end of input or ctx is cancelled
func (sh *shell) run(ctx context.Context) error {
	events, cancel := sh.client.Session().Subscribe(session.DefaultSubscriberBuffer)
	defer cancel()

	go sh.follow(events)

	stop := make(chan struct{})
	defer close(stop)

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		defer close(sh.readerDone)
		scanner := bufio.NewScanner(sh.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-stop:
				return
			}
		}
		readErr <- scanner.Err()
		close(lines)
	}()

	console.Info("KrakenHashes remote (%s mode). Type 'help' for commands.", sh.client.Mode())
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return <-readErr
			}
			if quit := sh.execute(ctx, line); quit {
				return nil
			}
		}
	}
}

// follow prints what each session event added to the log
func (sh *shell) follow(events <-chan protocol.Event) {
	for ev := range events {
		if out, ok := ev.(protocol.SniffOutput); ok {
			console.Print("%s", out.Output)
			continue
		}
		sh.flush()
	}
}

// flush prints job log lines not printed yet
func (sh *shell) flush() {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	for _, entry := range sh.client.Session().LinesSince(sh.lastSeq) {
		console.Print("%s", entry.Text)
		sh.lastSeq = entry.Seq
	}
}

// execute runs one command line and reports whether the shell should exit
func (sh *shell) execute(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]
	debug.Debug("Command %s %v", cmd, args)

	var err error
	switch cmd {
	case "connect":
		err = sh.client.Connect(ctx)
	case "pair":
		if len(args) != 1 {
			console.Warning("usage: pair <room>")
			return false
		}
		err = sh.client.Pair(ctx, args[0])
	case "mode":
		if len(args) != 1 {
			console.Warning("usage: mode <code>")
			return false
		}
		sh.client.SelectMode(args[0])
		console.Success("hash mode %s selected", args[0])
	case "attack":
		if len(args) < 2 || len(args) > 3 {
			console.Warning("usage: attack <hash> <wordlist> [rules]")
			return false
		}
		req := jobs.AttackRequest{Hash: args[0], Wordlist: args[1]}
		if len(args) == 3 {
			req.Rules = args[2]
		}
		_, err = sh.client.Attack(ctx, req)
	case "sniff":
		if len(args) != 3 {
			console.Warning("usage: sniff <host> <user> <pass>")
			return false
		}
		err = sh.client.StartSniff(ctx, protocol.SniffParams{Host: args[0], Username: args[1], Password: args[2]})
	case "stopsniff":
		err = sh.client.StopSniff(ctx)
	case "log":
		console.Lines(sh.client.Session().Lines(), "(log is empty)")
	case "cracked":
		console.Lines(sh.client.Session().Cracked(), "(nothing cracked)")
	case "capture":
		var lines []string
		if capture := sh.client.Session().Capture(); capture != "" {
			lines = strings.Split(capture, "\n")
		}
		console.Lines(lines, "(no capture)")
	case "status":
		sh.status()
	case "qr":
		room, ok := sh.client.Session().RoomID()
		if !ok {
			console.Warning("no room yet: run 'connect' or 'pair <room>' first")
			return false
		}
		err = console.PrintQR(room)
	case "help", "?":
		console.Print(helpText)
	case "quit", "exit":
		return true
	default:
		console.Warning("unknown command %q, type 'help'", cmd)
		return false
	}

	sh.flush()
	switch {
	case errors.Is(err, remote.ErrRelayOnly):
		console.Warning("%v", err)
	case err != nil:
		console.Error("%v", err)
	}
	return false
}

func (sh *shell) status() {
	s := sh.client.Session()
	room, ok := s.RoomID()
	if !ok {
		room = "(none)"
	}
	mode := sh.client.HashMode()
	if mode == "" {
		mode = "(none)"
	}
	console.Status("mode=%s connected=%t room=%s hash-mode=%s sniffing=%t",
		sh.client.Mode(), s.Connected(), room, mode, s.Sniffing())
	st := s.Stats()
	console.Status("log=%d/%d dropped=%d jobs=%d", st.Lines, st.Capacity, st.Dropped, st.TrackedJobs)
}
