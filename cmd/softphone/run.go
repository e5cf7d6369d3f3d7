package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/peerdial/peerdial/internal/call"
	"github.com/peerdial/peerdial/internal/config"
	"github.com/peerdial/peerdial/internal/domain"
	"github.com/peerdial/peerdial/internal/media"
	"github.com/peerdial/peerdial/internal/transport"
)

const registerWait = 10 * time.Second

func runSoftphone(ctx context.Context, target string) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	callID := cfg.Softphone.CallID
	if flagCallID != "" {
		callID = flagCallID
	}
	displayName := cfg.Softphone.DisplayName
	if flagName != "" {
		displayName = flagName
	}
	relayURL := cfg.Softphone.RelayURL
	if flagRelay != "" {
		relayURL = flagRelay
	}
	if callID == "" {
		return fmt.Errorf("no call id: set softphone.call_id or pass --id")
	}

	engine, err := media.NewEngine(cfg.WebRTCICEServers(), log.Logger)
	if err != nil {
		return err
	}
	engine.FallbackToSilence = cfg.Softphone.FallbackToSilence

	sink := media.NewSink(nil, log.Logger)
	client := transport.Dial(ctx, relayURL, domain.CallID(callID), displayName, log.Logger)
	defer client.Close()

	mgr := call.New(client, engine, sink, log.Logger)
	defer mgr.Close()

	events, unsubscribe := mgr.Subscribe()
	defer unsubscribe()
	go printEvents(events)

	if err := waitRegistered(ctx, client); err != nil {
		return err
	}
	fmt.Printf("registered as %q (conn %s)\n", callID, client.ConnID())

	if target != "" {
		if err := mgr.StartCall(ctx, domain.CallID(target)); err != nil {
			return fmt.Errorf("call %s: %w", target, err)
		}
	}

	prompt()
	lines := readLines(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := handleCommand(ctx, mgr, line); quit {
				return nil
			}
			prompt()
		}
	}
}

func waitRegistered(ctx context.Context, client *transport.Client) error {
	deadline := time.After(registerWait)
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return fmt.Errorf("relay registration timed out")
		case <-tick.C:
			if client.ConnID() != "" {
				return nil
			}
		}
	}
}

func prompt() {
	fmt.Print("> ")
}

func readLines(ctx context.Context) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			select {
			case out <- strings.TrimSpace(scanner.Text()):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func handleCommand(ctx context.Context, mgr *call.Manager, line string) (quit bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	switch fields[0] {
	case "call":
		if len(fields) != 2 {
			fmt.Println("usage: call <target-call-id>")
			return false
		}
		if err := mgr.StartCall(ctx, domain.CallID(fields[1])); err != nil {
			fmt.Println("call failed:", err)
		}
	case "accept":
		if err := mgr.AcceptCall(ctx); err != nil {
			fmt.Println("accept failed:", err)
		}
	case "reject":
		if err := mgr.RejectCall(); err != nil {
			fmt.Println("reject failed:", err)
		}
	case "hangup":
		mgr.EndCall()
	case "mute":
		if mgr.ToggleMute() {
			fmt.Println("microphone muted")
		} else {
			fmt.Println("microphone live")
		}
	case "speaker":
		if mgr.ToggleSpeaker() {
			fmt.Println("speaker on")
		} else {
			fmt.Println("speaker off")
		}
	case "status":
		snap := mgr.Snapshot()
		fmt.Printf("phase=%s duration=%s muted=%v speaker=%v\n", snap.Phase, snap.Duration, snap.IsMuted, snap.IsSpeakerOn)
		if snap.Incoming != nil {
			fmt.Printf("incoming call from %s (%s)\n", snap.Incoming.FromName, snap.Incoming.FromCallID)
		}
	case "quit", "exit":
		return true
	case "help":
		fmt.Println("commands: call <id>, accept, reject, hangup, mute, speaker, status, quit")
	default:
		fmt.Println("unknown command, try: help")
	}
	return false
}

func printEvents(events <-chan call.Event) {
	for ev := range events {
		switch ev.Kind {
		case call.EventPhase:
			fmt.Printf("\r[%s]\n> ", ev.Phase)
		case call.EventIncoming:
			name := ev.Incoming.FromName
			if name == "" {
				name = string(ev.Incoming.FromCallID)
			}
			fmt.Printf("\rincoming call from %s, type accept or reject\n> ", name)
		case call.EventDuration:
			fmt.Printf("\r%s > ", ev.Duration)
		case call.EventNotice:
			fmt.Printf("\r%s\n> ", ev.Notice)
		}
	}
}
