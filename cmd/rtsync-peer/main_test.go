package main

import (
	"flag"
	"testing"
	"time"
)

func TestBindFlags(t *testing.T) {
	t.Setenv("RTSYNC_KEY", "room")
	t.Setenv("RTSYNC_RECONNECT_DELAY", "2s")
	var cfg peerConfig
	fs := flag.NewFlagSet("rtsync-peer", flag.ContinueOnError)
	cfg.bindFlags(fs)
	if err := fs.Parse([]string{"--url", "/todos", "--call", "todos#add"}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Key != "room" || cfg.AppURL != "/todos" || cfg.Call != "todos#add" || cfg.ReconnectDelay != 2*time.Second {
		t.Fatalf("config %+v", cfg)
	}
	if d := cfg.policy()(7); d != 2*time.Second {
		t.Fatalf("fixed policy delay %v", d)
	}
}

func TestParseArgs(t *testing.T) {
	args, err := parseArgs(`["milk", 2]`)
	if err != nil || len(args) != 2 || args[0] != "milk" || args[1] != float64(2) {
		t.Fatalf("args %v err %v", args, err)
	}
	if _, err := parseArgs(`{"not":"array"}`); err == nil {
		t.Fatalf("expected error for object")
	}
	if args, err := parseArgs(""); err != nil || args != nil {
		t.Fatalf("empty args %v %v", args, err)
	}
}
