package config

import (
	"strings"
	"testing"
)

func TestResolveConfigPath(t *testing.T) {
	tests := []struct {
		name        string
		goos        string
		home        string
		programData string
		want        string
	}{
		{name: "linux", goos: "linux", home: "/home/user", want: "/etc/rtsync/server.yaml"},
		{name: "darwin", goos: "darwin", home: "/Users/test", want: "/Users/test/Library/Application Support/rtsync/server.yaml"},
		{name: "windows", goos: "windows", programData: "C:\\ProgramData\\", want: "C:/ProgramData/rtsync/server.yaml"},
		{name: "windows default ProgramData", goos: "windows", want: "C:/ProgramData/rtsync/server.yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := strings.ReplaceAll(ResolveConfigPath(tt.goos, tt.home, tt.programData, "server.yaml"), "\\", "/")
			if got != tt.want {
				t.Errorf("got %q want %q", got, tt.want)
			}
		})
	}
}

func TestGetEnv(t *testing.T) {
	t.Setenv("RTSYNC_TEST_VALUE", "")
	if got := GetEnv("RTSYNC_TEST_VALUE", "fallback"); got != "fallback" {
		t.Fatalf("empty env: got %q", got)
	}
	t.Setenv("RTSYNC_TEST_VALUE", "set")
	if got := GetEnv("RTSYNC_TEST_VALUE", "fallback"); got != "set" {
		t.Fatalf("set env: got %q", got)
	}
}
