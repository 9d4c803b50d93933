package config

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	var c ServerConfig
	c.SetDefaults()
	if c.Port != 8080 || c.MetricsAddr != ":8080" || c.WSPath != "/__realtime" || c.DefaultGroup != "default" {
		t.Fatalf("defaults %+v", c)
	}
	if c.PushConcurrency != 16 || c.CallBurst != 10 || c.DrainTimeout != 30*time.Second || c.RequestTimeout != 0 {
		t.Fatalf("defaults %+v", c)
	}
	if c.WriteTimeout != 10*time.Second || c.PingInterval != 30*time.Second {
		t.Fatalf("liveness defaults %v %v", c.WriteTimeout, c.PingInterval)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "server.yaml")
	yml := "port: 9000\ndefault_group: yaml-group\nrender_url: http://render:3000\nrequest_timeout: 5s\nallowed_origins: [\"https://a.example\"]\n"
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	var c ServerConfig
	c.SetDefaults()
	if err := c.LoadFile(path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if c.Port != 9000 || c.DefaultGroup != "yaml-group" || c.RequestTimeout != 5*time.Second {
		t.Fatalf("after yaml %+v", c)
	}

	t.Setenv("DEFAULT_GROUP", "env-group")
	t.Setenv("METRICS_PORT", "9100")
	t.Setenv("CALL_RATE", "2.5")
	t.Setenv("ALLOWED_ORIGINS", "https://b.example, https://c.example,")
	t.Setenv("API_KEY", "s3cret")
	t.Setenv("PING_INTERVAL", "5s")
	c.ApplyEnv()
	if c.PingInterval != 5*time.Second {
		t.Fatalf("ping interval %v", c.PingInterval)
	}
	if c.DefaultGroup != "env-group" || c.MetricsAddr != ":9100" || c.CallRate != 2.5 || c.APIKey != "s3cret" {
		t.Fatalf("after env %+v", c)
	}
	if len(c.AllowedOrigins) != 2 || c.AllowedOrigins[1] != "https://c.example" {
		t.Fatalf("origins %v", c.AllowedOrigins)
	}
	if c.RenderURL != "http://render:3000" {
		t.Fatalf("yaml value lost: %q", c.RenderURL)
	}

	fs := flag.NewFlagSet("rtsync", flag.ContinueOnError)
	c.BindFlagsFromCurrent(fs)
	if err := fs.Parse([]string{"--default-group", "flag-group", "--request-timeout", "1.5", "--metrics-port", "127.0.0.1:9200"}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.DefaultGroup != "flag-group" || c.RequestTimeout != 1500*time.Millisecond || c.MetricsAddr != "127.0.0.1:9200" {
		t.Fatalf("after flags %+v", c)
	}
	if c.Port != 9000 {
		t.Fatalf("unset flag overrode port: %d", c.Port)
	}
}

func TestValidate(t *testing.T) {
	cases := []func(*ServerConfig){
		func(c *ServerConfig) { c.Port = 0 },
		func(c *ServerConfig) { c.WSPath = "realtime" },
		func(c *ServerConfig) { c.DefaultGroup = "" },
		func(c *ServerConfig) { c.PushConcurrency = -1 },
		func(c *ServerConfig) { c.CallRate = -1 },
		func(c *ServerConfig) { c.WriteTimeout = -time.Second },
	}
	for i, mutate := range cases {
		var c ServerConfig
		c.SetDefaults()
		mutate(&c)
		if err := c.Validate(); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}
