package config

import (
	"errors"
	"flag"
	"runtime"
	"testing"
	"time"
)

func TestLoad_defaults(t *testing.T) {
	c := Load()
	if c.OutputTxt != "result.txt" || c.OutputM3U != "result.m3u" {
		t.Errorf("outputs = %q, %q", c.OutputTxt, c.OutputM3U)
	}
	if c.CacheFile != "source_cache.json" || c.CacheTTL != time.Hour {
		t.Errorf("cache = %q %v", c.CacheFile, c.CacheTTL)
	}
	if c.Timeout != 5*time.Second || c.URLCap != 90 || c.URLFloor != 10 {
		t.Errorf("timeout=%v cap=%d floor=%d", c.Timeout, c.URLCap, c.URLFloor)
	}
	if c.NoValidate || c.NoResolution || c.StrictHD {
		t.Error("switches should default off")
	}
}

func TestLoad_env(t *testing.T) {
	t.Setenv("IPTVSIFT_TIMEOUT", "3")
	t.Setenv("IPTVSIFT_CACHE_TTL", "90s")
	t.Setenv("IPTVSIFT_URL_CAP", "20")
	t.Setenv("IPTVSIFT_NO_RESOLUTION", "true")
	t.Setenv("IPTVSIFT_HOST_RATE", "2.5")
	t.Setenv("IPTVSIFT_BUILD_TIME", "2026-01-02T03:04:05Z")
	t.Setenv("IPTVSIFT_WORKERS", "not-a-number")

	c := Load()
	if c.Timeout != 3*time.Second {
		t.Errorf("Timeout = %v", c.Timeout)
	}
	if c.CacheTTL != 90*time.Second {
		t.Errorf("CacheTTL = %v", c.CacheTTL)
	}
	if c.URLCap != 20 || !c.NoResolution || c.HostRate != 2.5 {
		t.Errorf("cap=%d noRes=%v rate=%v", c.URLCap, c.NoResolution, c.HostRate)
	}
	if !c.BuildTime.Equal(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)) {
		t.Errorf("BuildTime = %v", c.BuildTime)
	}
	if c.Workers != 0 {
		t.Errorf("bad int should keep default, got %d", c.Workers)
	}
}

func TestParse_flagsOverrideEnv(t *testing.T) {
	t.Setenv("IPTVSIFT_URL_CAP", "20")
	t.Setenv("IPTVSIFT_OUTPUT_TXT", "env.txt")

	c, err := Parse("iptvsift", []string{"--url-cap", "30", "--timeout", "2.5", "--cache-ttl", "60", "--no-validate"})
	if err != nil {
		t.Fatal(err)
	}
	if c.URLCap != 30 {
		t.Errorf("URLCap = %d, flag should win", c.URLCap)
	}
	if c.OutputTxt != "env.txt" {
		t.Errorf("OutputTxt = %q, env should beat default", c.OutputTxt)
	}
	if c.Timeout != 2500*time.Millisecond || c.CacheTTL != time.Minute || !c.NoValidate {
		t.Errorf("timeout=%v ttl=%v noValidate=%v", c.Timeout, c.CacheTTL, c.NoValidate)
	}
}

func TestParse_errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"unknown flag", []string{"--bogus"}},
		{"bad timeout", []string{"--timeout", "soon"}},
		{"zero timeout", []string{"--timeout", "0"}},
		{"zero cap", []string{"--url-cap", "0"}},
		{"negative workers", []string{"--workers", "-1"}},
		{"bad level", []string{"--log-level", "loud"}},
		{"bad build time", []string{"--build-time", "yesterday"}},
		{"no outputs", []string{"--output-txt", "", "--output-m3u", ""}},
		{"positional", []string{"extra"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse("iptvsift", tt.args); !errors.Is(err, ErrUsage) {
				t.Errorf("err = %v, want ErrUsage", err)
			}
		})
	}
}

func TestParse_help(t *testing.T) {
	if _, err := Parse("iptvsift", []string{"-h"}); !errors.Is(err, flag.ErrHelp) {
		t.Errorf("err = %v, want flag.ErrHelp", err)
	}
}

func TestValidate_clamps(t *testing.T) {
	c := Default()
	c.URLCap, c.URLFloor = 5, 10
	c.MaxRetries = -2
	c.MinHeight = 0
	c.HostConcurrency = 0
	if err := c.Validate(); err != nil {
		t.Fatal(err)
	}
	if c.URLFloor != 5 || c.MaxRetries != 0 || c.MinHeight != DefaultMinHeight || c.HostConcurrency != 1 {
		t.Errorf("clamped = floor %d retries %d minHeight %d hostConc %d", c.URLFloor, c.MaxRetries, c.MinHeight, c.HostConcurrency)
	}
}

func TestDerived(t *testing.T) {
	c := Default()
	cpu := runtime.NumCPU()
	if got, want := c.FetchWorkers(), min(32, 2*cpu); got != want {
		t.Errorf("FetchWorkers = %d, want %d", got, want)
	}
	c.Workers = 3
	if c.FetchWorkers() != 3 {
		t.Errorf("FetchWorkers override = %d", c.FetchWorkers())
	}
	if got, want := c.ValidateWorkers(), min(64, 4*cpu); got != want {
		t.Errorf("ValidateWorkers = %d, want %d", got, want)
	}
	if c.ProbeSlots() != cpu {
		t.Errorf("ProbeSlots = %d", c.ProbeSlots())
	}
	if c.ProbeDeadline() != 12*time.Second {
		t.Errorf("ProbeDeadline(5s) = %v, want 12s cap", c.ProbeDeadline())
	}
	c.Timeout = 2 * time.Second
	if c.ProbeDeadline() != 5*time.Second {
		t.Errorf("ProbeDeadline(2s) = %v", c.ProbeDeadline())
	}
}
