// Package config holds every run setting. Values come from built-in
// defaults, then IPTVSIFT_* environment variables (a .env file may seed
// them), then command-line flags.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// Defaults.
const (
	DefaultOutputTxt  = "result.txt"
	DefaultOutputM3U  = "result.m3u"
	DefaultCacheFile  = "source_cache.json"
	DefaultTimeout    = 5 * time.Second
	DefaultCacheTTL   = time.Hour
	DefaultURLCap     = 90
	DefaultURLFloor   = 10
	DefaultMinHeight  = 1080
	DefaultMaxRetries = 3
	DefaultLogFile    = "iptvsift.log"
	DefaultLogLevel   = "info"

	maxProbeDeadline = 12 * time.Second
)

// ErrUsage marks a bad flag or setting; the command exits with status 2.
var ErrUsage = errors.New("config: usage")

// Config is one run's settings.
type Config struct {
	// Sources is a source-list file; "" uses the built-in registry.
	Sources   string
	OutputTxt string
	OutputM3U string

	// Workers overrides the fetch pool size; 0 = min(32, 2×CPU).
	Workers int
	// Timeout is the base network timeout; the probe ladder scales it.
	Timeout  time.Duration
	URLCap   int
	URLFloor int

	CacheTTL  time.Duration
	CacheFile string

	NoValidate   bool
	NoResolution bool

	Taxonomy string // YAML file; "" = built-in
	EPGURL   string

	LogFile     string
	LogLevel    string
	MetricsFile string

	FFprobe   string
	MediaInfo string

	InsecureTLS bool
	StrictHD    bool
	MinHeight   int
	MaxRetries  int

	// HostRate is outbound requests per second per host; 0 = unlimited.
	HostRate float64
	// HostConcurrency caps requests in flight per host.
	HostConcurrency int

	// BuildTime pins the text output timestamp; zero means now.
	BuildTime       time.Time
	NoPartialOutput bool
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		OutputTxt:       DefaultOutputTxt,
		OutputM3U:       DefaultOutputM3U,
		Timeout:         DefaultTimeout,
		URLCap:          DefaultURLCap,
		URLFloor:        DefaultURLFloor,
		CacheTTL:        DefaultCacheTTL,
		CacheFile:       DefaultCacheFile,
		LogFile:         DefaultLogFile,
		LogLevel:        DefaultLogLevel,
		FFprobe:         "ffprobe",
		MediaInfo:       "mediainfo",
		MinHeight:       DefaultMinHeight,
		MaxRetries:      DefaultMaxRetries,
		HostConcurrency: 8,
	}
}

// Load returns the defaults overlaid with the environment. Call
// LoadEnvFile(".env") first to seed the environment from a file.
func Load() *Config {
	d := Default()
	c := &Config{
		Sources:         os.Getenv("IPTVSIFT_SOURCES"),
		OutputTxt:       getEnv("IPTVSIFT_OUTPUT_TXT", d.OutputTxt),
		OutputM3U:       getEnv("IPTVSIFT_OUTPUT_M3U", d.OutputM3U),
		Workers:         getEnvInt("IPTVSIFT_WORKERS", 0),
		Timeout:         getEnvSeconds("IPTVSIFT_TIMEOUT", d.Timeout),
		URLCap:          getEnvInt("IPTVSIFT_URL_CAP", d.URLCap),
		URLFloor:        getEnvInt("IPTVSIFT_URL_FLOOR", d.URLFloor),
		CacheTTL:        getEnvSeconds("IPTVSIFT_CACHE_TTL", d.CacheTTL),
		CacheFile:       getEnv("IPTVSIFT_CACHE_FILE", d.CacheFile),
		NoValidate:      getEnvBool("IPTVSIFT_NO_VALIDATE", false),
		NoResolution:    getEnvBool("IPTVSIFT_NO_RESOLUTION", false),
		Taxonomy:        os.Getenv("IPTVSIFT_TAXONOMY"),
		EPGURL:          os.Getenv("IPTVSIFT_EPG_URL"),
		LogFile:         getEnv("IPTVSIFT_LOG_FILE", d.LogFile),
		LogLevel:        getEnv("IPTVSIFT_LOG_LEVEL", d.LogLevel),
		MetricsFile:     os.Getenv("IPTVSIFT_METRICS_FILE"),
		FFprobe:         getEnv("IPTVSIFT_FFPROBE", d.FFprobe),
		MediaInfo:       getEnv("IPTVSIFT_MEDIAINFO", d.MediaInfo),
		InsecureTLS:     getEnvBool("IPTVSIFT_INSECURE_TLS", false),
		StrictHD:        getEnvBool("IPTVSIFT_STRICT_HD", false),
		MinHeight:       getEnvInt("IPTVSIFT_MIN_HEIGHT", d.MinHeight),
		MaxRetries:      getEnvInt("IPTVSIFT_MAX_RETRIES", d.MaxRetries),
		HostRate:        getEnvFloat("IPTVSIFT_HOST_RATE", 0),
		HostConcurrency: getEnvInt("IPTVSIFT_HOST_CONCURRENCY", d.HostConcurrency),
		NoPartialOutput: getEnvBool("IPTVSIFT_NO_PARTIAL_OUTPUT", false),
	}
	if v := os.Getenv("IPTVSIFT_BUILD_TIME"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			c.BuildTime = t
		}
	}
	return c
}

// RegisterFlags binds every setting to fs, using c's current values as the
// flag defaults.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.Sources, "sources", c.Sources, "source list file (lines or YAML); default: built-in list")
	fs.StringVar(&c.OutputTxt, "output-txt", c.OutputTxt, "text-format output path")
	fs.StringVar(&c.OutputM3U, "output-m3u", c.OutputM3U, "extended M3U output path")
	fs.IntVar(&c.Workers, "workers", c.Workers, "fetch workers (0 = auto)")
	fs.Var((*seconds)(&c.Timeout), "timeout", "base timeout in seconds (or a duration like 5s)")
	fs.IntVar(&c.URLCap, "url-cap", c.URLCap, "maximum URLs per channel")
	fs.IntVar(&c.URLFloor, "url-floor", c.URLFloor, "soft minimum URLs per channel (reported, never padded)")
	fs.Var((*seconds)(&c.CacheTTL), "cache-ttl", "cache entry TTL in seconds")
	fs.StringVar(&c.CacheFile, "cache-file", c.CacheFile, "cache file (.db or .sqlite selects SQLite)")
	fs.BoolVar(&c.NoValidate, "no-validate", c.NoValidate, "skip validation and emit every normalized record")
	fs.BoolVar(&c.NoResolution, "no-resolution", c.NoResolution, "check reachability only; skip resolution probing")
	fs.StringVar(&c.Taxonomy, "taxonomy", c.Taxonomy, "YAML taxonomy file; default: built-in")
	fs.StringVar(&c.EPGURL, "epg-url", c.EPGURL, "x-tvg-url advertised in the M3U header")
	fs.StringVar(&c.LogFile, "log-file", c.LogFile, "JSON log file")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "debug, info, warn or error")
	fs.StringVar(&c.MetricsFile, "metrics-file", c.MetricsFile, "write Prometheus textfile metrics here")
	fs.StringVar(&c.FFprobe, "ffprobe", c.FFprobe, "ffprobe binary")
	fs.StringVar(&c.MediaInfo, "mediainfo", c.MediaInfo, "mediainfo binary (optional)")
	fs.BoolVar(&c.InsecureTLS, "insecure-tls", c.InsecureTLS, "skip TLS certificate verification")
	fs.BoolVar(&c.StrictHD, "strict-hd", c.StrictHD, "drop records with no quality signal")
	fs.IntVar(&c.MinHeight, "min-height", c.MinHeight, "HD pre-filter threshold in pixels")
	fs.IntVar(&c.MaxRetries, "max-retries", c.MaxRetries, "fetch retries after the first attempt")
	fs.Float64Var(&c.HostRate, "host-rate", c.HostRate, "requests per second per host (0 = unlimited)")
	fs.IntVar(&c.HostConcurrency, "host-concurrency", c.HostConcurrency, "requests in flight per host")
	fs.Var((*rfc3339)(&c.BuildTime), "build-time", "RFC 3339 time written to the text output (default: now)")
	fs.BoolVar(&c.NoPartialOutput, "no-partial-output", c.NoPartialOutput, "on interrupt, do not write partial output")
}

// Parse loads the environment, applies args and validates the result.
// Errors wrap ErrUsage or flag.ErrHelp.
func Parse(name string, args []string) (*Config, error) {
	c := Load()
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	c.RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrUsage, err)
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("%w: unexpected argument %q", ErrUsage, fs.Arg(0))
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate rejects impossible settings and clamps the rest.
func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive", ErrUsage)
	}
	if c.URLCap <= 0 {
		return fmt.Errorf("%w: url-cap must be positive", ErrUsage)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers must not be negative", ErrUsage)
	}
	if c.CacheFile == "" {
		return fmt.Errorf("%w: cache-file is required", ErrUsage)
	}
	if c.OutputTxt == "" && c.OutputM3U == "" {
		return fmt.Errorf("%w: at least one output path is required", ErrUsage)
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("%w: unknown log level %q", ErrUsage, c.LogLevel)
	}
	if c.URLFloor < 0 {
		c.URLFloor = 0
	}
	if c.URLFloor > c.URLCap {
		c.URLFloor = c.URLCap
	}
	if c.CacheTTL < 0 {
		c.CacheTTL = 0
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.MinHeight <= 0 {
		c.MinHeight = DefaultMinHeight
	}
	if c.HostConcurrency < 1 {
		c.HostConcurrency = 1
	}
	return nil
}

// FetchWorkers is Workers, or min(32, 2×CPU) when unset.
func (c *Config) FetchWorkers() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return min(32, 2*runtime.NumCPU())
}

// ValidateWorkers is min(64, 4×CPU).
func (c *Config) ValidateWorkers() int { return min(64, 4*runtime.NumCPU()) }

// ProbeSlots caps concurrent probe child processes.
func (c *Config) ProbeSlots() int { return runtime.NumCPU() }

// ProbeDeadline bounds all work on one URL: min(2.5×Timeout, 12s).
func (c *Config) ProbeDeadline() time.Duration {
	return min(c.Timeout*5/2, maxProbeDeadline)
}

// ─── Flag values ─────────────────────────────────────────────────────────────

// seconds accepts "5", "2.5" or a Go duration such as "1500ms".
type seconds time.Duration

func (s *seconds) String() string {
	if s == nil {
		return ""
	}
	return strconv.FormatFloat(time.Duration(*s).Seconds(), 'f', -1, 64)
}

func (s *seconds) Set(v string) error {
	d, err := parseSeconds(v)
	if err != nil {
		return err
	}
	*s = seconds(d)
	return nil
}

func parseSeconds(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(f * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid seconds %q", v)
	}
	return d, nil
}

type rfc3339 time.Time

func (t *rfc3339) String() string {
	if t == nil || time.Time(*t).IsZero() {
		return ""
	}
	return time.Time(*t).Format(time.RFC3339)
}

func (t *rfc3339) Set(v string) error {
	p, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return err
	}
	*t = rfc3339(p)
	return nil
}

// ─── Environment ─────────────────────────────────────────────────────────────

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "1" || strings.EqualFold(v, "true") || strings.EqualFold(v, "yes")
	}
	return defaultVal
}

// getEnvSeconds takes plain seconds or a duration string.
func getEnvSeconds(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := parseSeconds(v); err == nil {
			return d
		}
	}
	return defaultVal
}
