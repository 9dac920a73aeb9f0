package constants

import "time"

var ScrapeConfig = struct {
	BatchSize         int
	PollInterval      time.Duration
	MaxItemsPadding   int
	DefaultVideoCount int
	MaxVideoCount     int
	RequestTimeout    time.Duration
}{
	BatchSize:         100,             // provider usernames per run
	PollInterval:      5 * time.Second, // fixed, no backoff growth
	MaxItemsPadding:   300,
	DefaultVideoCount: 20,
	MaxVideoCount:     100,
	RequestTimeout:    30 * time.Second,
}

var ApifyConfig = struct {
	BaseURL string
	ActorID string
}{
	BaseURL: "https://api.apify.com/v2",
	ActorID: "ssOXktOBaQQiYfhc4",
}

var AIInputLimits = struct {
	PromptVideos   int
	ContextVideos  int
	MaxBioRunes    int
	MaxTitleRunes  int
	DefaultModel   string
	Temperature    float32
	RequestsPerSec float64
	Burst          int
}{
	PromptVideos:   15,
	ContextVideos:  20,
	MaxBioRunes:    1000,
	MaxTitleRunes:  200,
	DefaultModel:   "gemini-2.0-flash",
	Temperature:    0.2,
	RequestsPerSec: 2,
	Burst:          1,
}

var ScoreThresholds = struct {
	Approved int
	Okish    int
}{
	Approved: 70,
	Okish:    45,
}

var ReviewMessages = struct {
	Discarded           string
	ScoringFailedPrefix string
	ManualFailedPrefix  string
}{
	Discarded:           "Discarded by manual pre-filter review.",
	ScoringFailedPrefix: "AI scoring failed: ",
	ManualFailedPrefix:  "Manual-review AI scoring failed: ",
}

var CacheTTL = struct {
	ProgressLog time.Duration
	RunStatus   time.Duration
}{
	ProgressLog: 24 * time.Hour,
	RunStatus:   3 * time.Second,
}

var ImportConfig = struct {
	DraftTTL        time.Duration
	SaveConcurrency int
	MaxUploadBytes  int64
}{
	DraftTTL:        24 * time.Hour,
	SaveConcurrency: 8,
	MaxUploadBytes:  10 << 20,
}

var RetryConfig = struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Jitter      time.Duration
}{
	MaxAttempts: 3,
	BaseDelay:   500 * time.Millisecond,
	Jitter:      250 * time.Millisecond,
}

var CircuitBreakerConfig = struct {
	FailureThreshold    int
	ResetTimeout        time.Duration
	RateLimitTimeout    time.Duration
	HealthCheckInterval time.Duration
}{
	FailureThreshold:    3,                // consecutive failures before OPEN
	ResetTimeout:        30 * time.Second,
	RateLimitTimeout:    5 * time.Minute,  // 429 responses
	HealthCheckInterval: 1 * time.Minute,
}

var LinkPageConfig = struct {
	Timeout  time.Duration
	MaxBytes int64
}{
	Timeout:  8 * time.Second,
	MaxBytes: 2 << 20,
}

var ServerConfig = struct {
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
	SSEHeartbeat      time.Duration
}{
	ReadHeaderTimeout: 10 * time.Second,
	ShutdownTimeout:   15 * time.Second,
	SSEHeartbeat:      15 * time.Second,
}

var NotificationConfig = struct {
	Channel      string
	DefaultLimit int
	MaxLimit     int
}{
	Channel:      "outreach:notifications",
	DefaultLimit: 30,
	MaxLimit:     500,
}

var MediaConfig = struct {
	FetchTimeout time.Duration
	MaxBytes     int64
	UserAgent    string
	Referer      string
}{
	FetchTimeout: 20 * time.Second,
	MaxBytes:     15 << 20,
	UserAgent:    "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36",
	Referer:      "https://www.tiktok.com/",
}
