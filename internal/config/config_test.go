package config

import (
	"os"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/tbourn/dianabot-core/internal/domain"
)

// --- MustLoad ---

func TestMustLoad_PanicsOnInvalidConfig(t *testing.T) {
	t.Setenv("LOG_LEVEL", "verbose") // invalid -> Load() error
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("MustLoad should panic on invalid config")
		}
	}()
	_ = MustLoad()
}

// --- Load success + normalization + parsing ---

func TestLoad_Success_DefaultsAndOverrides(t *testing.T) {
	// Clear all env that might affect defaults. t.Setenv isolates per test.
	// Server timeouts / sizes (valid)
	t.Setenv("PORT", "8088")
	t.Setenv("READ_TIMEOUT", "2s")
	t.Setenv("READ_HEADER_TIMEOUT", "1s")
	t.Setenv("WRITE_TIMEOUT", "3s")
	t.Setenv("IDLE_TIMEOUT", "4s")
	t.Setenv("MAX_HEADER_BYTES", "8192")
	t.Setenv("GIN_MODE", "weird") // will normalize to "release"

	// Logging / Docs
	t.Setenv("LOG_LEVEL", "warning") // will normalize to "warn"
	t.Setenv("LOG_PRETTY", "yes")
	t.Setenv("SWAGGER_ENABLED", "on")
	t.Setenv("API_BASE_PATH", "api/v1/") // no leading slash + trailing slash -> "/api/v1"

	t.Setenv("DB_PATH", "db.sqlite")

	// Core
	t.Setenv("BUS_WORKERS", "8")
	t.Setenv("INTERACTION_BUCKET", "30s")
	t.Setenv("RECEIPT_TTL", "2h")
	t.Setenv("STAGE_THRESHOLDS", "intro=0.4, trusted=0.75")
	t.Setenv("STAGE_COSTS", "engaged=12")
	t.Setenv("REWARD_MESSAGE", "7")
	t.Setenv("TOKEN_SIGNING_KEY", "secret")
	t.Setenv("TOKEN_TTL_VIP", "12h")
	t.Setenv("INNER_MIN_BALANCE", "80")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("AMQP_QUEUE", "q")

	// Rate limiting (use invalids for parse to fall back to defaults)
	t.Setenv("RATE_RPS", "x")      // -> default 5.0
	t.Setenv("RATE_BURST", "nope") // -> default 10

	// Web protection
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.com , , http://b ")
	t.Setenv("ENABLE_HSTS", "TRUE")
	t.Setenv("HSTS_MAX_AGE", "24h")

	// OTEL
	t.Setenv("OTEL_ENABLED", "1")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "otel:4317")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "0")
	t.Setenv("OTEL_SERVICE_NAME", "svc")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.75")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	// Server
	if cfg.Port != "8088" ||
		cfg.ReadTimeout != 2*time.Second ||
		cfg.ReadHeaderTimeout != 1*time.Second ||
		cfg.WriteTimeout != 3*time.Second ||
		cfg.IdleTimeout != 4*time.Second ||
		cfg.MaxHeaderBytes != 8192 ||
		cfg.GinMode != "release" {
		t.Fatalf("server fields unexpected: %+v", cfg)
	}

	// Logging / Docs
	if cfg.LogLevel != "warn" || !cfg.LogPretty || !cfg.SwaggerEnabled || cfg.APIBasePath != "/api/v1" {
		t.Fatalf("logging/docs unexpected: %+v", cfg)
	}

	if cfg.DBPath != "db.sqlite" {
		t.Fatalf("db path unexpected: %q", cfg.DBPath)
	}

	// Core
	if cfg.BusWorkers != 8 || cfg.Interactions.Bucket != 30*time.Second || cfg.Interactions.ReceiptTTL != 2*time.Hour {
		t.Fatalf("core fields unexpected: %+v", cfg)
	}
	rules := cfg.Progression.Rules
	if rules[domain.StageIntro].Threshold != 0.4 || rules[domain.StageTrusted].Threshold != 0.75 {
		t.Fatalf("thresholds unexpected: %+v", rules)
	}
	if rules[domain.StageEngaged].Cost != 12 || rules[domain.StageEngaged].Threshold != 0.6 {
		t.Fatalf("engaged rule should keep its default threshold: %+v", rules[domain.StageEngaged])
	}
	if cfg.Rewards["message"] != 7 || cfg.Rewards["checkin"] != 10 {
		t.Fatalf("rewards unexpected: %+v", cfg.Rewards)
	}
	if cfg.Tokens.SigningKey != "secret" || cfg.Tokens.SweepInterval != 5*time.Minute {
		t.Fatalf("tokens unexpected: %+v", cfg.Tokens)
	}
	for _, tr := range cfg.Tiers {
		switch tr.Name {
		case domain.TierVIP:
			if tr.TTL != 12*time.Hour {
				t.Fatalf("vip ttl = %v", tr.TTL)
			}
		case domain.TierInnerCircle:
			if tr.TTL != time.Hour || tr.MinBalance != 80 {
				t.Fatalf("inner tier unexpected: %+v", tr)
			}
		}
	}
	if !cfg.Redis.Enabled || cfg.Redis.Addr != "localhost:6379" || cfg.AMQP.Enabled || cfg.AMQP.Queue != "q" {
		t.Fatalf("observers unexpected: %+v / %+v", cfg.Redis, cfg.AMQP)
	}

	// Rate limiting (parse fallback to defaults)
	if cfg.RateRPS != 5.0 || cfg.RateBurst != 10 {
		t.Fatalf("rate limiting unexpected: %+v", cfg)
	}

	// Web protection
	if !reflect.DeepEqual(cfg.CORS.AllowedOrigins, []string{"https://a.com", "http://b"}) {
		t.Fatalf("cors origins unexpected: %#v", cfg.CORS.AllowedOrigins)
	}
	if !cfg.Security.EnableHSTS || cfg.Security.HSTSMaxAge != 24*time.Hour {
		t.Fatalf("security unexpected: %+v", cfg.Security)
	}

	// OTEL
	if !cfg.OTEL.Enabled || cfg.OTEL.Endpoint != "otel:4317" || cfg.OTEL.Insecure || cfg.OTEL.ServiceName != "svc" || cfg.OTEL.SampleRatio != 0.75 {
		t.Fatalf("otel unexpected: %+v", cfg.OTEL)
	}
}

// --- Load validations (each case triggers exactly one validation error) ---

func TestLoad_ValidationErrors(t *testing.T) {
	t.Run("invalid LOG_LEVEL", func(t *testing.T) {
		t.Setenv("LOG_LEVEL", "verbose")
		if _, err := Load(); err == nil {
			t.Fatalf("expected LOG_LEVEL validation error")
		}
	})
	t.Run("empty PORT via spaces", func(t *testing.T) {
		t.Setenv("PORT", "   ")
		if _, err := Load(); err == nil || !containsErr(err, "PORT must not be empty") {
			t.Fatalf("expected port validation error, got: %v", err)
		}
	})
	t.Run("non-positive timeouts", func(t *testing.T) {
		t.Setenv("READ_TIMEOUT", "0s")
		if _, err := Load(); err == nil || !containsErr(err, "timeouts must be positive") {
			t.Fatalf("expected timeouts validation error, got: %v", err)
		}
	})
	t.Run("max header bytes <= 0", func(t *testing.T) {
		t.Setenv("MAX_HEADER_BYTES", "0")
		if _, err := Load(); err == nil || !containsErr(err, "MAX_HEADER_BYTES") {
			t.Fatalf("expected MAX_HEADER_BYTES validation error, got: %v", err)
		}
	})
	t.Run("empty DB_PATH", func(t *testing.T) {
		t.Setenv("DB_PATH", "   ")
		if _, err := Load(); err == nil || !containsErr(err, "DB_PATH must not be empty") {
			t.Fatalf("expected DB_PATH validation error, got: %v", err)
		}
	})
	t.Run("rate rps negative", func(t *testing.T) {
		t.Setenv("RATE_RPS", "-1")
		if _, err := Load(); err == nil || !containsErr(err, "RATE_RPS") {
			t.Fatalf("expected RATE_RPS validation error, got: %v", err)
		}
	})
	t.Run("rate burst < 1", func(t *testing.T) {
		t.Setenv("RATE_BURST", "0")
		if _, err := Load(); err == nil || !containsErr(err, "RATE_BURST") {
			t.Fatalf("expected RATE_BURST validation error, got: %v", err)
		}
	})
	t.Run("hsts max age negative", func(t *testing.T) {
		t.Setenv("HSTS_MAX_AGE", "-1s")
		if _, err := Load(); err == nil || !containsErr(err, "HSTS_MAX_AGE") {
			t.Fatalf("expected HSTS_MAX_AGE validation error, got: %v", err)
		}
	})
	t.Run("bus workers < 1", func(t *testing.T) {
		t.Setenv("BUS_WORKERS", "0")
		if _, err := Load(); err == nil || !containsErr(err, "BUS_WORKERS") {
			t.Fatalf("expected BUS_WORKERS validation error, got: %v", err)
		}
	})
	t.Run("bucket non-positive", func(t *testing.T) {
		t.Setenv("INTERACTION_BUCKET", "0s")
		if _, err := Load(); err == nil || !containsErr(err, "INTERACTION_BUCKET") {
			t.Fatalf("expected INTERACTION_BUCKET validation error, got: %v", err)
		}
	})
	t.Run("negative reward", func(t *testing.T) {
		t.Setenv("REWARD_REACTION", "-2")
		if _, err := Load(); err == nil || !containsErr(err, "REWARD_REACTION") {
			t.Fatalf("expected REWARD_REACTION validation error, got: %v", err)
		}
	})
	t.Run("unknown stage threshold", func(t *testing.T) {
		t.Setenv("STAGE_THRESHOLDS", "legend=0.9")
		if _, err := Load(); err == nil || !containsErr(err, "unknown stage") {
			t.Fatalf("expected unknown stage error, got: %v", err)
		}
	})
	t.Run("terminal stage rule", func(t *testing.T) {
		t.Setenv("STAGE_COSTS", "inner=5")
		if _, err := Load(); err == nil || !containsErr(err, "terminal") {
			t.Fatalf("expected terminal stage error, got: %v", err)
		}
	})
	t.Run("threshold out of range", func(t *testing.T) {
		t.Setenv("STAGE_THRESHOLDS", "intro=1.5")
		if _, err := Load(); err == nil || !containsErr(err, "STAGE_THRESHOLDS") {
			t.Fatalf("expected STAGE_THRESHOLDS validation error, got: %v", err)
		}
	})
	t.Run("malformed cost pair", func(t *testing.T) {
		t.Setenv("STAGE_COSTS", "engaged")
		if _, err := Load(); err == nil || !containsErr(err, "stage=value") {
			t.Fatalf("expected malformed pair error, got: %v", err)
		}
	})
	t.Run("token ttl non-positive", func(t *testing.T) {
		t.Setenv("TOKEN_TTL_INNER", "0s")
		if _, err := Load(); err == nil || !containsErr(err, "TOKEN_TTL") {
			t.Fatalf("expected TOKEN_TTL validation error, got: %v", err)
		}
	})
	t.Run("otel sample ratio out of range", func(t *testing.T) {
		t.Setenv("OTEL_TRACES_SAMPLER_ARG", "1.5")
		if _, err := Load(); err == nil || !containsErr(err, "OTEL_TRACES_SAMPLER_ARG") {
			t.Fatalf("expected OTEL_TRACES_SAMPLER_ARG validation error, got: %v", err)
		}
	})

	// Note: API_BASE_PATH validation is effectively unreachable due to normalizeBasePath
	// always ensuring a leading '/' and returning "/" for empty input.
}

// --- helpers ---

func TestHelpers_getenv(t *testing.T) {
	t.Setenv("X_EMPTY", "")
	if getenv("X_EMPTY", "d") != "d" {
		t.Fatalf("getenv should fall back to default on empty var")
	}
	t.Setenv("X_SET", "val")
	if getenv("X_SET", "d") != "val" {
		t.Fatalf("getenv should read set value")
	}
}

func TestHelpers_getfloat_getint_getdur(t *testing.T) {
	t.Setenv("F_VALID", "3.14")
	if getfloat("F_VALID", 0) != 3.14 {
		t.Fatalf("getfloat parse failed")
	}
	t.Setenv("F_BAD", "nope")
	if getfloat("F_BAD", 1.23) != 1.23 {
		t.Fatalf("getfloat default on bad parse failed")
	}

	t.Setenv("I64_VALID", " 9000000000 ")
	if getint64("I64_VALID", 0) != 9000000000 {
		t.Fatalf("getint64 parse failed")
	}

	t.Setenv("I_VALID", "42")
	if getint("I_VALID", 0) != 42 {
		t.Fatalf("getint parse failed")
	}
	t.Setenv("I_BAD", "x")
	if getint("I_BAD", 7) != 7 {
		t.Fatalf("getint default on bad parse failed")
	}

	t.Setenv("D_VALID", "150ms")
	if getdur("D_VALID", time.Second) != 150*time.Millisecond {
		t.Fatalf("getdur parse failed")
	}
	t.Setenv("D_BAD", "zzz")
	if getdur("D_BAD", 2*time.Second) != 2*time.Second {
		t.Fatalf("getdur default on bad parse failed")
	}
}

func TestHelpers_getbool(t *testing.T) {
	trueVals := []string{"1", "true", "TRUE", " yes ", "Y", "on", "On"}
	for i, v := range trueVals {
		k := "B_T_" + config_strconv(i)
		t.Setenv(k, v)
		if !getbool(k, false) {
			t.Fatalf("getbool(%q) = false; want true", v)
		}
	}
	falseVals := []string{"0", "false", "FALSE", " no ", "N", "off", "Off"}
	for i, v := range falseVals {
		k := "B_F_" + config_strconv(i)
		t.Setenv(k, v)
		if getbool(k, true) {
			t.Fatalf("getbool(%q) = true; want false", v)
		}
	}
	// default on unset/empty
	t.Setenv("B_EMPTY", "")
	if !getbool("B_EMPTY", true) || getbool("B_EMPTY", false) {
		t.Fatalf("getbool default behavior unexpected")
	}
}

func TestHelpers_splitCSV_and_normalizeBasePath(t *testing.T) {
	if out := splitCSV(""); out != nil {
		t.Fatalf("splitCSV empty should return nil")
	}
	in := " a, ,b ,  c  ,"
	want := []string{"a", "b", "c"}
	if got := splitCSV(in); !reflect.DeepEqual(got, want) {
		t.Fatalf("splitCSV mismatch: got %#v want %#v", got, want)
	}

	// normalizeBasePath
	if normalizeBasePath("") != "/" {
		t.Fatalf("normalizeBasePath empty -> '/' failed")
	}
	if normalizeBasePath("v1") != "/v1" {
		t.Fatalf("normalizeBasePath missing leading slash failed")
	}
	if normalizeBasePath("/v1/") != "/v1" {
		t.Fatalf("normalizeBasePath trailing slash trim failed")
	}
	if normalizeBasePath(" / ") != "/" {
		t.Fatalf("normalizeBasePath whitespace failed")
	}
}

// small helper (avoid fmt just for ints)
func config_strconv(i int) string { return string('a' + rune(i)) }

// Ensure tests donâ€™t leak env to others.
func TestMain(m *testing.M) {
	os.Unsetenv("PORT")
	os.Exit(m.Run())
}

// containsErr reports whether err's message contains the given substring.
func containsErr(err error, want string) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), want)
}

func TestLoad_Defaults_APIBasePathAndCoreRules(t *testing.T) {
	t.Setenv("DB_PATH", "db.sqlite")
	// Intentionally leave API_BASE_PATH and the core keys unset

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	// default per code is "/api/v1"
	if cfg.APIBasePath != "/api/v1" {
		t.Fatalf("API_BASE_PATH default expected '/api/v1', got %q", cfg.APIBasePath)
	}
	if !reflect.DeepEqual(cfg.Progression.Rules, domain.DefaultStageRules()) {
		t.Fatalf("default rules expected, got %+v", cfg.Progression.Rules)
	}
	if !reflect.DeepEqual(cfg.Tiers, domain.DefaultTierRules()) {
		t.Fatalf("default tiers expected, got %+v", cfg.Tiers)
	}
	if cfg.Tokens.SigningKey != "" || cfg.Redis.Enabled || cfg.AMQP.Enabled {
		t.Fatalf("optional features should be off by default: %+v", cfg)
	}
}

func TestMustLoad_Success_NoPanic(t *testing.T) {
	// No special env needed; defaults are valid.
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("MustLoad should not panic on valid defaults, got: %v", r)
		}
	}()
	cfg := MustLoad()
	if cfg.APIBasePath == "" {
		t.Fatalf("unexpected empty config from MustLoad")
	}
}
