package config

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
)

const (
	defaultEnvFile            = ".env"
	defaultPort               = "8080"
	defaultReadTimeout        = 15 * time.Second
	defaultWriteTimeout       = 30 * time.Second
	defaultIdleTimeout        = 120 * time.Second
	defaultEnvironment        = "local"
	defaultUndoWindow         = 24 * time.Hour
	defaultStateTolerance     = time.Second
	defaultNumberingAttempts  = 5
	defaultTimezone           = "Asia/Tokyo"
	defaultLocale             = "en"
	defaultIdempotencyHeader  = "Idempotency-Key"
	defaultIdempotencyTTL     = 24 * time.Hour
	defaultIdempotencyCleanup = time.Hour
	defaultActorHeader        = "X-Actor"
	defaultSecretFallbackFile = ".secrets.local"
	defaultLedgerRateLimit    = 60
	defaultLedgerRateWindow   = time.Minute
	defaultTxAttempts         = 5
	defaultTxTimeout          = 15 * time.Second
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Environment string
	Server      ServerConfig
	Firestore   FirestoreConfig
	Ledger      LedgerConfig
	Numbering   NumberingConfig
	Business    BusinessConfig
	Actor       ActorConfig
	Idempotency IdempotencyConfig
	Secrets     SecretsConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
	// TxAttempts bounds how often a contended transaction is retried.
	TxAttempts int
	TxTimeout  time.Duration
}

// LedgerConfig tunes the payment ledger.
type LedgerConfig struct {
	UndoWindow     time.Duration
	StateTolerance time.Duration
	// EventsTopic is the Pub/Sub topic ledger events are published to. Empty disables publishing.
	EventsTopic string
	// IPHashSalt salts the hash of request source addresses recorded on log entries.
	IPHashSalt string
	// RateLimit caps ledger mutations per actor within RateWindow. Zero disables the limit.
	RateLimit  int
	RateWindow time.Duration
}

// NumberingConfig tunes document number generation.
type NumberingConfig struct {
	MaxAttempts int
}

// BusinessConfig holds calendar and presentation settings of the business.
type BusinessConfig struct {
	Timezone      string
	Location      *time.Location
	DefaultLocale string
}

// ActorConfig controls how request actors are resolved.
type ActorConfig struct {
	Header  string
	Default string
}

// IdempotencyConfig controls idempotency middleware behaviour.
type IdempotencyConfig struct {
	Header          string
	TTL             time.Duration
	CleanupInterval time.Duration
}

// SecretsConfig configures the Secret Manager backed resolver.
type SecretsConfig struct {
	DefaultProject string
	FallbackFile   string
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

func (e *SecretError) Unwrap() error { return e.Err }

// MissingSecretsError indicates that one or more required secrets resolved to empty values.
type MissingSecretsError struct {
	names []string
}

func (e *MissingSecretsError) Error() string {
	return fmt.Sprintf("missing required secrets [%s]", strings.Join(e.RedactedNames(), ", "))
}

// RedactedNames returns stable hashes of the missing secret names, safe to log.
func (e *MissingSecretsError) RedactedNames() []string {
	if e == nil {
		return nil
	}
	out := make([]string, 0, len(e.names))
	for _, name := range e.names {
		sum := sha256.Sum256([]byte(name))
		out = append(out, hex.EncodeToString(sum[:8]))
	}
	sort.Strings(out)
	return out
}

// Names returns the underlying secret identifiers.
func (e *MissingSecretsError) Names() []string {
	if e == nil {
		return nil
	}
	out := append([]string(nil), e.names...)
	sort.Strings(out)
	return out
}

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile         string
	envMap          map[string]string
	useSystemEnv    bool
	secret          SecretResolver
	requiredSecrets []string
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values in the map
// take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets the resolver used for secret:// and sm:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// WithRequiredSecrets marks config fields (e.g. "Ledger.IPHashSalt") that must resolve to a value.
func WithRequiredSecrets(names ...string) Option {
	return func(o *loaderOptions) {
		o.requiredSecrets = append(o.requiredSecrets, names...)
	}
}

func newLoaderOptions(opts []Option) loaderOptions {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	return options
}

// EnvironmentValues returns the effective key/value environment after applying the
// same precedence as Load (dotenv < OS env < explicit map). Callers use it to build
// dependencies, such as the secret fetcher, before Load runs.
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	options := newLoaderOptions(opts)

	dotEnv, err := loadDotEnv(options.envFile)
	if err != nil {
		return nil, err
	}

	values := make(map[string]string, len(dotEnv))
	for key, value := range dotEnv {
		values[key] = value
	}
	if options.useSystemEnv {
		for _, entry := range os.Environ() {
			key, value, ok := strings.Cut(entry, "=")
			if !ok || strings.TrimSpace(key) == "" {
				continue
			}
			values[strings.TrimSpace(key)] = value
		}
	}
	for key, value := range options.envMap {
		values[key] = value
	}
	return values, nil
}

// Load assembles the application configuration by combining defaults, .env overrides,
// environment variables, and optional secret manager lookups.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := newLoaderOptions(opts)

	dotEnv, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if value, ok := options.envMap[key]; ok {
			return value, true
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		value, ok := dotEnv[key]
		return value, ok
	}

	cfg := Config{
		Environment: strings.ToLower(stringWithDefault(lookup, "API_ENVIRONMENT", defaultEnvironment)),
		Server: ServerConfig{
			Port:         stringWithDefault(lookup, "API_SERVER_PORT", defaultPort),
			ReadTimeout:  durationWithDefault(lookup, "API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "API_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: stringWithDefault(lookup, "API_FIRESTORE_EMULATOR_HOST", ""),
			TxAttempts:   intWithDefault(lookup, "API_FIRESTORE_TX_ATTEMPTS", defaultTxAttempts),
			TxTimeout:    durationWithDefault(lookup, "API_FIRESTORE_TX_TIMEOUT", defaultTxTimeout),
		},
		Ledger: LedgerConfig{
			UndoWindow:     durationWithDefault(lookup, "API_LEDGER_UNDO_WINDOW", defaultUndoWindow),
			StateTolerance: durationWithDefault(lookup, "API_LEDGER_STATE_TOLERANCE", defaultStateTolerance),
			EventsTopic:    stringWithDefault(lookup, "API_LEDGER_EVENTS_TOPIC", ""),
			IPHashSalt:     stringWithDefault(lookup, "API_LEDGER_IP_HASH_SALT", ""),
			RateLimit:      intWithDefault(lookup, "API_LEDGER_RATE_LIMIT", defaultLedgerRateLimit),
			RateWindow:     durationWithDefault(lookup, "API_LEDGER_RATE_WINDOW", defaultLedgerRateWindow),
		},
		Numbering: NumberingConfig{
			MaxAttempts: intWithDefault(lookup, "API_NUMBERING_MAX_ATTEMPTS", defaultNumberingAttempts),
		},
		Business: BusinessConfig{
			Timezone:      stringWithDefault(lookup, "API_BUSINESS_TIMEZONE", defaultTimezone),
			DefaultLocale: strings.ToLower(stringWithDefault(lookup, "API_DEFAULT_LOCALE", defaultLocale)),
		},
		Actor: ActorConfig{
			Header:  stringWithDefault(lookup, "API_ACTOR_HEADER", defaultActorHeader),
			Default: strings.TrimSpace(stringWithDefault(lookup, "API_DEFAULT_ACTOR", "")),
		},
		Idempotency: IdempotencyConfig{
			Header:          stringWithDefault(lookup, "API_IDEMPOTENCY_HEADER", defaultIdempotencyHeader),
			TTL:             durationWithDefault(lookup, "API_IDEMPOTENCY_TTL", defaultIdempotencyTTL),
			CleanupInterval: durationWithDefault(lookup, "API_IDEMPOTENCY_CLEANUP_INTERVAL", defaultIdempotencyCleanup),
		},
		Secrets: SecretsConfig{
			DefaultProject: stringWithDefault(lookup, "API_SECRET_DEFAULT_PROJECT", ""),
			FallbackFile:   stringWithDefault(lookup, "API_SECRET_FALLBACK_FILE", defaultSecretFallbackFile),
		},
	}

	if cfg.Secrets.DefaultProject == "" {
		cfg.Secrets.DefaultProject = cfg.Firestore.ProjectID
	}

	resolved := make(map[string]string)
	secretFields := []struct {
		name  string
		field *string
	}{
		{"Ledger.IPHashSalt", &cfg.Ledger.IPHashSalt},
	}
	for _, target := range secretFields {
		value, err := resolveSecret(ctx, *target.field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*target.field = value
		resolved[target.name] = strings.TrimSpace(value)
	}

	if err := validateConfig(&cfg); err != nil {
		return Config{}, err
	}

	if missing := findMissingSecrets(options.requiredSecrets, resolved); missing != nil {
		return Config{}, missing
	}
	return cfg, nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if value == "" || !isSecretReference(value) {
		return value, nil
	}
	ref := normalizeSecretReference(value)
	if resolver == nil {
		return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, ref)
	if err != nil {
		return "", &SecretError{Ref: ref, Err: err}
	}
	return secret, nil
}

// validateConfig also fills derived fields such as the business location.
func validateConfig(cfg *Config) error {
	var invalid []string

	if cfg.Server.Port == "" {
		invalid = append(invalid, "Server.Port")
	}
	if cfg.Firestore.ProjectID == "" {
		invalid = append(invalid, "Firestore.ProjectID")
	}
	if cfg.Firestore.TxAttempts <= 0 {
		invalid = append(invalid, "Firestore.TxAttempts")
	}
	if cfg.Firestore.TxTimeout <= 0 {
		invalid = append(invalid, "Firestore.TxTimeout")
	}
	if cfg.Ledger.UndoWindow <= 0 {
		invalid = append(invalid, "Ledger.UndoWindow")
	}
	if cfg.Ledger.StateTolerance < 0 {
		invalid = append(invalid, "Ledger.StateTolerance")
	}
	if cfg.Ledger.RateLimit < 0 {
		invalid = append(invalid, "Ledger.RateLimit")
	}
	if cfg.Ledger.RateLimit > 0 && cfg.Ledger.RateWindow <= 0 {
		invalid = append(invalid, "Ledger.RateWindow")
	}
	if cfg.Numbering.MaxAttempts <= 0 {
		invalid = append(invalid, "Numbering.MaxAttempts")
	}
	if loc, err := time.LoadLocation(cfg.Business.Timezone); err != nil {
		invalid = append(invalid, "Business.Timezone")
	} else {
		cfg.Business.Location = loc
	}
	if cfg.Business.DefaultLocale == "" {
		invalid = append(invalid, "Business.DefaultLocale")
	}
	if strings.TrimSpace(cfg.Actor.Header) == "" {
		invalid = append(invalid, "Actor.Header")
	}
	if strings.TrimSpace(cfg.Idempotency.Header) == "" {
		invalid = append(invalid, "Idempotency.Header")
	}
	if cfg.Idempotency.TTL <= 0 {
		invalid = append(invalid, "Idempotency.TTL")
	}
	if cfg.Idempotency.CleanupInterval <= 0 {
		invalid = append(invalid, "Idempotency.CleanupInterval")
	}

	if len(invalid) > 0 {
		return &ValidationError{fields: invalid}
	}
	return nil
}

func findMissingSecrets(required []string, resolved map[string]string) *MissingSecretsError {
	seen := make(map[string]struct{}, len(required))
	var missing []string
	for _, name := range required {
		trimmed := strings.TrimSpace(name)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		if resolved[trimmed] == "" {
			missing = append(missing, trimmed)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return &MissingSecretsError{names: missing}
}

func isSecretReference(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "secret://") || strings.HasPrefix(trimmed, "sm://")
}

func normalizeSecretReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "sm://") {
		return "secret://" + strings.TrimPrefix(trimmed, "sm://")
	}
	return trimmed
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}
	values, err := godotenv.Read(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return fallback
}
