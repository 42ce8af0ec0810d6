// Package logging provides config-driven categorized logging for lynxbot.
// Every category is a named child of one zap logger. Until Initialize or Use
// is called all output is discarded, so packages can log freely in tests.
package logging

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot     Category = "boot"     // Startup, config, wiring
	CategoryAPI      Category = "api"      // Inference transport calls
	CategoryContext  Category = "context"  // Conversation store mutations
	CategoryGating   Category = "gating"   // Respond / tools decisions
	CategoryTools    Category = "tools"    // Capability registry and dispatch
	CategoryAmbient  Category = "ambient"  // Scheduler ticks, thoughts, status
	CategoryDelivery Category = "delivery" // Chunking and sends
	CategoryBrowser  Category = "browser"  // Headless browser automation
	CategoryResearch Category = "research" // Web search and page extraction
	CategoryPlatform Category = "platform" // Chat gateway events
	CategoryVision   Category = "vision"   // Image description
)

// Config mirrors config.LoggingConfig to avoid an import cycle.
type Config struct {
	Level      string
	Format     string // json, console
	DebugMode  bool
	Categories map[string]bool
}

// Logger is a category-scoped printf style logger.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
}

var (
	mu      sync.RWMutex
	base    = zap.NewNop()
	cfg     Config
	loggers = make(map[Category]*Logger)
)

// Initialize builds a zap logger from cfg and installs it.
// The returned logger should be synced by the caller on shutdown.
func Initialize(c Config) (*zap.Logger, error) {
	var zc zap.Config
	if c.DebugMode {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	switch strings.ToLower(c.Format) {
	case "json":
		zc.Encoding = "json"
	case "console", "text":
		zc.Encoding = "console"
	}

	level, err := zapcore.ParseLevel(levelOrDefault(c.Level))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", c.Level, err)
	}
	if c.DebugMode {
		level = zapcore.DebugLevel
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	l, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	mu.Lock()
	cfg = c
	mu.Unlock()
	Use(l)

	Get(CategoryBoot).Info("logging initialized: level=%s format=%s debug=%v", level, zc.Encoding, c.DebugMode)
	return l, nil
}

func levelOrDefault(level string) string {
	if level == "" {
		return "info"
	}
	return level
}

// Use installs l as the root logger for every category.
// Passing nil restores the no-op logger.
func Use(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	mu.Lock()
	defer mu.Unlock()
	base = l
	loggers = make(map[Category]*Logger)
}

// IsCategoryEnabled reports whether category output is enabled.
// Categories missing from the filter are enabled.
func IsCategoryEnabled(category Category) bool {
	mu.RLock()
	defer mu.RUnlock()
	if cfg.Categories == nil {
		return true
	}
	enabled, ok := cfg.Categories[string(category)]
	return !ok || enabled
}

// Get returns (or creates) the logger for category.
func Get(category Category) *Logger {
	mu.RLock()
	l, ok := loggers[category]
	mu.RUnlock()
	if ok {
		return l
	}

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}

	root := base
	if cfg.Categories != nil {
		if enabled, exists := cfg.Categories[string(category)]; exists && !enabled {
			root = zap.NewNop()
		}
	}
	l = &Logger{category: category, sugar: root.Named(string(category)).Sugar()}
	loggers[category] = l
	return l
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) { l.sugar.Debugf(format, args...) }

// Info logs an informational message
func (l *Logger) Info(format string, args ...interface{}) { l.sugar.Infof(format, args...) }

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) { l.sugar.Warnf(format, args...) }

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) { l.sugar.Errorf(format, args...) }

// With returns a logger carrying structured key/value context.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{category: l.category, sugar: l.sugar.With(keysAndValues...)}
}

// Sync flushes the root logger.
func Sync() error {
	mu.RLock()
	defer mu.RUnlock()
	return base.Sync()
}

// =============================================================================
// CONVENIENCE FUNCTIONS
// =============================================================================

func Boot(format string, args ...interface{})      { Get(CategoryBoot).Info(format, args...) }
func BootDebug(format string, args ...interface{}) { Get(CategoryBoot).Debug(format, args...) }
func BootWarn(format string, args ...interface{})  { Get(CategoryBoot).Warn(format, args...) }
func BootError(format string, args ...interface{}) { Get(CategoryBoot).Error(format, args...) }

func API(format string, args ...interface{})      { Get(CategoryAPI).Info(format, args...) }
func APIDebug(format string, args ...interface{}) { Get(CategoryAPI).Debug(format, args...) }
func APIWarn(format string, args ...interface{})  { Get(CategoryAPI).Warn(format, args...) }
func APIError(format string, args ...interface{}) { Get(CategoryAPI).Error(format, args...) }

func Context(format string, args ...interface{})      { Get(CategoryContext).Info(format, args...) }
func ContextDebug(format string, args ...interface{}) { Get(CategoryContext).Debug(format, args...) }
func ContextWarn(format string, args ...interface{})  { Get(CategoryContext).Warn(format, args...) }

func Gating(format string, args ...interface{})      { Get(CategoryGating).Info(format, args...) }
func GatingDebug(format string, args ...interface{}) { Get(CategoryGating).Debug(format, args...) }
func GatingWarn(format string, args ...interface{})  { Get(CategoryGating).Warn(format, args...) }

func Tools(format string, args ...interface{})      { Get(CategoryTools).Info(format, args...) }
func ToolsDebug(format string, args ...interface{}) { Get(CategoryTools).Debug(format, args...) }
func ToolsWarn(format string, args ...interface{})  { Get(CategoryTools).Warn(format, args...) }
func ToolsError(format string, args ...interface{}) { Get(CategoryTools).Error(format, args...) }

func Ambient(format string, args ...interface{})      { Get(CategoryAmbient).Info(format, args...) }
func AmbientDebug(format string, args ...interface{}) { Get(CategoryAmbient).Debug(format, args...) }
func AmbientError(format string, args ...interface{}) { Get(CategoryAmbient).Error(format, args...) }

func Delivery(format string, args ...interface{})      { Get(CategoryDelivery).Info(format, args...) }
func DeliveryDebug(format string, args ...interface{}) { Get(CategoryDelivery).Debug(format, args...) }
func DeliveryWarn(format string, args ...interface{})  { Get(CategoryDelivery).Warn(format, args...) }

func Browser(format string, args ...interface{})      { Get(CategoryBrowser).Info(format, args...) }
func BrowserDebug(format string, args ...interface{}) { Get(CategoryBrowser).Debug(format, args...) }
func BrowserWarn(format string, args ...interface{})  { Get(CategoryBrowser).Warn(format, args...) }
func BrowserError(format string, args ...interface{}) { Get(CategoryBrowser).Error(format, args...) }

func Research(format string, args ...interface{})      { Get(CategoryResearch).Info(format, args...) }
func ResearchDebug(format string, args ...interface{}) { Get(CategoryResearch).Debug(format, args...) }
func ResearchWarn(format string, args ...interface{})  { Get(CategoryResearch).Warn(format, args...) }

func Platform(format string, args ...interface{})      { Get(CategoryPlatform).Info(format, args...) }
func PlatformDebug(format string, args ...interface{}) { Get(CategoryPlatform).Debug(format, args...) }
func PlatformError(format string, args ...interface{}) { Get(CategoryPlatform).Error(format, args...) }

func VisionDebug(format string, args ...interface{}) { Get(CategoryVision).Debug(format, args...) }
func VisionWarn(format string, args ...interface{})  { Get(CategoryVision).Warn(format, args...) }

// =============================================================================
// TIMING HELPERS
// =============================================================================

// Timer helps measure operation duration
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation
func StartTimer(category Category, operation string) *Timer {
	return &Timer{category: category, op: operation, start: time.Now()}
}

// Stop ends the timer and logs the duration at debug level
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs a warning if the duration exceeds threshold
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}
