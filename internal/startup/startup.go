package startup

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"media-cache/internal/logging"
	"media-cache/internal/memory"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the current build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// RouteInfo contains information about a registered route
type RouteInfo struct {
	Method string
	Path   string
	Name   string
}

func section(title string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("%s", title)
	logging.Info("------------------------------------------------------------")
}

func enabledString(enabled bool) string {
	if enabled {
		return "ENABLED"
	}
	return "DISABLED"
}

// LogMemoryConfig logs the outcome of memory.ConfigureFromEnv.
func LogMemoryConfig(result memory.ConfigResult) {
	section("MEMORY")
	switch {
	case !result.Configured:
		logging.Info("  GOMEMLIMIT: not set (set MEMORY_LIMIT to enable decode backpressure)")
	case result.Source == "MEMORY_LIMIT":
		logging.Info("  Container limit: %s", memory.FormatBytes(result.ContainerLimit))
		logging.Info("  GOMEMLIMIT:      %s (%.0f%%)", memory.FormatBytes(result.GoMemLimit), result.Ratio*100)
	default:
		logging.Info("  GOMEMLIMIT:      %s (from %s)", memory.FormatBytes(result.GoMemLimit), result.Source)
	}
}

// LogDatabaseInit logs database initialization
func LogDatabaseInit(duration time.Duration, entries int) {
	section("INDEX INITIALIZATION")
	logging.Info("  [OK] Index opened in %v", duration)
	logging.Info("  Cached entries: %d", entries)
}

// LogDecoderInit logs which image decoder is active.
func LogDecoderInit(vipsAvailable bool, shrink int) {
	section("DECODER INITIALIZATION")
	if vipsAvailable {
		logging.Info("  [OK] libvips available")
	} else {
		logging.Warn("  libvips unavailable, using the pure Go decoder")
	}
	logging.Info("  Default shrink: %d", shrink)
}

// LogPipelineInit logs pipeline settings.
func LogPipelineInit(workers int, cacheDir string, copyLocal bool) {
	section("PIPELINE INITIALIZATION")
	logging.Info("  Workers:    %d", workers)
	logging.Info("  Cache root: %s", cacheDir)
	logging.Info("  Copy local: %s", enabledString(copyLocal))
}

// GetRoutes extracts all registered routes from a mux.Router
func GetRoutes(router *mux.Router) ([]RouteInfo, error) {
	var routes []RouteInfo

	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		pathTemplate, err := route.GetPathTemplate()
		if err != nil {
			return err
		}

		methods, err := route.GetMethods()
		if err != nil {
			methods = []string{"*"}
		}

		for _, method := range methods {
			routes = append(routes, RouteInfo{
				Method: method,
				Path:   pathTemplate,
				Name:   route.GetName(),
			})
		}
		return nil
	})

	return routes, err
}

// LogHTTPRoutes logs the registered routes at debug level, grouped by prefix.
func LogHTTPRoutes(router *mux.Router, logStaticFiles, logHealthChecks bool) {
	section("HTTP SERVER SETUP")

	if logging.IsDebugEnabled() {
		routes, err := GetRoutes(router)
		if err != nil {
			logging.Warn("error walking routes: %v", err)
		}

		logging.Debug("  Registered routes (%d total):", len(routes))
		logging.Debug("")

		groups := make(map[string][]RouteInfo)
		for _, route := range routes {
			prefix := getRouteGroup(route.Path)
			groups[prefix] = append(groups[prefix], route)
		}

		groupKeys := make([]string, 0, len(groups))
		for k := range groups {
			groupKeys = append(groupKeys, k)
		}
		sort.Strings(groupKeys)

		for _, group := range groupKeys {
			if group != "" {
				logging.Debug("  [%s]", group)
			} else {
				logging.Debug("  [root]")
			}
			for _, route := range groups[group] {
				logging.Debug("    %-6s %s", route.Method, route.Path)
			}
			logging.Debug("")
		}
	}

	logging.Info("  HTTP logging enabled")
	if logStaticFiles {
		logging.Info("    Media stream logging: ON")
	} else {
		logging.Info("    Media stream logging: OFF (set LOG_STATIC_FILES=true to enable)")
	}
	if logHealthChecks {
		logging.Info("    Health check logging: ON")
	} else {
		logging.Info("    Health check logging: OFF (set LOG_HEALTH_CHECKS=true to enable)")
	}
}

// getRouteGroup extracts a group name from a route path
func getRouteGroup(path string) string {
	parts := strings.SplitN(strings.TrimPrefix(path, "/"), "/", 2)
	first := parts[0]
	if first == "api" && len(parts) > 1 {
		return "api/" + strings.SplitN(parts[1], "/", 2)[0]
	}
	return first
}

// ServerConfig holds configuration for the server startup log
type ServerConfig struct {
	Port            string
	MetricsPort     string
	MetricsEnabled  bool
	StartupDuration time.Duration
}

// LogServerStarted logs successful server start with all endpoint information
func LogServerStarted(config ServerConfig) {
	section("SERVER STARTED")
	logging.Info("  Startup time:    %v", config.StartupDuration)
	logging.Info("")
	logging.Info("  Endpoints:")
	logging.Info("    API:           http://0.0.0.0:%s/api", config.Port)
	if config.MetricsEnabled {
		logging.Info("    Metrics:       http://0.0.0.0:%s/metrics", config.MetricsPort)
	} else {
		logging.Info("    Metrics:       DISABLED")
	}
	logging.Info("")
	logging.Info("  Press Ctrl+C to stop the server")
	logging.Info("------------------------------------------------------------")
	logging.Info("")
}

// LogShutdownInitiated logs shutdown start
func LogShutdownInitiated(signal string) {
	section(fmt.Sprintf("SHUTDOWN INITIATED (received %s)", signal))
}

// LogShutdownStep logs a shutdown step
func LogShutdownStep(step string) {
	logging.Debug("  %s...", step)
}

// LogShutdownStepComplete logs a completed shutdown step
func LogShutdownStepComplete(step string) {
	logging.Info("  [OK] %s", step)
}

// LogShutdownComplete logs shutdown completion
func LogShutdownComplete() {
	logging.Info("  [OK] Shutdown complete")
}

func printBanner() {
	banner := `
------------------------------------------------------------
    __  ___         ___          ______           __
   /  |/  /__  ____/ (_)___ _   / ____/___ ______/ /_  ___
  / /|_/ / _ \/ __  / / __ '/  / /   / __ '/ ___/ __ \/ _ \
 / /  / /  __/ /_/ / / /_/ /  / /___/ /_/ / /__/ / / /  __/
/_/  /_/\___/\__,_/_/\__,_/   \____/\__,_/\___/_/ /_/\___/

------------------------------------------------------------`
	fmt.Println(banner)
	logging.Info("  Version:    %s", Version)
	logging.Info("  Commit:     %s", Commit)
	logging.Info("  Build Time: %s", BuildTime)
	logging.Info("  Started:    %s", time.Now().Format(time.RFC1123))
	logging.Info("")
}

func logSystemInfo() {
	logging.Info("------------------------------------------------------------")
	logging.Info("SYSTEM INFORMATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Go version:      %s", runtime.Version())
	logging.Info("  OS/Arch:         %s/%s", runtime.GOOS, runtime.GOARCH)
	logging.Info("  CPUs available:  %d", runtime.NumCPU())
	logging.Info("  GOMAXPROCS:      %d", runtime.GOMAXPROCS(0))

	if runtime.GOMAXPROCS(0) < runtime.NumCPU() {
		logging.Info("  (Container CPU limit detected)")
	}

	if logging.IsDebugEnabled() {
		logging.Debug("  Goroutines:      %d", runtime.NumGoroutine())
		if wd, err := os.Getwd(); err == nil {
			logging.Debug("  Working dir:     %s", wd)
		}
		if hostname, err := os.Hostname(); err == nil {
			logging.Debug("  Hostname:        %s", hostname)
		}
	}

	logging.Info("")
}

func ensureDirectory(path, name string) error {
	logging.Debug("  Checking %s directory: %s", name, path)

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		logging.Debug("    Directory does not exist, creating...")
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		logging.Debug("    [OK] Created directory: %s", path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path exists but is not a directory")
	}

	logging.Debug("    [OK] Directory exists")
	return nil
}

func testWriteAccess(dir string) error {
	testFile := filepath.Join(dir, ".write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		return err
	}
	if err := os.Remove(testFile); err != nil {
		logging.Warn("failed to remove write test file %s: %v", testFile, err)
	}
	return nil
}
