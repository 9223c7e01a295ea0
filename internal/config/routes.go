package config

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/snapp-incubator/conformer/internal/logging"
)

// RouteConfig represents per-route configuration overrides
type RouteConfig struct {
	SkipJSONPaths   []string `koanf:"skip_json_paths"`   // Route-specific JSON paths masked before comparing
	StoreReqBody    string   `koanf:"store_req_body"`    // Store request body on failures ("" = inherit, "enable"/"disable" = override)
	StoreRespBodies string   `koanf:"store_resp_bodies"` // Store response bodies on failures ("" = inherit, "enable"/"disable" = override)
}

// GlobalConfig represents global default configuration
type GlobalConfig struct {
	SkipJSONPaths   []string `koanf:"skip_json_paths"`   // Global JSON paths masked before comparing
	StoreReqBody    bool     `koanf:"store_req_body"`    // Default: false
	StoreRespBodies bool     `koanf:"store_resp_bodies"` // Default: true
}

// ComputedRouteConfig represents a fully resolved route configuration for runtime use
type ComputedRouteConfig struct {
	SkipJSONPaths   []string // JSON paths masked before comparing
	StoreReqBody    bool     // Resolved boolean value
	StoreRespBodies bool     // Resolved boolean value
}

// ComputedRouteConfigs contains pre-computed route configurations for fast runtime lookup
type ComputedRouteConfigs struct {
	// Pre-computed route configs: "GET:/admin/quiz/*" -> merged config
	Routes map[string]ComputedRouteConfig

	// Pre-computed global config
	Global ComputedRouteConfig

	// Skip routes for fast lookup: "DELETE:/clear" -> true
	SkipRoutes map[string]bool

	// Route patterns in lookup order
	patterns     []string
	skipPatterns []string
}

// validateRoutePatterns validates route patterns at startup to catch invalid patterns early
func (c *Config) validateRoutePatterns() error {
	validatePatterns := func(routes []string, context string) error {
		for _, route := range routes {
			_, path := ParseRoute(route)
			if !isValidRoutePattern(path) {
				return fmt.Errorf("invalid route pattern in %s: %s", context, route)
			}
		}
		return nil
	}

	if err := validatePatterns(c.SkipRoutes, "skip_routes"); err != nil {
		return err
	}

	routeConfigKeys := make([]string, 0, len(c.RouteConfigs))
	for route := range c.RouteConfigs {
		routeConfigKeys = append(routeConfigKeys, route)
	}
	return validatePatterns(routeConfigKeys, "route_configs")
}

// isValidRoutePattern validates that a route pattern is well-formed
func isValidRoutePattern(path string) bool {
	// Empty path is invalid
	if path == "" {
		return false
	}

	// Path should start with / or be a single *
	if !strings.HasPrefix(path, "/") && path != "*" {
		return false
	}

	// Double wildcards not supported
	if strings.Contains(path, "**") {
		return false
	}

	// Only /* or single * allowed at end
	if strings.HasSuffix(path, "*") && !strings.HasSuffix(path, "/*") && path != "*" {
		return false
	}

	return true
}

// FormatRoute formats HTTP method and path into a route string
func FormatRoute(method, path string) string {
	return fmt.Sprintf("%s:%s", strings.ToUpper(method), path)
}

// ParseRoute parses a route string into method and path components
func ParseRoute(route string) (method, path string) {
	parts := strings.SplitN(route, ":", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	// If no method specified, assume wildcard
	return "*", route
}

// MatchRoute checks if a request route matches a configured route pattern
func MatchRoute(requestRoute, configRoute string) bool {
	requestMethod, requestPath := ParseRoute(requestRoute)
	configMethod, configPath := ParseRoute(configRoute)

	// Check method match (wildcard "*" matches any method)
	if configMethod != "*" && configMethod != requestMethod {
		return false
	}

	return matchPath(requestPath, configPath)
}

// matchPath checks if a request path matches a configured path pattern
func matchPath(requestPath, configPath string) bool {
	if requestPath == configPath || configPath == "*" {
		return true
	}

	if strings.Contains(configPath, "*") {
		return matchSegmentWildcards(requestPath, configPath)
	}

	matched, _ := path.Match(configPath, requestPath)
	return matched
}

// matchSegmentWildcards handles segment-aware wildcard matching
func matchSegmentWildcards(requestPath, configPath string) bool {
	// A trailing /* is a prefix match only when it is the pattern's sole wildcard,
	// so "/admin/quiz/*" matches any depth but "/admin/*/name/*" matches per segment
	if strings.HasSuffix(configPath, "/*") {
		segments := strings.Split(strings.Trim(configPath, "/"), "/")
		hasOtherWildcards := false
		for i, seg := range segments {
			if seg == "*" && i != len(segments)-1 {
				hasOtherWildcards = true
				break
			}
		}

		if !hasOtherWildcards {
			prefix := strings.TrimSuffix(configPath, "/*")
			return strings.HasPrefix(requestPath, prefix)
		}
	}

	requestSegments := strings.Split(strings.Trim(requestPath, "/"), "/")
	configSegments := strings.Split(strings.Trim(configPath, "/"), "/")

	if len(requestSegments) == 1 && requestSegments[0] == "" {
		requestSegments = []string{}
	}
	if len(configSegments) == 1 && configSegments[0] == "" {
		configSegments = []string{}
	}

	if len(requestSegments) != len(configSegments) {
		return false
	}

	for i, configSeg := range configSegments {
		if configSeg == "*" {
			// Single * matches any single segment (path parameter)
			continue
		}
		if configSeg != requestSegments[i] {
			return false
		}
	}

	return true
}

// PrecomputeRouteConfigs creates pre-computed route configurations for fast runtime lookup
func (c *Config) PrecomputeRouteConfigs() *ComputedRouteConfigs {
	computed := &ComputedRouteConfigs{
		Routes:     make(map[string]ComputedRouteConfig),
		SkipRoutes: make(map[string]bool),
	}

	computed.Global = ComputedRouteConfig{
		SkipJSONPaths:   append([]string{}, c.GlobalConfig.SkipJSONPaths...),
		StoreReqBody:    c.GlobalConfig.StoreReqBody,
		StoreRespBodies: c.GlobalConfig.StoreRespBodies,
	}

	logging.L.Debug("global config", zap.Any("config", computed.Global))

	for _, skipRoute := range c.SkipRoutes {
		computed.SkipRoutes[skipRoute] = true
		computed.skipPatterns = append(computed.skipPatterns, skipRoute)
	}

	for routePattern, routeConfig := range c.RouteConfigs {
		// Start with global config as base
		mergedConfig := ComputedRouteConfig{
			SkipJSONPaths:   append([]string{}, computed.Global.SkipJSONPaths...),
			StoreReqBody:    computed.Global.StoreReqBody,
			StoreRespBodies: computed.Global.StoreRespBodies,
		}

		// Override with route-specific config using semantic keywords;
		// an empty string inherits from global
		if routeConfig.StoreReqBody == "enable" {
			mergedConfig.StoreReqBody = true
		} else if routeConfig.StoreReqBody == "disable" {
			mergedConfig.StoreReqBody = false
		}

		if routeConfig.StoreRespBodies == "enable" {
			mergedConfig.StoreRespBodies = true
		} else if routeConfig.StoreRespBodies == "disable" {
			mergedConfig.StoreRespBodies = false
		}

		if len(routeConfig.SkipJSONPaths) > 0 {
			mergedConfig.SkipJSONPaths = append(mergedConfig.SkipJSONPaths, routeConfig.SkipJSONPaths...)
		}

		computed.Routes[routePattern] = mergedConfig
		computed.patterns = append(computed.patterns, routePattern)

		logging.L.Debug("route_config", zap.String("pattern", routePattern), zap.Any("config", mergedConfig))
	}

	// Map iteration order is random; sort so overlapping patterns resolve the same way every run
	sort.Strings(computed.patterns)
	sort.Strings(computed.skipPatterns)

	return computed
}

// Lookup returns pre-computed route configuration for runtime lookup
func (cc *ComputedRouteConfigs) Lookup(route string) ComputedRouteConfig {
	if config, exists := cc.Routes[route]; exists {
		return config
	}

	for _, configRoute := range cc.patterns {
		if MatchRoute(route, configRoute) {
			return cc.Routes[configRoute]
		}
	}

	return cc.Global
}

// IsSkipped checks if a route should be skipped using pre-computed lookup
func (cc *ComputedRouteConfigs) IsSkipped(route string) bool {
	if cc.SkipRoutes[route] {
		return true
	}

	for _, skipRoute := range cc.skipPatterns {
		if MatchRoute(route, skipRoute) {
			return true
		}
	}

	return false
}
