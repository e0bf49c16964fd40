package main

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/Nexora-Open-Source/blog-generator-backend/config"
)

// getAllowedOrigins returns the allowed origins of the configured environment
func getAllowedOrigins(corsConfig config.CORSConfig) []string {
	switch strings.ToLower(corsConfig.Environment) {
	case "production", "prod":
		return corsConfig.ProductionOrigins
	case "staging", "stage":
		return corsConfig.StagingOrigins
	default:
		return corsConfig.DevelopmentOrigins
	}
}

// matchesDomain reports whether origin is domain or one of its subdomains
func matchesDomain(origin, domain string) bool {
	if origin == "https://"+domain || origin == "http://"+domain {
		return true
	}
	return strings.HasSuffix(origin, "."+domain)
}

// isOriginAllowed checks if the origin is allowed based on CORS configuration
func isOriginAllowed(origin string, corsConfig config.CORSConfig) bool {
	allowedOrigins := getAllowedOrigins(corsConfig)

	for _, allowedOrigin := range allowedOrigins {
		if origin == allowedOrigin {
			return true
		}
	}

	if !corsConfig.AllowSubdomains {
		return false
	}

	for _, domain := range corsConfig.AllowedDomains {
		if matchesDomain(origin, domain) {
			return true
		}
	}
	for _, allowedOrigin := range allowedOrigins {
		if domain, ok := strings.CutPrefix(allowedOrigin, "*."); ok && matchesDomain(origin, domain) {
			return true
		}
	}

	return false
}

// CORSMiddleware sets CORS headers for allowed origins and answers preflight requests
func CORSMiddleware(next http.Handler, corsConfig config.CORSConfig) http.Handler {
	methods := "GET, POST, OPTIONS"
	if len(corsConfig.AllowedMethods) > 0 {
		methods = strings.Join(corsConfig.AllowedMethods, ", ")
	}
	headers := "Content-Type, Authorization, X-Requested-With, X-Request-ID"
	if len(corsConfig.AllowedHeaders) > 0 {
		headers = strings.Join(corsConfig.AllowedHeaders, ", ")
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		w.Header().Add("Vary", "Origin")

		if origin != "" && isOriginAllowed(origin, corsConfig) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		}

		w.Header().Set("Access-Control-Allow-Methods", methods)
		w.Header().Set("Access-Control-Allow-Headers", headers)

		if len(corsConfig.ExposedHeaders) > 0 {
			w.Header().Set("Access-Control-Expose-Headers", strings.Join(corsConfig.ExposedHeaders, ", "))
		}
		if corsConfig.AllowCredentials {
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}
		if corsConfig.MaxAge > 0 {
			w.Header().Set("Access-Control-Max-Age", fmt.Sprintf("%d", corsConfig.MaxAge))
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
