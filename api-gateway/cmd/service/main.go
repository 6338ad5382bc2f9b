package main

import (
	"log"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"

	"github.com/gin-gonic/gin"
)

// Edge gateway in front of the media service. Terminates the public port and
// forwards API and WebSocket traffic to the backend.
func main() {
	backendURL := os.Getenv("BACKEND_URL")
	if backendURL == "" {
		backendURL = "http://localhost:8080"
	}
	port := os.Getenv("GATEWAY_PORT")
	if port == "" {
		port = "8081"
	}

	backend, err := url.Parse(backendURL)
	if err != nil {
		log.Fatalf("Invalid BACKEND_URL %q: %v", backendURL, err)
	}
	proxy := httputil.NewSingleHostReverseProxy(backend)

	r := gin.Default()

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	forward := func(c *gin.Context) {
		proxy.ServeHTTP(c.Writer, c.Request)
	}
	r.Any("/api/*path", forward)
	r.Any("/swagger/*path", forward)

	if err := r.Run(":" + port); err != nil {
		log.Fatalf("Gateway failed: %v", err)
	}
}
