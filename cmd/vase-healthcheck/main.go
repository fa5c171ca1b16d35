package main

import (
	"fmt"
	"net/http"
	"os"
	"time"
)

func main() {
	target := os.Getenv("VASE_HEALTHCHECK_URL")
	if target == "" {
		target = "http://127.0.0.1:3000/chat/info"
	}

	client := http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(target)
	if err != nil {
		fmt.Fprintf(os.Stderr, "healthcheck failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "healthcheck failed: received status %d\n", resp.StatusCode)
		os.Exit(1)
	}

	os.Exit(0)
}
