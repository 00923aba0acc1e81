package main

import (
	"log"

	"github.com/MrSnakeDoc/vsdesk/internal/app"
)

func main() {
	a, err := app.New()
	if err != nil {
		log.Fatalf("❌ vsdesk failed to start: %v", err)
	}
	if err := a.Run(); err != nil {
		log.Fatalf("❌ vsdesk failed: %v", err)
	}
}
