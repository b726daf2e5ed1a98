package main

import (
	"log"

	"refundkeeper/services/refundd"
)

func main() {
	if err := refundd.Main(); err != nil {
		log.Fatalf("refundd: %v", err)
	}
}
