// Command render runs one job to completion and exits. The job document is
// read from the file named by the first argument, or from stdin when no
// argument is given.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/dignitatesocial/dignitatevideo/internal/config"
	"github.com/dignitatesocial/dignitatevideo/internal/models"
	"github.com/dignitatesocial/dignitatevideo/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	data, err := readJob(os.Args[1:])
	if err != nil {
		log.Fatalf("Failed to read job document: %v", err)
	}

	job, err := models.DecodeJob(data)
	if err != nil {
		log.Fatalf("Failed to decode job document: %v", err)
	}

	orch := pipeline.FromConfig(cfg)

	videoURL, err := orch.Run(context.Background(), job)
	if err != nil {
		log.Printf("Render failed: %v", err)
		os.Exit(1)
	}

	fmt.Println(videoURL)
}

func readJob(args []string) ([]byte, error) {
	if len(args) > 0 {
		return os.ReadFile(args[0])
	}
	return io.ReadAll(os.Stdin)
}
