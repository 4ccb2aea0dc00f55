// Command scan runs the prescription pipeline on one image from the command
// line and prints the result as JSON.
//
//	scan -in rx.jpg [-mime image/jpeg]
//	scan -in notes.txt -text
//	scan -status
//	scan -in rx.jpg -enqueue [-job-id id]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/Jitheswar/ruralAi/prescription-worker/internal/config"
	"github.com/Jitheswar/ruralAi/prescription-worker/internal/errors"
	"github.com/Jitheswar/ruralAi/prescription-worker/internal/lexicon"
	"github.com/Jitheswar/ruralAi/prescription-worker/internal/logging"
	"github.com/Jitheswar/ruralAi/prescription-worker/internal/processor"
	"github.com/Jitheswar/ruralAi/prescription-worker/internal/queue"
	"github.com/Jitheswar/ruralAi/prescription-worker/internal/storage"
)

func main() {
	in := flag.String("in", "", "image (or text file with -text) to scan")
	mimeType := flag.String("mime", "", "MIME type hint; derived from the file extension when empty")
	asText := flag.Bool("text", false, "treat -in as already transcribed text")
	status := flag.Bool("status", false, "print model status and exit")
	enqueue := flag.Bool("enqueue", false, "submit -in to the worker queue instead of scanning locally")
	jobID := flag.String("job-id", "", "job ID for -enqueue (random when empty)")
	flag.Parse()

	_ = godotenv.Load(".env.prescription")

	cfg, err := config.LoadConfig()
	if err != nil {
		exitWith(err)
	}
	logging.SetLevel(cfg.LogLevel)
	logger := logging.NewLogger("scan")

	if *enqueue {
		data := readInput(*in)
		payload := &queue.ScanPayload{
			JobID:    *jobID,
			UserID:   "cli",
			Filename: filepath.Base(*in),
			MimeType: mimeFor(*in, *mimeType),
			Image:    data,
		}
		if payload.JobID == "" {
			payload.JobID = uuid.NewString()
		}
		id, err := queue.EnqueueScan(context.Background(), cfg.RedisURL, cfg.QueueName, payload)
		if err != nil {
			exitWith(err)
		}
		printJSON(map[string]string{"jobId": id, "queue": cfg.QueueName})
		return
	}

	var source lexicon.Source = lexicon.SeedFileSource{Path: cfg.MedicineSeedPath}
	if cfg.LexiconSource == config.LexiconSourcePostgres {
		db, err := storage.NewPostgresClient(cfg.DatabaseURL)
		if err != nil {
			exitWith(err)
		}
		defer db.Close()
		source = db
	}
	normalizer := lexicon.NewNormalizer(source, lexicon.Options{}, logger)

	pipeline, err := processor.NewPrescriptionPipeline(cfg.ProcessorConfig(normalizer, logger))
	if err != nil {
		exitWith(err)
	}

	if *status {
		printJSON(pipeline.Status())
		return
	}

	data := readInput(*in)
	if *asText {
		printJSON(pipeline.ParseText(string(data)))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.JobTimeout())
	defer cancel()

	start := time.Now()
	result, err := pipeline.Extract(ctx, data, mimeFor(*in, *mimeType))
	if err != nil {
		exitWith(err)
	}
	logger.Debug("Scan finished", "duration", time.Since(start))
	printJSON(result)
}

func readInput(path string) []byte {
	if path == "" {
		fmt.Fprintln(os.Stderr, "scan: -in is required")
		flag.Usage()
		os.Exit(2)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		exitWith(err)
	}
	return data
}

func mimeFor(path, hint string) string {
	if hint != "" {
		return hint
	}
	return mime.TypeByExtension(filepath.Ext(path))
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "scan: %v\n", err)
		os.Exit(1)
	}
}

// exitWith prints the {"error": ...} shape and exits non-zero.
func exitWith(err error) {
	printJSON(errors.ToResult(err))
	os.Exit(1)
}
