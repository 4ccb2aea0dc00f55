package queue

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/hibiken/asynq"

	"github.com/Jitheswar/ruralAi/prescription-worker/internal/errors"
	"github.com/Jitheswar/ruralAi/prescription-worker/internal/logging"
	"github.com/Jitheswar/ruralAi/prescription-worker/internal/parser"
	"github.com/Jitheswar/ruralAi/prescription-worker/internal/storage"
)

type fakeExtractor struct {
	result parser.Result
	err    error
	block  bool
	calls  int
}

func (f *fakeExtractor) Extract(ctx context.Context, _ []byte, _ string) (parser.Result, error) {
	f.calls++
	if f.block {
		<-ctx.Done()
		return parser.Result{}, fmt.Errorf("tesseract: %w", ctx.Err())
	}
	return f.result, f.err
}

type memoryCache struct {
	items map[string]*parser.Result
}

func (m *memoryCache) Get(_ context.Context, key string) (*parser.Result, bool, error) {
	r, ok := m.items[key]
	return r, ok, nil
}

func (m *memoryCache) Set(_ context.Context, key string, result *parser.Result) error {
	m.items[key] = result
	return nil
}

type memoryStore struct {
	records []storage.ScanRecord
	err     error
}

func (m *memoryStore) SaveScan(_ context.Context, rec *storage.ScanRecord) error {
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, *rec)
	return nil
}

func sampleResult() parser.Result {
	return parser.Result{
		Medicines:     []parser.Medicine{{BrandName: "Paracetamol", Dosage: "500 mg", Frequency: "twice daily"}},
		DoctorName:    "R Sharma",
		Confidence:    parser.ConfidenceHigh,
		OCREngine:     parser.EngineTrOCR,
		OCRConfidence: 0.78,
		Warnings:      []string{},
	}
}

func testConsumer(t *testing.T, extractor Extractor, cache ResultCache, store ScanStore) *Consumer {
	t.Helper()
	c, err := newConsumer(&ConsumerConfig{
		Extractor:         extractor,
		Cache:             cache,
		Store:             store,
		MaxImageSize:      1024,
		ProcessingTimeout: 50 * time.Millisecond,
		Logger:            logging.Nop(),
	})
	if err != nil {
		t.Fatalf("newConsumer: %v", err)
	}
	return c
}

func TestProcessStoresAndCaches(t *testing.T) {
	extractor := &fakeExtractor{result: sampleResult()}
	cache := &memoryCache{items: map[string]*parser.Result{}}
	store := &memoryStore{}
	c := testConsumer(t, extractor, cache, store)

	job := &ScanPayload{JobID: "job-1", UserID: "u-7", Filename: "rx.png", Image: []byte("png bytes")}
	result, err := c.Process(context.Background(), job)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.Medicines[0].BrandName != "Paracetamol" {
		t.Errorf("result = %+v", result)
	}
	if len(store.records) != 1 || store.records[0].Status != storage.StatusCompleted {
		t.Fatalf("records = %+v", store.records)
	}
	if store.records[0].ImageSHA256 != storage.ImageDigest(job.Image) {
		t.Errorf("ImageSHA256 = %q", store.records[0].ImageSHA256)
	}
	if _, ok := cache.items[storage.CacheKey(job.Image)]; !ok {
		t.Error("result was not cached")
	}

	// Same image again: answered from cache.
	again := &ScanPayload{JobID: "job-2", Image: []byte("png bytes")}
	if _, err := c.Process(context.Background(), again); err != nil {
		t.Fatalf("second Process: %v", err)
	}
	if extractor.calls != 1 {
		t.Errorf("extractor calls = %d, want 1", extractor.calls)
	}
	if len(store.records) != 2 || store.records[1].JobID != "job-2" {
		t.Errorf("cache hit should still be recorded, records = %d", len(store.records))
	}
}

func TestProcessRejectsLargeImages(t *testing.T) {
	extractor := &fakeExtractor{result: sampleResult()}
	store := &memoryStore{}
	c := testConsumer(t, extractor, nil, store)

	_, err := c.Process(context.Background(), &ScanPayload{JobID: "big", Image: make([]byte, 2048)})
	var perr *errors.ProcessingError
	if !stderrors.As(err, &perr) || perr.Code != errors.ErrorImageTooLarge {
		t.Fatalf("err = %v, want IMAGE_TOO_LARGE", err)
	}
	if extractor.calls != 0 {
		t.Error("oversized image should not reach the pipeline")
	}
	if len(store.records) != 1 || store.records[0].ErrorCode != string(errors.ErrorImageTooLarge) {
		t.Errorf("records = %+v", store.records)
	}
}

func TestProcessTimeout(t *testing.T) {
	c := testConsumer(t, &fakeExtractor{block: true}, nil, nil)

	_, err := c.Process(context.Background(), &ScanPayload{JobID: "slow", Image: []byte("x")})
	var perr *errors.ProcessingError
	if !stderrors.As(err, &perr) || perr.Code != errors.ErrorProcessingTimeout {
		t.Fatalf("err = %v, want PROCESSING_TIMEOUT", err)
	}
	if !perr.Retryable() {
		t.Error("timeouts should be retryable")
	}
}

func TestProcessStoreFailure(t *testing.T) {
	c := testConsumer(t, &fakeExtractor{result: sampleResult()}, nil, &memoryStore{err: fmt.Errorf("connection reset")})

	_, err := c.Process(context.Background(), &ScanPayload{JobID: "j", Image: []byte("x")})
	var perr *errors.ProcessingError
	if !stderrors.As(err, &perr) || perr.Code != errors.ErrorStorageFailed {
		t.Fatalf("err = %v, want STORAGE_FAILED", err)
	}
}

func TestHandleScanPrescriptionRetryPolicy(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		payload  []byte
		wantErr  bool
		wantSkip bool
	}{
		{"success", nil, nil, false, false},
		{"no text is terminal", errors.NewNoTextError(parser.EngineTesseract), nil, true, true},
		{"decode is terminal", errors.NewDecodeError(fmt.Errorf("unknown format")), nil, true, true},
		{"ocr failure retries", errors.NewOCRFailedError("tesseract", fmt.Errorf("no language data")), nil, true, false},
		{"bad payload is terminal", nil, []byte(`{"jobId": 5}`), true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := testConsumer(t, &fakeExtractor{result: sampleResult(), err: tt.err}, nil, nil)
			payload := tt.payload
			if payload == nil {
				payload, _ = json.Marshal(&ScanPayload{JobID: "j", Image: []byte("img")})
			}

			err := c.handleScanPrescription(context.Background(), asynq.NewTask(TaskTypeScanPrescription, payload))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got := stderrors.Is(err, asynq.SkipRetry); got != tt.wantSkip {
				t.Errorf("SkipRetry = %v, want %v (err = %v)", got, tt.wantSkip, err)
			}
		})
	}
}

func TestNewConsumerValidation(t *testing.T) {
	if _, err := NewConsumer(&ConsumerConfig{QueueName: "q", Extractor: &fakeExtractor{}}); err == nil {
		t.Error("missing RedisURL should fail")
	}
	if _, err := NewConsumer(&ConsumerConfig{RedisURL: "redis://localhost:6379", Extractor: &fakeExtractor{}}); err == nil {
		t.Error("missing QueueName should fail")
	}
	if _, err := NewConsumer(&ConsumerConfig{RedisURL: "redis://localhost:6379", QueueName: "q"}); err == nil {
		t.Error("missing Extractor should fail")
	}
}
