package analyses

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"intake-portal/internal/clients"
	"intake-portal/internal/docintel"
	"intake-portal/internal/queue"
	"intake-portal/internal/shared/metrics"
	"intake-portal/internal/shared/storage/object"
	"intake-portal/internal/shared/telemetry"
)

const (
	defaultTimeout      = 2 * time.Minute
	defaultPollInterval = time.Second
	// maxDocumentBytes bounds how much of a blob is read into memory for analysis.
	maxDocumentBytes = 50 << 20
)

// ClientLookup resolves client ids; *clients.Service satisfies it.
type ClientLookup interface {
	Get(ctx context.Context, id int64) (clients.Client, error)
}

// Service runs document analyses as queued jobs.
type Service struct {
	Repo               Repo
	Clients            ClientLookup
	Store              object.Store
	Analyzer           docintel.Analyzer
	Queue              queue.Client
	IncomingContainer  string
	ProcessedContainer string
	Timeout            time.Duration
	PollInterval       time.Duration
	Now                func() time.Time

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

// Start validates that blobName belongs to the client and exists in the incoming container, then
// records a queued job and hands it to the queue.
func (s *Service) Start(ctx context.Context, clientID int64, blobName string) (Job, error) {
	blobName = strings.TrimSpace(blobName)
	key, err := object.CleanKey(blobName)
	if err != nil || !strings.HasPrefix(key, strconv.FormatInt(clientID, 10)+"/") {
		return Job{}, fmt.Errorf("%w: blob %q does not belong to client %d", ErrInvalidInput, blobName, clientID)
	}
	if _, err := s.Clients.Get(ctx, clientID); err != nil {
		return Job{}, err
	}
	ok, err := s.Store.Exists(ctx, s.IncomingContainer, key)
	if err != nil {
		return Job{}, fmt.Errorf("check blob=%s: %w", key, err)
	}
	if !ok {
		return Job{}, fmt.Errorf("blob=%s: %w", key, object.ErrNotFound)
	}
	if s.Queue == nil {
		return Job{}, ErrJobQueueNotConfigured
	}

	job := Job{
		ID:        uuid.NewString(),
		ClientID:  clientID,
		BlobName:  key,
		Status:    StatusQueued,
		CreatedAt: s.now(),
	}
	if err := s.Repo.Create(ctx, job); err != nil {
		return Job{}, err
	}
	telemetry.Info("analysis.status", map[string]any{
		"request_id":  telemetry.RequestID(ctx),
		"client_id":   clientID,
		"blob_name":   key,
		"analysis_id": job.ID,
		"status":      StatusQueued,
	})

	if err := s.Queue.Send(ctx, queue.NewMessage(job.ID, telemetry.RequestID(ctx))); err != nil {
		s.failAnalysis(ctx, job, fmt.Errorf("enqueue: %w", err), nil)
		return Job{}, fmt.Errorf("enqueue analysis id=%s: %w", job.ID, err)
	}
	return job, nil
}

// Process runs one queued job to completion. A job that is no longer queued is skipped.
func (s *Service) Process(ctx context.Context, id string) (err error) {
	job, err := s.Repo.Get(ctx, id)
	if err != nil {
		return err
	}
	startedAt := s.now()
	if err := s.Repo.MarkProcessing(ctx, id, startedAt); err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			telemetry.Info("analysis.skipped", map[string]any{
				"request_id":  telemetry.RequestID(ctx),
				"analysis_id": id,
				"status":      job.Status,
			})
			return nil
		}
		return err
	}
	job.Status = StatusProcessing
	metrics.IncAnalysisStarted()
	telemetry.Info("analysis.status", map[string]any{
		"request_id":        telemetry.RequestID(ctx),
		"client_id":         job.ClientID,
		"blob_name":         job.BlobName,
		"analysis_id":       id,
		"status":            StatusProcessing,
		"status_transition": "queued->processing",
	})

	jobCtx, cancel := context.WithTimeout(ctx, s.timeout())
	defer cancel()
	s.track(id, cancel)
	defer s.untrack(id)
	go s.watchCanceled(jobCtx, id, cancel)

	defer func() {
		if r := recover(); r != nil {
			s.failAnalysis(ctx, job, fmt.Errorf("panic: %v", r), &startedAt)
			err = nil
		}
	}()

	summary, processedKey, runErr := s.run(jobCtx, job)
	if runErr != nil {
		s.failAnalysis(ctx, job, runErr, &startedAt)
		return nil
	}

	completedAt := s.now()
	if err := s.Repo.Complete(context.WithoutCancel(ctx), id, summary, processedKey, completedAt); err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			telemetry.Info("analysis.cancel.observed", map[string]any{
				"request_id":  telemetry.RequestID(ctx),
				"analysis_id": id,
			})
			return nil
		}
		s.failAnalysis(ctx, job, storageErr(fmt.Errorf("set analysis result: %w", err)), &startedAt)
		return nil
	}
	metrics.IncAnalysisCompleted()
	metrics.ObserveAnalysisDurationMs(durationMs(&startedAt, &completedAt))
	telemetry.Info("analysis.status", map[string]any{
		"request_id":        telemetry.RequestID(ctx),
		"client_id":         job.ClientID,
		"blob_name":         job.BlobName,
		"analysis_id":       id,
		"processed_key":     processedKey,
		"status":            StatusCompleted,
		"status_transition": "processing->completed",
		"duration_ms":       durationMs(&startedAt, &completedAt),
	})
	return nil
}

func (s *Service) run(ctx context.Context, job Job) (Summary, string, error) {
	if s.Store == nil || s.Analyzer == nil {
		return Summary{}, "", errors.New("missing store or analyzer")
	}
	data, err := s.readBlob(ctx, job.BlobName)
	if err != nil {
		return Summary{}, "", err
	}

	res, err := s.Analyzer.Analyze(ctx, data, contentTypeFor(job.BlobName))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Summary{}, "", fmt.Errorf("analyze blob=%s: %w", job.BlobName, ctxErr)
		}
		return Summary{}, "", fmt.Errorf("analyze blob=%s: %w", job.BlobName, err)
	}
	summary := BuildSummary(res)
	payload, err := json.Marshal(summary)
	if err != nil {
		return Summary{}, "", fmt.Errorf("marshal summary: %w", err)
	}

	// A job canceled or timed out after analysis must not write to the processed container.
	if err := ctx.Err(); err != nil {
		return Summary{}, "", err
	}
	key := ProcessedKey(job.ClientID, job.BlobName)
	if _, err := s.Store.Put(ctx, s.ProcessedContainer, key, "application/json", bytes.NewReader(payload)); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Summary{}, "", ctxErr
		}
		return Summary{}, "", storageErr(fmt.Errorf("write summary key=%s: %w", key, err))
	}
	return summary, key, nil
}

func (s *Service) readBlob(ctx context.Context, blobName string) ([]byte, error) {
	rc, err := s.Store.Open(ctx, s.IncomingContainer, blobName)
	if err != nil {
		if errors.Is(err, object.ErrNotFound) {
			return nil, fmt.Errorf("open blob=%s: %w", blobName, err)
		}
		return nil, storageErr(fmt.Errorf("open blob=%s: %w", blobName, err))
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, maxDocumentBytes))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, storageErr(fmt.Errorf("read blob=%s: %w", blobName, err))
	}
	return data, nil
}

// Cancel marks a queued or processing job canceled and stops it if it runs in this process.
func (s *Service) Cancel(ctx context.Context, id string) (Job, error) {
	if err := s.Repo.Cancel(ctx, id, s.now()); err != nil {
		return Job{}, err
	}
	s.mu.Lock()
	if cancel, ok := s.running[id]; ok {
		cancel()
	}
	s.mu.Unlock()

	metrics.IncAnalysisCanceled()
	telemetry.Info("analysis.status", map[string]any{
		"request_id":  telemetry.RequestID(ctx),
		"analysis_id": id,
		"status":      StatusCanceled,
	})
	return s.Repo.Get(ctx, id)
}

// Wait polls the job until it reaches a terminal status or ctx is done. On ctx expiry it returns
// the last observed job together with the context error.
func (s *Service) Wait(ctx context.Context, id string) (Job, error) {
	ticker := time.NewTicker(s.pollInterval())
	defer ticker.Stop()
	for {
		job, err := s.Repo.Get(ctx, id)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return job, ctxErr
			}
			return Job{}, err
		}
		if job.Terminal() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Service) Get(ctx context.Context, id string) (Job, error) {
	return s.Repo.Get(ctx, id)
}

func (s *Service) ListByClient(ctx context.Context, clientID int64, limit int) ([]Job, error) {
	return s.Repo.ListByClient(ctx, clientID, limit)
}

// FailUnfinished fails jobs left queued or processing by a previous run. Only valid when jobs
// are executed in-process.
func (s *Service) FailUnfinished(ctx context.Context) (int64, error) {
	n, err := s.Repo.FailUnfinished(ctx, ErrorCodeInternal, "interrupted by restart", s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		telemetry.Warn("analysis.recovered", map[string]any{"failed": n})
	}
	return n, nil
}

// watchCanceled stops the job when another process cancels it in the database.
func (s *Service) watchCanceled(ctx context.Context, id string, cancel context.CancelFunc) {
	ticker := time.NewTicker(s.pollInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			job, err := s.Repo.Get(ctx, id)
			if err != nil {
				continue
			}
			if job.Status == StatusCanceled {
				cancel()
				return
			}
		}
	}
}

func (s *Service) track(id string, cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running == nil {
		s.running = make(map[string]context.CancelFunc)
	}
	s.running[id] = cancel
}

func (s *Service) untrack(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, id)
}

func (s *Service) failAnalysis(ctx context.Context, job Job, err error, startedAt *time.Time) {
	code := classifyFailure(err)
	msg := sanitizeError(err)
	completedAt := s.now()
	if updateErr := s.Repo.Fail(context.WithoutCancel(ctx), job.ID, code, msg, completedAt); updateErr != nil {
		if errors.Is(updateErr, ErrInvalidTransition) {
			// Canceled while running; the cancel already recorded the outcome.
			telemetry.Info("analysis.cancel.observed", map[string]any{
				"request_id":  telemetry.RequestID(ctx),
				"analysis_id": job.ID,
			})
			return
		}
		telemetry.Error("analysis.fail.update_failed", map[string]any{
			"request_id":  telemetry.RequestID(ctx),
			"analysis_id": job.ID,
			"error":       updateErr,
			"cause":       err,
		})
	}
	metrics.IncAnalysisFailed(code)
	if startedAt != nil {
		metrics.ObserveAnalysisDurationMs(durationMs(startedAt, &completedAt))
	}
	telemetry.Warn("analysis.status", map[string]any{
		"request_id":        telemetry.RequestID(ctx),
		"client_id":         job.ClientID,
		"blob_name":         job.BlobName,
		"analysis_id":       job.ID,
		"status":            StatusFailed,
		"status_transition": job.Status + "->failed",
		"error_code":        code,
		"error":             err,
		"duration_ms":       durationMs(startedAt, &completedAt),
	})
}

func (s *Service) timeout() time.Duration {
	if s.Timeout > 0 {
		return s.Timeout
	}
	return defaultTimeout
}

func (s *Service) pollInterval() time.Duration {
	if s.PollInterval > 0 {
		return s.PollInterval
	}
	return defaultPollInterval
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func durationMs(startedAt, completedAt *time.Time) float64 {
	if startedAt == nil || completedAt == nil {
		return 0
	}
	return float64(completedAt.Sub(*startedAt).Microseconds()) / 1000.0
}

func classifyFailure(err error) string {
	if err == nil {
		return ErrorCodeInternal
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorCodeTimeout
	}
	if errors.Is(err, context.Canceled) {
		return ErrorCodeCanceled
	}
	var stage *stageError
	if errors.As(err, &stage) {
		return stage.code
	}
	if errors.Is(err, object.ErrNotFound) {
		return ErrorCodeNotFound
	}
	var svcErr *docintel.ServiceError
	if errors.As(err, &svcErr) {
		return ErrorCodeUpstream
	}
	return ErrorCodeInternal
}

func sanitizeError(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.ReplaceAll(err.Error(), "\n", " ")
	msg = strings.ReplaceAll(msg, "\r", " ")
	msg = strings.TrimSpace(msg)
	const maxLen = 500
	if len(msg) > maxLen {
		msg = msg[:maxLen]
		for !utf8.ValidString(msg) {
			msg = msg[:len(msg)-1]
		}
	}
	return msg
}

var knownContentTypes = map[string]string{
	".pdf":  "application/pdf",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".txt":  "text/plain",
	".csv":  "text/csv",
	".md":   "text/markdown",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
}

func contentTypeFor(blobName string) string {
	ext := strings.ToLower(path.Ext(blobName))
	if ct, ok := knownContentTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
