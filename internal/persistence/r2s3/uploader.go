package r2s3

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Putter stores one local file under a key. *Client satisfies it.
type Putter interface {
	PutFile(ctx context.Context, objectKey, localPath string) error
}

type UploaderConfig struct {
	// BaseDir is stripped from local paths to build object keys.
	BaseDir string
	Prefix  string
	Workers int
	Queue   int
	// EnqueueWait bounds how long Enqueue blocks on a full queue.
	EnqueueWait time.Duration
	Attempts    int
}

type Stats struct {
	QueueDepth          int
	QueueCapacity       int
	EnqueuedTotal       uint64
	QueueSaturatedTotal uint64
	DroppedTotal        uint64
	UploadSuccessTotal  uint64
	UploadFailTotal     uint64
	LastSuccessUnix     int64
	LastErrorUnix       int64
}

// Uploader copies closed recording files to object storage from a small
// worker pool.
type Uploader struct {
	put     Putter
	cfg     UploaderConfig
	log     logrus.FieldLogger
	backoff func(attempt int) time.Duration

	jobs chan string
	wg   sync.WaitGroup
	once sync.Once

	enqueuedTotal       atomic.Uint64
	queueSaturatedTotal atomic.Uint64
	droppedTotal        atomic.Uint64
	uploadSuccessTotal  atomic.Uint64
	uploadFailTotal     atomic.Uint64
	lastSuccessUnix     atomic.Int64
	lastErrorUnix       atomic.Int64
}

func NewUploader(put Putter, cfg UploaderConfig, log logrus.FieldLogger) *Uploader {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Queue <= 0 {
		cfg.Queue = 256
	}
	if cfg.EnqueueWait <= 0 {
		cfg.EnqueueWait = 25 * time.Millisecond
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 4
	}
	cfg.Prefix = strings.Trim(strings.ReplaceAll(cfg.Prefix, "\\", "/"), "/")

	u := &Uploader{
		put:     put,
		cfg:     cfg,
		log:     log.WithField("component", "archive"),
		backoff: defaultBackoff,
		jobs:    make(chan string, cfg.Queue),
	}
	for i := 0; i < cfg.Workers; i++ {
		u.wg.Add(1)
		go func() {
			defer u.wg.Done()
			for localPath := range u.jobs {
				u.uploadOne(localPath)
			}
		}()
	}
	return u
}

func defaultBackoff(attempt int) time.Duration {
	return time.Duration(attempt*attempt) * 200 * time.Millisecond
}

// Enqueue schedules localPath for upload. It is called from the recorder's
// write path, so it waits at most EnqueueWait before dropping the file.
func (u *Uploader) Enqueue(localPath string) {
	if u == nil {
		return
	}
	u.enqueuedTotal.Add(1)

	select {
	case u.jobs <- localPath:
		return
	default:
	}

	u.queueSaturatedTotal.Add(1)
	timer := time.NewTimer(u.cfg.EnqueueWait)
	defer timer.Stop()
	select {
	case u.jobs <- localPath:
	case <-timer.C:
		dropped := u.droppedTotal.Add(1)
		u.log.WithFields(logrus.Fields{"local": localPath, "dropped_total": dropped}).Warn("archive queue saturated, dropping file")
	}
}

// Close waits for queued uploads to finish.
func (u *Uploader) Close() {
	if u == nil {
		return
	}
	u.once.Do(func() {
		close(u.jobs)
		u.wg.Wait()
	})
}

func (u *Uploader) Stats() Stats {
	if u == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:          len(u.jobs),
		QueueCapacity:       cap(u.jobs),
		EnqueuedTotal:       u.enqueuedTotal.Load(),
		QueueSaturatedTotal: u.queueSaturatedTotal.Load(),
		DroppedTotal:        u.droppedTotal.Load(),
		UploadSuccessTotal:  u.uploadSuccessTotal.Load(),
		UploadFailTotal:     u.uploadFailTotal.Load(),
		LastSuccessUnix:     u.lastSuccessUnix.Load(),
		LastErrorUnix:       u.lastErrorUnix.Load(),
	}
}

func (u *Uploader) uploadOne(localPath string) {
	log := u.log.WithField("local", localPath)
	key, err := u.objectKey(localPath)
	if err != nil {
		log.WithError(err).Warn("archive skip")
		return
	}
	log = log.WithField("key", key)

	if err := u.uploadWithRetry(key, localPath); err != nil {
		u.uploadFailTotal.Add(1)
		u.lastErrorUnix.Store(time.Now().UTC().Unix())
		log.WithError(err).Error("archive upload failed")
		return
	}
	u.uploadSuccessTotal.Add(1)
	u.lastSuccessUnix.Store(time.Now().UTC().Unix())
	log.Info("archived")
}

func (u *Uploader) uploadWithRetry(key, localPath string) error {
	var lastErr error
	for attempt := 1; attempt <= u.cfg.Attempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		err := u.put.PutFile(ctx, key, localPath)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt < u.cfg.Attempts {
			time.Sleep(u.backoff(attempt))
		}
	}
	return lastErr
}

func (u *Uploader) objectKey(localPath string) (string, error) {
	if localPath == "" {
		return "", fmt.Errorf("empty local path")
	}
	if _, err := os.Stat(localPath); err != nil {
		return "", err
	}

	absBase, err := filepath.Abs(u.cfg.BaseDir)
	if err != nil {
		return "", err
	}
	absLocal, err := filepath.Abs(localPath)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(absBase, absLocal)
	if err != nil {
		return "", err
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("path %s is outside %s", absLocal, absBase)
	}

	if u.cfg.Prefix != "" {
		return path.Join(u.cfg.Prefix, rel), nil
	}
	return rel, nil
}
