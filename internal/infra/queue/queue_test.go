package queue

import (
	"testing"
	"time"

	"github.com/jose-hbf/homebaseflights-sub001/internal/domain"
)

func TestPrepareJobFillsDefaults(t *testing.T) {
	job := domain.AlertJob{Airport: "JFK"}
	prepareJob(&job)
	if job.ID == "" || job.EnqueuedAt.IsZero() || job.Attempt != 1 {
		t.Fatalf("ожидали заполненные поля, получили %+v", job)
	}

	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	kept := domain.AlertJob{ID: "job-1", EnqueuedAt: at, Attempt: 3}
	prepareJob(&kept)
	if kept.ID != "job-1" || !kept.EnqueuedAt.Equal(at) || kept.Attempt != 3 {
		t.Fatalf("существующие поля не должны перезаписываться: %+v", kept)
	}
}
