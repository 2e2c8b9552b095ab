package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"walletpulse/internal/consensus"
	"walletpulse/internal/lots"
	"walletpulse/internal/models"
)

func pendingJob(id, walletID uint64, jobType string, payload models.JobPayload) models.QueueJob {
	body, _ := json.Marshal(payload)
	return models.QueueJob{
		ID:       id,
		WalletID: walletID,
		JobType:  jobType,
		Payload:  body,
		Status:   models.JobPending,
	}
}

func newWorker(repo *stubRepo) *Worker {
	return &Worker{
		Repo:       repo,
		Lots:       &lots.Service{Repo: repo},
		Consensus:  &consensus.Detector{Repo: repo, Window: 2 * time.Hour, MinWallets: 2},
		RetryDelay: 30 * time.Second,
	}
}

func TestDrainRunsLotRecompute(t *testing.T) {
	repo := newStubRepo(pendingJob(1, 7, models.JobLotRecompute, models.JobPayload{TokenID: "meme"}))
	price := decimal.RequireFromString("3")
	repo.history = []models.Trade{{
		ID:               1,
		WalletID:         7,
		Side:             models.SideBuy,
		TokenID:          "meme",
		AmountToken:      decimal.RequireFromString("100"),
		TradeTime:        time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
		PriceUSDPerToken: &price,
	}}

	w := newWorker(repo)
	w.drain(context.Background())

	if repo.replaced != 1 {
		t.Fatalf("ReplaceWalletLots calls = %d, want 1", repo.replaced)
	}
	if len(repo.completed) != 1 || repo.completed[0] != 1 {
		t.Fatalf("completed = %v", repo.completed)
	}
	if len(repo.failures) != 0 {
		t.Fatalf("failures = %v", repo.failures)
	}
}

func TestDrainConsensusJobWithMissingTrade(t *testing.T) {
	repo := newStubRepo(pendingJob(1, 7, models.JobConsensusCheck, models.JobPayload{TokenID: "meme", TradeID: 99}))

	w := newWorker(repo)
	w.drain(context.Background())

	// The referenced trade was corrected away; the job completes as a no-op.
	if len(repo.completed) != 1 {
		t.Fatalf("completed = %v", repo.completed)
	}
}

func TestDrainFailsUnknownJobType(t *testing.T) {
	repo := newStubRepo(pendingJob(1, 7, "reindex", models.JobPayload{}))

	w := newWorker(repo)
	w.MaxAttempts = 1
	w.drain(context.Background())

	if len(repo.completed) != 0 {
		t.Fatalf("unknown job must not complete")
	}
	if _, ok := repo.failures[1]; !ok {
		t.Fatalf("unknown job must be marked failed")
	}
	if repo.jobs[0].Status != models.JobFailed {
		t.Fatalf("status = %q, want terminal failed", repo.jobs[0].Status)
	}
}

func TestDrainRetriesWithBackoff(t *testing.T) {
	repo := newStubRepo(pendingJob(1, 7, "reindex", models.JobPayload{}))

	w := newWorker(repo)
	w.MaxAttempts = 3
	w.drain(context.Background())

	// First attempt fails below the cap: the job re-arms as pending with a
	// future run time, so the same drain pass cannot claim it again.
	if repo.jobs[0].Status != models.JobPending {
		t.Fatalf("status = %q, want pending", repo.jobs[0].Status)
	}
	if !repo.jobs[0].NextRunAt.After(time.Now()) {
		t.Fatalf("next run must be deferred")
	}
	if repo.jobs[0].Attempts != 1 {
		t.Fatalf("attempts = %d, want 1", repo.jobs[0].Attempts)
	}
}

func TestFailLeavesRependedJobAlone(t *testing.T) {
	repo := newStubRepo(pendingJob(1, 7, models.JobLotRecompute, models.JobPayload{}))
	repo.jobs[0].Attempts = 5

	// The stale-claim sweep re-pended the row between the worker's claim and
	// its failure report; the report must not park it as failed.
	if err := repo.MarkJobFailed(context.Background(), 1, "handler timeout", time.Minute, 3); err != nil {
		t.Fatalf("MarkJobFailed: %v", err)
	}
	if repo.jobs[0].Status != models.JobPending {
		t.Fatalf("status = %q, want pending untouched", repo.jobs[0].Status)
	}
	if _, ok := repo.failures[1]; ok {
		t.Fatalf("no failure must be recorded for a re-pended job")
	}
}

func TestClaimSkipsProcessingJobs(t *testing.T) {
	job := pendingJob(1, 7, models.JobLotRecompute, models.JobPayload{})
	job.Status = models.JobProcessing
	repo := newStubRepo(job)

	claimed, err := repo.ClaimNextJob(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if claimed != nil {
		t.Fatalf("a processing job must not be claimable")
	}
}
