package store

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/gwlsn/rdcompare/internal/compare"
	"github.com/gwlsn/rdcompare/internal/metrics"
)

func TestConcurrency_MultipleWriters(t *testing.T) {
	store := newTestStore(t)

	numWorkers := 8
	opsPerWorker := 10

	var wg sync.WaitGroup
	errors := make(chan error, numWorkers*opsPerWorker)

	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for i := 0; i < opsPerWorker; i++ {
				video := fmt.Sprintf("video_%d", workerID)
				row := createTestRow(video, float64(1000*(i+1)), 80+float64(i))
				if _, err := store.UpsertMeasurements(metrics.NewTable(testSchema(), row)); err != nil {
					errors <- fmt.Errorf("worker %d measurement %d: %w", workerID, i, err)
					return
				}
			}
		}(w)
	}

	wg.Wait()
	close(errors)

	for err := range errors {
		t.Error(err)
	}

	got, err := store.LoadMeasurements(testSchema())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Len() != numWorkers*opsPerWorker {
		t.Errorf("expected %d rows, got %d", numWorkers*opsPerWorker, got.Len())
	}
	if len(got.Videos()) != numWorkers {
		t.Errorf("expected %d videos, got %d", numWorkers, len(got.Videos()))
	}
}

func TestConcurrency_ReadersAndWriters(t *testing.T) {
	store := newTestStore(t)

	var wg sync.WaitGroup
	errors := make(chan error, 100)

	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				row := createTestComparison(fmt.Sprintf("c%d", i), fmt.Sprintf("video_%d", workerID), float64(-i))
				if _, err := store.UpsertComparisons([]compare.Row{row}, uuid.New(), time.Now()); err != nil {
					errors <- fmt.Errorf("writer %d: %w", workerID, err)
					return
				}
			}
		}(w)
	}

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func(readerID int) {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				if _, err := store.Comparisons(ComparisonFilter{}); err != nil {
					errors <- fmt.Errorf("reader %d: %w", readerID, err)
					return
				}
			}
		}(r)
	}

	wg.Wait()
	close(errors)

	for err := range errors {
		t.Error(err)
	}

	got, err := store.Comparisons(ComparisonFilter{})
	if err != nil {
		t.Fatalf("comparisons: %v", err)
	}
	if len(got) != 40 {
		t.Errorf("expected 40 comparisons, got %d", len(got))
	}
}
