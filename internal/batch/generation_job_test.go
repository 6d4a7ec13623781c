package batch

import (
	"context"
	"errors"
	"testing"
	"time"

	"recurring-billing/internal/domain/invoice"
	"recurring-billing/internal/pkg/apperrors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func fixedNow() time.Time {
	return time.Date(2024, time.March, 15, 1, 0, 0, 0, time.UTC)
}

func newGenerationJob(repo *MockScheduleRepository, gen *MockGenerator, workers int) *InvoiceGenerationJob {
	job := NewInvoiceGenerationJob(repo, gen, testLogger(), workers, time.Second)
	job.now = fixedNow
	return job
}

func TestInvoiceGenerationJobRun(t *testing.T) {
	ctx := context.Background()
	asOf := time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC)

	t.Run("generates an invoice per due schedule", func(t *testing.T) {
		repo := new(MockScheduleRepository)
		gen := new(MockGenerator)
		job := newGenerationJob(repo, gen, 2)

		repo.On("ListDueScheduleIDs", ctx, asOf).Return([]int64{1, 2, 3}, nil).Once()
		for _, id := range []int64{1, 2, 3} {
			gen.On("Generate", mock.Anything, id, fixedNow()).Return(&invoice.Invoice{ID: id * 100}, nil).Once()
		}

		require.NoError(t, job.Run(ctx))
		gen.AssertExpectations(t)
	})

	t.Run("no due schedules is a clean run", func(t *testing.T) {
		repo := new(MockScheduleRepository)
		gen := new(MockGenerator)
		job := newGenerationJob(repo, gen, 2)

		repo.On("ListDueScheduleIDs", ctx, asOf).Return([]int64{}, nil).Once()

		require.NoError(t, job.Run(ctx))
		gen.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("aborts when enumeration fails", func(t *testing.T) {
		repo := new(MockScheduleRepository)
		gen := new(MockGenerator)
		job := newGenerationJob(repo, gen, 2)

		repo.On("ListDueScheduleIDs", ctx, asOf).Return(nil, errors.New("connection refused")).Once()

		err := job.Run(ctx)
		assert.ErrorContains(t, err, "failed to list due schedules")
	})

	t.Run("one failing schedule does not stop the rest", func(t *testing.T) {
		repo := new(MockScheduleRepository)
		gen := new(MockGenerator)
		job := newGenerationJob(repo, gen, 1)

		repo.On("ListDueScheduleIDs", ctx, asOf).Return([]int64{1, 2, 3}, nil).Once()
		gen.On("Generate", mock.Anything, int64(1), fixedNow()).Return(nil, errors.New("boom")).Once()
		gen.On("Generate", mock.Anything, int64(2), fixedNow()).Return(&invoice.Invoice{ID: 200}, nil).Once()
		gen.On("Generate", mock.Anything, int64(3), fixedNow()).Return(&invoice.Invoice{ID: 300}, nil).Once()

		err := job.Run(ctx)
		assert.ErrorContains(t, err, "1 errors")
		gen.AssertExpectations(t)
	})

	t.Run("duplicate and lifecycle races are benign skips", func(t *testing.T) {
		repo := new(MockScheduleRepository)
		gen := new(MockGenerator)
		job := newGenerationJob(repo, gen, 2)

		repo.On("ListDueScheduleIDs", ctx, asOf).Return([]int64{1, 2, 3, 4}, nil).Once()
		gen.On("Generate", mock.Anything, int64(1), fixedNow()).Return(nil, apperrors.ErrDuplicateGeneration).Once()
		gen.On("Generate", mock.Anything, int64(2), fixedNow()).Return(nil, apperrors.ErrScheduleNotActive).Once()
		gen.On("Generate", mock.Anything, int64(3), fixedNow()).Return(nil, apperrors.ErrNotFound).Once()
		gen.On("Generate", mock.Anything, int64(4), fixedNow()).Return(&invoice.Invoice{ID: 400}, nil).Once()

		require.NoError(t, job.Run(ctx))
		gen.AssertExpectations(t)
	})
}
