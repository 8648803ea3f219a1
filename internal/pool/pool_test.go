package pool

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/varoOP/seasondb/internal/domain"
)

func items(n int) []domain.RawItem {
	out := make([]domain.RawItem, n)
	for i := range out {
		out[i] = domain.RawItem{Index: i, HTML: fmt.Sprintf("item-%d", i)}
	}
	return out
}

func okProcessor(ctx context.Context, item domain.RawItem) (*domain.Record, error) {
	return &domain.Record{ID: item.HTML}, nil
}

func succeeded(results []domain.Result) []string {
	var ids []string
	for _, r := range results {
		if !r.Failed() {
			ids = append(ids, r.Record.ID)
		}
	}
	sort.Strings(ids)
	return ids
}

func TestRunProcessesEveryItem(t *testing.T) {
	p := New(zerolog.Nop(), 4, func(int) (Processor, error) { return ProcessorFunc(okProcessor), nil })

	results := p.Run(context.Background(), items(20))
	require.Len(t, results, 20)
	assert.Len(t, succeeded(results), 20)
}

func TestRunIsolatesFailures(t *testing.T) {
	p := New(zerolog.Nop(), 3, func(int) (Processor, error) {
		return ProcessorFunc(func(ctx context.Context, item domain.RawItem) (*domain.Record, error) {
			switch item.Index {
			case 1:
				return nil, errors.New("download failed")
			case 2:
				panic("malformed item")
			}
			return okProcessor(ctx, item)
		}), nil
	})

	results := p.Run(context.Background(), items(4))
	require.Len(t, results, 4)
	assert.Equal(t, []string{"item-0", "item-3"}, succeeded(results))

	failed := map[int]error{}
	for _, r := range results {
		if r.Failed() {
			failed[r.Index] = r.Err
		}
	}
	require.Len(t, failed, 2)
	assert.Contains(t, failed[1].Error(), "download failed")
	assert.Contains(t, failed[2].Error(), "panicked")
}

func TestRunBuildsOneProcessorPerWorker(t *testing.T) {
	var built atomic.Int32
	p := New(zerolog.Nop(), 3, func(int) (Processor, error) {
		built.Add(1)
		return ProcessorFunc(okProcessor), nil
	})

	p.Run(context.Background(), items(30))
	assert.Equal(t, int32(3), built.Load())
}

func TestRunNeverStartsMoreWorkersThanItems(t *testing.T) {
	var built atomic.Int32
	p := New(zerolog.Nop(), 8, func(int) (Processor, error) {
		built.Add(1)
		return ProcessorFunc(okProcessor), nil
	})

	p.Run(context.Background(), items(2))
	assert.Equal(t, int32(2), built.Load())
}

func TestRunMarksUnstartedItemsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var processed atomic.Int32

	p := New(zerolog.Nop(), 1, func(int) (Processor, error) {
		return ProcessorFunc(func(ctx context.Context, item domain.RawItem) (*domain.Record, error) {
			processed.Add(1)
			cancel()
			return okProcessor(ctx, item)
		}), nil
	})

	results := p.Run(ctx, items(5))
	require.Len(t, results, 5)
	assert.Equal(t, int32(1), processed.Load())
	assert.Len(t, succeeded(results), 1, "the in-flight item still completes")

	for _, r := range results {
		if r.Failed() {
			assert.True(t, errors.Is(r.Err, context.Canceled))
		}
	}
}

func TestRunWorkerSetupFailure(t *testing.T) {
	p := New(zerolog.Nop(), 2, func(int) (Processor, error) {
		return nil, errors.New("no client")
	})

	results := p.Run(context.Background(), items(3))
	require.Len(t, results, 3)
	assert.Empty(t, succeeded(results))
}

func TestRunEmptyBatch(t *testing.T) {
	p := New(zerolog.Nop(), 2, func(int) (Processor, error) { return ProcessorFunc(okProcessor), nil })
	assert.Empty(t, p.Run(context.Background(), nil))
}
