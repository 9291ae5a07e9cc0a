package store

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/srec-tools/pipectl/pkg/schema"
)

func newBenchEditLog(b *testing.B) (*LibSQLStore, *EditLog) {
	b.Helper()
	dir := b.TempDir()
	s, err := NewLibSQLStore("file:" + dir + "/bench.db")
	if err != nil {
		b.Fatal(err)
	}
	if err := s.Migrate(context.Background()); err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { _ = s.Close() })
	return s, NewEditLog(s)
}

func seedBenchDraft(b *testing.B, s *LibSQLStore, name string) string {
	b.Helper()
	d := NewDraft(name)
	d.Steps = []schema.DagStepDefinition{
		{ID: "remux", Step: schema.PresetStep("hq_remux")},
	}
	if err := s.CreateDraft(context.Background(), d); err != nil {
		b.Fatal(err)
	}
	return d.ID
}

func BenchmarkEditAppend_Sequential(b *testing.B) {
	s, el := newBenchEditLog(b)
	draftID := seedBenchDraft(b, s, "bench")
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		el.AppendEdit(ctx, &EditEvent{
			DraftID: draftID,
			Op:      EditOpAdd,
			Steps:   []schema.DagStepDefinition{{ID: "remux", Step: schema.PresetStep("hq_remux")}},
		})
	}
}

func BenchmarkEditAppend_Concurrent(b *testing.B) {
	for _, writers := range []int{10, 50} {
		b.Run(fmt.Sprintf("writers=%d", writers), func(b *testing.B) {
			benchEditAppendConcurrent(b, writers)
		})
	}
}

func benchEditAppendConcurrent(b *testing.B, writers int) {
	s, el := newBenchEditLog(b)
	ctx := context.Background()

	// Each writer gets its own draft to avoid sequence contention.
	draftIDs := make([]string, writers)
	for i := range draftIDs {
		draftIDs[i] = seedBenchDraft(b, s, fmt.Sprintf("bench-%d", i))
	}

	b.ResetTimer()
	var wg sync.WaitGroup
	perWriter := b.N / writers
	if perWriter == 0 {
		perWriter = 1
	}

	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(draftID string) {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				el.AppendEdit(ctx, &EditEvent{DraftID: draftID, Op: EditOpAdd})
			}
		}(draftIDs[w])
	}
	wg.Wait()
}

func BenchmarkEditList(b *testing.B) {
	for _, count := range []int{10, editHistoryLimit} {
		b.Run(fmt.Sprintf("edits=%d", count), func(b *testing.B) {
			s, el := newBenchEditLog(b)
			draftID := seedBenchDraft(b, s, "bench")
			ctx := context.Background()

			for i := 0; i < count; i++ {
				el.AppendEdit(ctx, &EditEvent{DraftID: draftID, Op: EditOpAdd})
			}

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				el.ListEdits(ctx, draftID, 0)
			}
		})
	}
}
