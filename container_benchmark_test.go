package cascade_test

import (
	"context"
	"testing"

	"github.com/cascadix/cascade"
	"github.com/cascadix/cascade/mock"
)

func benchContainer(b *testing.B) *cascade.Container {
	b.Helper()
	c := cascade.New()
	rec := mock.NewRecorder()
	if err := c.Register(cascade.Descriptor{
		Name:    "db",
		Stage:   cascade.StageOnDemand,
		Factory: rec.Factory("db"),
	}); err != nil {
		b.Fatal(err)
	}
	if _, err := c.Get(context.Background(), "db"); err != nil {
		b.Fatal(err)
	}
	return c
}

func BenchmarkGetReady(b *testing.B) {
	c := benchContainer(b)
	ctx := context.Background()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := c.Get(ctx, "db"); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkGetIfReady(b *testing.B) {
	c := benchContainer(b)
	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, ok := c.GetIfReady("db"); !ok {
				b.Fail()
			}
		}
	})
}
