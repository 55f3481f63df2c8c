package cascade_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/cascadix/cascade"
	"github.com/cascadix/cascade/mock"
)

type CleanupTestSuite struct {
	suite.Suite
}

// registerChain registers a -> b -> c with hooked instances and returns the
// recorder observing factories and hooks.
func (s *CleanupTestSuite) registerChain(c *cascade.Container) *mock.Recorder {
	rec := mock.NewRecorder()
	s.NoError(c.Register(cascade.Descriptor{
		Name:         "a",
		Dependencies: []string{"b"},
		Stage:        cascade.StageOnDemand,
		Factory:      mock.HookedFactory(rec, "a"),
	}))
	s.NoError(c.Register(cascade.Descriptor{
		Name:         "b",
		Dependencies: []string{"c"},
		Stage:        cascade.StageOnDemand,
		Factory:      mock.HookedFactory(rec, "b"),
	}))
	s.NoError(c.Register(cascade.Descriptor{
		Name:    "c",
		Stage:   cascade.StageOnDemand,
		Factory: mock.HookedFactory(rec, "c"),
	}))
	return rec
}

func (s *CleanupTestSuite) TestReverseTeardownOrder() {
	c := cascade.New()
	rec := s.registerChain(c)

	ctx := context.Background()
	_, err := c.Get(ctx, "a")
	s.NoError(err)
	s.Equal([]string{"c", "init:c", "b", "init:b", "a", "init:a"}, rec.Order())

	c.Cleanup(ctx)
	s.Equal([]string{
		"c", "init:c", "b", "init:b", "a", "init:a",
		"shutdown:a", "shutdown:b", "shutdown:c",
	}, rec.Order())

	s.Empty(c.AllInitialized())
	s.Equal(cascade.PhaseUninitialized, c.ReadinessStatus()["a"].Phase)
}

func (s *CleanupTestSuite) TestShutdownHookErrorDoesNotAbortCleanup() {
	c := cascade.New()
	rec := mock.NewRecorder()
	s.NoError(c.Register(cascade.Descriptor{
		Name:         "top",
		Dependencies: []string{"base"},
		Stage:        cascade.StageOnDemand,
		Factory:      mock.FailingShutdownFactory(rec, "top"),
	}))
	s.NoError(c.Register(cascade.Descriptor{
		Name:    "base",
		Stage:   cascade.StageOnDemand,
		Factory: mock.HookedFactory(rec, "base"),
	}))

	ctx := context.Background()
	_, err := c.Get(ctx, "top")
	s.NoError(err)

	c.Cleanup(ctx)
	s.Equal(1, rec.Count("shutdown:top"))
	s.Equal(1, rec.Count("shutdown:base"))
	s.Empty(c.AllInitialized())
}

func (s *CleanupTestSuite) TestReinitializeAfterCleanup() {
	c := cascade.New()
	rec := s.registerChain(c)

	ctx := context.Background()
	_, err := c.Get(ctx, "a")
	s.NoError(err)
	c.Cleanup(ctx)

	// A fresh Get rebuilds the whole chain.
	_, err = c.Get(ctx, "a")
	s.NoError(err)
	s.Equal(2, rec.Count("a"))
	s.Equal(2, rec.Count("b"))
	s.Equal(2, rec.Count("c"))
}

func (s *CleanupTestSuite) TestStopCleansUp() {
	c := cascade.New()
	rec := mock.NewRecorder()
	s.NoError(c.Register(cascade.Descriptor{
		Name:    "boot",
		Stage:   cascade.StageImmediate,
		Factory: mock.HookedFactory(rec, "boot"),
	}))

	ctx := context.Background()
	s.NoError(c.Start(ctx))
	s.True(c.IsReady("boot"))

	c.Stop(ctx)
	s.Equal(1, rec.Count("shutdown:boot"))
	s.False(c.IsReady("boot"))

	// Stop twice is harmless.
	c.Stop(ctx)
	s.Equal(1, rec.Count("shutdown:boot"))
}

func (s *CleanupTestSuite) TestCleanupResetsFailedState() {
	c := cascade.New()
	rec := mock.NewRecorder()
	flaky := mock.NewFlaky(1)
	s.NoError(c.Register(cascade.Descriptor{
		Name:    "db",
		Stage:   cascade.StageOnDemand,
		Factory: flaky.Factory(rec, "db"),
	}))

	ctx := context.Background()
	_, err := c.Get(ctx, "db")
	s.Error(err)
	s.Equal(cascade.PhaseFailed, c.ReadinessStatus()["db"].Phase)

	c.Cleanup(ctx)
	status := c.ReadinessStatus()["db"]
	s.Equal(cascade.PhaseUninitialized, status.Phase)
	s.NoError(status.Err)
}

func (s *CleanupTestSuite) TestCleanupDuringConstruction() {
	c := cascade.New()
	rec := mock.NewRecorder()
	gate := mock.NewGate()
	s.NoError(c.Register(cascade.Descriptor{
		Name:    "db",
		Stage:   cascade.StageOnDemand,
		Factory: gate.HookedFactory(rec, "db"),
	}))

	ctx := context.Background()
	done := make(chan error, 1)
	go func() {
		_, err := c.Get(ctx, "db")
		done <- err
	}()
	s.Eventually(func() bool { return rec.Count("db") == 1 },
		2*time.Second, 2*time.Millisecond)

	// Cleanup runs while the factory is still working. The construction
	// must not resurrect the service: its instance is torn down and the
	// waiter sees a failure.
	c.Cleanup(ctx)
	gate.Release()

	err := <-done
	var cons *cascade.ConstructionError
	s.ErrorAs(err, &cons)
	s.Equal("db", cons.Name)
	s.Equal(1, rec.Count("shutdown:db"))
	s.False(c.IsReady("db"))
	s.Equal(cascade.PhaseUninitialized, c.ReadinessStatus()["db"].Phase)

	// A fresh request rebuilds from scratch.
	_, err = c.Get(ctx, "db")
	s.NoError(err)
	s.Equal(2, rec.Count("db"))
	s.True(c.IsReady("db"))
}

func TestCleanupSuite(t *testing.T) {
	suite.Run(t, new(CleanupTestSuite))
}
