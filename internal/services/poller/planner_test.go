package poller

import (
	"testing"
	"time"

	"github.com/BearBump/ColisTrack/internal/models"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

type mockRand struct {
	mock.Mock
}

func (m *mockRand) Intn(n int) int {
	return m.Called(n).Int(0)
}

type PlannerSuite struct {
	suite.Suite
	rnd *mockRand
}

func (s *PlannerSuite) SetupTest() {
	s.rnd = &mockRand{}
}

func (s *PlannerSuite) TestBackoffLadder() {
	p := DefaultPlanner()
	s.Equal(5*time.Minute, p.BackoffDelay(0))
	s.Equal(5*time.Minute, p.BackoffDelay(1))
	s.Equal(15*time.Minute, p.BackoffDelay(2))
	s.Equal(30*time.Minute, p.BackoffDelay(3))
	s.Equal(60*time.Minute, p.BackoffDelay(4))
	s.Equal(60*time.Minute, p.BackoffDelay(100))
}

func (s *PlannerSuite) TestBackoffOverrides() {
	p := NewPlanner(PlannerConfig{Backoff2: time.Minute}, s.rnd)
	s.Equal(5*time.Minute, p.BackoffDelay(1))
	s.Equal(time.Minute, p.BackoffDelay(2))
}

func (s *PlannerSuite) TestStatusDelays() {
	p := NewPlanner(DefaultPlannerConfig(), s.rnd)
	s.Equal(365*24*time.Hour, p.NextCheckDelay(models.TrackingStatusDelivered))
	s.Equal(3*time.Hour, p.NextCheckDelay(models.TrackingStatusPending))
	s.Equal(45*time.Minute, p.NextCheckDelay(models.TrackingStatusException))
	s.Equal(90*time.Minute, p.NextCheckDelay(models.TrackingStatusUnknown))
	s.Equal(90*time.Minute, p.NextCheckDelay("SOMETHING_NEW"))
	s.rnd.AssertNotCalled(s.T(), "Intn", mock.Anything)
}

func (s *PlannerSuite) TestInTransitJitter() {
	// 30..120 minutes in seconds
	s.rnd.On("Intn", 5401).Return(600).Once()

	d := NewPlanner(DefaultPlannerConfig(), s.rnd).NextCheckDelay(models.TrackingStatusInTransit)
	s.Equal(40*time.Minute, d)
	s.rnd.AssertExpectations(s.T())
}

func (s *PlannerSuite) TestInTransitFixedWindow() {
	cfg := PlannerConfig{InTransitMinDelay: time.Minute, InTransitMaxDelay: time.Minute}
	s.Equal(time.Minute, NewPlanner(cfg, s.rnd).NextCheckDelay(models.TrackingStatusInTransit))
	s.rnd.AssertNotCalled(s.T(), "Intn", mock.Anything)
}

func (s *PlannerSuite) TestInTransitMaxBelowMin() {
	cfg := PlannerConfig{InTransitMinDelay: 10 * time.Minute, InTransitMaxDelay: time.Minute}
	s.Equal(10*time.Minute, NewPlanner(cfg, s.rnd).NextCheckDelay(models.TrackingStatusInTransit))
}

func TestPlannerSuite(t *testing.T) {
	suite.Run(t, new(PlannerSuite))
}
