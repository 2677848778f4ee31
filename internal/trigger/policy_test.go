package trigger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"intel_fetcher/internal/config"
	"intel_fetcher/testdata/utils"
)

type PolicyTestSuite struct {
	suite.Suite
	loc    *time.Location
	policy *Policy
}

func (s *PolicyTestSuite) SetupTest() {
	var err error
	s.loc, err = time.LoadLocation("Asia/Tokyo")
	s.Require().NoError(err)

	s.policy, err = NewPolicy(config.TriggerConfig{
		Slots:            []string{"18:00", "08:00", "12:00"},
		Timezone:         "Asia/Tokyo",
		DelayMin:         3 * time.Minute,
		DelayMax:         4 * time.Minute,
		DryRetryInterval: utils.Ptr(30 * time.Minute),
	})
	s.Require().NoError(err)
}

func TestPolicyTestSuite(t *testing.T) {
	suite.Run(t, new(PolicyTestSuite))
}

func (s *PolicyTestSuite) at(hour, minute int) time.Time {
	return time.Date(2026, 10, 17, hour, minute, 0, 0, s.loc)
}

func (s *PolicyTestSuite) TestNoRefireAfterSlotProducedArticles() {
	d := s.policy.Evaluate(s.at(8, 30), Snapshot{LastArticleAt: utils.Ptr(s.at(8, 5))})

	s.False(d.Due)
	s.Equal(ReasonIdle, d.Reason)
	s.True(d.Slot.Equal(s.at(8, 0)))
}

func (s *PolicyTestSuite) TestDueWhenLatestArticlePredatesSlot() {
	d := s.policy.Evaluate(s.at(12, 0), Snapshot{LastArticleAt: utils.Ptr(s.at(11, 0))})

	s.True(d.Due)
	s.Equal(ReasonSchedule, d.Reason)
	s.True(d.Slot.Equal(s.at(12, 0)))
}

func (s *PolicyTestSuite) TestDueWithNoArticles() {
	d := s.policy.Evaluate(s.at(9, 0), Snapshot{})

	s.True(d.Due)
	s.True(d.Slot.Equal(s.at(8, 0)))
}

func (s *PolicyTestSuite) TestIdleBeforeFirstSlot() {
	d := s.policy.Evaluate(s.at(7, 59), Snapshot{})

	s.False(d.Due)
	s.Equal(ReasonIdle, d.Reason)
	s.True(d.Slot.IsZero())
}

func (s *PolicyTestSuite) TestSlotUsesConfiguredTimezone() {
	// 23:30 UTC on the 16th is 08:30 JST on the 17th.
	now := time.Date(2026, 10, 16, 23, 30, 0, 0, time.UTC)
	d := s.policy.Evaluate(now, Snapshot{LastArticleAt: utils.Ptr(s.at(7, 0))})

	s.True(d.Due)
	s.True(d.Slot.Equal(s.at(8, 0)))
}

func (s *PolicyTestSuite) TestPostCreationWindow() {
	created := s.at(10, 0)
	snap := Snapshot{
		LastArticleAt: utils.Ptr(s.at(9, 0)),
		CreatedAt:     []time.Time{created},
	}

	cases := []struct {
		elapsed time.Duration
		due     bool
	}{
		{2*time.Minute + 59*time.Second, false},
		{3 * time.Minute, true},
		{3*time.Minute + 59*time.Second, true},
		{4 * time.Minute, false},
	}
	for _, tc := range cases {
		d := s.policy.Evaluate(created.Add(tc.elapsed), snap)
		s.Equal(tc.due, d.Due, tc.elapsed.String())
		if tc.due {
			s.Equal(ReasonPostCreation, d.Reason)
		}
	}
}

func (s *PolicyTestSuite) TestDrySlotBackoff() {
	snap := Snapshot{
		LastArticleAt: utils.Ptr(s.at(7, 0)),
		LastRunAt:     utils.Ptr(s.at(12, 1)),
	}

	d := s.policy.Evaluate(s.at(12, 20), snap)
	s.False(d.Due)
	s.Equal(ReasonDrySlotBackoff, d.Reason)

	d = s.policy.Evaluate(s.at(12, 31), snap)
	s.True(d.Due)
	s.Equal(ReasonSchedule, d.Reason)
}

func (s *PolicyTestSuite) TestRunBeforeSlotDoesNotBackOff() {
	snap := Snapshot{
		LastArticleAt: utils.Ptr(s.at(7, 0)),
		LastRunAt:     utils.Ptr(s.at(11, 50)),
	}

	d := s.policy.Evaluate(s.at(12, 5), snap)
	s.True(d.Due)
}

func TestPolicy_ZeroDryRetryRetriesEveryPoll(t *testing.T) {
	p, err := NewPolicy(config.TriggerConfig{
		Slots:            []string{"08:00"},
		Timezone:         "UTC",
		DelayMin:         3 * time.Minute,
		DelayMax:         4 * time.Minute,
		DryRetryInterval: utils.Ptr(time.Duration(0)),
	})
	require.NoError(t, err)

	now := time.Date(2026, 10, 17, 8, 2, 0, 0, time.UTC)
	d := p.Evaluate(now, Snapshot{LastRunAt: utils.Ptr(now.Add(-time.Minute))})
	assert.True(t, d.Due)
}

func TestNewPolicy_Invalid(t *testing.T) {
	base := config.TriggerConfig{
		Slots:    []string{"08:00"},
		Timezone: "UTC",
		DelayMin: 3 * time.Minute,
		DelayMax: 4 * time.Minute,
	}

	bad := base
	bad.Slots = []string{"8am"}
	_, err := NewPolicy(bad)
	assert.Error(t, err)

	bad = base
	bad.Timezone = "Mars/Olympus"
	_, err = NewPolicy(bad)
	assert.Error(t, err)

	bad = base
	bad.DelayMax = bad.DelayMin
	_, err = NewPolicy(bad)
	assert.Error(t, err)
}

type fakeState struct {
	article *time.Time
	run     *time.Time
	created []time.Time
	since   time.Time
	err     error
}

func (f *fakeState) LatestCreatedAt(context.Context) (*time.Time, error) { return f.article, f.err }
func (f *fakeState) LatestStartedAt(context.Context) (*time.Time, error) { return f.run, nil }
func (f *fakeState) CreatedSince(_ context.Context, since time.Time) ([]time.Time, error) {
	f.since = since
	return f.created, nil
}

func TestChecker_Check(t *testing.T) {
	p, err := NewPolicy(config.TriggerConfig{
		Slots:    []string{"12:00"},
		Timezone: "UTC",
		DelayMin: 3 * time.Minute,
		DelayMax: 4 * time.Minute,
	})
	require.NoError(t, err)

	now := time.Date(2026, 10, 17, 10, 0, 0, 0, time.UTC)
	state := &fakeState{created: []time.Time{now.Add(-3*time.Minute - 30*time.Second)}}
	checker := NewChecker(p, state, state, state)
	checker.now = func() time.Time { return now }

	d, err := checker.Check(context.Background())
	require.NoError(t, err)
	assert.True(t, d.Due)
	assert.Equal(t, ReasonPostCreation, d.Reason)
	assert.Equal(t, now.Add(-4*time.Minute), state.since)
}

func TestChecker_StoreError(t *testing.T) {
	p, err := NewPolicy(config.TriggerConfig{Slots: []string{"12:00"}, Timezone: "UTC", DelayMin: time.Minute, DelayMax: 2 * time.Minute})
	require.NoError(t, err)

	state := &fakeState{err: errors.New("db down")}
	_, err = NewChecker(p, state, state, state).Check(context.Background())
	assert.ErrorContains(t, err, "latest article")
}
