package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEligibility_Allows(t *testing.T) {
	tests := []struct {
		name  string
		e     Eligibility
		user  string
		roles []string
		want  bool
	}{
		{name: "everyone", e: Everyone(), user: "u1", want: true},
		{name: "assigned user", e: SingleUser("u1"), user: "u1", want: true},
		{name: "other user", e: SingleUser("u1"), user: "u2", roles: []string{"r1"}, want: false},
		{name: "role match", e: RoleSet("r1", "r2"), user: "u2", roles: []string{"r9", "r2"}, want: true},
		{name: "role miss", e: RoleSet("r1"), user: "u2", roles: []string{"r2"}, want: false},
		{name: "no roles", e: RoleSet("r1"), user: "u2", want: false},
		{name: "empty role set is open", e: RoleSet(), user: "u3", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.e.Allows(tt.user, tt.roles))
		})
	}
}

func TestEligibility_ColumnsRoundTrip(t *testing.T) {
	for _, e := range []Eligibility{Everyone(), SingleUser("u1"), RoleSet("a", "b")} {
		user, roles := e.Columns()
		assert.Equal(t, e, EligibilityFromColumns(user, roles))
	}

	user := "u1"
	assert.Equal(t, SingleUser("u1"), EligibilityFromColumns(&user, []string{"r"}))
}

func TestParseActivityType(t *testing.T) {
	for in, want := range map[string]ActivityType{"mesaj": ActivityMessage, "SES": ActivityVoice, "partner": ActivityPartner} {
		got, err := ParseActivityType(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ParseActivityType("reaction")
	assert.Error(t, err)
}

func TestPeriod_Since(t *testing.T) {
	now := time.Date(2024, 3, 10, 23, 30, 0, 0, time.UTC)

	assert.Nil(t, PeriodAll.Since(now, time.UTC))
	assert.Equal(t, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), *PeriodDay.Since(now, time.UTC))
	assert.Equal(t, time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC), *PeriodWeek.Since(now, time.UTC))
	assert.Equal(t, time.Date(2024, 2, 9, 0, 0, 0, 0, time.UTC), *PeriodMonth.Since(now, time.UTC))

	plus3 := time.FixedZone("UTC+3", 3*3600)
	assert.Equal(t, time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC), *PeriodDay.Since(now, plus3))

	assert.Equal(t, PeriodWeek, ParsePeriod("hafta"))
	assert.Equal(t, PeriodAll, ParsePeriod("forever"))
}

func TestTaskReport_Split(t *testing.T) {
	r := TaskReport{Participants: []Participant{
		{UserID: "a", Progress: 5, Completed: true},
		{UserID: "b", Progress: 1},
	}}
	done, open := r.Split()
	require.Len(t, done, 1)
	require.Len(t, open, 1)
	assert.Equal(t, "a", done[0].UserID)
	assert.Equal(t, "b", open[0].UserID)
}

func TestCounters(t *testing.T) {
	var c Counters
	c.Add(ActivityVoice, 3)
	c.Add(ActivityMessage, 2)
	c.Add(ActivityPartner, 1)
	assert.Equal(t, int64(3), c.Get(ActivityVoice))
	assert.Equal(t, int64(2), c.Get(ActivityMessage))
	assert.Equal(t, int64(1), c.Get(ActivityPartner))
}
