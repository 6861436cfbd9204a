package settings

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreReadsLate(t *testing.T) {
	v := viper.New()
	v.Set(KeyNotifyURLs, []string{"log://"})
	v.Set(KeyNotifyTitle, "Updates")
	s := New(v)

	assert.Equal(t, Notification{URLs: []string{"log://"}, Title: "Updates"}, s.Notification())

	v.Set(KeyNotifyTitle, "Changed")
	assert.Equal(t, "Changed", s.Notification().Title)
}

func TestApply(t *testing.T) {
	v := viper.New()
	v.Set(KeySchedule, "0 * * * *")
	s := New(v)
	urls := []string{"https://hooks.example.com/x"}
	expr := "*/15 * * * *"
	empty := ""

	got, err := s.Apply(Patch{URLs: &urls, Schedule: &expr, ScheduleUpdate: &empty})
	require.NoError(t, err)

	assert.Equal(t, urls, got.Notification.URLs)
	assert.Equal(t, Schedule{Check: "*/15 * * * *", Update: ""}, got.Schedule)
	assert.Equal(t, "*/15 * * * *", v.GetString(KeySchedule))
}

func TestApplyRejectsBadCron(t *testing.T) {
	v := viper.New()
	v.Set(KeySchedule, "0 * * * *")
	v.Set(KeyNotifyTitle, "Updates")
	s := New(v)
	title := "New"
	bad := "every minute"

	_, err := s.Apply(Patch{Title: &title, Schedule: &bad})

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "Updates", s.Notification().Title)
	assert.Equal(t, "0 * * * *", s.Schedule().Check)
}
