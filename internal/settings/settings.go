package settings

import (
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

const (
	KeyNotifyURLs         = "notify.urls"
	KeyNotifyTitle        = "notify.title"
	KeyNotifyBodyTemplate = "notify.body_template"
	KeySchedule           = "app.schedule"
	KeyScheduleUpdate     = "app.schedule_update"
)

type Notification struct {
	URLs         []string `json:"urls"`
	Title        string   `json:"title"`
	BodyTemplate string   `json:"body_template"`
}

// Schedule holds the cron expressions of the periodic fleet runs. An empty expression
// disables the job.
type Schedule struct {
	Check  string `json:"check"`
	Update string `json:"update"`
}

type Settings struct {
	Notification Notification `json:"notification"`
	Schedule     Schedule     `json:"schedule"`
}

// Patch changes the settings it has non-nil fields for.
type Patch struct {
	URLs           *[]string `json:"urls,omitempty"`
	Title          *string   `json:"title,omitempty"`
	BodyTemplate   *string   `json:"body_template,omitempty"`
	Schedule       *string   `json:"schedule,omitempty"`
	ScheduleUpdate *string   `json:"schedule_update,omitempty"`
}

// Store reads the runtime-changeable settings from viper on every call, so a changed
// config file or an applied patch is seen by the next reader.
type Store struct {
	mu sync.RWMutex
	v  *viper.Viper
}

// New wraps v, or the global viper instance when v is nil.
func New(v *viper.Viper) *Store {
	if v == nil {
		v = viper.GetViper()
	}
	return &Store{v: v}
}

func (s *Store) Notification() Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Notification{
		URLs:         s.v.GetStringSlice(KeyNotifyURLs),
		Title:        s.v.GetString(KeyNotifyTitle),
		BodyTemplate: s.v.GetString(KeyNotifyBodyTemplate),
	}
}

func (s *Store) Schedule() Schedule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Schedule{
		Check:  s.v.GetString(KeySchedule),
		Update: s.v.GetString(KeyScheduleUpdate),
	}
}

func (s *Store) All() Settings {
	return Settings{Notification: s.Notification(), Schedule: s.Schedule()}
}

// Apply validates and applies the patch. Nothing is changed when validation fails.
func (s *Store) Apply(p Patch) (Settings, error) {
	for _, expr := range []*string{p.Schedule, p.ScheduleUpdate} {
		if expr == nil || *expr == "" {
			continue
		}
		if _, err := cron.ParseStandard(*expr); err != nil {
			return Settings{}, NewValidationError(*expr, err)
		}
	}

	s.mu.Lock()
	if p.URLs != nil {
		s.v.Set(KeyNotifyURLs, append([]string(nil), (*p.URLs)...))
	}
	if p.Title != nil {
		s.v.Set(KeyNotifyTitle, *p.Title)
	}
	if p.BodyTemplate != nil {
		s.v.Set(KeyNotifyBodyTemplate, *p.BodyTemplate)
	}
	if p.Schedule != nil {
		s.v.Set(KeySchedule, *p.Schedule)
	}
	if p.ScheduleUpdate != nil {
		s.v.Set(KeyScheduleUpdate, *p.ScheduleUpdate)
	}
	s.mu.Unlock()

	return s.All(), nil
}

// ValidationError is returned for a setting value that cannot be applied.
type ValidationError struct {
	Value string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid setting value %q: %v", e.Value, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func NewValidationError(value string, err error) *ValidationError {
	return &ValidationError{Value: value, Err: err}
}
