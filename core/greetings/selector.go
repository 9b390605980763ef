// Package greetings selects varied greeting and farewell phrases,
// avoiding recently used templates so repeated encounters sound natural.
package greetings

import (
	"math/rand"
	"strings"
	"sync"
	"time"
)

// Kind distinguishes the greeting situations.
type Kind string

const (
	KindRecognized Kind = "recognized"
	KindUnknown    Kind = "unknown"
	KindDeparted   Kind = "departed"
)

// TimeOfDay partitions the day for template filtering.
type TimeOfDay string

const (
	Morning   TimeOfDay = "morning"
	Afternoon TimeOfDay = "afternoon"
	Evening   TimeOfDay = "evening"
	AnyTime   TimeOfDay = "any"
)

// TimeOfDayAt classifies a wall clock time.
func TimeOfDayAt(t time.Time) TimeOfDay {
	switch hour := t.Hour(); {
	case hour >= 5 && hour < 12:
		return Morning
	case hour >= 12 && hour < 17:
		return Afternoon
	default:
		return Evening
	}
}

// Template is one greeting phrase. Text may contain a {name} placeholder.
type Template struct {
	Text      string
	TimeOfDay []TimeOfDay
}

func anytime(text string) Template {
	return Template{Text: text, TimeOfDay: []TimeOfDay{AnyTime}}
}

func at(text string, times ...TimeOfDay) Template {
	return Template{Text: text, TimeOfDay: times}
}

var recognizedTemplates = []Template{
	anytime("Welcome back, {name}!"),
	anytime("Hi {name}! Good to see you!"),
	anytime("Hey {name}, glad you're here!"),
	anytime("Oh hi {name}, welcome back!"),
	at("Good morning, {name}!", Morning),
	at("Good afternoon, {name}!", Afternoon),
	at("Good evening, {name}. Welcome back.", Evening),
	anytime("Hello {name}, good to see you again."),
	anytime("Hello {name}, nice to see you."),
	at("Oh hi {name}, how's it going?", Afternoon, Evening),
	anytime("{name}! How have you been?"),
	anytime("Hello {name}. Nice to see you."),
	anytime("Oh, {name}! What a nice surprise!"),
	anytime("Hey {name}! Great to see you today!"),
	anytime("Welcome back, {name}. How are you?"),
	anytime("Hi {name}!"),
}

var unknownTemplates = []Template{
	anytime("Hello there! I'm Reachy. Nice to meet you!"),
	anytime("Hi there! Nice to meet you!"),
	anytime("Oh hello! I don't think we've met. What's your name?"),
	anytime("Hi! I don't think we've met yet."),
	anytime("Hey there, I'm Reachy. Nice to meet you!"),
	anytime("Oh hello! Are you new here?"),
	at("Good morning. Welcome. I'm Reachy.", Morning),
	anytime("Hello, welcome."),
	anytime("Hi there! I haven't seen you before. Welcome!"),
	anytime("Hello. I'm Reachy. Nice to meet you."),
	at("Good afternoon! I don't think we've been introduced. I'm Reachy.", Afternoon),
	anytime("Oh hi! You're new here, right? Welcome!"),
}

var departedTemplates = []Template{
	anytime("Goodbye, {name}! See you soon!"),
	anytime("Bye {name}! Take care!"),
	at("Have a great evening, {name}!", Evening),
	at("Good night, {name}!", Evening),
	anytime("Bye {name}! Come back soon!"),
	anytime("See you later, {name}!"),
	anytime("Take care, {name}."),
	anytime("Goodbye, {name}."),
}

const recentWindow = 5

// SelectorOption configures a greeting selector.
type SelectorOption func(*Selector)

// WithClock overrides the time source, mostly for tests.
func WithClock(now func() time.Time) SelectorOption {
	return func(s *Selector) { s.now = now }
}

// WithRand overrides the random source, mostly for tests.
func WithRand(intN func(n int) int) SelectorOption {
	return func(s *Selector) { s.intN = intN }
}

// Selector picks greeting phrases with time-of-day awareness and a
// non-repetition window over the last few selections.
type Selector struct {
	now  func() time.Time
	intN func(n int) int

	mu       sync.Mutex
	recent   []string
	selected int
}

// NewSelector creates a greeting selector.
func NewSelector(opts ...SelectorOption) *Selector {
	s := &Selector{
		now:  time.Now,
		intN: rand.Intn,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Select returns a phrase for the situation, with {name} substituted.
// Recently used templates are avoided until every candidate has been
// used, at which point the window no longer filters.
func (s *Selector) Select(kind Kind, name string) string {
	var pool []Template
	switch kind {
	case KindRecognized:
		pool = recognizedTemplates
	case KindUnknown:
		pool = unknownTemplates
	case KindDeparted:
		pool = departedTemplates
	default:
		pool = unknownTemplates
	}

	timeOfDay := TimeOfDayAt(s.now())

	s.mu.Lock()
	defer s.mu.Unlock()

	candidates := s.filter(pool, timeOfDay, true)
	if len(candidates) == 0 {
		candidates = s.filter(pool, timeOfDay, false)
	}
	if len(candidates) == 0 {
		candidates = pool
	}

	template := candidates[s.intN(len(candidates))]
	s.remember(template.Text)
	s.selected++

	return strings.ReplaceAll(template.Text, "{name}", name)
}

// SelectedCount returns how many greetings have been selected.
func (s *Selector) SelectedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

// ResetSession clears the non-repetition window.
func (s *Selector) ResetSession() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recent = nil
}

func (s *Selector) filter(pool []Template, timeOfDay TimeOfDay, excludeRecent bool) []Template {
	var out []Template
	for _, template := range pool {
		if !matchesTime(template, timeOfDay) {
			continue
		}
		if excludeRecent && s.recentlyUsed(template.Text) {
			continue
		}
		out = append(out, template)
	}
	return out
}

func matchesTime(template Template, timeOfDay TimeOfDay) bool {
	for _, t := range template.TimeOfDay {
		if t == AnyTime || t == timeOfDay {
			return true
		}
	}
	return false
}

func (s *Selector) recentlyUsed(text string) bool {
	for _, used := range s.recent {
		if used == text {
			return true
		}
	}
	return false
}

func (s *Selector) remember(text string) {
	s.recent = append(s.recent, text)
	if len(s.recent) > recentWindow {
		s.recent = s.recent[len(s.recent)-recentWindow:]
	}
}
