package service

import (
	"slices"
	"sync"
	"time"

	"streak_bot/internal/models"
)

const DefaultHistorySize = 70

// Streak счётчики серии одноцветных свечей. greenRun и redRun
// никогда не бывают ненулевыми одновременно.
type Streak struct {
	mu       sync.Mutex
	capacity int

	lastColor  models.CandleColor
	greenRun   int
	redRun     int
	recent     []models.CandleColor
	lastPeriod string
}

func NewStreak(capacity int) *Streak {
	if capacity <= 0 {
		capacity = DefaultHistorySize
	}
	return &Streak{capacity: capacity, recent: make([]models.CandleColor, 0, capacity)}
}

// Push учитывает закрытую свечу периода period. Повтор того же периода
// игнорируется (ok == false).
func (s *Streak) Push(period string, c models.CandleColor, at time.Time) (models.PriceSignal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if period != "" && period == s.lastPeriod {
		return models.PriceSignal{}, false
	}
	s.lastPeriod = period
	s.push(c)

	return models.PriceSignal{
		Color:        s.lastColor,
		StreakLength: max(s.greenRun, s.redRun),
		RecentColors: slices.Clone(s.recent),
		Period:       period,
		At:           at,
	}, true
}

func (s *Streak) push(c models.CandleColor) {
	s.lastColor = c
	if c == models.Green {
		s.greenRun++
		s.redRun = 0
	} else {
		s.redRun++
		s.greenRun = 0
	}
	if len(s.recent) == s.capacity {
		s.recent = append(s.recent[:0], s.recent[1:]...)
	}
	s.recent = append(s.recent, c)
}

// Resync заменяет историю и пересчитывает счётчики с конца списка.
func (s *Streak) Resync(colors []models.CandleColor, lastPeriod string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(colors) > s.capacity {
		colors = colors[len(colors)-s.capacity:]
	}
	s.recent = append(s.recent[:0], colors...)
	s.lastPeriod = lastPeriod
	s.greenRun, s.redRun = 0, 0
	s.lastColor = models.Green
	if len(colors) == 0 {
		return
	}

	s.lastColor = colors[len(colors)-1]
	run := 0
	for i := len(colors) - 1; i >= 0 && colors[i] == s.lastColor; i-- {
		run++
	}
	if s.lastColor == models.Green {
		s.greenRun = run
	} else {
		s.redRun = run
	}
}

// Runs текущие счётчики (green, red).
func (s *Streak) Runs() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.greenRun, s.redRun
}

func (s *Streak) LastPeriod() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastPeriod
}

func (s *Streak) Recent() []models.CandleColor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.recent)
}
