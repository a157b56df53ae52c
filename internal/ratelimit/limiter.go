// ratelimit реализует счётчик скользящего окна по произвольному ключу
// (обычно IP клиента). Лимитер держит только метки времени событий;
// записи живут не дольше окна и вычищаются при обращении и фоновым Sweep.
package ratelimit

import (
	"sync"
	"time"
)

// Policy — параметры одного уровня ограничения.
type Policy struct {
	// Limit — максимум учитываемых событий в окне; 0 отключает лимитер.
	Limit int
	// Window — ширина скользящего окна.
	Window time.Duration
}

// Limiter — потокобезопасный лимитер скользящего окна, ключуемый строкой.
type Limiter struct {
	mu      sync.Mutex
	policy  Policy
	buckets map[string][]time.Time
}

// New создаёт Limiter с заданной политикой.
func New(policy Policy) *Limiter {
	return &Limiter{
		policy:  policy,
		buckets: make(map[string][]time.Time),
	}
}

// Allow сообщает, допустимо ли событие для key в момент now,
// и при положительном ответе учитывает его.
func (l *Limiter) Allow(key string, now time.Time) bool {
	if l.policy.Limit <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	events := l.prune(key, now)
	if len(events) >= l.policy.Limit {
		l.buckets[key] = events
		return false
	}

	l.buckets[key] = append(events, now)
	return true
}

// Forgive снимает последнее учтённое событие для key.
// Используется, чтобы не считать успешные вызовы аутентификации.
func (l *Limiter) Forgive(key string) {
	if l.policy.Limit <= 0 {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	events := l.buckets[key]
	if len(events) == 0 {
		return
	}

	events = events[:len(events)-1]
	if len(events) == 0 {
		delete(l.buckets, key)
		return
	}
	l.buckets[key] = events
}

// Sweep удаляет ключи, у которых не осталось событий внутри окна.
// Безопасен одновременно с Allow/Forgive.
func (l *Limiter) Sweep(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cut := now.Add(-l.policy.Window)
	for key, events := range l.buckets {
		keep := events[:0]
		for _, t := range events {
			if t.After(cut) {
				keep = append(keep, t)
			}
		}
		if len(keep) == 0 {
			delete(l.buckets, key)
			continue
		}
		l.buckets[key] = keep
	}
}

// prune возвращает события key внутри окна; вызывается под mu.
func (l *Limiter) prune(key string, now time.Time) []time.Time {
	cut := now.Add(-l.policy.Window)
	events := l.buckets[key]

	keep := events[:0]
	for _, t := range events {
		if t.After(cut) {
			keep = append(keep, t)
		}
	}

	return keep
}
