package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"streak_bot/internal/exchange"
)

func row(mark string, open, close float64) string {
	return fmt.Sprintf(`["%s",[%v,%v,%v,%v],69942,52.5,47.5]`, mark, open, close, min(open, close)-1, max(open, close)+1)
}

func green(mark string) string { return row(mark, 100, 101) }
func red(mark string) string   { return row(mark, 101, 100) }

func realDataFrame(second int, rows ...string) exchange.Frame {
	payload := fmt.Sprintf(`{"data_chart":[%s],"time":{"datetime":"2019-09-10 15:25:%02d","second":%d}}`,
		strings.Join(rows, ","), second, second)
	return exchange.Frame{Kind: exchange.Event, Name: EventRealData, Payload: []byte(payload)}
}

type fakeNotifier struct {
	mu     sync.Mutex
	market []string
	system []string
}

func (f *fakeNotifier) Market(_ context.Context, msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.market = append(f.market, msg)
}

func (f *fakeNotifier) System(_ context.Context, msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.system = append(f.system, msg)
}

func (f *fakeNotifier) Markets() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.market...)
}

func (f *fakeNotifier) Systems() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.system...)
}

type fakeHealth struct {
	mu        sync.Mutex
	connected bool
	tick      time.Time
}

func (f *fakeHealth) SetWSConnected(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = v
}

func (f *fakeHealth) TouchTick(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tick = t
}

func (f *fakeHealth) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

type fakeSnapshotter struct {
	sid      string
	snapshot exchange.Frame
	err      error
	acquired atomic.Int32
}

func (f *fakeSnapshotter) Acquire(context.Context, exchange.Endpoint) (exchange.Handshake, error) {
	f.acquired.Add(1)
	return exchange.Handshake{SID: f.sid}, nil
}

func (f *fakeSnapshotter) Snapshot(context.Context, exchange.Endpoint, string, string) (exchange.Frame, error) {
	return f.snapshot, f.err
}
