package common

import "sync"

type MetricsCounter struct {
	counters []Counter
}

type MetricsGauge struct {
	gauges []Gauge
}

// Metrics fans instruments out to every registered meter. Instruments
// created before a meter is registered do not reach it.
type Metrics struct {
	mutex  sync.RWMutex
	meters []Meter
}

func (mc *MetricsCounter) Inc() Counter {

	for _, c := range mc.counters {
		c.Inc()
	}
	return mc
}

func (mc *MetricsCounter) Add(value int) Counter {

	for _, c := range mc.counters {
		c.Add(value)
	}
	return mc
}

func (mg *MetricsGauge) Set(value float64) Gauge {

	for _, g := range mg.gauges {
		g.Set(value)
	}
	return mg
}

func (ms *Metrics) list() []Meter {

	ms.mutex.RLock()
	defer ms.mutex.RUnlock()
	return ms.meters
}

func (ms *Metrics) Counter(name, description string, labels Labels, prefixes ...string) Counter {

	counter := &MetricsCounter{}
	for _, m := range ms.list() {
		if c := m.Counter(name, description, labels, prefixes...); c != nil {
			counter.counters = append(counter.counters, c)
		}
	}
	return counter
}

func (ms *Metrics) Gauge(name, description string, labels Labels, prefixes ...string) Gauge {

	gauge := &MetricsGauge{}
	for _, m := range ms.list() {
		if g := m.Gauge(name, description, labels, prefixes...); g != nil {
			gauge.gauges = append(gauge.gauges, g)
		}
	}
	return gauge
}

func (ms *Metrics) Stop() {

	for _, m := range ms.list() {
		m.Stop()
	}
}

func (ms *Metrics) Register(m Meter) {

	if ms == nil || m == nil {
		return
	}
	ms.mutex.Lock()
	defer ms.mutex.Unlock()
	ms.meters = append(ms.meters, m)
}

func NewMetrics() *Metrics {
	return &Metrics{}
}
