package metrics

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"tradingengine/internal/infra"
)

// State is the metrics pipeline's lifecycle state (§4.8).
type State int32

const (
	Stopped State = iota
	Running
)

// csvHeader matches the fixed column order in §6. GC columns are
// emitted as 0 on this host, which has no generational GC.
var csvHeader = []string{
	"Timestamp", "MessageType", "SendTimestamp", "ReceiveTimestamp",
	"QueueTimestamp", "ApplyTimestamp", "RenderStartTimestamp", "RenderEndTimestamp",
	"EndToEndLatency", "ProcessingLatency", "RenderLatency",
	"QueueDepth", "UIRenderQueueDepth", "CPUUsage", "MemoryUsage",
	"Gen0Collections", "Gen1Collections", "Gen2Collections",
}

// Record is one per-message latency sample, matching the CSV row shape
// in §6.
type Record struct {
	Timestamp      int64
	MessageType    string
	SendTs         int64
	ReceiveTs      int64
	QueueTs        int64
	ApplyTs        int64
	RenderStartTs  int64
	RenderEndTs    int64
	QueueDepth     int
	UIRenderDepth  int
}

func (r Record) endToEnd() int64   { return r.RenderEndTs - r.SendTs }
func (r Record) processing() int64 { return r.ApplyTs - r.ReceiveTs }
func (r Record) render() int64     { return r.RenderEndTs - r.RenderStartTs }

// Summary is the 10s aggregate also rendered as the CSV's "# SUMMARY"
// comment line (§4.8); exposed as a struct so other sinks (the
// websocket dashboard hub) can consume the same numbers without
// scraping the file.
type Summary struct {
	Total          uint64
	EndToEndMean   float64
	EndToEndP50    float64
	EndToEndP95    float64
	EndToEndP99    float64
	ProcessingMean float64
	ProcessingP50  float64
	ProcessingP95  float64
	ProcessingP99  float64
	RenderP50      float64
	RenderP95      float64
	RenderP99      float64
}

// Pipeline owns the three latency reservoirs, a lock-free record queue,
// and the 1s CSV flush / 10s summary timers (§4.8). Timer callbacks
// never block mutators: Record is a non-blocking channel send, and the
// reservoirs each guard only their own short critical section.
type Pipeline struct {
	endToEnd   *Reservoir
	processing *Reservoir
	render     *Reservoir

	records chan Record
	state   atomic.Int32

	totalRecords atomic.Uint64
	parseErrors  atomic.Uint64

	file    *os.File
	writer  *csv.Writer
	dirPath string

	onSummary func(Summary)

	stop chan struct{}
	done chan struct{}
}

// SetOnSummary attaches a callback invoked with every 10s summary, in
// addition to (and independent of) the CSV comment line. A nil callback
// (the default) disables the hook.
func (p *Pipeline) SetOnSummary(f func(Summary)) {
	p.onSummary = f
}

// New creates a Pipeline that will write to csvDir once started. A
// nil/empty csvDir disables the file sink (used by tests that only
// care about reservoir accumulation).
func New(csvDir string) *Pipeline {
	return &Pipeline{
		endToEnd:   NewReservoir(),
		processing: NewReservoir(),
		render:     NewReservoir(),
		records:    make(chan Record, 16384),
		dirPath:    csvDir,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start transitions Stopped → Running and launches the flush/summary
// loop. Calling Start twice is a no-op.
func (p *Pipeline) Start() error {
	if !p.state.CompareAndSwap(int32(Stopped), int32(Running)) {
		return nil
	}

	if p.dirPath != "" {
		if err := infra.EnsureDir(p.dirPath); err != nil {
			return fmt.Errorf("metrics: create csv dir: %w", err)
		}
		name := fmt.Sprintf("metrics_%s.csv", time.Now().UTC().Format("20060102_150405"))
		f, err := os.Create(p.dirPath + "/" + name)
		if err != nil {
			return fmt.Errorf("metrics: create csv file: %w", err)
		}
		p.file = f
		p.writer = csv.NewWriter(f)
		if err := p.writer.Write(csvHeader); err != nil {
			slog.Error("metrics: failed writing csv header", slog.Any("error", err))
		}
		p.writer.Flush()
	}

	go p.loop()
	return nil
}

// Dispose transitions Running → Stopped, flushing once more before
// returning (§4.8: "disposal flushes once more").
func (p *Pipeline) Dispose() {
	if !p.state.CompareAndSwap(int32(Running), int32(Stopped)) {
		return
	}
	close(p.stop)
	<-p.done
}

// State reports the pipeline's current lifecycle state.
func (p *Pipeline) State() State {
	return State(p.state.Load())
}

// Record enqueues one per-message sample. Never blocks the caller: if
// the queue is momentarily full the record is dropped from the CSV sink
// with a WARN log line (its latencies have already reached the
// reservoirs), since metrics flushing is advisory (§4.8).
func (p *Pipeline) Record(r Record) {
	p.endToEnd.Add(r.endToEnd())
	p.processing.Add(r.processing())
	p.render.Add(r.render())
	p.totalRecords.Add(1)

	select {
	case p.records <- r:
	default:
		slog.Warn("metrics: record queue full, dropping sample")
	}
}

// Percentiles returns the current P50/P95/P99 for each latency family.
func (p *Pipeline) Percentiles() (endToEnd, processing, render [3]float64) {
	endToEnd[0], endToEnd[1], endToEnd[2] = p.endToEnd.Percentiles()
	processing[0], processing[1], processing[2] = p.processing.Percentiles()
	render[0], render[1], render[2] = p.render.Percentiles()
	return
}

func (p *Pipeline) loop() {
	defer close(p.done)
	flushTicker := time.NewTicker(time.Second)
	summaryTicker := time.NewTicker(10 * time.Second)
	defer flushTicker.Stop()
	defer summaryTicker.Stop()

	var pending []Record
	for {
		select {
		case r := <-p.records:
			pending = append(pending, r)
		case <-flushTicker.C:
			pending = p.flush(pending)
		case <-summaryTicker.C:
			p.writeSummary()
		case <-p.stop:
			pending = p.flush(pending)
			p.writeSummary()
			if p.file != nil {
				p.file.Close()
			}
			return
		}
	}
}

func (p *Pipeline) flush(pending []Record) []Record {
	if p.writer == nil || len(pending) == 0 {
		return pending[:0]
	}
	var cpu, mem float64 = readCPUUsage(), readMemUsage()
	for _, r := range pending {
		row := []string{
			strconv.FormatInt(r.Timestamp, 10), r.MessageType,
			strconv.FormatInt(r.SendTs, 10), strconv.FormatInt(r.ReceiveTs, 10),
			strconv.FormatInt(r.QueueTs, 10), strconv.FormatInt(r.ApplyTs, 10),
			strconv.FormatInt(r.RenderStartTs, 10), strconv.FormatInt(r.RenderEndTs, 10),
			strconv.FormatInt(r.endToEnd(), 10), strconv.FormatInt(r.processing(), 10), strconv.FormatInt(r.render(), 10),
			strconv.Itoa(r.QueueDepth), strconv.Itoa(r.UIRenderDepth),
			strconv.FormatFloat(cpu, 'f', 2, 64), strconv.FormatFloat(mem, 'f', 2, 64),
			"0", "0", "0", // Gen0/1/2 collections: no generational GC on this runtime
		}
		if err := p.writer.Write(row); err != nil {
			slog.Error("metrics: failed writing csv row", slog.Any("error", err))
		}
	}
	p.writer.Flush()
	return pending[:0]
}

func (p *Pipeline) writeSummary() {
	e2e, proc, rend := p.Percentiles()
	summary := Summary{
		Total:          p.totalRecords.Load(),
		EndToEndMean:   p.endToEnd.Mean(),
		EndToEndP50:    e2e[0],
		EndToEndP95:    e2e[1],
		EndToEndP99:    e2e[2],
		ProcessingMean: p.processing.Mean(),
		ProcessingP50:  proc[0],
		ProcessingP95:  proc[1],
		ProcessingP99:  proc[2],
		RenderP50:      rend[0],
		RenderP95:      rend[1],
		RenderP99:      rend[2],
	}
	if p.onSummary != nil {
		p.onSummary(summary)
	}

	if p.writer == nil {
		return
	}
	line := fmt.Sprintf("# SUMMARY total=%d e2e_mean=%.2f e2e_p50=%.2f e2e_p95=%.2f e2e_p99=%.2f proc_mean=%.2f proc_p50=%.2f proc_p95=%.2f proc_p99=%.2f render_p50=%.2f render_p95=%.2f render_p99=%.2f\n",
		summary.Total, summary.EndToEndMean, summary.EndToEndP50, summary.EndToEndP95, summary.EndToEndP99,
		summary.ProcessingMean, summary.ProcessingP50, summary.ProcessingP95, summary.ProcessingP99,
		summary.RenderP50, summary.RenderP95, summary.RenderP99)
	if _, err := p.file.WriteString(line); err != nil {
		slog.Error("metrics: failed writing summary line", slog.Any("error", err))
	}
}

// readCPUUsage and readMemUsage are best-effort host gauges; Go offers
// no direct per-process CPU percentage, so this reports goroutine count
// as a coarse load proxy and runtime.MemStats for memory, matching the
// host's own capability rather than faking a precise number.
func readCPUUsage() float64 {
	return float64(runtime.NumGoroutine())
}

func readMemUsage() float64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return float64(m.Alloc) / (1024 * 1024)
}
