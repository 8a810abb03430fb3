// Package measurement defines the per-request timing record produced by the
// request issuer and the line encoding used by the recorder.
package measurement

import (
	"net/http"
	"strconv"
	"time"
)

// Measurement is one issued request. Extra holds handler-supplied fields in
// the order the handler returned them.
type Measurement struct {
	Start      time.Time
	StatusCode int
	Elapsed    time.Duration
	Extra      []float64
}

// StartSeconds returns the start time as fractional seconds since the epoch.
func (m Measurement) StartSeconds() float64 {
	return float64(m.Start.Unix()) + float64(m.Start.Nanosecond())/float64(time.Second)
}

// Successful reports whether the request completed with 200 OK.
func (m Measurement) Successful() bool {
	return m.StatusCode == http.StatusOK
}

// AppendLine appends the comma-joined record and a trailing newline to dst:
// start_time,status_code,elapsed[,extra...]
func (m Measurement) AppendLine(dst []byte) []byte {
	dst = strconv.AppendFloat(dst, m.StartSeconds(), 'f', -1, 64)
	dst = append(dst, ',')
	dst = strconv.AppendInt(dst, int64(m.StatusCode), 10)
	dst = append(dst, ',')
	dst = strconv.AppendFloat(dst, m.Elapsed.Seconds(), 'f', -1, 64)
	for _, v := range m.Extra {
		dst = append(dst, ',')
		dst = strconv.AppendFloat(dst, v, 'g', -1, 64)
	}
	return append(dst, '\n')
}

// String returns the record without the trailing newline.
func (m Measurement) String() string {
	line := m.AppendLine(nil)
	return string(line[:len(line)-1])
}

// Batch is the set of measurements produced by one batch run. Order across
// workers is unspecified.
type Batch []Measurement

// Successes counts measurements with a 200 status.
func (b Batch) Successes() int {
	n := 0
	for _, m := range b {
		if m.Successful() {
			n++
		}
	}
	return n
}

// Throttled counts measurements with any non-200 status, transport failures included.
func (b Batch) Throttled() int {
	return len(b) - b.Successes()
}

// MeanSuccessElapsed returns the mean elapsed time, in seconds, of the
// successful measurements along with how many were averaged.
func (b Batch) MeanSuccessElapsed() (float64, int) {
	var sum float64
	n := 0
	for _, m := range b {
		if !m.Successful() {
			continue
		}
		sum += m.Elapsed.Seconds()
		n++
	}
	if n == 0 {
		return 0, 0
	}
	return sum / float64(n), n
}
