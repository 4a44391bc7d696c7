// Package monitoring turns a running computation into a web service. It
// is the transport boundary: every endpoint takes and returns plain
// structured values, and every mutation is forwarded to the engine, which
// applies it between two step invocations.
package monitoring

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"strconv"
	"time"

	// Enable profiling
	_ "net/http/pprof"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/pkg/browser"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"

	"github.com/steerlab/steer/control"
	"github.com/steerlab/steer/engine"
	"github.com/steerlab/steer/field"
)

// Monitor serves the control and field surface of one engine over HTTP.
type Monitor struct {
	engine      *engine.Engine
	portNumber  int
	openBrowser bool
}

// NewMonitor creates a new Monitor.
func NewMonitor() *Monitor {
	return &Monitor{}
}

// WithPortNumber sets the port number of the monitor.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"Port number %d is assigned to the monitoring server, "+
				"which is not allowed. Using a random port instead.\n", portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// WithBrowser opens the served URL in the default browser once the
// server is listening.
func (m *Monitor) WithBrowser() *Monitor {
	m.openBrowser = true
	return m
}

// RegisterEngine registers the engine that drives the computation.
func (m *Monitor) RegisterEngine(e *engine.Engine) {
	m.engine = e
}

// StartServer starts the monitor as a web server.
func (m *Monitor) StartServer() {
	r := m.router()

	actualPort := ":0"
	if m.portNumber > 1000 {
		actualPort = ":" + strconv.Itoa(m.portNumber)
	}

	listener, err := net.Listen("tcp", actualPort)
	dieOnErr(err)

	url := fmt.Sprintf("http://localhost:%d",
		listener.Addr().(*net.TCPAddr).Port)
	fmt.Fprintf(os.Stderr, "Monitoring computation with %s\n", url)

	go func() {
		err = http.Serve(listener, r)
		dieOnErr(err)
	}()

	if m.openBrowser {
		err = browser.OpenURL(url)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Cannot open browser: %s\n", err)
		}
	}
}

func (m *Monitor) router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/api/controls", m.listControls)
	r.HandleFunc("/api/control/{name}", m.getControl).Methods(http.MethodGet)
	r.HandleFunc("/api/control/{name}", m.setControl).
		Methods(http.MethodPut, http.MethodPost)
	r.HandleFunc("/api/action/{name}", m.invokeAction).Methods(http.MethodPost)
	r.HandleFunc("/api/fields", m.listFields)
	r.HandleFunc("/api/field/{name}", m.getField)
	r.HandleFunc("/api/now", m.now)
	r.HandleFunc("/api/status", m.status)
	r.HandleFunc("/api/pause", m.pauseEngine)
	r.HandleFunc("/api/resume", m.resumeEngine)
	r.HandleFunc("/api/stop", m.stopEngine)
	r.HandleFunc("/api/run", m.run)
	r.HandleFunc("/api/model", m.modelDetails)
	r.HandleFunc("/api/resource", m.listResources)
	r.HandleFunc("/api/profile", m.collectProfile)

	return r
}

func (m *Monitor) listControls(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, m.engine.ListControls())
}

type controlValueRsp struct {
	Label string `json:"label"`
	Value any    `json:"value"`
}

func (m *Monitor) getControl(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	value, err := m.engine.GetControl(name)
	if err != nil {
		m.writeError(w, err)
		return
	}

	writeJSON(w, controlValueRsp{Label: name, Value: value})
}

type setControlReq struct {
	Value any `json:"value"`
}

func (m *Monitor) setControl(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	req := setControlReq{}
	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, "{\"error\":%q}", err.Error())

		return
	}

	err = m.engine.SetControl(name, req.Value)
	if err != nil {
		m.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

func (m *Monitor) invokeAction(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	err := m.engine.InvokeAction(name)
	if err != nil {
		m.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

func (m *Monitor) listFields(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, m.engine.ListFields())
}

func (m *Monitor) getField(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	a, err := m.engine.ReadField(name)
	if err != nil {
		m.writeError(w, err)
		return
	}

	writeJSON(w, a)
}

func (m *Monitor) now(w http.ResponseWriter, _ *http.Request) {
	fmt.Fprintf(w, "{\"now\":%d}", m.engine.CurrentStep())
}

type statusRsp struct {
	State     string `json:"state"`
	Now       int64  `json:"now"`
	Error     string `json:"error,omitempty"`
	ErrorStep *int64 `json:"error_step,omitempty"`
}

func (m *Monitor) status(w http.ResponseWriter, _ *http.Request) {
	rsp := statusRsp{
		State: m.engine.State().String(),
		Now:   m.engine.CurrentStep(),
	}

	if stepErr := m.engine.LastError(); stepErr != nil {
		rsp.Error = stepErr.Err.Error()
		step := stepErr.Step
		rsp.ErrorStep = &step
	}

	writeJSON(w, rsp)
}

func (m *Monitor) pauseEngine(w http.ResponseWriter, _ *http.Request) {
	m.engine.Pause()
	w.WriteHeader(http.StatusOK)
}

func (m *Monitor) resumeEngine(w http.ResponseWriter, _ *http.Request) {
	m.engine.Continue()
	w.WriteHeader(http.StatusOK)
}

func (m *Monitor) stopEngine(w http.ResponseWriter, _ *http.Request) {
	m.engine.Stop()
	w.WriteHeader(http.StatusOK)
}

func (m *Monitor) run(_ http.ResponseWriter, _ *http.Request) {
	go func() {
		err := m.engine.Run()
		if err != nil {
			panic(err)
		}
	}()
}

func (m *Monitor) modelDetails(w http.ResponseWriter, _ *http.Request) {
	serializer := goseth.NewSerializer()
	serializer.SetRoot(m.engine.Model())
	serializer.SetMaxDepth(1)
	err := serializer.Serialize(w)

	dieOnErr(err)
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	pid := os.Getpid()
	process, err := process.NewProcess(int32(pid))
	dieOnErr(err)

	cpuPercent, err := process.CPUPercent()
	dieOnErr(err)

	memorySize, err := process.MemoryInfo()
	dieOnErr(err)

	rsp := resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memorySize.RSS,
	}

	writeJSON(w, rsp)
}

func (m *Monitor) collectProfile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	err := pprof.StartCPUProfile(buf)
	dieOnErr(err)

	time.Sleep(time.Second)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	dieOnErr(err)

	writeJSON(w, prof)
}

func (m *Monitor) writeError(w http.ResponseWriter, err error) {
	var genErr *field.GenerationError

	switch {
	case errors.Is(err, control.ErrUnknownControl),
		errors.Is(err, field.ErrUnknownField):
		w.WriteHeader(http.StatusNotFound)
	case errors.Is(err, engine.ErrModelStopped):
		w.WriteHeader(http.StatusConflict)
	case errors.As(err, &genErr):
		w.WriteHeader(http.StatusInternalServerError)
	default:
		w.WriteHeader(http.StatusBadRequest)
	}

	fmt.Fprintf(w, "{\"error\":%q}", err.Error())
}

func writeJSON(w http.ResponseWriter, v any) {
	data, err := json.Marshal(v)
	dieOnErr(err)

	w.Header().Set("Content-Type", "application/json")
	_, err = w.Write(data)
	dieOnErr(err)
}

func dieOnErr(err error) {
	if err != nil {
		log.Panic(err)
	}
}
