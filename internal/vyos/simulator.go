package vyos

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"grimm.is/fwplan/internal/configtree"
)

// Simulator serves the VyOS 1.3 configuration API over an in-memory tree.
// Each configure batch is applied atomically: if any operation fails the
// running configuration is left unchanged.
type Simulator struct {
	mu      sync.Mutex
	apiKey  string
	running *configtree.ConfigTree

	failRetrieve  int
	failConfigure int
	failAfter     int
	batches       [][]configtree.Operation
}

// NewSimulator creates a simulator holding initial as running config.
func NewSimulator(apiKey string, initial configtree.Node) *Simulator {
	return &Simulator{
		apiKey:    apiKey,
		running:   configtree.New(configtree.Path{}, initial),
		failAfter: -1,
	}
}

// FailRetrieve makes the next n retrieve calls fail.
func (s *Simulator) FailRetrieve(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failRetrieve = n
}

// FailConfigure makes the next n configure calls fail.
func (s *Simulator) FailConfigure(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failConfigure = n
}

// FailConfigureAfter lets n configure calls through and fails the rest.
// Pass -1 to clear.
func (s *Simulator) FailConfigureAfter(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAfter = n
}

// Running returns the current running configuration.
func (s *Simulator) Running() *configtree.ConfigTree {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Batches returns every configure batch accepted so far.
func (s *Simulator) Batches() [][]configtree.Operation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]configtree.Operation, len(s.batches))
	copy(out, s.batches)
	return out
}

// ServeHTTP implements http.Handler.
func (s *Simulator) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeResult(w, http.StatusMethodNotAllowed, nil, errors.New("method not allowed"))
		return
	}
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		writeResult(w, http.StatusBadRequest, nil, err)
		return
	}
	if r.FormValue("key") != s.apiKey {
		writeResult(w, http.StatusUnauthorized, nil, errors.New("Valid API key is required"))
		return
	}
	data := []byte(r.FormValue("data"))

	switch r.URL.Path {
	case "/retrieve":
		s.handleRetrieve(w, data)
	case "/configure":
		s.handleConfigure(w, data)
	default:
		writeResult(w, http.StatusNotFound, nil, errors.New("not found"))
	}
}

func (s *Simulator) handleRetrieve(w http.ResponseWriter, data []byte) {
	var req showConfigRequest
	if err := json.Unmarshal(data, &req); err != nil {
		writeResult(w, http.StatusBadRequest, nil, err)
		return
	}
	if req.Op != "showConfig" {
		writeResult(w, http.StatusBadRequest, nil, errors.New("unsupported operation "+req.Op))
		return
	}

	s.mu.Lock()
	if s.failRetrieve > 0 {
		s.failRetrieve--
		s.mu.Unlock()
		writeResult(w, http.StatusInternalServerError, nil, errors.New("injected retrieve failure"))
		return
	}
	running := s.running
	s.mu.Unlock()

	sub, err := running.SubConfig(req.Path)
	if err != nil {
		writeResult(w, http.StatusBadRequest, nil, errors.New("Configuration under specified path is empty"))
		return
	}
	payload, err := configtree.MarshalNode(sub.Config())
	if err != nil {
		writeResult(w, http.StatusInternalServerError, nil, err)
		return
	}
	writeResult(w, http.StatusOK, payload, nil)
}

func (s *Simulator) handleConfigure(w http.ResponseWriter, data []byte) {
	var ops []configtree.Operation
	if err := json.Unmarshal(data, &ops); err != nil {
		// a single command object is also accepted
		var op configtree.Operation
		if err2 := json.Unmarshal(data, &op); err2 != nil {
			writeResult(w, http.StatusBadRequest, nil, err)
			return
		}
		ops = []configtree.Operation{op}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failConfigure > 0 {
		s.failConfigure--
		writeResult(w, http.StatusInternalServerError, nil, errors.New("injected configure failure"))
		return
	}
	if s.failAfter == 0 {
		writeResult(w, http.StatusInternalServerError, nil, errors.New("injected configure failure"))
		return
	}

	next, err := s.running.Apply(ops)
	if err != nil {
		writeResult(w, http.StatusBadRequest, nil, err)
		return
	}
	s.running = next
	s.batches = append(s.batches, ops)
	if s.failAfter > 0 {
		s.failAfter--
	}
	writeResult(w, http.StatusOK, nil, nil)
}

func writeResult(w http.ResponseWriter, status int, data json.RawMessage, err error) {
	resp := struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   *string         `json:"error"`
	}{Success: err == nil, Data: data}
	if resp.Data == nil {
		resp.Data = json.RawMessage("null")
	}
	if err != nil {
		msg := err.Error()
		resp.Error = &msg
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
