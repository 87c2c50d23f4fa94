package main

import (
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"

	"github.com/kdi-go/kdi/pkg/cell"
	"github.com/kdi-go/kdi/pkg/kdilog"
	"github.com/kdi-go/kdi/pkg/metrics"
	"github.com/kdi-go/kdi/pkg/rpc"
	"github.com/kdi-go/kdi/pkg/rpcfaults"
)

// httpAPI exposes an *rpc.Server over net/http + encoding/json, the way
// the teacher's pkg/tabletserver/server.go exposed HandleMutate and
// HandleRead: one handler per operation, JSON body in, JSON body (or a
// translated status code) out.
type httpAPI struct {
	server *rpc.Server
	reg    *metrics.Registry
}

func newHTTPAPI(server *rpc.Server, reg *metrics.Registry) *httpAPI {
	return &httpAPI{server: server, reg: reg}
}

func (a *httpAPI) register(mux *http.ServeMux) {
	mux.HandleFunc("/v1/insert", a.handleInsert)
	mux.HandleFunc("/v1/erase", a.handleErase)
	mux.HandleFunc("/v1/scan/open", a.handleScanOpen)
	mux.HandleFunc("/v1/scan/more", a.handleScanMore)
	mux.HandleFunc("/v1/scan/close", a.handleScanClose)
}

type insertRequest struct {
	Table     string `json:"table"`
	Row       []byte `json:"row"`
	Column    []byte `json:"column"`
	Timestamp int64  `json:"timestamp"`
	Value     []byte `json:"value"`
}

func (a *httpAPI) handleInsert(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req insertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := a.server.Insert(req.Table, req.Row, req.Column, req.Timestamp, req.Value); err != nil {
		writeFault(w, err)
		return
	}
	a.reg.MutationsTotal.WithLabelValues(req.Table, "insert").Inc()
	w.WriteHeader(http.StatusOK)
}

type eraseRequest struct {
	Table     string `json:"table"`
	Row       []byte `json:"row"`
	Column    []byte `json:"column"`
	Timestamp int64  `json:"timestamp"`
}

func (a *httpAPI) handleErase(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req eraseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := a.server.Erase(req.Table, req.Row, req.Column, req.Timestamp); err != nil {
		writeFault(w, err)
		return
	}
	a.reg.MutationsTotal.WithLabelValues(req.Table, "erase").Inc()
	w.WriteHeader(http.StatusOK)
}

type rowIntervalWire struct {
	Lo          []byte `json:"lo"`
	Hi          []byte `json:"hi"`
	LoInclusive bool   `json:"loInclusive"`
	HiInclusive bool   `json:"hiInclusive"`
}

type predicateWire struct {
	Rows       []rowIntervalWire `json:"rows"`
	Families   [][]byte          `json:"families"`
	TimeLo     int64             `json:"timeLo"`
	TimeHi     int64             `json:"timeHi"`
	MaxHistory int               `json:"maxHistory"`
}

func (p predicateWire) toPredicate() cell.Predicate {
	pred := cell.Predicate{
		Families:   p.Families,
		TimeLo:     p.TimeLo,
		TimeHi:     p.TimeHi,
		MaxHistory: p.MaxHistory,
	}
	for _, iv := range p.Rows {
		pred.Rows = append(pred.Rows, cell.RowInterval{
			Lo: iv.Lo, Hi: iv.Hi, LoInclusive: iv.LoInclusive, HiInclusive: iv.HiInclusive,
		})
	}
	return pred
}

type scanOpenRequest struct {
	Table     string        `json:"table"`
	Predicate predicateWire `json:"predicate"`
}

type scanOpenResponse struct {
	ScanID string `json:"scanId"`
}

func (a *httpAPI) handleScanOpen(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req scanOpenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	id, err := a.server.ScanOpen(req.Table, req.Predicate.toPredicate())
	if err != nil {
		writeFault(w, err)
		return
	}
	a.reg.ScansOpenTotal.Inc()
	a.reg.ScansActive.Inc()
	json.NewEncoder(w).Encode(scanOpenResponse{ScanID: id}) //nolint:errcheck
}

type scanMoreRequest struct {
	ScanID   string `json:"scanId"`
	MaxCells int64  `json:"maxCells"`
	MaxBytes int64  `json:"maxBytes"`
	Close    bool   `json:"close"`
}

type scanMoreResponse struct {
	Cells    []cell.Cell `json:"cells"`
	Complete bool        `json:"complete"`
	Closed   bool        `json:"closed"`
}

func (a *httpAPI) handleScanMore(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req scanMoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	cells, complete, closed, err := a.server.ScanMore(req.ScanID, req.MaxCells, req.MaxBytes, req.Close)
	if err != nil {
		writeFault(w, err)
		return
	}
	a.reg.ScanCellsTotal.Add(float64(len(cells)))
	if closed {
		a.reg.ScansActive.Dec()
	}
	json.NewEncoder(w).Encode(scanMoreResponse{Cells: cells, Complete: complete, Closed: closed}) //nolint:errcheck
}

type scanCloseRequest struct {
	ScanID string `json:"scanId"`
}

func (a *httpAPI) handleScanClose(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req scanCloseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := a.server.ScanClose(req.ScanID); err != nil {
		writeFault(w, err)
		return
	}
	a.reg.ScansActive.Dec()
	w.WriteHeader(http.StatusOK)
}

// writeFault translates a pkg/rpcfaults error into an HTTP status,
// logging anything that isn't a routine client-facing fault.
func writeFault(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var f *rpcfaults.Fault
	if errors.As(err, &f) {
		switch f.Kind() {
		case rpcfaults.KindTableDoesNotExist, rpcfaults.KindScannerExpired:
			status = http.StatusNotFound
		case rpcfaults.KindRowNotOnServer, rpcfaults.KindRowNotInTablet, rpcfaults.KindInvalidPredicate:
			status = http.StatusBadRequest
		case rpcfaults.KindScannerBusy:
			status = http.StatusConflict
		default:
			kdilog.Error("rpc fault", kdilog.Err(err))
		}
	} else {
		kdilog.Error("unclassified error", kdilog.Err(err))
	}
	http.Error(w, err.Error(), status)
}
