// Package aptostest runs an in-process fake of the Aptos node REST API for
// tests.
package aptostest

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
)

// ViewFunc answers a view call. Returning an error makes the node answer 400.
type ViewFunc func(args []json.RawMessage) ([]interface{}, error)

// Submission is an entry function call decoded from a submitted transaction.
type Submission struct {
	Hash           string
	SequenceNumber uint64
	Module         string
	Function       string
	Args           [][]byte
}

// U64Arg decodes the i-th argument as a little endian u64.
func (s Submission) U64Arg(i int) uint64 {
	if i >= len(s.Args) || len(s.Args[i]) != 8 {
		return 0
	}
	return binary.LittleEndian.Uint64(s.Args[i])
}

type Node struct {
	*httptest.Server

	mtx          sync.Mutex
	chainID      uint8
	sequence     uint64
	views        map[string]ViewFunc
	submissions  []Submission
	polls        map[string]int
	pendingPolls int
	vmStatus     map[string]string
	rejectSubmit map[string]string
}

func NewNode() *Node {
	n := &Node{
		chainID:      2,
		views:        map[string]ViewFunc{},
		polls:        map[string]int{},
		vmStatus:     map[string]string{},
		rejectSubmit: map[string]string{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/", n.handleLedger)
	mux.HandleFunc("/v1/view", n.handleView)
	mux.HandleFunc("/v1/accounts/", n.handleAccount)
	mux.HandleFunc("/v1/transactions", n.handleSubmit)
	mux.HandleFunc("/v1/transactions/by_hash/", n.handleByHash)
	n.Server = httptest.NewServer(mux)

	return n
}

// NodeURL is the versioned API root clients should be pointed at.
func (n *Node) NodeURL() string {
	return n.URL + "/v1"
}

// HandleView registers fn for a fully qualified function id or for a bare
// function name.
func (n *Node) HandleView(function string, fn ViewFunc) {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	n.views[function] = fn
}

// SetPendingPolls makes every transaction look pending for the first polls
// lookups.
func (n *Node) SetPendingPolls(polls int) {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	n.pendingPolls = polls
}

// FailFunction commits calls to function with a failed vm status.
func (n *Node) FailFunction(function, vmStatus string) {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	n.vmStatus[function] = vmStatus
}

// RejectFunction refuses submissions of function with a 400.
func (n *Node) RejectFunction(function, message string) {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	n.rejectSubmit[function] = message
}

func (n *Node) Submissions() []Submission {
	n.mtx.Lock()
	defer n.mtx.Unlock()

	out := make([]Submission, len(n.submissions))
	copy(out, n.submissions)
	return out
}

func (n *Node) handleLedger(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/" && r.URL.Path != "/v1" {
		writeError(w, http.StatusNotFound, "not_found", "unknown path "+r.URL.Path)
		return
	}

	n.mtx.Lock()
	chainID := n.chainID
	n.mtx.Unlock()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"chain_id":         chainID,
		"ledger_version":   "1",
		"ledger_timestamp": "0",
	})
}

func (n *Node) handleView(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Function  string            `json:"function"`
		Arguments []json.RawMessage `json:"arguments"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}

	n.mtx.Lock()
	fn, ok := n.views[req.Function]
	if !ok {
		parts := strings.Split(req.Function, "::")
		fn, ok = n.views[parts[len(parts)-1]]
	}
	n.mtx.Unlock()

	if !ok {
		writeError(w, http.StatusBadRequest, "function_not_found", req.Function)
		return
	}

	out, err := fn(req.Arguments)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, out)
}

func (n *Node) handleAccount(w http.ResponseWriter, _ *http.Request) {
	n.mtx.Lock()
	seq := n.sequence
	n.mtx.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{
		"sequence_number":    strconv.FormatUint(seq, 10),
		"authentication_key": "0x0",
	})
}

func (n *Node) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", r.Method)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}

	sub, err := decodeSubmission(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_transaction", err.Error())
		return
	}

	n.mtx.Lock()
	defer n.mtx.Unlock()

	if msg, ok := n.rejectSubmit[sub.Function]; ok {
		writeError(w, http.StatusBadRequest, "vm_error", msg)
		return
	}
	if sub.SequenceNumber != n.sequence {
		writeError(w, http.StatusBadRequest, "sequence_number_too_old",
			fmt.Sprintf("want %d got %d", n.sequence, sub.SequenceNumber))
		return
	}

	n.sequence++
	sub.Hash = fmt.Sprintf("0x%064x", len(n.submissions)+1)
	n.submissions = append(n.submissions, sub)

	writeJSON(w, http.StatusAccepted, map[string]string{
		"type": "pending_transaction",
		"hash": sub.Hash,
	})
}

func (n *Node) handleByHash(w http.ResponseWriter, r *http.Request) {
	hash := strings.TrimPrefix(r.URL.Path, "/v1/transactions/by_hash/")

	n.mtx.Lock()
	defer n.mtx.Unlock()

	var sub *Submission
	for i := range n.submissions {
		if n.submissions[i].Hash == hash {
			sub = &n.submissions[i]
			break
		}
	}
	if sub == nil {
		writeError(w, http.StatusNotFound, "transaction_not_found", hash)
		return
	}

	n.polls[hash]++
	if n.polls[hash] <= n.pendingPolls {
		writeJSON(w, http.StatusOK, map[string]interface{}{"type": "pending_transaction", "hash": hash})
		return
	}

	status, failed := n.vmStatus[sub.Function]
	if !failed {
		status = "Executed successfully"
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"type":      "user_transaction",
		"hash":      hash,
		"version":   strconv.Itoa(len(n.submissions)),
		"success":   !failed,
		"vm_status": status,
	})
}

// decodeSubmission reads the entry function out of a BCS signed transaction.
func decodeSubmission(b []byte) (Submission, error) {
	var sub Submission
	d := &decoder{b: b}

	d.skip(32)
	sub.SequenceNumber = d.u64()
	if variant := d.uleb(); variant != 2 {
		return sub, fmt.Errorf("unsupported payload variant %d", variant)
	}
	d.skip(32)
	sub.Module = d.str()
	sub.Function = d.str()
	if tyArgs := d.uleb(); tyArgs != 0 {
		return sub, fmt.Errorf("unexpected type arguments %d", tyArgs)
	}
	for i, n := 0, d.uleb(); i < n; i++ {
		sub.Args = append(sub.Args, d.bytes())
	}

	return sub, d.err
}

type decoder struct {
	b   []byte
	err error
}

func (d *decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if len(d.b) < n {
		d.err = errors.New("unexpected end of transaction")
		return nil
	}
	out := d.b[:n]
	d.b = d.b[n:]
	return out
}

func (d *decoder) skip(n int) { d.take(n) }

func (d *decoder) u64() uint64 {
	b := d.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (d *decoder) uleb() int {
	var v, shift int
	for {
		b := d.take(1)
		if b == nil {
			return 0
		}
		v |= int(b[0]&0x7f) << shift
		if b[0]&0x80 == 0 {
			return v
		}
		shift += 7
	}
}

func (d *decoder) bytes() []byte {
	return d.take(d.uleb())
}

func (d *decoder) str() string {
	return string(d.bytes())
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"message":    msg,
		"error_code": code,
	})
}
