// This demo simulates several parallel editors in a single web page, forking and syncing their work.
// The state for the web page is kept on this server, where all merging operations are made.
//
// We assume that there is no message loss or out-of-order network shenanigans for this demo.
// An actual, multi-agent edit fest requires a more robust assumption (or, preferrably, that
// the CRDTs are also implemented in the client for powerful syncing).
package main

// Example session:
//  1) User loads demo home webpage (/load)
//  2) Server answers with all current replicas, their IDs and contents.
//  3) User edits content for a replica (/edit #1)
//  4) User edits content for a replica (/edit #2)
//  5) Server answers edit #1, content is compared at that moment in time.
//  6) Server answers edit #2, latest content is compared.
//  7) User forks a replica (/fork)
//  8) Server answers with ID and content of new replica.
//  9) User merges two replicas (/sync)
// 10) Server responds with new content for the merged replica.
//
// Note that connection state is not kept in the server, only on the client.

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"sort"
	"sync"

	"github.com/eleriac/textcrdt/crdt"
	"github.com/eleriac/textcrdt/diff"
	"github.com/google/uuid"
)

var (
	port      = flag.Int("port", 8009, "port to run server")
	staticDir = flag.String("static_dir", "", "Directory with static files")
)

// -----

type replicaInfo struct {
	id     string
	engine *crdt.Engine
	mu     *sync.Mutex
	order  int
}

func sortReplicaInfos(replicas []replicaInfo) {
	sort.Slice(replicas, func(i, j int) bool {
		return replicas[i].order < replicas[j].order
	})
}

type state struct {
	sync.Mutex

	replicamap sync.Map // map[string]replicaInfo
	maplen     int
}

func newState() *state {
	name := "agent-" + uuid.New().String()[:8]
	engine := crdt.NewEngine(name)
	replica := replicaInfo{
		id:     name,
		engine: engine,
		mu:     &sync.Mutex{},
		order:  0,
	}
	var replicamap sync.Map
	replicamap.Store(name, replica)
	return &state{
		replicamap: replicamap,
		maplen:     1,
	}
}

func (s *state) replicaInfos() []replicaInfo {
	var replicas []replicaInfo
	s.replicamap.Range(func(key, val interface{}) bool {
		replicas = append(replicas, val.(replicaInfo))
		return true
	})
	sortReplicaInfos(replicas)
	return replicas
}

// -----

func main() {
	flag.Parse()

	s := newState()

	http.Handle("/", http.FileServer(http.Dir(*staticDir)))
	http.Handle("/load", loadHTTPHandler{s})
	http.Handle("/edit", editHTTPHandler{s})
	http.Handle("/fork", forkHTTPHandler{s})
	http.Handle("/sync", syncHTTPHandler{s})

	addr := fmt.Sprintf(":%d", *port)
	log.Printf("Serving in %s\n", addr)
	log.Fatal(http.ListenAndServe(addr, nil))
}

// -----

type replicaResponse struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

type loadResponse struct {
	Replicas []replicaResponse `json:"replicas"`
}

type loadHTTPHandler struct {
	s *state
}

func (h loadHTTPHandler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	h.s.handleLoad(w)
}

func (s *state) handleLoad(w http.ResponseWriter) {
	log.Printf("load")
	var resp loadResponse
	replicas := s.replicaInfos()
	resp.Replicas = make([]replicaResponse, len(replicas))
	for i, r := range replicas {
		resp.Replicas[i] = replicaResponse{ID: r.id, Content: r.engine.Text()}
	}
	bs, err := json.Marshal(resp)
	if err != nil {
		log.Printf("Error marshaling load response: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprintf(w, "load error: %v", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(bs)
}

// -----

// editRequest carries the replica's new full content. The server diffs it
// against the replica's current text and replays the resulting keep/insert/
// delete operations as LocalInsert/LocalDelete calls, so the client never
// needs to know about positions or CRDT internals -- only diff.go does.
type editRequest struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

type editHTTPHandler struct {
	s *state
}

func (h editHTTPHandler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	parser := json.NewDecoder(req.Body)
	editReq := &editRequest{}
	if err := parser.Decode(editReq); err != nil {
		log.Printf("Error parsing body in /edit: %v", err)
		return
	}
	h.s.handleEdit(w, editReq)
}

func (s *state) handleEdit(w http.ResponseWriter, req *editRequest) {
	id := req.ID
	val, ok := s.replicamap.Load(id)
	if !ok {
		log.Printf("Unknown replica ID: %s", id)
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprintf(w, "edit error: %q not found", id)
		return
	}
	replica := val.(replicaInfo)
	replica.mu.Lock()
	defer replica.mu.Unlock()

	before := replica.engine.Text()
	ops, err := diff.Diff(before, req.Content)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, "edit error: %v", err)
		return
	}
	var pos int
	for _, op := range ops {
		switch op.Op {
		case diff.Keep:
			pos++
		case diff.Insert:
			if _, err := replica.engine.LocalInsert(pos, string(op.Char)); err != nil {
				log.Printf("%s: LocalInsert error: %v", id, err)
			}
			pos++
		case diff.Delete:
			if _, err := replica.engine.LocalDelete(pos, 1); err != nil {
				log.Printf("%s: LocalDelete error: %v", id, err)
			}
		}
	}
	content := replica.engine.Text()
	w.Header().Set("Content-Type", "text/plain")
	io.WriteString(w, content)
	log.Printf("%s: value = %s", id, content)
}

// -----

type forkRequest struct {
	LocalID string `json:"local"`
}

type forkHTTPHandler struct {
	s *state
}

func (h forkHTTPHandler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	parser := json.NewDecoder(req.Body)
	forkReq := &forkRequest{}
	if err := parser.Decode(forkReq); err != nil {
		log.Printf("Error parsing body in /fork: %v", err)
		return
	}
	h.s.handleFork(w, forkReq)
}

func (s *state) handleFork(w http.ResponseWriter, req *forkRequest) {
	id := req.LocalID
	val, ok := s.replicamap.Load(id)
	if !ok {
		log.Printf("Unknown replica ID: %s", id)
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprintf(w, "fork error: %q not found", id)
		return
	}
	local := val.(replicaInfo)
	local.mu.Lock()
	defer local.mu.Unlock()

	s.Lock()
	order := s.maplen
	s.maplen++
	s.Unlock()

	remoteName := "agent-" + uuid.New().String()[:8]
	remoteEngine := crdt.NewEngine(remoteName)
	mergeFullHistory(remoteEngine, local.engine, nil)

	s.replicamap.Store(remoteName, replicaInfo{
		id:     remoteName,
		engine: remoteEngine,
		mu:     &sync.Mutex{},
		order:  order,
	})
	log.Printf("%s: fork = %s", local.id, remoteName)

	resp := replicaResponse{ID: remoteName, Content: remoteEngine.Text()}
	bs, err := json.Marshal(resp)
	if err != nil {
		log.Printf("Error marshaling fork response: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprintf(w, "fork error: %v", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(bs)
}

// -----

type syncRequest struct {
	LocalID   string   `json:"id"`
	RemoteIDs []string `json:"mergeIds"`
}

type syncHTTPHandler struct {
	s *state
}

func (h syncHTTPHandler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	parser := json.NewDecoder(req.Body)
	syncReq := &syncRequest{}
	if err := parser.Decode(syncReq); err != nil {
		log.Printf("Error parsing body in /sync: %v", err)
		return
	}
	h.s.handleSync(w, syncReq)
}

func (s *state) handleSync(w http.ResponseWriter, req *syncRequest) {
	val, ok := s.replicamap.Load(req.LocalID)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprintf(w, "unknown ID %q", req.LocalID)
		return
	}
	local := val.(replicaInfo)
	for _, remoteID := range req.RemoteIDs {
		val, ok := s.replicamap.Load(remoteID)
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprintf(w, "unknown remote replica ID: %q", remoteID)
			return
		}
		remote := val.(replicaInfo)

		lockAll(local, remote)
		mergeFullHistory(local.engine, remote.engine, local.engine.Frontier())
		unlockAll(local, remote)

		log.Printf("%s: merge = %s", req.LocalID, remoteID)
	}
	w.Header().Set("Content-Type", "text/plain")
	io.WriteString(w, local.engine.Text())
}

// mergeFullHistory streams every transaction src has recorded that dst
// doesn't already know about (since knownVersion) and replays it into dst
// agent-by-agent, via VersionsSince + NextRemoteTxnFrom -- the same two
// calls a real network transport would drive, just without a wire codec in
// between (spec.md's Non-goals exclude one).
func mergeFullHistory(dst, src *crdt.Engine, knownVersion crdt.Frontier) {
	ranges := src.VersionsSince(knownVersion)
	for {
		var txn crdt.RemoteTxn
		var ok bool
		txn, ranges, ok = src.NextRemoteTxnFrom(ranges)
		if !ok {
			return
		}
		if _, err := dst.ApplyRemoteBatch(txn.Agent, txn.SeqStart, txn.Parents, txn.Ops); err != nil {
			log.Printf("mergeFullHistory: ApplyRemoteBatch(%s): %v", txn.Agent, err)
			return
		}
	}
}

// -----

// Lock mutexes in ascending order.
func lockAll(replicas ...replicaInfo) {
	sortReplicaInfos(replicas)
	for _, r := range replicas {
		r.mu.Lock()
	}
}

// Unlock mutexes in descending order.
func unlockAll(replicas ...replicaInfo) {
	sortReplicaInfos(replicas)
	for i := len(replicas) - 1; i >= 0; i-- {
		replicas[i].mu.Unlock()
	}
}
