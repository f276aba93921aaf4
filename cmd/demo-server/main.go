package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"
)

type scriptedUpdate struct {
	status    string
	indicator string
	body      string
}

// script plays out one incident from discovery to resolution.
var script = []scriptedUpdate{
	{"investigating", "minor", "We are investigating reports of delayed message delivery in some regions."},
	{"identified", "major", "The issue has been identified as a failing database cluster. Messages may be delayed by several minutes."},
	{"monitoring", "minor", "A fix has been deployed and message delivery is recovering. We are monitoring the situation."},
	{"resolved", "none", "This incident has been resolved. All messages sent during the incident have been delivered."},
}

type demo struct {
	mu      sync.Mutex
	started time.Time
	step    int
	every   time.Duration
}

func main() {
	port := flag.Int("port", 8080, "Port to run the demo server on")
	host := flag.String("host", "localhost", "Host to bind the demo server to")
	every := flag.Duration("step", 0, "Advance the scripted incident automatically at this interval (0 to advance via POST /advance)")
	flag.Parse()

	d := &demo{started: time.Now().UTC().Truncate(time.Second), every: *every}
	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", *host, *port),
		Handler: d.handler(),
	}

	go func() {
		log.Printf("Demo status page starting on http://%s:%d", *host, *port)
		log.Printf("Set status_page.base_url to http://%s:%d/api/v2", *host, *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down demo server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Demo server stopped")
}

func (d *demo) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v2/incidents.json", d.incidentsHandler)
	mux.HandleFunc("/api/v2/status.json", d.statusHandler)
	mux.HandleFunc("/advance", d.advanceHandler)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintf(w, "Discord Status demo page\n\nGET  /api/v2/incidents.json\nGET  /api/v2/status.json\nPOST /advance\n\nStep %d of %d\n", d.current()+1, len(script))
	})
	return mux
}

// current returns the index of the last visible update.
func (d *demo) current() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	step := d.step
	if d.every > 0 {
		step = int(time.Since(d.started) / d.every)
	}
	return min(step, len(script)-1)
}

func (d *demo) advanceHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	d.mu.Lock()
	if d.step < len(script)-1 {
		d.step++
	}
	d.mu.Unlock()
	fmt.Fprintf(w, "step %d\n", d.current()+1)
}

func (d *demo) at(i int) string {
	spacing := time.Minute
	if d.every > 0 {
		spacing = d.every
	}
	return d.started.Add(time.Duration(i) * spacing).Format(time.RFC3339)
}

func (d *demo) statusHandler(w http.ResponseWriter, r *http.Request) {
	cur := script[d.current()]
	writeJSON(w, map[string]any{
		"status": map[string]any{
			"indicator":   cur.indicator,
			"description": strings.ToUpper(cur.indicator[:1]) + cur.indicator[1:] + " service disruption",
		},
	})
}

func (d *demo) incidentsHandler(w http.ResponseWriter, r *http.Request) {
	n := d.current()
	updates := make([]map[string]any, 0, n+1)
	for i := n; i >= 0; i-- {
		updates = append(updates, map[string]any{
			"id":         fmt.Sprintf("demo-update-%d", i+1),
			"status":     script[i].status,
			"body":       script[i].body,
			"created_at": d.at(i),
		})
	}
	var resolvedAt any
	if script[n].status == "resolved" {
		resolvedAt = d.at(n)
	}
	writeJSON(w, map[string]any{
		"incidents": []map[string]any{{
			"id":               "demo-incident",
			"name":             "Delayed message delivery",
			"status":           script[n].status,
			"shortlink":        "https://stspg.io/demo",
			"created_at":       d.at(0),
			"updated_at":       d.at(n),
			"resolved_at":      resolvedAt,
			"incident_updates": updates,
		}},
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("encode response: %v", err)
	}
}
