// cmd/previewd/main.go
//
// previewd renders Open-Graph/Twitter-Card pages for relayed posts. Chat
// clients' unfurl crawlers hit it with the post's details in the query
// string and get back a self-contained HTML card; there is no state and no
// auth, the response is purely a function of the query.
package main

import (
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
)

func main() {
	port := os.Getenv("PREVIEWD_PORT")
	if port == "" {
		port = "5000"
	}

	router := mux.NewRouter()
	router.HandleFunc("/", handleCard).Methods(http.MethodGet)
	router.HandleFunc("/healthz", handleHealth).Methods(http.MethodGet)

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	log.Println("previewd listening on port", port)
	log.Fatal(server.ListenAndServe())
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
